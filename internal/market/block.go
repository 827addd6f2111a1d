package market

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// TradeBlock is one entry in a symbol's append-only hash chain.
type TradeBlock struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	Trade        Trade  `json:"trade"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// GenesisPreviousHash is the previous_hash literal for a chain's first block.
const GenesisPreviousHash = "0"

// ComputeHash reproduces the block's hash from its own fields: SHA-256 over
// the big-endian index, the big-endian timestamp, the trade's canonical JSON
// and the previous hash's UTF-8 bytes, hex-lowercase. It does not read
// b.Hash, so it is also how validate() recomputes and compares.
func (b TradeBlock) ComputeHash() string {
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], b.Index)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(b.Timestamp))

	h := sha256.New()
	h.Write(idxBuf[:])
	h.Write(tsBuf[:])
	h.Write(b.Trade.CanonicalJSON())
	h.Write([]byte(b.PreviousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// NewTradeBlock builds and hashes a block linked to previous, the predecessor
// block's hash (or GenesisPreviousHash for the first block of a chain).
func NewTradeBlock(index uint64, timestamp int64, trade Trade, previousHash string) TradeBlock {
	b := TradeBlock{
		Index:        index,
		Timestamp:    timestamp,
		Trade:        trade,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}
