package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewHTTPClient(server.URL, "", Credentials{APIKey: "key", SecretKey: "secret"})
	return server, client
}

func TestCurrentPriceParsesBody(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"price": "42.50"})
	})
	price, err := client.CurrentPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 42.5 {
		t.Fatalf("expected 42.5, got %v", price)
	}
}

func TestLotStepFindsMatchingFilter(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbols": []map[string]interface{}{
				{
					"symbol": "BTCUSDT",
					"filters": []map[string]string{
						{"filterType": "PRICE_FILTER", "stepSize": "0.01"},
						{"filterType": "LOT_SIZE", "stepSize": "0.001"},
					},
				},
			},
		})
	})
	step, err := client.LotStep(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step != 0.001 {
		t.Fatalf("expected 0.001, got %v", step)
	}
}

func TestLotStepMissingSymbolErrors(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"symbols": []map[string]interface{}{}})
	})
	if _, err := client.LotStep(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected an error for a missing symbol")
	}
}

func TestOrderRejectsBelowMinimumNotional(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/ticker/price" {
			json.NewEncoder(w).Encode(map[string]string{"price": "100"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	err := client.Order(context.Background(), "BTCUSDT", Buy, 0.1, false)
	if err == nil {
		t.Fatal("expected a MinimumNotional rejection for 0.1 * 100 = 10 USDT notional")
	}
	exchErr, ok := err.(*Error)
	if !ok || exchErr.Kind != MinimumNotional {
		t.Fatalf("expected MinimumNotional error, got %v", err)
	}
}

func TestOrderAboveMinimumNotionalSucceeds(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/ticker/price" {
			json.NewEncoder(w).Encode(map[string]string{"price": "100"})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})
	if err := client.Order(context.Background(), "BTCUSDT", Buy, 1.0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPositionsFiltersZeroAmount(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"symbol": "BTCUSDT", "positionAmt": "0"},
			{"symbol": "ETHUSDT", "positionAmt": "1.5"},
		})
	})
	positions, err := client.Positions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "ETHUSDT" {
		t.Fatalf("expected only the nonzero ETHUSDT position, got %+v", positions)
	}
}

func TestServerTimeOffsetCachesOnClient(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"serverTime": 1700000000000})
	})
	offset, err := client.ServerTimeOffset(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.serverOffset != offset {
		t.Fatalf("expected the computed offset to be cached on the client, got field=%d return=%d", client.serverOffset, offset)
	}
}

func TestV2EndpointsRouteToV2Host(t *testing.T) {
	var v2Hit bool
	v2Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v2Hit = true
		json.NewEncoder(w).Encode([]map[string]string{{"asset": "USDT", "balance": "10", "availableBalance": "5"}})
	}))
	t.Cleanup(v2Server.Close)
	v1Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("v1 host received unexpected request to %s", r.URL.Path)
	}))
	t.Cleanup(v1Server.Close)

	client := NewHTTPClient(v1Server.URL, v2Server.URL, Credentials{APIKey: "k", SecretKey: "s"})
	balance, err := client.Balance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v2Hit {
		t.Fatal("expected the balance request to hit the v2 host")
	}
	if balance.Total != 10 || balance.Available != 5 {
		t.Fatalf("unexpected balance decoded: %+v", balance)
	}
}

func TestSignProducesHexDigest(t *testing.T) {
	client := NewHTTPClient("http://example.invalid", "", Credentials{APIKey: "k", SecretKey: "s"})
	sig := client.sign("symbol=BTCUSDT&timestamp=1")
	if len(sig) != 64 {
		t.Fatalf("expected a 64-character hex SHA-256 HMAC digest, got length %d", len(sig))
	}
}
