package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer returns a test server that answers every request with result.
func rpcServer(t *testing.T, wantMethod string, result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		if req.Method != wantMethod {
			t.Errorf("expected method %s, got %s", wantMethod, req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetTokenAccountBalance(t *testing.T) {
	server := rpcServer(t, "getTokenAccountBalance", map[string]interface{}{
		"context": map[string]interface{}{"slot": 1114},
		"value": map[string]interface{}{
			"amount":         "600000000",
			"decimals":       9,
			"uiAmount":       0.6,
			"uiAmountString": "0.6",
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	account := MustParsePubkey("7fUAJdStEuGbc3sM84cKRL6yYaaSstyLSU4ve5oovLS7")

	amount, err := client.GetTokenAccountBalance(context.Background(), account)
	if err != nil {
		t.Fatalf("GetTokenAccountBalance: %v", err)
	}

	if amount.Amount != 600000000 {
		t.Errorf("expected amount 600000000, got %d", amount.Amount)
	}

	if amount.Decimals != 9 {
		t.Errorf("expected decimals 9, got %d", amount.Decimals)
	}
}

func TestHTTPClient_GetTokenSupply(t *testing.T) {
	server := rpcServer(t, "getTokenSupply", map[string]interface{}{
		"context": map[string]interface{}{"slot": 1114},
		"value": map[string]interface{}{
			"amount":   "1000000000",
			"decimals": 9,
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	mint := MustParsePubkey("3wyAj7Rt1TWVPZVteFJPLa26JmLvdb1CAKEFZm3NY75E")

	supply, err := client.GetTokenSupply(context.Background(), mint)
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}

	if supply.Amount != 1000000000 {
		t.Errorf("expected supply 1000000000, got %d", supply.Amount)
	}
}

func TestHTTPClient_GetBlockTime(t *testing.T) {
	server := rpcServer(t, "getBlockTime", int64(1700000000))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	bt, err := client.GetBlockTime(context.Background(), 12345)
	if err != nil {
		t.Fatalf("GetBlockTime: %v", err)
	}

	if bt == nil || *bt != 1700000000 {
		t.Errorf("expected blockTime 1700000000, got %v", bt)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(999),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}

	if slot != 999 {
		t.Errorf("expected slot 999, got %d", slot)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_AccountNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "Invalid param: could not find account",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.GetTokenAccountBalance(context.Background(), Pubkey{1})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !IsAccountNotFound(err) {
		t.Errorf("expected account-not-found error, got %v", err)
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32600,
				"message": "Invalid Request",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.GetSlot(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	rpcErr, ok := err.(*rpcError)
	if !ok {
		t.Fatalf("expected rpcError, got %T", err)
	}

	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}

	if IsAccountNotFound(err) {
		t.Error("invalid request must not be reported as account-not-found")
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.GetSlot(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
