package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "send 20 dollars to priya", req["message"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":        true,
			"response":       "Transfer complete",
			"transaction_id": "0.0.1001@1700000000.000000001",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	resp, err := c.Chat(context.Background(), "send 20 dollars to priya")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Transfer complete", resp.Response)
	assert.Equal(t, "0.0.1001@1700000000.000000001", resp.TransactionID)
}

func TestChat_ValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "message is required"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Chat(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message is required")
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        map[string]interface{}
		wantErr     string
		wantSuccess bool
		wantState   string
	}{
		{
			name:   "completed",
			status: http.StatusOK,
			body: map[string]interface{}{
				"success":        true,
				"transfer_id":    "tr-1",
				"state":          "COMPLETED",
				"transaction_id": "0.0.1001@1700000000.000000001",
			},
			wantSuccess: true,
			wantState:   "COMPLETED",
		},
		{
			name:   "compliance rejection is a result",
			status: http.StatusForbidden,
			body: map[string]interface{}{
				"success": false,
				"state":   "REJECTED",
				"reason":  "COMPLIANCE_BLOCKED",
				"error":   "sanctions screening failed",
			},
			wantState: "REJECTED",
		},
		{
			name:    "validation error",
			status:  http.StatusBadRequest,
			body:    map[string]interface{}{"error": "amount must be greater than zero"},
			wantErr: "amount must be greater than zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "POST", r.Method)
				assert.Equal(t, "/api/v1/transfer", r.URL.Path)

				var req TransferRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "priya", req.Recipient)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			c := NewClient(server.URL, nil, nil)
			result, err := c.Transfer(context.Background(), TransferRequest{
				Recipient: "priya",
				Amount:    "20",
				Currency:  "USD",
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantState, result.State)
		})
	}
}

func TestAsyncTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == "POST" && r.URL.Path == "/api/v1/transfers/async":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{
				"workflow_id": "transfer-abc",
				"status_url":  "/api/v1/transfers/async/transfer-abc",
			})
		case r.Method == "GET" && r.URL.Path == "/api/v1/transfers/async/transfer-abc":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"workflow_id": "transfer-abc",
				"status":      "COMPLETED",
				"result": map[string]string{
					"status":         "completed",
					"transaction_id": "0.0.1001@1700000000.000000001",
					"message":        "Sent 20 USD",
				},
			})
		case r.Method == "GET":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "transfer not found"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)

	id, err := c.StartAsyncTransfer(context.Background(), "send 20 dollars to priya")
	require.NoError(t, err)
	assert.Equal(t, "transfer-abc", id)

	status, err := c.GetTransferStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, "0.0.1001@1700000000.000000001", status.Result.TransactionID)

	_, err = c.GetTransferStatus(context.Background(), "transfer-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transfer not found")
}

func TestBalances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/balances", r.URL.Path)
		assert.Equal(t, "0.0.4004", r.URL.Query().Get("account"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token_id":     "0.0.3003",
			"token_symbol": "USDC",
			"network":      "testnet",
			"balances": []map[string]string{
				{"role": "account", "account_id": "0.0.4004", "balance": "12.50"},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	b, err := c.Balances(context.Background(), "0.0.4004")
	require.NoError(t, err)
	assert.Equal(t, "USDC", b.TokenSymbol)
	require.Len(t, b.Balances, 1)
	assert.Equal(t, "12.50", b.Balances[0].Balance)
}

func TestRecipients(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/recipients", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"recipients": []map[string]interface{}{
				{"name": "priya", "account_id": "0.0.4004", "location": "IN", "kyc_verified": true},
				{"name": "carlos", "account_id": "0.0.5005", "location": "MX", "kyc_verified": false},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	recipients, err := c.Recipients(context.Background())
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "priya", recipients[0].Name)
	assert.True(t, recipients[0].KYCVerified)
	assert.Equal(t, "MX", recipients[1].Location)
}

func TestHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	require.NoError(t, c.Health(context.Background()))

	healthy = false
	require.Error(t, c.Health(context.Background()))
}

func TestAwaitTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/transfers/0.0.4004", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, "event: connected\ndata: {\"account\":\"0.0.4004\"}\n\n")
		fmt.Fprintf(w, ": keepalive\n\n")
		fmt.Fprintf(w, "event: transfer\ndata: {\"transfer_id\":\"tr-1\",\"recipient\":\"0.0.4004\",\"amount\":\"5\"}\n\n")
		fmt.Fprintf(w, "event: transfer\ndata: not json\n\n")
		fmt.Fprintf(w, "event: transfer\ndata: {\"transfer_id\":\"tr-2\",\"recipient\":\"0.0.4004\",\"amount\":\"20\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(server.URL, nil, nil)
	event, err := c.AwaitTransfer(ctx, "0.0.4004", func(e *TransferEvent) bool {
		return e.TransferID == "tr-2"
	})
	require.NoError(t, err)
	assert.Equal(t, "20", event.Amount)
}

func TestAwaitTransfer_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewClient(server.URL, nil, nil)
	_, err := c.AwaitTransfer(ctx, "", nil)
	require.Error(t, err)
}
