package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentClient_ApproveAndComplete(t *testing.T) {
	var paths []string
	var completeBody PaymentCompleteRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Key api-key", r.Header.Get("Authorization"))
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v2/payments/ext-1/complete" {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&completeBody))
		}
		json.NewEncoder(w).Encode(PaymentDTO{Identifier: "ext-1", Amount: 100})
	}))
	defer srv.Close()

	client := NewPaymentClient(PaymentConfig{BaseURL: srv.URL, APIKey: "api-key"})
	require.NoError(t, client.Approve(context.Background(), "ext-1"))
	require.NoError(t, client.Complete(context.Background(), "ext-1", "tx-9"))

	assert.Equal(t, []string{"/v2/payments/ext-1/approve", "/v2/payments/ext-1/complete"}, paths)
	assert.Equal(t, "tx-9", completeBody.TxID)
}

func TestPaymentClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "already approved", http.StatusConflict)
	}))
	defer srv.Close()

	client := NewPaymentClient(PaymentConfig{BaseURL: srv.URL})
	err := client.Approve(context.Background(), "ext-1")
	require.Error(t, err)

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, http.StatusConflict, providerErr.StatusCode)
}

func TestMinterClient_Mint(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"created", http.StatusCreated, `{"token_id":"tok-1"}`, "tok-1", false},
		{"empty token", http.StatusOK, `{}`, "", true},
		{"server error", http.StatusBadGateway, `oops`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got MintRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/tokens", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewMinterClient(MinterConfig{BaseURL: srv.URL})
			token, err := client.Mint(context.Background(), MintRequest{PurchaseID: "p-1", Quantity: 2, Owner: "buyer-1"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
			assert.Equal(t, "p-1", got.PurchaseID)
			assert.Equal(t, 2, got.Quantity)
		})
	}
}
