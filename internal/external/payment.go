package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentClient talks to the wallet payment provider's server-side API
type PaymentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type PaymentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Provider API models
type PaymentCompleteRequest struct {
	TxID string `json:"txid"`
}

type PaymentDTO struct {
	Identifier string `json:"identifier"`
	Amount     int64  `json:"amount"`
	Memo       string `json:"memo"`
	Status     struct {
		DeveloperApproved   bool `json:"developer_approved"`
		TransactionVerified bool `json:"transaction_verified"`
		DeveloperCompleted  bool `json:"developer_completed"`
		Cancelled           bool `json:"cancelled"`
		UserCancelled       bool `json:"user_cancelled"`
	} `json:"status"`
	Transaction *struct {
		TxID     string `json:"txid"`
		Verified bool   `json:"verified"`
	} `json:"transaction"`
}

// ProviderError is returned for non-2xx answers
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &PaymentClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Approve confirms server-side that the payment may be signed by the buyer.
func (pc *PaymentClient) Approve(ctx context.Context, externalPaymentID string) error {
	_, err := pc.post(ctx, "/v2/payments/"+externalPaymentID+"/approve", nil)
	if err != nil {
		return fmt.Errorf("failed to approve payment %s: %w", externalPaymentID, err)
	}
	return nil
}

// Complete acknowledges the blockchain transaction of a verified payment.
func (pc *PaymentClient) Complete(ctx context.Context, externalPaymentID, txID string) error {
	_, err := pc.post(ctx, "/v2/payments/"+externalPaymentID+"/complete", PaymentCompleteRequest{TxID: txID})
	if err != nil {
		return fmt.Errorf("failed to complete payment %s: %w", externalPaymentID, err)
	}
	return nil
}

func (pc *PaymentClient) post(ctx context.Context, path string, body interface{}) (*PaymentDTO, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+pc.apiKey)

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var result PaymentDTO
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}
