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

// MinterClient asks the NFT minting service for a token per issued ticket
type MinterClient struct {
	baseURL    string
	httpClient *http.Client
}

type MinterConfig struct {
	BaseURL string
	Timeout time.Duration
}

type MintRequest struct {
	PurchaseID   string `json:"purchase_id"`
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
	Owner        string `json:"owner"`
}

type MintResponse struct {
	TokenID string `json:"token_id"`
}

func NewMinterClient(cfg MinterConfig) *MinterClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &MinterClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Mint is idempotent on PurchaseID at the minting service.
func (mc *MinterClient) Mint(ctx context.Context, req MintRequest) (string, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, mc.baseURL+"/api/v1/tokens", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := mc.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to mint token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, msg)
	}

	var result MintResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.TokenID == "" {
		return "", fmt.Errorf("minting service returned empty token id")
	}

	return result.TokenID, nil
}
