package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tixledger/internal/logger"
	"tixledger/internal/middleware"
	"tixledger/internal/models"
)

// APIValidator - смоук-проверка развернутого API по основному сценарию покупки
type APIValidator struct {
	baseURL      string
	token        string
	ticketTypeID string
	httpClient   *http.Client
}

// NewAPIValidator создает новый валидатор. token - JWT покупателя.
func NewAPIValidator(baseURL, token, ticketTypeID string) *APIValidator {
	return &APIValidator{
		baseURL:      baseURL,
		token:        token,
		ticketTypeID: ticketTypeID,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateAll проверяет все endpoints по очереди
func (v *APIValidator) ValidateAll() error {
	logger.Get().Info("Начинаю валидацию API...", "base_url", v.baseURL)

	if err := v.expectStatus(http.MethodGet, "/health", nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("health validation failed: %w", err)
	}

	var availability models.AvailabilityResponse
	if err := v.expectStatus(http.MethodGet, "/api/ticket-types/"+v.ticketTypeID+"/availability?quantity=1", nil, http.StatusOK, &availability); err != nil {
		return fmt.Errorf("availability validation failed: %w", err)
	}
	if !availability.Available {
		return fmt.Errorf("ticket type %s is not available: %s", v.ticketTypeID, availability.Reason)
	}

	if err := v.validatePurchaseLifecycle(); err != nil {
		return fmt.Errorf("purchases validation failed: %w", err)
	}

	if err := v.validateWebhookRejectsUnsigned(); err != nil {
		return fmt.Errorf("webhook validation failed: %w", err)
	}

	logger.Get().Info("✅ Все endpoints прошли валидацию успешно!")
	return nil
}

// validatePurchaseLifecycle резервирует один билет и сразу отменяет покупку
func (v *APIValidator) validatePurchaseLifecycle() error {
	var created models.CreatePurchaseResponse
	req := models.CreatePurchaseRequest{TicketTypeID: v.ticketTypeID, Quantity: 1}
	if err := v.expectStatus(http.MethodPost, "/api/purchases", req, http.StatusCreated, &created); err != nil {
		return err
	}

	path := "/api/purchases/" + created.PurchaseID
	var status models.PurchaseStatusResponse
	if err := v.expectStatus(http.MethodGet, path, nil, http.StatusOK, &status); err != nil {
		return err
	}
	if status.PaymentStatus != "pending" {
		return fmt.Errorf("GET %s: expected pending, got %s", path, status.PaymentStatus)
	}

	if err := v.expectStatus(http.MethodPatch, path+"/cancel", nil, http.StatusOK, nil); err != nil {
		return err
	}
	if err := v.expectStatus(http.MethodGet, path, nil, http.StatusOK, &status); err != nil {
		return err
	}
	if status.PaymentStatus != "failed" {
		return fmt.Errorf("GET %s after cancel: expected failed, got %s", path, status.PaymentStatus)
	}

	logger.Get().Info("✅ Purchases endpoints валидны")
	return nil
}

func (v *APIValidator) validateWebhookRejectsUnsigned() error {
	body, err := json.Marshal(models.PaymentNotificationPayload{Event: models.WebhookApproval, PaymentID: "validation"})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, v.baseURL+"/api/payments/webhook", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SignatureHeader, "00")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("POST /api/payments/webhook with bad signature: expected 401, got %d", resp.StatusCode)
	}

	logger.Get().Info("✅ Payments webhook валиден")
	return nil
}

func (v *APIValidator) expectStatus(method, path string, body interface{}, want int, out interface{}) error {
	resp, err := v.makeRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, want, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

func (v *APIValidator) makeRequest(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.token != "" {
		req.Header.Set("Authorization", "Bearer "+v.token)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	return resp, nil
}
