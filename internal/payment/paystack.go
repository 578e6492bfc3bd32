// Package payment verifies wallet top-ups and pays out withdrawals with
// Paystack.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/config"
)

var (
	ErrReferenceRequired = errors.New("payment reference is required")
	ErrUnknownReference  = errors.New("payment reference not found")
	ErrNotSuccessful     = errors.New("payment was not successful")
)

// Verification is the subset of Paystack's verify payload the wallet needs.
// Amount is in minor units (kobo).
type Verification struct {
	Reference string
	Amount    int64
	Currency  string
	Status    string
	UserID    string
	Eyes      int64
	PaidAt    time.Time
}

// Verifier confirms a payment reference.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*Verification, error)
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string    `json:"reference"`
		Amount    int64     `json:"amount"`
		Currency  string    `json:"currency"`
		Status    string    `json:"status"`
		PaidAt    time.Time `json:"paid_at"`
		Metadata  struct {
			UserID string `json:"userId"`
			Eyes   int64  `json:"eyes"`
		} `json:"metadata"`
	} `json:"data"`
}

// Paystack is the REST client for charges and transfers.
type Paystack struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewPaystack builds a client from cfg. client may be nil.
func NewPaystack(cfg config.PaymentConfig, client *http.Client) *Paystack {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.paystack.co"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Paystack{baseURL: base, secretKey: cfg.SecretKey, client: client}
}

// Verify returns the verified transaction, or ErrNotSuccessful when Paystack
// knows the reference but the charge did not succeed.
func (p *Paystack) Verify(ctx context.Context, reference string) (*Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceRequired
	}

	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnknownReference
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("paystack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack: %s", out.Message)
	}

	v := &Verification{
		Reference: out.Data.Reference,
		Amount:    out.Data.Amount,
		Currency:  out.Data.Currency,
		Status:    out.Data.Status,
		UserID:    out.Data.Metadata.UserID,
		Eyes:      out.Data.Metadata.Eyes,
		PaidAt:    out.Data.PaidAt,
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	if v.Status != "success" {
		return v, ErrNotSuccessful
	}
	return v, nil
}
