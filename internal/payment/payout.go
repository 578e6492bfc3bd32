package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrAccountUnresolved = errors.New("bank account could not be resolved")
	ErrUnknownTransfer   = errors.New("transfer not found")
	ErrTransferRejected  = errors.New("transfer was rejected")
)

// Transfer states reported by Paystack.
const (
	TransferOTP     = "otp"
	TransferPending = "pending"
	TransferSuccess = "success"
)

// Bank is one entry of the supported bank list.
type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug,omitempty"`
}

// Account is a resolved bank account.
type Account struct {
	Number string `json:"accountNumber"`
	Name   string `json:"accountName"`
}

// TransferRequest pays Amount (minor units) to a bank account.
type TransferRequest struct {
	Amount        int64
	AccountNumber string
	BankCode      string
	AccountName   string
	Reason        string
	Reference     string
}

// Transfer is the provider's view of a payout.
type Transfer struct {
	Reference string `json:"reference"`
	Code      string `json:"transferCode"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

// Settled reports whether the transfer reached a final state and whether it
// paid out.
func (t *Transfer) Settled() (final, paid bool) {
	switch t.Status {
	case TransferSuccess:
		return true, true
	case "failed", "reversed", "abandoned", "blocked", "rejected":
		return true, false
	}
	return false, false
}

// Payouts moves wallet money to bank accounts.
type Payouts interface {
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveAccount(ctx context.Context, number, bankCode string) (*Account, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	FinalizeTransfer(ctx context.Context, transferCode, otp string) (*Transfer, error)
	VerifyTransfer(ctx context.Context, reference string) (*Transfer, error)
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type transferData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

func (d transferData) toTransfer() *Transfer {
	return &Transfer{Reference: d.Reference, Code: d.TransferCode, Status: d.Status, Amount: d.Amount}
}

// call sends body as JSON (when non-nil) and decodes the envelope into out.
// A 404 is returned as notFound.
func (p *Paystack) call(ctx context.Context, method, path string, body any, out any, notFound error) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && notFound != nil:
		return notFound
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		var e envelope[json.RawMessage]
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return fmt.Errorf("%w: %s", ErrTransferRejected, e.Message)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("paystack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (p *Paystack) ListBanks(ctx context.Context) ([]Bank, error) {
	var out envelope[[]Bank]
	if err := p.call(ctx, http.MethodGet, "/bank?country=nigeria", nil, &out, nil); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack: %s", out.Message)
	}
	return out.Data, nil
}

func (p *Paystack) ResolveAccount(ctx context.Context, number, bankCode string) (*Account, error) {
	number, bankCode = strings.TrimSpace(number), strings.TrimSpace(bankCode)
	if number == "" || bankCode == "" {
		return nil, ErrAccountUnresolved
	}

	q := url.Values{"account_number": {number}, "bank_code": {bankCode}}
	var out envelope[struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
	}]
	err := p.call(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &out, ErrAccountUnresolved)
	if errors.Is(err, ErrTransferRejected) {
		return nil, ErrAccountUnresolved
	}
	if err != nil {
		return nil, err
	}
	if !out.Status || out.Data.AccountName == "" {
		return nil, ErrAccountUnresolved
	}
	return &Account{Number: out.Data.AccountNumber, Name: out.Data.AccountName}, nil
}

// InitiateTransfer registers the recipient and queues the transfer. The
// returned status is TransferOTP when FinalizeTransfer must follow.
func (p *Paystack) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	var recipient envelope[struct {
		Code string `json:"recipient_code"`
	}]
	err := p.call(ctx, http.MethodPost, "/transferrecipient", map[string]string{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       "NGN",
	}, &recipient, nil)
	if err != nil {
		return nil, err
	}
	if !recipient.Status || recipient.Data.Code == "" {
		return nil, fmt.Errorf("%w: %s", ErrTransferRejected, recipient.Message)
	}

	var out envelope[transferData]
	err = p.call(ctx, http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    req.Amount,
		"recipient": recipient.Data.Code,
		"reason":    req.Reason,
		"reference": req.Reference,
	}, &out, nil)
	if err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrTransferRejected, out.Message)
	}
	t := out.Data.toTransfer()
	if t.Reference == "" {
		t.Reference = req.Reference
	}
	return t, nil
}

func (p *Paystack) FinalizeTransfer(ctx context.Context, transferCode, otp string) (*Transfer, error) {
	var out envelope[transferData]
	err := p.call(ctx, http.MethodPost, "/transfer/finalize_transfer", map[string]string{
		"transfer_code": transferCode,
		"otp":           otp,
	}, &out, ErrUnknownTransfer)
	if err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrTransferRejected, out.Message)
	}
	return out.Data.toTransfer(), nil
}

func (p *Paystack) VerifyTransfer(ctx context.Context, reference string) (*Transfer, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceRequired
	}
	var out envelope[transferData]
	err := p.call(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &out, ErrUnknownTransfer)
	if err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack: %s", out.Message)
	}
	t := out.Data.toTransfer()
	if t.Reference == "" {
		t.Reference = reference
	}
	return t, nil
}
