package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jacl-coder/EyeSurvival-Server/internal/payment"
	"github.com/jacl-coder/EyeSurvival-Server/internal/session"
	"github.com/jacl-coder/EyeSurvival-Server/internal/storage"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks client input errors raised inside this package.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// readJSON decodes a single JSON object no larger than maxBodyBytes.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("body must not be empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return badRequest("body contains badly-formed JSON")
		case errors.As(err, &typeErr):
			return badRequest("body has the wrong type for field %q", typeErr.Field)
		case errors.As(err, &tooLarge):
			return badRequest("body must not be larger than %d bytes", maxBodyBytes)
		default:
			return badRequest("%v", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("body must only contain a single JSON value")
	}
	return nil
}

// parseLimit reads a ?limit= value, defaulting to def and capping at ceiling.
func parseLimit(raw string, def, ceiling int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("limit must be a positive integer")
	}
	return min(n, ceiling), nil
}

// statusFor maps domain errors onto HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")
	case errors.Is(err, store.ErrRoundNotFound):
		return http.StatusNotFound, "Game not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, store.ErrWalletNotFound):
		return http.StatusNotFound, "Wallet not found"
	case errors.Is(err, session.ErrRejoinDenied):
		return http.StatusForbidden, "You have already left this game and cannot rejoin"
	case errors.Is(err, session.ErrNotInRoster):
		return http.StatusForbidden, "You are not a player in this game"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, session.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be a positive number"
	case errors.Is(err, store.ErrDuplicateReference):
		return http.StatusConflict, "This payment has already been processed"
	case errors.Is(err, payment.ErrReferenceRequired):
		return http.StatusBadRequest, "Payment reference is required"
	case errors.Is(err, payment.ErrUnknownReference):
		return http.StatusNotFound, "Payment reference not found"
	case errors.Is(err, payment.ErrNotSuccessful):
		return http.StatusBadRequest, "Payment was not successful"
	case errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusBadRequest, "Insufficient funds"
	case errors.Is(err, store.ErrTransactionMissing):
		return http.StatusNotFound, "Withdrawal not found"
	case errors.Is(err, store.ErrNotPending):
		return http.StatusConflict, "Withdrawal has already been settled"
	case errors.Is(err, payment.ErrAccountUnresolved):
		return http.StatusBadRequest, "Invalid account details"
	case errors.Is(err, payment.ErrUnknownTransfer):
		return http.StatusNotFound, "Transfer not found"
	case errors.Is(err, payment.ErrTransferRejected):
		return http.StatusBadRequest, "Transfer was rejected by the payment provider"
	case errors.Is(err, errPayoutsDisabled):
		return http.StatusServiceUnavailable, "Withdrawals are not available"
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusBadRequest, "Avatar must be a JPEG, PNG, GIF or WebP image"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// writeError answers with the mapped status. Server faults are logged.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeJSON(w, status, Response{Success: false, Message: message})
}
