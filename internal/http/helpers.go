package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paidback/internal/core"
	"paidback/internal/session"
	"paidback/internal/store"
	"paidback/internal/store/remote"
)

const maxBodyBytes = 2 << 20

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "component", "http", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed",
			"component", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", status,
			"error", err)
	}
	respondJSON(w, status, errorBody{Error: err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrNoToken), errors.Is(err, session.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrNotApproved), errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequestBody), isValidationError(err):
		return http.StatusBadRequest
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		// Upstream 4xx is the caller's problem; everything else is ours
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func isValidationError(err error) bool {
	for _, v := range []error{
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrInvalidType,
		core.ErrUnknownCategory,
		core.ErrUnknownTag,
		core.ErrUnknownPaymentMethod,
		core.ErrNegativePoints,
		core.ErrCalendarMismatch,
		core.ErrLinkageMismatch,
		core.ErrMissingParty,
		core.ErrNegativeTotal,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}

var errBadRequestBody = errors.New("invalid request body")

// parseYearMonth extracts year and month from query parameters, defaulting
// to the current calendar month.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}

	return year, month
}
