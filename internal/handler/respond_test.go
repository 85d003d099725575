package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/intake/internal/apperr"
	"github.com/dukerupert/intake/internal/lock"
)

func TestWriteErrorStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.Invalid("amount", "Amount must be greater than 0"), http.StatusBadRequest},
		{"policy", fmt.Errorf("record visit: %w", &apperr.PolicyError{Reasons: []string{"limit"}}), http.StatusUnprocessableEntity},
		{"voucher state", &apperr.VoucherStateError{Code: "VCH-1", Status: "expired"}, http.StatusConflict},
		{"not found", fmt.Errorf("get customer: %w", apperr.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("signup: %w", apperr.ErrConflict), http.StatusConflict},
		{"persistence", apperr.Persistence("insert visit", errors.New("disk full")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"lock busy", fmt.Errorf("lock customers: %w", lock.ErrTimeout), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, logger, tc.err)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	writeError(rec, logger, apperr.Persistence("insert visit", errors.New("disk full")))

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "internal error" {
		t.Errorf("error = %q, want generic message", resp.Error)
	}
}

func TestWriteErrorPolicyReasons(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	writeError(rec, logger, &apperr.PolicyError{Reasons: []string{"Monthly voucher limit reached (1/1)"}})

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0] != "Monthly voucher limit reached (1/1)" {
		t.Errorf("reasons = %v", resp.Reasons)
	}
}

func TestParseFlexibleTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-20T10:30:00Z", time.Date(2025, 3, 20, 10, 30, 0, 0, time.UTC)},
		{"2025-03-20T10:30", time.Date(2025, 3, 20, 10, 30, 0, 0, loc)},
		{"2025-03-20 10:30:15", time.Date(2025, 3, 20, 10, 30, 15, 0, loc)},
		{"2025-03-20", time.Date(2025, 3, 20, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		got, err := parseFlexibleTime(tc.in, loc)
		if err != nil {
			t.Errorf("parseFlexibleTime(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseFlexibleTime(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := parseFlexibleTime("next tuesday", loc); err == nil {
		t.Error("expected error for free-form text")
	}
}

func TestParseIDParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/customers/x", nil)
	r.SetPathValue("id", "0")
	if _, err := parseIDParam(r, "id"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
	r.SetPathValue("id", "42")
	if id, err := parseIDParam(r, "id"); err != nil || id != 42 {
		t.Errorf("parseIDParam = %d, %v", id, err)
	}
}
