package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("amount must be positive"), http.StatusBadRequest},
		{"state", State("cart is empty"), http.StatusConflict},
		{"transition", Transition("DISPENSED", "REJECTED"), http.StatusConflict},
		{"not found", NotFound("sale", "s-1"), http.StatusNotFound},
		{"forbidden", Forbidden("not your prescription"), http.StatusForbidden},
		{"persistence", Persistence(errors.New("connection refused"), "put sales"), http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("checkout: %w", Validation("x")), http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTransition_IsStateError(t *testing.T) {
	err := Transition("DISPENSED", "DISPENSED")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Error("expected ErrInvalidStateTransition")
	}
	if !errors.Is(err, ErrState) {
		t.Error("expected transition error to also classify as ErrState")
	}
}

func TestPersistence_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence(cause, "put inventory")
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if !errors.Is(err, ErrPersistence) {
		t.Error("expected ErrPersistence")
	}
}

func TestHTTPError_HidesUnclassifiedCause(t *testing.T) {
	he := HTTPError(errors.New("pq: password authentication failed"))
	if he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", he.Code)
	}
	if he.Message != "internal server error" {
		t.Errorf("expected generic message, got %v", he.Message)
	}

	he = HTTPError(NotFound("sale", "s-9"))
	if he.Code != http.StatusNotFound || he.Message != `not found: sale "s-9"` {
		t.Errorf("unexpected conversion: %d %v", he.Code, he.Message)
	}
}
