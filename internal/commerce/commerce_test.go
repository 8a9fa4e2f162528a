package commerce

import (
	"errors"
	"testing"

	"checkout-relay/internal/model"
)

func TestOrderRejectedError_IsPhoneConflict(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"phone taken", `{"errors":{"customer.phone_number":["has already been taken"]}}`, true},
		{"phone taken alt", `{"errors":{"phone":["Phone is taken"]}}`, true},
		{"phone invalid", `{"errors":{"phone":["is invalid"]}}`, false},
		{"email taken", `{"errors":{"email":["has already been taken"]}}`, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &OrderRejectedError{StatusCode: 422, Body: tt.body}
			if got := e.IsPhoneConflict(); got != tt.want {
				t.Errorf("IsPhoneConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderRejectedError_Unwrap(t *testing.T) {
	var err error = &OrderRejectedError{StatusCode: 422, Body: "bad"}
	if !errors.Is(err, model.ErrOrderCreationFailed) {
		t.Error("expected OrderRejectedError to match ErrOrderCreationFailed")
	}
	var rejected *OrderRejectedError
	if !errors.As(err, &rejected) || rejected.StatusCode != 422 {
		t.Errorf("errors.As failed: %v", rejected)
	}
}

func TestOrderPayload_WithoutCustomer(t *testing.T) {
	p := &OrderPayload{Email: "a@b.c", Customer: &CustomerRef{Phone: "+1555"}}
	stripped := p.WithoutCustomer()
	if stripped.Customer != nil {
		t.Error("customer block should be removed")
	}
	if p.Customer == nil {
		t.Error("original payload must not be modified")
	}
	if stripped.Email != "a@b.c" {
		t.Errorf("Email = %q, want a@b.c", stripped.Email)
	}
}
