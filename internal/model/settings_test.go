package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeAccounts(t *testing.T) {
	tests := []struct {
		name  string
		input []ProcessorAccount
	}{
		{"empty", nil},
		{"two", []ProcessorAccount{{Label: "a"}, {Label: "b"}}},
		{"six", []ProcessorAccount{{Label: "1"}, {Label: "2"}, {Label: "3"}, {Label: "4"}, {Label: "5"}, {Label: "6"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{Accounts: tt.input}
			s.NormalizeAccounts()
			if len(s.Accounts) != AccountSlots {
				t.Fatalf("len(Accounts) = %d, want %d", len(s.Accounts), AccountSlots)
			}
			for i, a := range s.Accounts {
				if a.Label == "" {
					t.Errorf("slot %d has empty label", i)
				}
			}
		})
	}
}

func TestRedactedNeverEchoesSecrets(t *testing.T) {
	s := &Settings{
		Accounts: []ProcessorAccount{{
			Label:          "main",
			SecretKey:      "sk_live_secret",
			PublishableKey: "pk_live_public",
			WebhookSecret:  "whsec_secret",
			Active:         true,
		}},
		Shop:        ShopSettings{Domain: "acme.myshopify.com", AdminToken: "shpat_secret"},
		Attribution: AttributionConfig{PixelID: "123", AccessToken: "EAAB_secret"},
	}
	s.NormalizeAccounts()

	data, err := json.Marshal(s.Redacted())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, secret := range []string{"sk_live_secret", "whsec_secret", "shpat_secret", "EAAB_secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("redacted view leaks %q", secret)
		}
	}
	if !strings.Contains(body, "pk_live_public") {
		t.Error("publishable key should be visible")
	}
	if !strings.Contains(body, `"hasSecretKey":true`) {
		t.Error("hasSecretKey flag missing")
	}
}

func TestSettingsUpdateKeepsSecretsWhenOmitted(t *testing.T) {
	s := &Settings{Accounts: []ProcessorAccount{{
		Label:          "main",
		SecretKey:      "sk_old",
		PublishableKey: "pk_old",
		WebhookSecret:  "whsec_old",
		Active:         true,
		LastUsedAt:     42,
	}}}

	domain := "new.myshopify.com"
	u := &SettingsUpdate{
		Accounts:   []AccountUpdate{{Label: "main", PublishableKey: "pk_new", Active: false}},
		ShopDomain: &domain,
	}
	if err := u.Apply(s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	a := s.Accounts[0]
	if a.SecretKey != "sk_old" || a.WebhookSecret != "whsec_old" {
		t.Errorf("secrets overwritten: %+v", a)
	}
	if a.PublishableKey != "pk_new" || a.Active {
		t.Errorf("non-secret fields not applied: %+v", a)
	}
	if a.LastUsedAt != 42 {
		t.Errorf("LastUsedAt = %d, want 42 carried over", a.LastUsedAt)
	}
	if s.Shop.Domain != domain {
		t.Errorf("Shop.Domain = %q", s.Shop.Domain)
	}
	if len(s.Accounts) != AccountSlots {
		t.Errorf("len(Accounts) = %d", len(s.Accounts))
	}
}

func TestSettingsUpdateRenameResetsRotation(t *testing.T) {
	s := &Settings{Accounts: []ProcessorAccount{{Label: "old", SecretKey: "sk", LastUsedAt: 99}}}
	u := &SettingsUpdate{Accounts: []AccountUpdate{{Label: "new", SecretKey: "sk_new"}}}
	if err := u.Apply(s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if s.Accounts[0].Label != "new" || s.Accounts[0].LastUsedAt != 0 {
		t.Errorf("renamed account = %+v, want fresh rotation state", s.Accounts[0])
	}
}

func TestSettingsUpdateRejectsDuplicateLabels(t *testing.T) {
	tests := []struct {
		name     string
		accounts []AccountUpdate
	}{
		{"explicit twice", []AccountUpdate{{Label: "main", SecretKey: "sk_1"}, {Label: "main", SecretKey: "sk_2"}}},
		{"collides with default label", []AccountUpdate{{Label: "account-3", SecretKey: "sk_1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{Accounts: []ProcessorAccount{{Label: "keep", SecretKey: "sk_keep", LastUsedAt: 7}}}
			u := &SettingsUpdate{Accounts: tt.accounts}

			err := u.Apply(s)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Apply error = %v, want validation error", err)
			}
			if len(s.Accounts) != 1 || s.Accounts[0].Label != "keep" || s.Accounts[0].SecretKey != "sk_keep" {
				t.Errorf("settings modified on rejected update: %+v", s.Accounts)
			}
		})
	}
}

func TestDuplicateLabel(t *testing.T) {
	s := &Settings{Accounts: []ProcessorAccount{{Label: "a"}, {}, {Label: "b"}, {}}}
	if l, dup := s.DuplicateLabel(); dup {
		t.Errorf("DuplicateLabel = %q, want none (empty labels ignored)", l)
	}
	s.Accounts[3].Label = "a"
	if l, dup := s.DuplicateLabel(); !dup || l != "a" {
		t.Errorf("DuplicateLabel = %q, %v, want a", l, dup)
	}
}
