package model

import (
	"fmt"
	"time"
)

// SettingsDocumentID is the id of the singleton settings document.
const SettingsDocumentID = "global"

// Settings is the singleton configuration document edited through /config.
type Settings struct {
	Accounts           []ProcessorAccount `json:"accounts" firestore:"accounts"`
	Shop               ShopSettings       `json:"shop" firestore:"shop"`
	Attribution        AttributionConfig  `json:"attribution" firestore:"attribution"`
	ShippingTitle      string             `json:"shippingTitle" firestore:"shippingTitle"`
	ShippingPriceCents int64              `json:"shippingPriceCents" firestore:"shippingPriceCents"`
	DefaultCurrency    string             `json:"defaultCurrency" firestore:"defaultCurrency"`
	UpsellEnabled      bool               `json:"upsellEnabled" firestore:"upsellEnabled"`
	UpdatedAt          time.Time          `json:"updatedAt" firestore:"updatedAt"`
}

// ShopSettings holds commerce platform credentials.
type ShopSettings struct {
	Domain          string `json:"domain" firestore:"domain"` // e.g. "acme.myshopify.com"
	AdminToken      string `json:"adminToken" firestore:"adminToken"`
	StorefrontToken string `json:"storefrontToken" firestore:"storefrontToken"`
	APIVersion      string `json:"apiVersion" firestore:"apiVersion"`
}

// Configured reports whether orders can be created against the shop.
func (s ShopSettings) Configured() bool {
	return s.Domain != "" && s.AdminToken != ""
}

// AttributionConfig holds the conversions API pixel credentials.
type AttributionConfig struct {
	PixelID       string `json:"pixelId" firestore:"pixelId"`
	AccessToken   string `json:"accessToken" firestore:"accessToken"`
	TestEventCode string `json:"testEventCode,omitempty" firestore:"testEventCode"`
}

// Configured reports whether purchase events can be sent.
func (a AttributionConfig) Configured() bool {
	return a.PixelID != "" && a.AccessToken != ""
}

// NormalizeAccounts pads or truncates the account list to exactly AccountSlots entries.
// Empty slots get a default label so they stay addressable from the config UI.
func (s *Settings) NormalizeAccounts() {
	if len(s.Accounts) > AccountSlots {
		s.Accounts = s.Accounts[:AccountSlots]
	}
	for len(s.Accounts) < AccountSlots {
		s.Accounts = append(s.Accounts, ProcessorAccount{})
	}
	for i := range s.Accounts {
		if s.Accounts[i].Label == "" {
			s.Accounts[i].Label = fmt.Sprintf("account-%d", i+1)
		}
		if s.Accounts[i].Order == 0 {
			s.Accounts[i].Order = i + 1
		}
	}
}

// Account returns a pointer to the account with the given label, or nil.
func (s *Settings) Account(label string) *ProcessorAccount {
	for i := range s.Accounts {
		if s.Accounts[i].Label == label {
			return &s.Accounts[i]
		}
	}
	return nil
}

// DuplicateLabel returns the first non-empty label shared by two slots.
func (s *Settings) DuplicateLabel() (string, bool) {
	seen := make(map[string]bool, len(s.Accounts))
	for _, a := range s.Accounts {
		if a.Label == "" {
			continue
		}
		if seen[a.Label] {
			return a.Label, true
		}
		seen[a.Label] = true
	}
	return "", false
}

// Clone returns a deep copy safe to mutate.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	c.Accounts = append([]ProcessorAccount(nil), s.Accounts...)
	return &c
}

// SettingsView is the client-facing projection of Settings. Secrets are write-only.
type SettingsView struct {
	Accounts           []AccountView `json:"accounts"`
	ShopDomain         string        `json:"shopDomain"`
	ShopAPIVersion     string        `json:"shopApiVersion"`
	HasAdminToken      bool          `json:"hasAdminToken"`
	HasStorefrontToken bool          `json:"hasStorefrontToken"`
	PixelID            string        `json:"pixelId"`
	HasPixelToken      bool          `json:"hasPixelToken"`
	ShippingTitle      string        `json:"shippingTitle"`
	ShippingPriceCents int64         `json:"shippingPriceCents"`
	DefaultCurrency    string        `json:"defaultCurrency"`
	UpsellEnabled      bool          `json:"upsellEnabled"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// Redacted returns the client view of the settings.
func (s *Settings) Redacted() SettingsView {
	views := make([]AccountView, len(s.Accounts))
	for i, a := range s.Accounts {
		views[i] = a.View()
	}
	return SettingsView{
		Accounts:           views,
		ShopDomain:         s.Shop.Domain,
		ShopAPIVersion:     s.Shop.APIVersion,
		HasAdminToken:      s.Shop.AdminToken != "",
		HasStorefrontToken: s.Shop.StorefrontToken != "",
		PixelID:            s.Attribution.PixelID,
		HasPixelToken:      s.Attribution.AccessToken != "",
		ShippingTitle:      s.ShippingTitle,
		ShippingPriceCents: s.ShippingPriceCents,
		DefaultCurrency:    s.DefaultCurrency,
		UpsellEnabled:      s.UpsellEnabled,
		UpdatedAt:          s.UpdatedAt,
	}
}

// AccountUpdate is one slot of a /config write. Empty secret fields keep the stored value.
type AccountUpdate struct {
	Label          string `json:"label"`
	SecretKey      string `json:"secretKey,omitempty"`
	PublishableKey string `json:"publishableKey"`
	WebhookSecret  string `json:"webhookSecret,omitempty"`
	Active         bool   `json:"active"`
	Order          int    `json:"order"`
	MerchantSite   string `json:"merchantSite,omitempty"`
}

// SettingsUpdate is the body of POST /config.
type SettingsUpdate struct {
	Accounts           []AccountUpdate `json:"accounts" validate:"max=4,dive"`
	ShopDomain         *string         `json:"shopDomain,omitempty"`
	ShopAPIVersion     *string         `json:"shopApiVersion,omitempty"`
	AdminToken         string          `json:"adminToken,omitempty"`
	StorefrontToken    string          `json:"storefrontToken,omitempty"`
	PixelID            *string         `json:"pixelId,omitempty"`
	PixelToken         string          `json:"pixelToken,omitempty"`
	ShippingTitle      *string         `json:"shippingTitle,omitempty"`
	ShippingPriceCents *int64          `json:"shippingPriceCents,omitempty" validate:"omitempty,gte=0"`
	DefaultCurrency    *string         `json:"defaultCurrency,omitempty" validate:"omitempty,len=3"`
	UpsellEnabled      *bool           `json:"upsellEnabled,omitempty"`
}

// Apply merges the update into s. Slots are matched by position; rotation
// bookkeeping (LastUsedAt) is carried over when the label is unchanged.
// Labels must stay unique across all slots, default labels included; on a
// collision s is left untouched.
func (u *SettingsUpdate) Apply(s *Settings) error {
	next := s.Clone()
	u.merge(next)
	if label, dup := next.DuplicateLabel(); dup {
		return NewValidationError("accounts", fmt.Sprintf("label %q is used by more than one account", label))
	}
	*s = *next
	return nil
}

func (u *SettingsUpdate) merge(s *Settings) {
	s.NormalizeAccounts()
	for i, au := range u.Accounts {
		if i >= AccountSlots {
			break
		}
		cur := s.Accounts[i]
		next := ProcessorAccount{
			Label:          au.Label,
			SecretKey:      cur.SecretKey,
			PublishableKey: au.PublishableKey,
			WebhookSecret:  cur.WebhookSecret,
			Active:         au.Active,
			Order:          au.Order,
			MerchantSite:   au.MerchantSite,
		}
		if au.SecretKey != "" {
			next.SecretKey = au.SecretKey
		}
		if au.WebhookSecret != "" {
			next.WebhookSecret = au.WebhookSecret
		}
		if next.Label == "" || next.Label == cur.Label {
			next.Label = cur.Label
			next.LastUsedAt = cur.LastUsedAt
		}
		s.Accounts[i] = next
	}

	if u.ShopDomain != nil {
		s.Shop.Domain = *u.ShopDomain
	}
	if u.ShopAPIVersion != nil {
		s.Shop.APIVersion = *u.ShopAPIVersion
	}
	if u.AdminToken != "" {
		s.Shop.AdminToken = u.AdminToken
	}
	if u.StorefrontToken != "" {
		s.Shop.StorefrontToken = u.StorefrontToken
	}
	if u.PixelID != nil {
		s.Attribution.PixelID = *u.PixelID
	}
	if u.PixelToken != "" {
		s.Attribution.AccessToken = u.PixelToken
	}
	if u.ShippingTitle != nil {
		s.ShippingTitle = *u.ShippingTitle
	}
	if u.ShippingPriceCents != nil {
		s.ShippingPriceCents = *u.ShippingPriceCents
	}
	if u.DefaultCurrency != nil {
		s.DefaultCurrency = NormalizeCurrency(*u.DefaultCurrency, s.DefaultCurrency)
	}
	if u.UpsellEnabled != nil {
		s.UpsellEnabled = *u.UpsellEnabled
	}
	s.NormalizeAccounts()
}
