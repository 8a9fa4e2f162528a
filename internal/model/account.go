// Package model defines the documents, value types and errors shared by the checkout relay.
package model

// AccountSlots is the fixed number of processor account slots in the settings document.
const AccountSlots = 4

// ProcessorAccount is one payment-processor merchant account in the rotation pool.
// SecretKey and WebhookSecret never leave the server; see Settings.Redacted.
type ProcessorAccount struct {
	Label          string `json:"label" firestore:"label"`
	SecretKey      string `json:"secretKey" firestore:"secretKey"`
	PublishableKey string `json:"publishableKey" firestore:"publishableKey"`
	WebhookSecret  string `json:"webhookSecret" firestore:"webhookSecret"`
	Active         bool   `json:"active" firestore:"active"`
	Order          int    `json:"order" firestore:"order"` // display ordering only
	MerchantSite   string `json:"merchantSite,omitempty" firestore:"merchantSite"`
	LastUsedAt     int64  `json:"lastUsedAt" firestore:"lastUsedAt"` // epoch millis, 0 = never
}

// Eligible reports whether the account may receive new payment intents.
func (a ProcessorAccount) Eligible() bool {
	return a.Active && a.SecretKey != "" && a.PublishableKey != ""
}

// CanReceiveWebhooks reports whether the account's webhook secret joins the verification pool.
func (a ProcessorAccount) CanReceiveWebhooks() bool {
	return a.Active && a.SecretKey != "" && a.WebhookSecret != ""
}

// AccountView is the client-facing projection of a ProcessorAccount.
// Secrets are reduced to presence flags.
type AccountView struct {
	Label            string `json:"label"`
	PublishableKey   string `json:"publishableKey"`
	Active           bool   `json:"active"`
	Order            int    `json:"order"`
	MerchantSite     string `json:"merchantSite,omitempty"`
	LastUsedAt       int64  `json:"lastUsedAt"`
	HasSecretKey     bool   `json:"hasSecretKey"`
	HasWebhookSecret bool   `json:"hasWebhookSecret"`
}

// View returns the redacted projection of the account.
func (a ProcessorAccount) View() AccountView {
	return AccountView{
		Label:            a.Label,
		PublishableKey:   a.PublishableKey,
		Active:           a.Active,
		Order:            a.Order,
		MerchantSite:     a.MerchantSite,
		LastUsedAt:       a.LastUsedAt,
		HasSecretKey:     a.SecretKey != "",
		HasWebhookSecret: a.WebhookSecret != "",
	}
}
