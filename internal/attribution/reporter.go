// Package attribution reports confirmed purchases to the Meta Conversions API.
//
// Each purchase carries an event id derived from the order id so the
// browser pixel, which knows the same order id, deduplicates against it.
// Personal fields are SHA-256 hashed before they leave the process.
package attribution

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-relay/internal/model"
	"checkout-relay/internal/order"
	"checkout-relay/internal/store"
)

// Tracking outcome statuses.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const (
	defaultBaseURL      = "https://graph.facebook.com"
	defaultGraphVersion = "v19.0"
)

// Config holds static reporter settings.
type Config struct {
	BaseURL      string
	GraphVersion string
	Timeout      time.Duration
}

// Reporter sends purchase events. Pixel credentials come from the settings document.
type Reporter struct {
	client   *http.Client
	settings store.SettingsStore
	sessions store.SessionStore
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(client *http.Client, settings store.SettingsStore, sessions store.SessionStore, cfg Config, logger *slog.Logger) *Reporter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.GraphVersion == "" {
		cfg.GraphVersion = defaultGraphVersion
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Reporter{
		client:   client,
		settings: settings,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// ReportPurchase sends the purchase event and records the outcome on the
// session. It never returns an error; failures are logged and recorded.
func (r *Reporter) ReportPurchase(ctx context.Context, conf order.Confirmation, sess *model.CheckoutSession, orderID string) model.TrackingOutcome {
	settings, err := store.LoadSettings(ctx, r.settings)
	if err != nil {
		r.logger.WarnContext(ctx, "attribution skipped: settings unavailable", slog.String("error", err.Error()))
		return model.TrackingOutcome{Status: StatusSkipped, Timestamp: r.now().UTC()}
	}
	pixel := settings.Attribution
	if !pixel.Configured() {
		return model.TrackingOutcome{Status: StatusSkipped, Timestamp: r.now().UTC()}
	}

	outcome := model.TrackingOutcome{
		EventID:   EventID(orderID, conf.ID),
		Timestamp: r.now().UTC(),
	}
	traceID, err := r.send(ctx, pixel, r.buildEvent(conf, sess, orderID, outcome.EventID))
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		outcome.TraceID = traceID
		r.logger.WarnContext(ctx, "purchase event failed",
			slog.String("session_id", sess.SessionID),
			slog.String("event_id", outcome.EventID),
			slog.String("error", err.Error()),
		)
	} else {
		outcome.Status = StatusSent
		outcome.TraceID = traceID
		r.logger.InfoContext(ctx, "purchase event sent",
			slog.String("session_id", sess.SessionID),
			slog.String("event_id", outcome.EventID),
			slog.String("fbtrace_id", traceID),
		)
	}

	if _, err := r.sessions.UpdateSession(ctx, sess.SessionID, func(s *model.CheckoutSession) error {
		t := outcome
		s.Tracking = &t
		return nil
	}); err != nil {
		r.logger.WarnContext(ctx, "failed to record tracking outcome",
			slog.String("session_id", sess.SessionID),
			slog.String("error", err.Error()),
		)
	}
	return outcome
}

func (r *Reporter) buildEvent(conf order.Confirmation, sess *model.CheckoutSession, orderID, eventID string) serverEvent {
	c := sess.Customer
	if c == nil {
		c = &model.Customer{}
	}

	createdMs := sess.CreatedAt.UnixMilli()
	if sess.CreatedAt.IsZero() {
		createdMs = r.now().UnixMilli()
	}

	ud := userData{
		Email:           hashed(HashPII(c.Email)),
		Phone:           hashed(HashPhone(c.Phone)),
		FirstName:       hashed(HashPII(c.FirstName)),
		LastName:        hashed(HashPII(c.LastName)),
		City:            hashed(HashPII(strings.ReplaceAll(c.City, " ", ""))),
		Zip:             hashed(HashPII(strings.ReplaceAll(c.Zip, " ", ""))),
		Country:         hashed(HashPII(c.Country)),
		ExternalID:      hashed(HashPII(sess.SessionID)),
		ClientIP:        sess.ClientIP,
		ClientUserAgent: sess.UserAgent,
		FBP:             sess.Attribute("fbp"),
		FBC:             ClickID(sess.Attribute("fbc"), sess.Attribute("fbclid"), createdMs),
	}

	amount := conf.AmountCents
	if amount <= 0 {
		amount = sess.TotalCents
	}
	cd := customData{
		Value:       model.CentsToMajor(amount),
		Currency:    strings.ToUpper(model.NormalizeCurrency(conf.Currency, sess.Currency)),
		ContentType: "product",
		OrderID:     orderID,
		UTMSource:   sess.Attribute("utm_source"),
		UTMMedium:   sess.Attribute("utm_medium"),
		UTMCampaign: sess.Attribute("utm_campaign"),
		UTMContent:  sess.Attribute("utm_content"),
		UTMTerm:     sess.Attribute("utm_term"),
	}
	for _, it := range sess.Items {
		id := it.VariantID
		if v, ok := order.NormalizeVariantID(id); ok {
			id = strconv.FormatInt(v, 10)
		}
		unit := it.UnitCents()
		cd.ContentIDs = append(cd.ContentIDs, id)
		cd.Contents = append(cd.Contents, content{ID: id, Quantity: it.Quantity, ItemPrice: model.CentsToMajor(unit)})
		cd.NumItems += it.Quantity
	}

	eventTime := conf.ConfirmedAt
	if eventTime.IsZero() {
		eventTime = r.now()
	}
	return serverEvent{
		EventName:      "Purchase",
		EventTime:      eventTime.Unix(),
		EventID:        eventID,
		ActionSource:   "website",
		EventSourceURL: sess.SourceURL,
		UserData:       ud,
		CustomData:     cd,
	}
}

// send posts one event and returns the trace id reported by the API.
func (r *Reporter) send(ctx context.Context, pixel model.AttributionConfig, evt serverEvent) (string, error) {
	payload, err := json.Marshal(eventsRequest{
		Data:          []serverEvent{evt},
		AccessToken:   pixel.AccessToken,
		TestEventCode: pixel.TestEventCode,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events", strings.TrimSuffix(r.cfg.BaseURL, "/"), r.cfg.GraphVersion, pixel.PixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating events request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", model.NewUpstreamError("Conversions API", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var result eventsResponse
	json.Unmarshal(body, &result) // Best effort parse

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		trace := result.FBTraceID
		if result.Error != nil {
			msg = result.Error.Message
			trace = result.Error.FBTraceID
		}
		err := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 500 {
			return trace, model.NewUpstreamError("Conversions API", err)
		}
		return trace, err
	}
	if result.EventsReceived < 1 {
		return result.FBTraceID, errors.New("no event received")
	}
	return result.FBTraceID, nil
}

// EventID is the deduplication id shared with the browser pixel.
func EventID(orderID, confirmationID string) string {
	if orderID != "" {
		return "purchase_" + orderID
	}
	return "purchase_" + confirmationID
}

// HashPII returns the hex SHA-256 of the trimmed, lower-cased value, or "" for empty input.
func HashPII(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// HashPhone hashes the digits of a phone number.
func HashPhone(v string) string {
	var digits strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return HashPII(digits.String())
}

// ClickID returns the browser click identifier: the cookie value when
// present, otherwise one rebuilt from the click id as "fb.1.<ms>.<fbclid>".
func ClickID(fbc, fbclid string, createdAtMillis int64) string {
	if fbc != "" {
		return fbc
	}
	if fbclid == "" {
		return ""
	}
	return fmt.Sprintf("fb.1.%d.%s", createdAtMillis, fbclid)
}

func hashed(h string) []string {
	if h == "" {
		return nil
	}
	return []string{h}
}
