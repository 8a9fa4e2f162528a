package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"checkout-relay/internal/model"
)

// FirestoreConfig selects the Firestore project and credentials.
type FirestoreConfig struct {
	ProjectID       string
	EmulatorHost    string // optional, e.g. "localhost:8200"
	CredentialsFile string // optional, falls back to application default credentials
}

// Firestore is the production Store backed by Cloud Firestore.
//
// Layout:
//
//	config/global               singleton settings document
//	checkoutSessions/{id}       one document per checkout session
//	dailyStats/{YYYY-MM-DD}     one aggregate per calendar day
type Firestore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestore opens a Firestore client for the configured project.
func NewFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id not configured")
	}

	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", host); err != nil {
			return nil, fmt.Errorf("setting FIRESTORE_EMULATOR_HOST: %w", err)
		}
	}

	var opts []option.ClientOption
	if credentials := strings.TrimSpace(cfg.CredentialsFile); credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Firestore{client: client, now: time.Now}, nil
}

// NewFirestoreFromClient wraps an existing client. Used by integration tests.
func NewFirestoreFromClient(client *firestore.Client) *Firestore {
	return &Firestore{client: client, now: time.Now}
}

func (f *Firestore) settingsRef() *firestore.DocumentRef {
	return f.client.Collection(SettingsCollection).Doc(model.SettingsDocumentID)
}

func (f *Firestore) sessionRef(id string) *firestore.DocumentRef {
	return f.client.Collection(SessionsCollection).Doc(id)
}

func (f *Firestore) statsRef(day string) *firestore.DocumentRef {
	return f.client.Collection(StatsCollection).Doc(day)
}

func (f *Firestore) GetSettings(ctx context.Context) (*model.Settings, error) {
	snap, err := f.settingsRef().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	var s model.Settings
	if err := snap.DataTo(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	s.NormalizeAccounts()
	return &s, nil
}

func (f *Firestore) UpdateSettings(ctx context.Context, fn func(*model.Settings) error) (*model.Settings, error) {
	var result *model.Settings
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cur := &model.Settings{}
		snap, err := tx.Get(f.settingsRef())
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return fmt.Errorf("reading settings: %w", err)
		default:
			if err := snap.DataTo(cur); err != nil {
				return fmt.Errorf("decoding settings: %w", err)
			}
		}
		cur.NormalizeAccounts()
		if err := fn(cur); err != nil {
			return err
		}
		result = cur
		return tx.Set(f.settingsRef(), cur)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Firestore) GetSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	snap, err := f.sessionRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	var s model.CheckoutSession
	if err := snap.DataTo(&s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &s, nil
}

func (f *Firestore) PutSession(ctx context.Context, s *model.CheckoutSession) error {
	c := s.Clone()
	c.UpdatedAt = f.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	if _, err := f.sessionRef(s.SessionID).Set(ctx, c); err != nil {
		return fmt.Errorf("writing session %s: %w", s.SessionID, err)
	}
	return nil
}

func (f *Firestore) UpdateSession(ctx context.Context, id string, fn func(*model.CheckoutSession) error) (*model.CheckoutSession, error) {
	var result *model.CheckoutSession
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(f.sessionRef(id))
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("reading session %s: %w", id, err)
		}
		var s model.CheckoutSession
		if err := snap.DataTo(&s); err != nil {
			return fmt.Errorf("decoding session %s: %w", id, err)
		}
		if err := fn(&s); err != nil {
			return err
		}
		s.UpdatedAt = f.now().UTC()
		result = &s
		return tx.Set(f.sessionRef(id), &s)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordPayment runs the per-day increment as a transaction so concurrent
// webhook deliveries for different sessions never lose an update.
func (f *Firestore) RecordPayment(ctx context.Context, day, account string, cents int64) error {
	ref := f.statsRef(day)
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		d := model.DailyStats{Date: day}
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return fmt.Errorf("reading stats %s: %w", day, err)
		default:
			if err := snap.DataTo(&d); err != nil {
				return fmt.Errorf("decoding stats %s: %w", day, err)
			}
		}
		d.Add(account, cents, f.now().UTC())
		return tx.Set(ref, &d)
	})
}

func (f *Firestore) GetDailyStats(ctx context.Context, day string) (*model.DailyStats, error) {
	snap, err := f.statsRef(day).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading stats %s: %w", day, err)
	}
	var d model.DailyStats
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding stats %s: %w", day, err)
	}
	return &d, nil
}

func (f *Firestore) ListDailyStats(ctx context.Context, from, to string) ([]model.DailyStats, error) {
	docs, err := f.client.Collection(StatsCollection).
		Where("date", ">=", from).
		Where("date", "<=", to).
		OrderBy("date", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing stats: %w", err)
	}
	out := make([]model.DailyStats, 0, len(docs))
	for _, doc := range docs {
		var d model.DailyStats
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decoding stats %s: %w", doc.Ref.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (f *Firestore) Close() error {
	return f.client.Close()
}

var _ Store = (*Firestore)(nil)
