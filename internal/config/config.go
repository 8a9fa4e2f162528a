// Package config handles loading and validation of service configuration.
// Supports both development (env vars, optional .env file) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"

	"checkout-relay/internal/model"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config holds all service configuration.
// Environment determines whether the settings seed loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings
	GCPProject       string
	SecretName       string // Secret Manager secret holding the settings seed
	FirestoreProject string
	EmulatorHost     string
	CredentialsFile  string

	StoreBackend string // "firestore" or "memory"
	RedisURL     string // optional; shares the round-robin cursor across instances

	DefaultCurrency        string
	PublicBaseURL          string
	UpstreamTimeout        time.Duration
	StorefrontFingerprint  string // "chrome" or "default"
	WebhookSecretPoolLimit int

	// Seed is written to the settings document only when none exists yet.
	Seed *model.Settings
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	env := envOrDefault("ENVIRONMENT", "development")
	if env != "production" {
		// A missing .env file is fine; explicit env vars still win.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}

	cfg := &Config{
		Port:                  envOrDefault("PORT", "8080"),
		Environment:           envOrDefault("ENVIRONMENT", "development"),
		LogLevel:              envOrDefault("LOG_LEVEL", "info"),
		GCPProject:            os.Getenv("GCP_PROJECT"),
		SecretName:            envOrDefault("SECRET_NAME", "checkout-relay-seed"),
		FirestoreProject:      os.Getenv("FIRESTORE_PROJECT"),
		EmulatorHost:          os.Getenv("FIRESTORE_EMULATOR_HOST"),
		CredentialsFile:       os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		StoreBackend:          envOrDefault("STORE_BACKEND", BackendFirestore),
		RedisURL:              os.Getenv("REDIS_URL"),
		DefaultCurrency:       strings.ToLower(envOrDefault("DEFAULT_CURRENCY", "eur")),
		PublicBaseURL:         os.Getenv("PUBLIC_BASE_URL"),
		StorefrontFingerprint: envOrDefault("STOREFRONT_FINGERPRINT", "chrome"),
	}

	var err error
	if cfg.UpstreamTimeout, err = durationEnv("UPSTREAM_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.WebhookSecretPoolLimit, err = intEnv("WEBHOOK_SECRET_POOL_LIMIT", 8); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings seed: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors Config for JSON config files.
type fileConfig struct {
	Port                   string          `json:"port"`
	Environment            string          `json:"environment"`
	LogLevel               string          `json:"log_level"`
	GCPProject             string          `json:"gcp_project"`
	FirestoreProject       string          `json:"firestore_project"`
	EmulatorHost           string          `json:"firestore_emulator_host"`
	CredentialsFile        string          `json:"google_credentials_file"`
	StoreBackend           string          `json:"store_backend"`
	RedisURL               string          `json:"redis_url"`
	DefaultCurrency        string          `json:"default_currency"`
	PublicBaseURL          string          `json:"public_base_url"`
	UpstreamTimeout        string          `json:"upstream_timeout"`
	StorefrontFingerprint  string          `json:"storefront_fingerprint"`
	WebhookSecretPoolLimit int             `json:"webhook_secret_pool_limit"`
	Seed                   *model.Settings `json:"seed"`
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:                   withDefault(fc.Port, "8080"),
		Environment:            withDefault(fc.Environment, "development"),
		LogLevel:               withDefault(fc.LogLevel, "info"),
		GCPProject:             fc.GCPProject,
		FirestoreProject:       fc.FirestoreProject,
		EmulatorHost:           fc.EmulatorHost,
		CredentialsFile:        fc.CredentialsFile,
		StoreBackend:           withDefault(fc.StoreBackend, BackendMemory),
		RedisURL:               fc.RedisURL,
		DefaultCurrency:        strings.ToLower(withDefault(fc.DefaultCurrency, "eur")),
		PublicBaseURL:          fc.PublicBaseURL,
		StorefrontFingerprint:  withDefault(fc.StorefrontFingerprint, "chrome"),
		WebhookSecretPoolLimit: fc.WebhookSecretPoolLimit,
		Seed:                   fc.Seed,
	}
	if fc.UpstreamTimeout != "" {
		d, err := time.ParseDuration(fc.UpstreamTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream_timeout: %w", err)
		}
		cfg.UpstreamTimeout = d
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the settings seed from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	seed, err := ParseSeed(result.Payload.Data)
	if err != nil {
		return err
	}
	c.Seed = seed
	return nil
}

// ParseSeed decodes a settings seed document (the same JSON shape as the
// stored settings).
func ParseSeed(data []byte) (*model.Settings, error) {
	var seed model.Settings
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed JSON: %w", err)
	}
	return &seed, nil
}

// loadFromEnv builds the settings seed from individual environment variables.
// PROCESSOR_ACCOUNTS (JSON array) takes precedence over the single-account
// STRIPE_* variables.
func (c *Config) loadFromEnv() error {
	seed := &model.Settings{
		Shop: model.ShopSettings{
			Domain:          os.Getenv("SHOPIFY_DOMAIN"),
			AdminToken:      os.Getenv("SHOPIFY_ADMIN_TOKEN"),
			StorefrontToken: os.Getenv("SHOPIFY_STOREFRONT_TOKEN"),
			APIVersion:      os.Getenv("SHOPIFY_API_VERSION"),
		},
		Attribution: model.AttributionConfig{
			PixelID:       os.Getenv("META_PIXEL_ID"),
			AccessToken:   os.Getenv("META_ACCESS_TOKEN"),
			TestEventCode: os.Getenv("META_TEST_EVENT_CODE"),
		},
		ShippingTitle: os.Getenv("SHIPPING_TITLE"),
	}

	if accountsJSON := os.Getenv("PROCESSOR_ACCOUNTS"); accountsJSON != "" {
		if err := json.Unmarshal([]byte(accountsJSON), &seed.Accounts); err != nil {
			return fmt.Errorf("parsing PROCESSOR_ACCOUNTS JSON: %w", err)
		}
	} else if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		seed.Accounts = []model.ProcessorAccount{{
			Label:          envOrDefault("STRIPE_ACCOUNT_LABEL", "Account 1"),
			SecretKey:      key,
			PublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
			WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Active:         true,
		}}
	}

	if v := os.Getenv("SHIPPING_PRICE_CENTS"); v != "" {
		cents, err := strconv.ParseInt(v, 10, 64)
		if err != nil || cents < 0 {
			return fmt.Errorf("invalid SHIPPING_PRICE_CENTS %q", v)
		}
		seed.ShippingPriceCents = cents
	}
	seed.UpsellEnabled = os.Getenv("UPSELL_ENABLED") == "true"

	if len(seed.Accounts) == 0 && !seed.Shop.Configured() && !seed.Attribution.Configured() {
		// Nothing to seed; settings are managed through /config.
		return nil
	}
	c.Seed = seed
	return nil
}

func (c *Config) applyDefaults() {
	if c.FirestoreProject == "" {
		c.FirestoreProject = c.GCPProject
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 15 * time.Second
	}
	if c.WebhookSecretPoolLimit <= 0 {
		c.WebhookSecretPoolLimit = 8
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("http://localhost:%s", c.Port)
	}
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	if c.Seed != nil {
		if c.Seed.DefaultCurrency == "" {
			c.Seed.DefaultCurrency = c.DefaultCurrency
		}
		c.Seed.NormalizeAccounts()
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("environment must be development or production, got %q", c.Environment)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT or GCP_PROJECT is required for the firestore backend")
		}
	default:
		return fmt.Errorf("store backend must be firestore or memory, got %q", c.StoreBackend)
	}

	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default currency must be a 3-letter ISO code, got %q", c.DefaultCurrency)
	}

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid public base url %q", c.PublicBaseURL)
	}

	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
	}

	switch c.StorefrontFingerprint {
	case "chrome", "default":
	default:
		return fmt.Errorf("storefront fingerprint must be chrome or default, got %q", c.StorefrontFingerprint)
	}

	if c.Seed != nil {
		if label, dup := c.Seed.DuplicateLabel(); dup {
			return fmt.Errorf("duplicate account label %q in seed", label)
		}
	}
	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
