package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultStoreDriver     = StoreDriverFirestore
	defaultMaxOpenConns    = 10
	defaultCartHintTTL     = 24 * time.Hour
	defaultProductCacheTTL = 30 * time.Second
	defaultNotifyTimeout   = 10 * time.Second
	defaultFreeThreshold   = 5000
	defaultDeliveryFee     = 1000
	defaultCurrency        = "JPY"
	defaultLocale          = "ja-JP"
	defaultAcquireAttempts = 3
	defaultAcquireBackoff  = 10 * time.Millisecond
	defaultAuthMode        = AuthModeFirebase
)

// Supported store drivers.
const (
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
	StoreDriverMemory    = "memory"
)

// Supported authentication modes.
const (
	AuthModeFirebase = "firebase"
	AuthModeJWT      = "jwt"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Firestore FirestoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	PubSub    PubSubConfig
	Firebase  FirebaseConfig
	Pricing   PricingConfig
	Cart      CartConfig
	Auth      AuthConfig
	Secrets   SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// DatabaseConfig configures the Postgres backend.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig configures the optional cart hint and product caches. An empty Addr disables both.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	CartHintTTL     time.Duration
	ProductCacheTTL time.Duration
}

// PubSubConfig configures admin notifications. An empty topic falls back to log-only notification.
type PubSubConfig struct {
	ProjectID     string
	AdminTopic    string
	NotifyTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// PricingConfig holds the delivery fee rule in minor currency units.
type PricingConfig struct {
	FreeDeliveryThreshold int64
	DeliveryFee           int64
	Currency              string
	// Locale is the BCP 47 tag used when amounts are rendered for people.
	Locale string
}

// CartConfig tunes open-cart acquisition retries.
type CartConfig struct {
	AcquireAttempts int
	AcquireBackoff  time.Duration
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Mode      string
	JWTSecret string
	JWTIssuer string
}

// SecretsConfig configures secret:// resolution.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for %s: %v", e.Field, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns a single raw value using the same precedence as Load. It lets callers
// bootstrap the secret resolver before Load runs.
func Lookup(key string, opts ...Option) (string, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookup()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value), nil
}

func defaultOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "API_STORE_DRIVER", defaultStoreDriver)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Database: DatabaseConfig{
			URL:          stringWithDefault(lookup, "API_DATABASE_URL", ""),
			MaxOpenConns: intWithDefault(lookup, "API_DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		},
		Redis: RedisConfig{
			Addr:            stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:        stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:              intWithDefault(lookup, "API_REDIS_DB", 0),
			CartHintTTL:     durationWithDefault(lookup, "API_CART_HINT_TTL", defaultCartHintTTL),
			ProductCacheTTL: durationWithDefault(lookup, "API_PRODUCT_CACHE_TTL", defaultProductCacheTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:     stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			AdminTopic:    stringWithDefault(lookup, "API_PUBSUB_ADMIN_TOPIC", ""),
			NotifyTimeout: durationWithDefault(lookup, "API_NOTIFY_TIMEOUT", defaultNotifyTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Pricing: PricingConfig{
			FreeDeliveryThreshold: int64WithDefault(lookup, "API_PRICING_FREE_DELIVERY_THRESHOLD", defaultFreeThreshold),
			DeliveryFee:           int64WithDefault(lookup, "API_PRICING_DELIVERY_FEE", defaultDeliveryFee),
			Currency:              strings.ToUpper(stringWithDefault(lookup, "API_PRICING_CURRENCY", defaultCurrency)),
			Locale:                stringWithDefault(lookup, "API_PRICING_LOCALE", defaultLocale),
		},
		Cart: CartConfig{
			AcquireAttempts: intWithDefault(lookup, "API_CART_ACQUIRE_ATTEMPTS", defaultAcquireAttempts),
			AcquireBackoff:  durationWithDefault(lookup, "API_CART_ACQUIRE_BACKOFF", defaultAcquireBackoff),
		},
		Auth: AuthConfig{
			Mode:      strings.ToLower(stringWithDefault(lookup, "API_AUTH_MODE", defaultAuthMode)),
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			JWTIssuer: stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", ""),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Database.URL", &cfg.Database.URL},
		{"Redis.Password", &cfg.Redis.Password},
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, target.name, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, field, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Field: field, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, strings.TrimSpace(value))
	if err != nil {
		return "", &SecretError{Field: field, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "secret://")
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Store.Driver {
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreDriverPostgres:
		if cfg.Database.URL == "" {
			missing = append(missing, "Database.URL")
		}
		if cfg.Database.MaxOpenConns <= 0 {
			missing = append(missing, "Database.MaxOpenConns")
		}
	case StoreDriverMemory:
	default:
		missing = append(missing, "Store.Driver")
	}

	if cfg.Redis.Addr != "" {
		if cfg.Redis.CartHintTTL <= 0 {
			missing = append(missing, "Redis.CartHintTTL")
		}
		if cfg.Redis.ProductCacheTTL <= 0 {
			missing = append(missing, "Redis.ProductCacheTTL")
		}
	}
	if cfg.PubSub.AdminTopic != "" && cfg.PubSub.ProjectID == "" {
		missing = append(missing, "PubSub.ProjectID")
	}
	if cfg.PubSub.NotifyTimeout <= 0 {
		missing = append(missing, "PubSub.NotifyTimeout")
	}

	if cfg.Pricing.FreeDeliveryThreshold < 0 {
		missing = append(missing, "Pricing.FreeDeliveryThreshold")
	}
	if cfg.Pricing.DeliveryFee < 0 {
		missing = append(missing, "Pricing.DeliveryFee")
	}
	if len(cfg.Pricing.Currency) != 3 {
		missing = append(missing, "Pricing.Currency")
	}
	if _, err := language.Parse(cfg.Pricing.Locale); err != nil {
		missing = append(missing, "Pricing.Locale")
	}
	if cfg.Cart.AcquireAttempts <= 0 {
		missing = append(missing, "Cart.AcquireAttempts")
	}
	if cfg.Cart.AcquireBackoff <= 0 {
		missing = append(missing, "Cart.AcquireBackoff")
	}

	switch cfg.Auth.Mode {
	case AuthModeFirebase:
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	case AuthModeJWT:
		if cfg.Auth.JWTSecret == "" {
			missing = append(missing, "Auth.JWTSecret")
		}
	default:
		missing = append(missing, "Auth.Mode")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
