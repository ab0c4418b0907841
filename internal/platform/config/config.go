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

	"github.com/omnipizza/storefront/internal/domain"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultCartsCollection  = "carts"
	defaultOrdersTopic      = "order-confirmed"
	defaultPizzaAPITimeout  = 10 * time.Second
	defaultMarkets          = "MX:MXN:es-MX,US:USD:en-US,CH:CHF:de-CH,JP:JPY:ja-JP"
	defaultMarket           = "MX"
	defaultSessionTTL       = 30 * time.Minute
	defaultSweepInterval    = time.Minute
	defaultCatalogCacheTTL  = 30 * time.Second
	defaultSecretsFallback  = ".secrets.local"
	defaultIdempotencyLabel = "Idempotency-Key"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	PizzaAPI  PizzaAPIConfig
	Markets   MarketsConfig
	Menu      MenuConfig
	Catalog   CatalogConfig
	Secrets   SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// FirestoreConfig stores database parameters. An empty project keeps carts in memory.
type FirestoreConfig struct {
	ProjectID       string
	EmulatorHost    string
	CartsCollection string
}

// PubSubConfig configures order event publishing. An empty project logs events instead.
type PubSubConfig struct {
	ProjectID    string
	EmulatorHost string
	OrdersTopic  string
}

// PizzaAPIConfig points at the remote pizza REST API. An empty base URL serves fixture data.
type PizzaAPIConfig struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	IdempotencyHeader string
}

// MarketsConfig lists the supported markets; Default must be one of them.
type MarketsConfig struct {
	Default   string
	Supported []domain.Market
}

// MenuConfig controls the option catalog and customization sessions.
type MenuConfig struct {
	OptionsFile   string
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// CatalogConfig controls catalog caching.
type CatalogConfig struct {
	CacheTTL time.Duration
}

// SecretsConfig configures the Secret Manager fetcher.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
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
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
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

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues returns the effective environment after applying the same precedence rules
// as Load (dotenv < OS env < explicit env map). main uses it to build the secret fetcher before
// Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the storefront configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	var invalid []string

	markets, err := parseMarkets(stringWithDefault(lookup, "STOREFRONT_MARKETS", defaultMarkets))
	if err != nil {
		invalid = append(invalid, "Markets.Supported")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:       stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
			CartsCollection: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_CARTS_COLLECTION", defaultCartsCollection),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_PUBSUB_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_PUBSUB_EMULATOR_HOST", ""),
			OrdersTopic:  stringWithDefault(lookup, "STOREFRONT_PUBSUB_ORDERS_TOPIC", defaultOrdersTopic),
		},
		PizzaAPI: PizzaAPIConfig{
			BaseURL:           strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_PIZZA_API_BASE_URL", ""), "/"),
			Token:             stringWithDefault(lookup, "STOREFRONT_PIZZA_API_TOKEN", ""),
			Timeout:           durationWithDefault(lookup, "STOREFRONT_PIZZA_API_TIMEOUT", defaultPizzaAPITimeout),
			IdempotencyHeader: stringWithDefault(lookup, "STOREFRONT_PIZZA_API_IDEMPOTENCY_HEADER", defaultIdempotencyLabel),
		},
		Markets: MarketsConfig{
			Default:   strings.ToUpper(stringWithDefault(lookup, "STOREFRONT_DEFAULT_MARKET", defaultMarket)),
			Supported: markets,
		},
		Menu: MenuConfig{
			OptionsFile:   stringWithDefault(lookup, "STOREFRONT_MENU_OPTIONS_FILE", ""),
			SessionTTL:    durationWithDefault(lookup, "STOREFRONT_MENU_SESSION_TTL", defaultSessionTTL),
			SweepInterval: durationWithDefault(lookup, "STOREFRONT_MENU_SWEEP_INTERVAL", defaultSweepInterval),
		},
		Catalog: CatalogConfig{
			CacheTTL: durationWithDefault(lookup, "STOREFRONT_CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "STOREFRONT_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	// Pub/Sub and Secret Manager default to the Firestore project.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecret(ctx, cfg.PizzaAPI.Token, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.PizzaAPI.Token = resolved

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.RequestTimeout <= 0 {
		missing = append(missing, "Server.RequestTimeout")
	}
	if cfg.PizzaAPI.Timeout <= 0 {
		missing = append(missing, "PizzaAPI.Timeout")
	}
	if cfg.PizzaAPI.BaseURL != "" && !strings.HasPrefix(cfg.PizzaAPI.BaseURL, "http://") && !strings.HasPrefix(cfg.PizzaAPI.BaseURL, "https://") {
		missing = append(missing, "PizzaAPI.BaseURL")
	}
	if cfg.Firestore.ProjectID != "" && strings.TrimSpace(cfg.Firestore.CartsCollection) == "" {
		missing = append(missing, "Firestore.CartsCollection")
	}
	if cfg.PubSub.ProjectID != "" && strings.TrimSpace(cfg.PubSub.OrdersTopic) == "" {
		missing = append(missing, "PubSub.OrdersTopic")
	}
	if len(cfg.Markets.Supported) > 0 && !hasMarket(cfg.Markets.Supported, cfg.Markets.Default) {
		missing = append(missing, "Markets.Default")
	}
	if cfg.Menu.SessionTTL <= 0 {
		missing = append(missing, "Menu.SessionTTL")
	}
	if cfg.Menu.SweepInterval <= 0 {
		missing = append(missing, "Menu.SweepInterval")
	}
	if cfg.Catalog.CacheTTL < 0 {
		missing = append(missing, "Catalog.CacheTTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// parseMarkets reads COUNTRY:CURRENCY:LANGUAGE triples separated by commas.
func parseMarkets(raw string) ([]domain.Market, error) {
	var markets []domain.Market
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: market %q must be COUNTRY:CURRENCY:LANGUAGE", entry)
		}
		market := domain.Market{
			Country:  strings.ToUpper(strings.TrimSpace(parts[0])),
			Currency: strings.ToUpper(strings.TrimSpace(parts[1])),
			Language: strings.TrimSpace(parts[2]),
		}
		if len(market.Country) != 2 || len(market.Currency) != 3 || market.Language == "" {
			return nil, fmt.Errorf("config: market %q is malformed", entry)
		}
		if _, dup := seen[market.Country]; dup {
			return nil, fmt.Errorf("config: market %s listed twice", market.Country)
		}
		seen[market.Country] = struct{}{}
		markets = append(markets, market)
	}
	if len(markets) == 0 {
		return nil, errors.New("config: no markets configured")
	}
	return markets, nil
}

func hasMarket(markets []domain.Market, country string) bool {
	for _, market := range markets {
		if market.Country == country {
			return true
		}
	}
	return false
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
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
		key = strings.TrimSpace(key)
		if !ok || key == "" {
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
		// bare integers are seconds
		if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
