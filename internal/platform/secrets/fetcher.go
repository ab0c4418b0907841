// Package secrets resolves secret:// references against Google Secret Manager, with an
// in-process cache and a local fallback file for development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	metricNamespace     = "github.com/omnipizza/storefront/internal/platform/secrets"
)

// ErrNotFound is returned when neither Secret Manager nor the fallback file holds the secret.
var ErrNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references. It is safe for concurrent use.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string
	cacheTTL   time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cacheEntry

	latency        metric.Float64Histogram
	latencyEnabled bool
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	cacheTTL     time.Duration
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithProject sets the project that owns secrets without an explicit ?project= override.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero caches forever.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) { cfg.cacheTTL = ttl }
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured Secret Manager client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cfg *fetcherConfig) { cfg.now = now }
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created is logged and the
// fetcher serves the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cacheTTL:     defaultCacheTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, latencyErr := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if latencyErr != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(latencyErr))
	}

	f := &Fetcher{
		logger:         cfg.logger,
		projectID:      cfg.projectID,
		cacheTTL:       cfg.cacheTTL,
		now:            cfg.now,
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]cacheEntry),
		latency:        latency,
		latencyEnabled: latencyErr == nil,
	}

	switch {
	case cfg.client != nil:
		f.client = cfg.client
	case cfg.projectID != "":
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret lets the fetcher serve as the configuration loader's secret resolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref, consulting the cache, Secret Manager and the fallback
// file in that order. Permission and availability failures fall back; anything else is returned.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.Canonical + "#" + parsed.Version

	if value, ok := f.lookupCache(key); ok {
		f.recordLatency(ctx, start, "cache")
		return value, nil
	}

	projectID := parsed.Project
	if projectID == "" {
		projectID = f.projectID
	}

	if projectID != "" && f.client != nil {
		value, fetchErr := f.fetchRemote(ctx, projectID, parsed.Secret, parsed.Version)
		if fetchErr == nil {
			f.storeCache(key, value)
			f.recordLatency(ctx, start, "remote")
			return value, nil
		}
		if !isFallbackError(fetchErr) {
			f.recordLatency(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("secret", parsed.Secret), zap.Error(fetchErr))
	}

	value, ok := f.lookupFallback(parsed)
	if !ok {
		f.recordLatency(ctx, start, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.Canonical)
	}
	f.storeCache(key, value)
	f.recordLatency(ctx, start, "fallback")
	return value, nil
}

func (f *Fetcher) lookupCache(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if f.cacheTTL > 0 && f.now().Sub(entry.fetchedAt) > f.cacheTTL {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) storeCache(key, value string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{value: value, fetchedAt: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, projectID, secretName, version string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secretName, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resourceName})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resourceName)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(ref parsedReference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	value, ok := f.fallbackVals[ref.Canonical]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	absPath, err := filepath.Abs(f.fallbackPath)
	if err != nil {
		absPath = f.fallbackPath
	}
	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", absPath, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if strings.HasPrefix(key, "sm://") {
			key = "secret://" + strings.TrimPrefix(key, "sm://")
		}
		if parsed, err := parseReference(key); err == nil {
			key = parsed.Canonical
		}
		f.fallbackVals[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
	}
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, source string) {
	if !f.latencyEnabled {
		return
	}
	elapsed := f.now().Sub(start)
	f.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("source", source)))
}

type parsedReference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

// parseReference accepts secret://name?version=N&project=P.
func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return parsedReference{
		Canonical: "secret://" + secret,
		Secret:    secret,
		Version:   version,
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
