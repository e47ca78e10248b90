// Package secrets resolves secret:// configuration values through Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
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
)

const (
	metricNamespace = "github.com/hanko-field/storefront/internal/platform/secrets"
	defaultTimeout  = 5 * time.Second
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves and caches secret references. Resolved values never expire for the process lifetime.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	timeout    time.Duration
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
}

type fetcherConfig struct {
	logger     *zap.Logger
	projectID  string
	timeout    time.Duration
	meter      metric.Meter
	client     secretManagerClient
	clientOpts []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithProject sets the project used when a reference does not name one.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithTimeout bounds each Secret Manager call.
func WithTimeout(d time.Duration) Option {
	return func(cfg *fetcherConfig) {
		cfg.timeout = d
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured client, mainly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher, dialing Secret Manager unless a client was injected.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.timeout <= 0 {
		cfg.timeout = defaultTimeout
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
		latency = nil
	}

	f := &Fetcher{
		client:    cfg.client,
		projectID: cfg.projectID,
		timeout:   cfg.timeout,
		logger:    cfg.logger,
		cache:     make(map[string]string),
		latency:   latency,
	}
	if f.client == nil {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the payload for ref, e.g. secret://db-url or secret://db-url?version=3&project=other.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	project := parsed.Project
	if project == "" {
		project = f.projectID
	}
	if project == "" {
		return "", fmt.Errorf("secrets: no project configured for %s", parsed.Secret)
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.Secret, parsed.Version)

	f.mu.RLock()
	value, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		f.recordLatency(ctx, 0, "cache", nil)
		return value, nil
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	resp, err := f.client.AccessSecretVersion(callCtx, &secretmanagerpb.AccessSecretVersionRequest{Name: name},
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        time.Second,
				Multiplier: 2,
			})
		}))
	if err != nil {
		f.recordLatency(ctx, time.Since(start), "remote", err)
		return "", fmt.Errorf("secrets: access %s: %w", parsed.Secret, err)
	}
	if resp == nil || resp.GetPayload() == nil {
		err := fmt.Errorf("secrets: empty payload for %s", parsed.Secret)
		f.recordLatency(ctx, time.Since(start), "remote", err)
		return "", err
	}
	value = string(resp.GetPayload().GetData())
	f.recordLatency(ctx, time.Since(start), "remote", nil)

	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()
	return value, nil
}

func (f *Fetcher) recordLatency(ctx context.Context, d time.Duration, source string, err error) {
	if f.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.Bool("error", err != nil),
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

type reference struct {
	Secret  string
	Version string
	Project string
}

func parseReference(ref string) (reference, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	values := u.Query()
	version := strings.TrimSpace(values.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		Secret:  secret,
		Version: version,
		Project: strings.TrimSpace(values.Get("project")),
	}, nil
}
