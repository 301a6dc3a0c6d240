package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	// required
	APIKey string

	UpstreamTimeout time.Duration // whole outbound call (default: 30s)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("APIKey is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// Relay sends each inbound chat request to one upstream provider through an Adapter.
type Relay struct {
	cfg        Config
	adapter    Adapter
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Client = (*Relay)(nil)

// NewRelay creates a relay for adapter with the given configuration.
func NewRelay(cfg Config, adapter Adapter, logger *zap.Logger) (*Relay, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if adapter == nil {
		return nil, errors.New("invalid config: adapter is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &Relay{
		cfg:        cfg,
		adapter:    adapter,
		httpClient: httpClient,
		logger: logger.Named("relay").With(
			zap.String("provider", adapter.Name()),
			zap.String("endpoint", adapter.Endpoint()),
		),
	}, nil
}

// defaultTransport creates an HTTP transport with connection pooling and
// bounded dial/TLS phases.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases idle upstream connections.
func (r *Relay) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
