package mxauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by mxauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	clientFactory ClientFactory
	client        HomeserverClient
	progressSink  ProgressSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithClientFactory sets the factory used to build a transport client every
// time flow negotiation changes the homeserver. The default HTTP factory
// lives in the restclient subpackage.
func (b *Builder) WithClientFactory(factory ClientFactory) *Builder {
	b.clientFactory = factory
	return b
}

// WithHomeserverClient pins a single transport client regardless of the
// negotiated homeserver. Intended for tests; takes precedence over the
// factory.
func (b *Builder) WithHomeserverClient(client HomeserverClient) *Builder {
	b.client = client
	return b
}

// WithRedis enables pending-attempt persistence on the given client. Without
// it the persistence operations fail with [ErrPendingStoreUnavailable].
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithProgressSink sets the sink receiving stage-progress events. The event
// dispatcher is enabled at build time whenever a sink is attached, no matter
// the order of the With* calls.
func (b *Builder) WithProgressSink(sink ProgressSink) *Builder {
	b.progressSink = sink
	return b
}

// WithDefaultHomeserver describes the withdefaulthomeserver operation and its observable behavior.
//
// WithDefaultHomeserver may return an error when input validation, dependency calls, or security checks fail.
// WithDefaultHomeserver does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithDefaultHomeserver(homeserver string) *Builder {
	b.config.Homeserver.Default = homeserver
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*AuthenticationService, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.progressSink != nil {
		cfg.Events.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.client == nil && b.clientFactory == nil {
		return nil, errors.New("homeserver client or client factory required")
	}

	service := &AuthenticationService{
		cfg:           cfg,
		clientFactory: b.clientFactory,
		fixedClient:   b.client,
		metrics:       NewMetrics(cfg.Metrics),
		dispatcher:    newProgressDispatcher(cfg.Events, b.progressSink),
	}

	if b.redis != nil {
		service.pendingStore = newPendingAttemptStore(b.redis, cfg.Pending)
	}

	b.built = true

	return service, nil
}
