package mxauth

import (
	"errors"
	"time"
)

// Config defines a public type used by mxauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Homeserver   HomeserverConfig
	Transport    TransportConfig
	Registration RegistrationConfig
	Pending      PendingConfig
	Events       EventsConfig
	Metrics      MetricsConfig
}

/*
====================================
HOMESERVER CONFIG
====================================
*/

// HomeserverConfig defines a public type used by mxauth APIs.
//
// HomeserverConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HomeserverConfig struct {
	// Default is the homeserver negotiated at build time when non-empty.
	// LoginFlow replaces it at any time.
	Default string
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig defines a public type used by mxauth APIs.
//
// TransportConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TransportConfig struct {
	Timeout   time.Duration
	UserAgent string
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig defines a public type used by mxauth APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	// InitialDeviceDisplayName is used when CreateAccount is called with an
	// empty device name.
	InitialDeviceDisplayName string

	// AutoDummy submits a mandatory dummy stage automatically once account
	// creation has completed. It carries no user-visible information.
	AutoDummy bool

	// ThreePIDValidationDelay is waited between a successful code
	// submission and the registration replay.
	ThreePIDValidationDelay time.Duration
}

/*
====================================
PENDING ATTEMPT CONFIG
====================================
*/

// PendingConfig defines a public type used by mxauth APIs.
//
// PendingConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PendingConfig struct {
	RedisPrefix string

	// TTL bounds how long a persisted attempt survives; homeserver
	// authentication sessions expire server-side on a similar scale.
	TTL time.Duration
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig defines a public type used by mxauth APIs.
//
// EventsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by mxauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			Timeout:   30 * time.Second,
			UserAgent: "mxauth",
		},
		Registration: RegistrationConfig{
			AutoDummy:               true,
			ThreePIDValidationDelay: 3 * time.Second,
		},
		Pending: PendingConfig{
			RedisPrefix: "mxpend",
			TTL:         2 * time.Hour,
		},
		Events: EventsConfig{
			BufferSize: 64,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.Transport.Timeout <= 0 {
		return errors.New("Transport Timeout must be positive")
	}
	if c.Registration.ThreePIDValidationDelay < 0 {
		return errors.New("Registration ThreePIDValidationDelay must not be negative")
	}
	if c.Pending.TTL <= 0 {
		return errors.New("Pending TTL must be positive")
	}
	if c.Pending.RedisPrefix == "" {
		return errors.New("Pending RedisPrefix must not be empty")
	}
	if c.Events.Enabled && c.Events.BufferSize < 0 {
		return errors.New("Events BufferSize must not be negative")
	}
	return nil
}
