package config

import (
	"time"

	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
	"github.com/jcmexdev/order-confirmation/internal/pkg/telemetry"
)

// Retry holds the confirmation retry budget shared by every entry point.
type Retry struct {
	MaxAttempts  int           `env:"CONFIRM_MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay    time.Duration `env:"CONFIRM_RETRY_BASE_DELAY" envDefault:"1s"`
	MaxDelay     time.Duration `env:"CONFIRM_RETRY_MAX_DELAY" envDefault:"5s"`
	MaxConflicts int           `env:"CONFIRM_MAX_CONFLICTS" envDefault:"5"`
}

func (r Retry) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
	}.Normalized()
}

type Telemetry struct {
	ServiceName string `env:"OTEL_SERVICE_NAME"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Environment string `env:"DEPLOYMENT_ENVIRONMENT" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// TracerConfig falls back to defaultName when OTEL_SERVICE_NAME is unset.
func (t Telemetry) TracerConfig(defaultName string) telemetry.TracerConfig {
	name := t.ServiceName
	if name == "" {
		name = defaultName
	}
	return telemetry.TracerConfig{
		ServiceName: name,
		Endpoint:    t.Endpoint,
		Environment: t.Environment,
		Disabled:    !t.Enabled,
	}
}
