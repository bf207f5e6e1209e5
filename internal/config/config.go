package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Duration wraps time.Duration so TOML values like "90m" decode directly.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config carries all domain tuning for the engine. Process-level settings
// (bind address, database path) stay on flags in main.
type Config struct {
	Schedules  Schedules        `toml:"schedules"`
	Escalation EscalationConfig `toml:"escalation"`
	Payments   PaymentsConfig   `toml:"payments"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
}

// Schedules holds one cron spec per job. Specs use the standard five-field
// form accepted by robfig/cron.
type Schedules struct {
	DayAheadReminder  string `toml:"day_ahead_reminder"`
	FinalCallReminder string `toml:"final_call_reminder"`
	Escalation        string `toml:"escalation"`
	PaymentPoll       string `toml:"payment_poll"`
	Cleanup           string `toml:"cleanup"`
}

// EscalationStep maps one level of the ownership chain to the elapsed time
// that triggers it and the party who takes over.
type EscalationStep struct {
	Level    int      `toml:"level"`
	After    Duration `toml:"after"`
	Assignee string   `toml:"assignee"`
}

type EscalationConfig struct {
	Steps []EscalationStep `toml:"steps"`
}

type PaymentsConfig struct {
	// PendingMaxAge bounds how long a record may stay PENDING before it is
	// expired locally without another gateway query.
	PendingMaxAge Duration `toml:"pending_max_age"`
	CallTimeout   Duration `toml:"call_timeout"`
	// GatewayRate is the maximum number of gateway status queries per second.
	GatewayRate float64 `toml:"gateway_rate"`
	GatewayURL  string  `toml:"gateway_url"`
}

type CleanupConfig struct {
	MaxAge Duration `toml:"max_age"`
}

// Defaults returns the configuration used when no file is supplied.
func Defaults() Config {
	return Config{
		Schedules: Schedules{
			DayAheadReminder:  "0 8 * * *",
			FinalCallReminder: "*/15 * * * *",
			Escalation:        "*/5 * * * *",
			PaymentPoll:       "*/2 * * * *",
			Cleanup:           "30 3 * * *",
		},
		Escalation: EscalationConfig{
			Steps: []EscalationStep{
				{Level: 1, After: Duration(time.Hour), Assignee: "support-lead"},
				{Level: 2, After: Duration(4 * time.Hour), Assignee: "ops-manager"},
				{Level: 3, After: Duration(24 * time.Hour), Assignee: "director"},
			},
		},
		Payments: PaymentsConfig{
			PendingMaxAge: Duration(24 * time.Hour),
			CallTimeout:   Duration(10 * time.Second),
			GatewayRate:   5,
			GatewayURL:    "http://localhost:9900",
		},
		Cleanup: CleanupConfig{
			MaxAge: Duration(30 * 24 * time.Hour),
		},
	}
}

// Load reads a TOML file over the defaults. A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, errors.Newf("config file %s does not exist", path)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	prev := time.Duration(0)
	for i, step := range c.Escalation.Steps {
		if step.Level != i+1 {
			return errors.Newf("escalation steps must be contiguous from level 1, got level %d at position %d", step.Level, i)
		}
		if step.After.Std() <= prev {
			return errors.Newf("escalation threshold for level %d must exceed level %d", step.Level, step.Level-1)
		}
		if step.Assignee == "" {
			return errors.Newf("escalation level %d has no assignee", step.Level)
		}
		prev = step.After.Std()
	}
	if c.Payments.GatewayRate <= 0 {
		return errors.New("payments.gateway_rate must be positive")
	}
	return nil
}
