package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billcraft/billcraft/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment   DeploymentConfig   `validate:"required"`
	Logging      LoggingConfig      `validate:"required"`
	Billing      BillingConfig      `validate:"required"`
	Notification NotificationConfig `validate:"required"`
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

// BillingConfig controls invoice generation behavior
type BillingConfig struct {
	// ProrationMode selects how partial periods are prorated:
	// calendar_days (default) or fixed_days
	ProrationMode types.ProrationMode `mapstructure:"proration_mode"`
	// FixedProrationDays is the denominator used in fixed_days mode, e.g. 30
	FixedProrationDays int `mapstructure:"fixed_proration_days"`
	// ReuseDraft amends an existing draft invoice in place instead of
	// opening a new one
	ReuseDraft bool `mapstructure:"reuse_draft"`
}

// NotificationConfig controls the wake-up queue consumer
type NotificationConfig struct {
	Topic           string        `mapstructure:"topic"`
	LifecycleTopic  string        `mapstructure:"lifecycle_topic"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billcraft")

	v.SetEnvPrefix("BILLCRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("billing.proration_mode", types.ProrationModeCalendarDays)
	v.SetDefault("billing.fixed_proration_days", 30)
	v.SetDefault("billing.reuse_draft", false)
	v.SetDefault("notification.topic", "billing.wakeups")
	v.SetDefault("notification.lifecycle_topic", "billing.lifecycle")
	v.SetDefault("notification.max_retries", 5)
	v.SetDefault("notification.initial_interval", 500*time.Millisecond)
	v.SetDefault("notification.max_interval", 30*time.Second)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Billing.ProrationMode == types.ProrationModeFixedDays && c.Billing.FixedProrationDays <= 0 {
		return fmt.Errorf("billing.fixed_proration_days must be positive in fixed_days mode")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Billing: BillingConfig{
			ProrationMode:      types.ProrationModeCalendarDays,
			FixedProrationDays: 30,
		},
		Notification: NotificationConfig{
			Topic:           "billing.wakeups",
			LifecycleTopic:  "billing.lifecycle",
			MaxRetries:      5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
		},
	}
}
