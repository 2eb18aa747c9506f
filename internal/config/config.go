package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Topic resource names differ between versions of the subscriptions
// backport: early servers expose Topic, later ones SubscriptionTopic.
const (
	TopicResourceTopic             = "Topic"
	TopicResourceSubscriptionTopic = "SubscriptionTopic"
)

type Config struct {
	Env                   string `mapstructure:"ENV"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	Port                  string `mapstructure:"PORT"`
	PublicURL             string `mapstructure:"PUBLIC_URL"`
	FHIRServerURL         string `mapstructure:"FHIR_SERVER_URL"`
	PatientID             string `mapstructure:"PATIENT_ID"`
	GeneratePatientID     bool   `mapstructure:"GENERATE_PATIENT_ID"`
	NotificationThreshold int    `mapstructure:"NOTIFICATION_THRESHOLD"`
	TopicResource         string `mapstructure:"TOPIC_RESOURCE"`
	HeartbeatPeriod       int    `mapstructure:"HEARTBEAT_PERIOD"`
	SubscriptionReason    string `mapstructure:"SUBSCRIPTION_REASON"`
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"env":                 "ENV",
	"log-level":           "LOG_LEVEL",
	"port":                "PORT",
	"public-url":          "PUBLIC_URL",
	"fhir-server":         "FHIR_SERVER_URL",
	"patient-id":          "PATIENT_ID",
	"generate-patient-id": "GENERATE_PATIENT_ID",
	"threshold":           "NOTIFICATION_THRESHOLD",
	"topic-resource":      "TOPIC_RESOURCE",
}

// Load reads configuration from an optional .env file and the environment.
// When flags is non-nil, any flag the user set overrides both.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "32019")
	v.SetDefault("PUBLIC_URL", "")
	v.SetDefault("FHIR_SERVER_URL", "https://server.subscriptions.argo.run")
	v.SetDefault("PATIENT_ID", "DevDays00120")
	v.SetDefault("GENERATE_PATIENT_ID", false)
	v.SetDefault("NOTIFICATION_THRESHOLD", 2)
	v.SetDefault("TOPIC_RESOURCE", TopicResourceTopic)
	v.SetDefault("HEARTBEAT_PERIOD", 60)
	v.SetDefault("SUBSCRIPTION_REASON", "DevDays Example - Go")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("PORT")
	v.BindEnv("PUBLIC_URL")
	v.BindEnv("FHIR_SERVER_URL")
	v.BindEnv("PATIENT_ID")
	v.BindEnv("GENERATE_PATIENT_ID")
	v.BindEnv("NOTIFICATION_THRESHOLD")
	v.BindEnv("TOPIC_RESOURCE")
	v.BindEnv("HEARTBEAT_PERIOD")
	v.BindEnv("SUBSCRIPTION_REASON")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.FHIRServerURL = strings.TrimRight(cfg.FHIRServerURL, "/")
	if cfg.GeneratePatientID {
		cfg.PatientID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration can drive a subscription run.
func (c *Config) Validate() error {
	if c.FHIRServerURL == "" {
		return fmt.Errorf("FHIR_SERVER_URL is required")
	}
	u, err := url.Parse(c.FHIRServerURL)
	if err != nil {
		return fmt.Errorf("FHIR_SERVER_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("FHIR_SERVER_URL scheme must be http or https, got %q", u.Scheme)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	// The callback URL names this port, so it cannot be left to the kernel.
	if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}
	if c.PatientID == "" {
		return fmt.Errorf("PATIENT_ID is required unless GENERATE_PATIENT_ID is set")
	}
	if c.NotificationThreshold < 1 {
		return fmt.Errorf("NOTIFICATION_THRESHOLD must be at least 1, got %d", c.NotificationThreshold)
	}
	if c.TopicResource != TopicResourceTopic && c.TopicResource != TopicResourceSubscriptionTopic {
		return fmt.Errorf("TOPIC_RESOURCE must be %q or %q, got %q",
			TopicResourceTopic, TopicResourceSubscriptionTopic, c.TopicResource)
	}
	if c.HeartbeatPeriod < 0 {
		return fmt.Errorf("HEARTBEAT_PERIOD must not be negative, got %d", c.HeartbeatPeriod)
	}
	return nil
}

// PortNumber is PORT as an int; Validate guarantees it parses.
func (c *Config) PortNumber() int {
	n, _ := strconv.Atoi(c.Port)
	return n
}

// LocalURL is the address the listener answers on from this machine.
func (c *Config) LocalURL() string {
	return "http://localhost:" + c.Port
}

// CallbackURL is the endpoint handed to the FHIR server. An empty
// PUBLIC_URL means the server can reach this machine directly.
func (c *Config) CallbackURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return c.LocalURL() + "/notification"
}

// PatientReference returns the relative reference used for filters and subjects.
func (c *Config) PatientReference() string {
	return "Patient/" + c.PatientID
}
