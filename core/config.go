package core

import (
	"fmt"
	"strings"
	"time"
)

const DefaultProfileKey = "mtd-vat"

type Config struct {
	ServiceName string                       `koanf:"service_name" mapstructure:"service_name"`
	Profiles    map[string]CredentialProfile `koanf:"profiles" mapstructure:"profiles"`
	// ExpirySkew widens the expiry check so a token about to lapse mid-call
	// is refreshed up front. Zero means the literal expires_at comparison.
	ExpirySkew time.Duration `koanf:"expiry_skew" mapstructure:"expiry_skew"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "mtd",
		Profiles:    map[string]CredentialProfile{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	for key, profile := range c.Profiles {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("core: profile key is required")
		}
		if err := profile.Validate(); err != nil {
			return fmt.Errorf("core: profile %q: %w", key, err)
		}
	}
	return nil
}

// Profile resolves one credential profile by key.
func (c Config) Profile(key string) (CredentialProfile, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultProfileKey
	}
	profile, ok := c.Profiles[key]
	if !ok {
		return CredentialProfile{}, fmt.Errorf("core: profile %q is not configured", key)
	}
	return profile, nil
}
