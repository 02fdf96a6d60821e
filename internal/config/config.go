// Package config loads the runtime configuration for talking to a
// Contributor Node from the environment.
//
// The variables match the ones the legacy export tooling used, so existing
// deployment scripts keep working unchanged:
//
//	HITCH_CONTRIBUTOR_NODE   node hostname or https:// URL (required)
//	HITCH_API_KEY            API key for basic auth user "api" (required)
//	REQUESTS_CA_VERIFY       "true"/"false" or a path to a CA certificate
package config

import (
	"fmt"
	"os"
	"strings"
)

// Env variable names.
const (
	EnvContributorNode = "HITCH_CONTRIBUTOR_NODE"
	EnvAPIKey          = "HITCH_API_KEY"
	EnvCAVerify        = "REQUESTS_CA_VERIFY"
)

// CAVerify is the tri-state TLS verification setting: verify against system
// roots (default), skip verification, or verify against a specific CA file.
type CAVerify struct {
	// Skip disables certificate verification entirely.
	Skip bool
	// CAFile, when non-empty, is the path of a PEM CA certificate to trust.
	CAFile string
}

// Config is the resolved runtime configuration.
type Config struct {
	// NodeURL is the normalized Contributor API base URL, always of the form
	// https://<host>/api/Contributor/v1/ with a trailing slash.
	NodeURL string

	// APIKey authenticates as basic-auth user "api".
	APIKey string

	// Verify controls TLS certificate verification.
	Verify CAVerify
}

// FromEnv reads and validates the configuration from the environment.
func FromEnv() (Config, error) {
	var cfg Config

	node := os.Getenv(EnvContributorNode)
	if node == "" {
		return cfg, fmt.Errorf("config: %s mandatory environment variable is not set", EnvContributorNode)
	}
	cfg.NodeURL = NodeURL(node)

	cfg.APIKey = os.Getenv(EnvAPIKey)
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("config: %s mandatory environment variable is not set", EnvAPIKey)
	}

	verify, err := ParseCAVerify(os.Getenv(EnvCAVerify))
	if err != nil {
		return cfg, err
	}
	cfg.Verify = verify

	return cfg, nil
}

// NodeURL normalizes the raw node value into the Contributor API base URL:
// it strips a trailing slash, prepends https:// when no scheme is present,
// and appends the /api/Contributor/v1/ path.
func NodeURL(raw string) string {
	hcn := strings.TrimSuffix(raw, "/")
	if !strings.HasPrefix(hcn, "https://") {
		hcn = "https://" + hcn
	}
	return hcn + "/api/Contributor/v1/"
}

// ParseCAVerify interprets the REQUESTS_CA_VERIFY value. An empty value means
// "verify with system roots". Boolean spellings follow the legacy tool
// (y/yes/t/true/on/1 and n/no/f/false/off/0, case-insensitive); any other
// value must be an existing file path to a CA certificate.
func ParseCAVerify(raw string) (CAVerify, error) {
	if raw == "" {
		return CAVerify{}, nil
	}
	switch strings.ToLower(raw) {
	case "y", "yes", "t", "true", "on", "1":
		return CAVerify{}, nil
	case "n", "no", "f", "false", "off", "0":
		return CAVerify{Skip: true}, nil
	}
	if _, err := os.Stat(raw); err == nil {
		return CAVerify{CAFile: raw}, nil
	}
	return CAVerify{}, fmt.Errorf(
		"config: invalid value for %s: set it to a boolean or the path of a CA certificate", EnvCAVerify)
}
