// Package config loads the process-wide profile configuration: protocol
// selection, server endpoints, retry policy, and authentication settings.
// The returned Config is immutable after load.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/logging"
)

// Fatal configuration errors. Either aborts application startup.
var (
	ErrNoProtocol   = errors.New("configuration names no active protocol")
	ErrNoRouteTable = errors.New("configuration names no route table")
)

// Protocol identifies one of the supported wire protocols.
type Protocol string

// Supported protocols.
const (
	ProtocolWAMP   Protocol = "wamp"
	ProtocolREST   Protocol = "rest"
	ProtocolSQLite Protocol = "sqlite"
)

func (p Protocol) valid() bool {
	switch p {
	case ProtocolWAMP, ProtocolREST, ProtocolSQLite:
		return true
	}
	return false
}

// DefaultStorageKey is the credential store key used when the profile does
// not configure one.
const DefaultStorageKey = "blt-token"

// Data holds protocol selection and the connection retry policy.
// RetryMax 0 means a single attempt with no retries; negative means
// unbounded retries.
type Data struct {
	Protocol     Protocol `json:"protocol"`
	RetryMax     int      `json:"retryMax"`
	RetryDelayMS int      `json:"retryDelay"`
}

// RetryDelay returns the configured delay between connection attempts.
func (d Data) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelayMS) * time.Millisecond
}

// Auth holds static authentication configuration. Key/Secret, when both
// set, are preconfigured credentials exempting the client from
// forced-logout recovery.
type Auth struct {
	Service        string `json:"authService"`
	WAMPAuthMethod string `json:"wampAuthMethod"`
	Key            string `json:"authKey"`
	Secret         string `json:"authSecret"`
	StorageKey     string `json:"storageKey"`
}

// Preconfigured reports whether a static principal/secret pair is present.
func (a Auth) Preconfigured() bool { return a.Key != "" && a.Secret != "" }

// WAMPServer holds message-RPC endpoint settings.
type WAMPServer struct {
	URL   string `json:"url"`
	Realm string `json:"realm"`
}

// RESTServer holds the base URL prepended to relative REST descriptor URLs.
type RESTServer struct {
	URL string `json:"url"`
}

// Servers groups per-protocol endpoint settings.
type Servers struct {
	WAMP WAMPServer `json:"wamp"`
	REST RESTServer `json:"rest"`
}

// Database holds embedded-database identity settings.
type Database struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	CreateFromLocation string `json:"createFromLocation"`
}

// Config is the resolved profile configuration.
type Config struct {
	Data       Data     `json:"data"`
	Auth       Auth     `json:"auth"`
	Servers    Servers  `json:"servers"`
	Database   Database `json:"database"`
	RoutesPath string   `json:"routes"`
}

// Host describes the endpoint identity of the running client, used for
// placeholder substitution in the message-RPC server URL.
type Host struct {
	Hostname string
	Port     string
	Scheme   string // http|https
}

// LocalHost builds a Host from the environment, defaulting to localhost
// over http.
func LocalHost() Host {
	return Host{
		Hostname: getenv("DATAWAY_HOST", "localhost"),
		Port:     os.Getenv("DATAWAY_PORT"),
		Scheme:   getenv("DATAWAY_SCHEME", "http"),
	}
}

// Placeholder tokens recognised in the message-RPC server URL.
const (
	tokenLocalIP = "$local_ip"
	tokenPort    = "$port"
)

// Load reads and validates the profile at path. A missing active protocol
// or missing route table reference is a fatal error. Missing server or
// database settings for the chosen protocol are logged as warnings; the
// corresponding adapter starts unconfigured and every call fails until the
// configuration is corrected.
func Load(path string, host Host, logger *zap.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data, host, logger)
}

// Parse decodes and validates a profile document.
func Parse(data []byte, host Host, logger *zap.Logger) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	if cfg.Data.Protocol == "" {
		return nil, ErrNoProtocol
	}
	if !cfg.Data.Protocol.valid() {
		return nil, fmt.Errorf("unknown protocol %q", cfg.Data.Protocol)
	}
	if cfg.RoutesPath == "" {
		return nil, ErrNoRouteTable
	}
	if cfg.Data.RetryDelayMS < 0 {
		return nil, fmt.Errorf("retryDelay must be >= 0, got %d", cfg.Data.RetryDelayMS)
	}
	if cfg.Auth.StorageKey == "" {
		cfg.Auth.StorageKey = DefaultStorageKey
	}

	cfg.Servers.WAMP.URL = substituteHost(cfg.Servers.WAMP.URL, host)

	switch cfg.Data.Protocol {
	case ProtocolWAMP:
		if cfg.Servers.WAMP.URL == "" {
			logger.Warn("wamp server settings missing; adapter starts unconfigured",
				logging.Protocol(string(ProtocolWAMP)))
		}
	case ProtocolREST:
		if cfg.Servers.REST.URL == "" {
			logger.Warn("rest server settings missing; adapter starts unconfigured",
				logging.Protocol(string(ProtocolREST)))
		}
	case ProtocolSQLite:
		if cfg.Database.Name == "" {
			logger.Warn("database settings missing; adapter starts unconfigured",
				logging.Protocol(string(ProtocolSQLite)))
		}
	}

	return cfg, nil
}

// substituteHost resolves the $local_ip and $port placeholders against the
// client's own endpoint. The port falls back to 443 or 80 by scheme when
// the host does not carry an explicit port.
func substituteHost(url string, host Host) string {
	if url == "" {
		return url
	}
	url = strings.ReplaceAll(url, tokenLocalIP, host.Hostname)

	port := host.Port
	if port == "" {
		if host.Scheme == "https" || host.Scheme == "wss" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return strings.ReplaceAll(url, tokenPort, port)
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
