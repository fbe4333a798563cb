package config

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testHost() Host {
	return Host{Hostname: "client.example", Port: "8443", Scheme: "https"}
}

func TestParseValidProfile(t *testing.T) {
	doc := `{
		"data": {"protocol": "wamp", "retryMax": 5, "retryDelay": 2000},
		"auth": {"authService": "auth", "authKey": "svc", "authSecret": "s3cret"},
		"servers": {"wamp": {"url": "wss://$local_ip:$port/ws", "realm": "realm1"}},
		"routes": "routes.json"
	}`

	cfg, err := Parse([]byte(doc), testHost(), zap.NewNop())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Data.Protocol != ProtocolWAMP {
		t.Errorf("Protocol = %q, want wamp", cfg.Data.Protocol)
	}
	if cfg.Data.RetryDelay() != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.Data.RetryDelay())
	}
	if cfg.Servers.WAMP.URL != "wss://client.example:8443/ws" {
		t.Errorf("WAMP URL = %q, want substituted host and port", cfg.Servers.WAMP.URL)
	}
	if !cfg.Auth.Preconfigured() {
		t.Error("Preconfigured = false, want true")
	}
	if cfg.Auth.StorageKey != DefaultStorageKey {
		t.Errorf("StorageKey = %q, want default %q", cfg.Auth.StorageKey, DefaultStorageKey)
	}
}

func TestParseMissingProtocolIsFatal(t *testing.T) {
	doc := `{"routes": "routes.json"}`
	_, err := Parse([]byte(doc), testHost(), zap.NewNop())
	if !errors.Is(err, ErrNoProtocol) {
		t.Errorf("Parse = %v, want ErrNoProtocol", err)
	}
}

func TestParseMissingRouteTableIsFatal(t *testing.T) {
	doc := `{"data": {"protocol": "rest"}}`
	_, err := Parse([]byte(doc), testHost(), zap.NewNop())
	if !errors.Is(err, ErrNoRouteTable) {
		t.Errorf("Parse = %v, want ErrNoRouteTable", err)
	}
}

func TestParseUnknownProtocol(t *testing.T) {
	doc := `{"data": {"protocol": "carrier-pigeon"}, "routes": "routes.json"}`
	if _, err := Parse([]byte(doc), testHost(), zap.NewNop()); err == nil {
		t.Error("Parse accepted unknown protocol")
	}
}

func TestParseNegativeRetryDelay(t *testing.T) {
	doc := `{"data": {"protocol": "rest", "retryDelay": -5}, "routes": "routes.json"}`
	if _, err := Parse([]byte(doc), testHost(), zap.NewNop()); err == nil {
		t.Error("Parse accepted negative retryDelay")
	}
}

func TestParseMissingServersIsWarningOnly(t *testing.T) {
	doc := `{"data": {"protocol": "wamp"}, "routes": "routes.json"}`
	cfg, err := Parse([]byte(doc), testHost(), zap.NewNop())
	if err != nil {
		t.Fatalf("Parse failed, want warning only: %v", err)
	}
	if cfg.Servers.WAMP.URL != "" {
		t.Errorf("WAMP URL = %q, want empty", cfg.Servers.WAMP.URL)
	}
}

func TestSubstituteHostPortFallback(t *testing.T) {
	tests := []struct {
		name string
		host Host
		url  string
		want string
	}{
		{
			name: "explicit port",
			host: Host{Hostname: "h", Port: "9000", Scheme: "http"},
			url:  "ws://$local_ip:$port/ws",
			want: "ws://h:9000/ws",
		},
		{
			name: "https fallback",
			host: Host{Hostname: "h", Scheme: "https"},
			url:  "wss://$local_ip:$port/ws",
			want: "wss://h:443/ws",
		},
		{
			name: "http fallback",
			host: Host{Hostname: "h", Scheme: "http"},
			url:  "ws://$local_ip:$port/ws",
			want: "ws://h:80/ws",
		},
		{
			name: "no placeholders",
			host: Host{Hostname: "h", Port: "1", Scheme: "http"},
			url:  "wss://static.example/ws",
			want: "wss://static.example/ws",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteHost(tt.url, tt.host); got != tt.want {
				t.Errorf("substituteHost = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryMaxBoundaries(t *testing.T) {
	for _, retryMax := range []int{-1, 0, 7} {
		doc := `{"data": {"protocol": "rest", "retryMax": ` +
			map[int]string{-1: "-1", 0: "0", 7: "7"}[retryMax] +
			`}, "routes": "routes.json"}`
		cfg, err := Parse([]byte(doc), testHost(), zap.NewNop())
		if err != nil {
			t.Fatalf("Parse(retryMax=%d) failed: %v", retryMax, err)
		}
		if cfg.Data.RetryMax != retryMax {
			t.Errorf("RetryMax = %d, want %d", cfg.Data.RetryMax, retryMax)
		}
	}
}
