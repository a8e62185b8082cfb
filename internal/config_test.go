package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Fetch.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", cfg.Fetch.BatchSize)
	}
}

func TestApplicationConfig_LogFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.LogFormat = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty log format should default: %v", err)
	}
	if cfg.App.LogFormat != LogFormatAuto {
		t.Errorf("log format = %q, want %q", cfg.App.LogFormat, LogFormatAuto)
	}

	cfg.App.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown log format should fail validation")
	}
}

func TestFetchConfig_BatchSizeBounds(t *testing.T) {
	for _, n := range []int{0, -1, 101} {
		cfg := NewDefaultConfig()
		cfg.Fetch.BatchSize = n
		if err := cfg.Validate(); err == nil {
			t.Errorf("batch size %d should fail validation", n)
		}
	}
	cfg := NewDefaultConfig()
	cfg.Fetch.BatchSize = 100
	if err := cfg.Validate(); err != nil {
		t.Errorf("batch size 100 should pass: %v", err)
	}
}

func TestSteamConfig_APIURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Steam.APIURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid api url should fail validation")
	}
}

func TestWatchConfig_Debounce(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Watch.Debounce = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled watcher without debounce should fail")
	}
	cfg.Watch.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled watcher ignores debounce: %v", err)
	}
}

func TestHTTPConfig_DefaultsToLoopback(t *testing.T) {
	cfg := NewDefaultConfig()
	if got := cfg.App.HTTP.Address(); got != "127.0.0.1:8080" {
		t.Errorf("address = %q, want 127.0.0.1:8080", got)
	}

	cfg.App.HTTP.Host = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty host should pass: %v", err)
	}
	if got := cfg.App.HTTP.Address(); got != ":8080" {
		t.Errorf("address = %q, want :8080", got)
	}

	cfg.App.HTTP.Host = "not a host!"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid host should fail validation")
	}
}
