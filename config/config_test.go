package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty sites file",
			mutate: func(cfg *Config) {
				cfg.SitesFile = ""
			},
			wantErr: "sites file",
		},
		{
			name: "empty state dir",
			mutate: func(cfg *Config) {
				cfg.StateDir = ""
			},
			wantErr: "state dir",
		},
		{
			name: "zero global timeout",
			mutate: func(cfg *Config) {
				cfg.GlobalTimeout = 0
			},
			wantErr: "global timeout",
		},
		{
			name: "negative url timeout",
			mutate: func(cfg *Config) {
				cfg.URLTimeout = -1 * time.Second
			},
			wantErr: "url timeout",
		},
		{
			name: "zero parallelism",
			mutate: func(cfg *Config) {
				cfg.MaxParallelURLs = 0
			},
			wantErr: "max parallel",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 10 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "webhook without host",
			mutate: func(cfg *Config) {
				cfg.WebhookURL = "http://"
			},
			wantErr: "webhook",
		},
		{
			name: "unknown mirror format",
			mutate: func(cfg *Config) {
				cfg.MirrorFormat = "parquet"
			},
			wantErr: "mirror format",
		},
		{
			name: "mirror without file",
			mutate: func(cfg *Config) {
				cfg.MirrorFormat = "xlsx"
				cfg.MirrorFile = ""
			},
			wantErr: "mirror file",
		},
		{
			name: "bad schedule",
			mutate: func(cfg *Config) {
				cfg.Schedule = "every tuesday"
			},
			wantErr: "schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestConfigValidateAcceptsSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule = "*/10 * * * *"
	cfg.WebhookURL = "https://discord.test/api/webhooks/1/abc"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("STOCKWATCH_TEST_INT", " 12 ")
	t.Setenv("STOCKWATCH_TEST_BAD_INT", "twelve")
	t.Setenv("STOCKWATCH_TEST_DURATION", "90s")
	t.Setenv("STOCKWATCH_TEST_BOOL", "false")
	t.Setenv("STOCKWATCH_TEST_LIST", "Pokemon, Black Bolt ,,")
	t.Setenv("STOCKWATCH_TEST_BLANK", "   ")

	if n, ok, err := EnvInt("STOCKWATCH_TEST_INT"); err != nil || !ok || n != 12 {
		t.Fatalf("EnvInt = %d %v %v", n, ok, err)
	}
	if _, _, err := EnvInt("STOCKWATCH_TEST_BAD_INT"); err == nil {
		t.Fatalf("expected EnvInt error")
	}
	if d, ok, err := EnvDuration("STOCKWATCH_TEST_DURATION"); err != nil || !ok || d != 90*time.Second {
		t.Fatalf("EnvDuration = %v %v %v", d, ok, err)
	}
	if b, ok, err := EnvBool("STOCKWATCH_TEST_BOOL"); err != nil || !ok || b {
		t.Fatalf("EnvBool = %v %v %v", b, ok, err)
	}
	if list, ok := EnvList("STOCKWATCH_TEST_LIST"); !ok || len(list) != 2 || list[1] != "Black Bolt" {
		t.Fatalf("EnvList = %v %v", list, ok)
	}
	if _, ok := EnvString("STOCKWATCH_TEST_BLANK"); ok {
		t.Fatalf("blank value should be treated as unset")
	}
	if _, ok := EnvString("STOCKWATCH_TEST_UNSET"); ok {
		t.Fatalf("unset value should report false")
	}
}
