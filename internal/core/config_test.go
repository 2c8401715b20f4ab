package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode="
	if url != expected {
		t.Errorf("DatabaseURL() want = %s, got = %s", expected, url)
	}
}

func TestConfig_ServiceAddresses(t *testing.T) {
	cfg := &Config{Hostname: "127.0.0.1"}
	cfg.Matchmaker.Port = 8080
	cfg.Sessions.Port = 8081

	if addr := cfg.MatchmakerAddress(); addr != "127.0.0.1:8080" {
		t.Errorf("MatchmakerAddress() want = 127.0.0.1:8080, got = %s", addr)
	}
	if addr := cfg.SessionsAddress(); addr != "127.0.0.1:8081" {
		t.Errorf("SessionsAddress() want = 127.0.0.1:8081, got = %s", addr)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.GameServer.MinPort != DefaultMinPort || cfg.GameServer.MaxPort != DefaultMaxPort {
		t.Errorf("expected default port range %d-%d, got %d-%d",
			DefaultMinPort, DefaultMaxPort, cfg.GameServer.MinPort, cfg.GameServer.MaxPort)
	}
	if cfg.GameClient.PollInterval != 2*time.Second {
		t.Errorf("expected default poll interval of 2s, got %v", cfg.GameClient.PollInterval)
	}
	if cfg.Matchmaker.Store != "memory" {
		t.Errorf("expected memory store by default, got %s", cfg.Matchmaker.Store)
	}
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("log_level: debug\nmatchmaker:\n  port: 9000\nsessions:\n  port: 9001\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0644); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}
	t.Setenv("PADDLE_SESSIONS_PORT", "9500")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level from file, got %s", cfg.LogLevel)
	}
	if cfg.Matchmaker.Port != 9000 {
		t.Errorf("expected matchmaker port from file, got %d", cfg.Matchmaker.Port)
	}
	if cfg.Sessions.Port != 9500 {
		t.Errorf("expected sessions port from environment, got %d", cfg.Sessions.Port)
	}
}

func TestEnv_PortRange(t *testing.T) {
	tests := []struct {
		name    string
		min     string
		max     string
		wantMin int
		wantMax int
		wantErr bool
	}{
		{name: "defaults", wantMin: DefaultMinPort, wantMax: DefaultMaxPort},
		{name: "overridden", min: "10", max: "100", wantMin: 10, wantMax: 100},
		{name: "only max", max: "7500", wantMin: DefaultMinPort, wantMax: 7500},
		{name: "not a number", min: "abc", wantErr: true},
		{name: "inverted", min: "9000", max: "8000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(MinPortEnv, tt.min)
			t.Setenv(MaxPortEnv, tt.max)

			minPort, maxPort, err := NewEnv().PortRange(DefaultMinPort, DefaultMaxPort)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PortRange() wantErr = %v, error = %v", tt.wantErr, err)
			}
			if tt.wantErr {
				return
			}
			if minPort != tt.wantMin || maxPort != tt.wantMax {
				t.Errorf("PortRange() want = %d-%d, got = %d-%d", tt.wantMin, tt.wantMax, minPort, maxPort)
			}
		})
	}
}

func TestEnv_ReadsAtCallTime(t *testing.T) {
	env := NewEnv()

	t.Setenv(SessionNameEnv, "first")
	if got := env.SessionName(); got != "first" {
		t.Errorf("SessionName() want = first, got = %s", got)
	}

	t.Setenv(SessionNameEnv, "second")
	if got := env.SessionName(); got != "second" {
		t.Errorf("SessionName() want = second, got = %s", got)
	}
}
