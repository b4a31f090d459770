package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/solana"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil, envMap(map[string]string{
		"PROGRAM_ID": solana.TokenProgramID.String(),
	}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Storage != StorageMemory || cfg.Clock != ClockSystem {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ProgramID != solana.TokenProgramID {
		t.Errorf("ProgramID = %s", cfg.ProgramID)
	}
	if cfg.SettleCron != "@every 5m" {
		t.Errorf("SettleCron = %q", cfg.SettleCron)
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	cfg, err := Parse([]string{"--http-addr", ":9000", "--log-level", "debug"}, envMap(map[string]string{
		"HTTP_ADDR":  ":7000",
		"PROGRAM_ID": solana.TokenProgramID.String(),
	}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestParse_Invalid(t *testing.T) {
	pid := solana.TokenProgramID.String()
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing program id", nil, nil},
		{"bad program id", []string{"--program-id", "not-base58!"}, nil},
		{"postgres without dsn", []string{"--storage", "postgres"}, map[string]string{"PROGRAM_ID": pid}},
		{"unknown storage", []string{"--storage", "redis"}, map[string]string{"PROGRAM_ID": pid}},
		{"chain clock without rpc", []string{"--clock", "chain"}, map[string]string{"PROGRAM_ID": pid}},
		{"bad log level", []string{"--log-level", "loud"}, map[string]string{"PROGRAM_ID": pid}},
		{"bad log format", []string{"--log-format", "xml"}, map[string]string{"PROGRAM_ID": pid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.args, envMap(tt.env)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("# comment\nLEDGER_TEST_FROM_FILE=file\nLEDGER_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEDGER_TEST_PRESET", "env")
	t.Setenv("LEDGER_TEST_FROM_FILE", "")
	os.Unsetenv("LEDGER_TEST_FROM_FILE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("LEDGER_TEST_FROM_FILE"); got != "file" {
		t.Errorf("LEDGER_TEST_FROM_FILE = %q", got)
	}
	if got := os.Getenv("LEDGER_TEST_PRESET"); got != "env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)

	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("level = %s", logger.GetLevel())
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"kept"`)) || bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Errorf("unexpected output %q", buf.String())
	}
}
