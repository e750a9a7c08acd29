package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWhenNoFileOrEnv(t *testing.T) {
	SetConfigFile(filepath.Join(t.TempDir(), "nonexistent.toml"))
	defer SetConfigFile("")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := defaults()
	if *cfg != want {
		t.Fatalf("Load() = %+v, want defaults %+v", *cfg, want)
	}
}

func TestLoadParsesTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corefuzz.toml")
	body := "n_workers = 8\ndb_name = \"TestDB\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	SetConfigFile(path)
	defer SetConfigFile("")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NWorkers != 8 {
		t.Errorf("NWorkers = %d, want 8", cfg.NWorkers)
	}
	if cfg.DBName != "TestDB" {
		t.Errorf("DBName = %q, want %q", cfg.DBName, "TestDB")
	}
	// Fields the file didn't set retain their defaults.
	if cfg.RoundSec != defaults().RoundSec {
		t.Errorf("RoundSec = %d, want default %d", cfg.RoundSec, defaults().RoundSec)
	}
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corefuzz.toml")
	if err := os.WriteFile(path, []byte("n_workers = 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	SetConfigFile(path)
	defer SetConfigFile("")

	t.Setenv("N_WORKERS", "16")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NWorkers != 16 {
		t.Errorf("NWorkers = %d, want 16 (env override)", cfg.NWorkers)
	}
}

func TestEnvInt64OverridesIMSIBase(t *testing.T) {
	SetConfigFile(filepath.Join(t.TempDir(), "nonexistent.toml"))
	defer SetConfigFile("")

	t.Setenv("IMSI_BASE", "999999999999999")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IMSIBase != 999999999999999 {
		t.Errorf("IMSIBase = %d, want 999999999999999", cfg.IMSIBase)
	}
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	SetConfigFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	defer SetConfigFile("")

	if _, err := Load(); err != nil {
		t.Fatalf("missing config file should not error, got: %v", err)
	}
}
