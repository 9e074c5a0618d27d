package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/remote"
)

// isolate points the default search paths at an empty directory
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(home)
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dekvault.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.File != "" {
		t.Errorf("File = %q, want none", cfg.File)
	}
	if want := filepath.Join(home, ".dekvault"); cfg.DataDir != want {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, want)
	}
	if cfg.LocalStore != LocalStoreBolt {
		t.Errorf("LocalStore = %q, want %q", cfg.LocalStore, LocalStoreBolt)
	}
	if cfg.Remote.Backend != remote.BackendFile {
		t.Errorf("Remote.Backend = %q, want %q", cfg.Remote.Backend, remote.BackendFile)
	}
	if want := filepath.Join(cfg.DataDir, "remote"); cfg.Remote.File.Dir != want {
		t.Errorf("Remote.File.Dir = %q, want %q", cfg.Remote.File.Dir, want)
	}
	if cfg.Log.Format != LogFormatHuman || cfg.Log.Debug {
		t.Errorf("Log = %+v", cfg.Log)
	}

	opts, err := cfg.WrapOptions()
	if err != nil {
		t.Fatalf("Failed to get wrap options: %v", err)
	}
	if opts != crypto.DefaultWrapOptions() {
		t.Errorf("WrapOptions() = %+v, want %+v", opts, crypto.DefaultWrapOptions())
	}
	if cfg.DBPath() != filepath.Join(cfg.DataDir, "vault.db") {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
data_dir: /var/lib/dekvault
identity: alice
local_store: keyring
remote:
  backend: s3
  s3:
    bucket: vault-backups
    endpoint: http://localhost:9000
kdf:
  algorithm: pbkdf2-sha256
  iterations: 300000
cipher: xchacha20-poly1305
log:
  format: json
  debug: true
metrics_addr: 127.0.0.1:9100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if cfg.Identity != "alice" || cfg.LocalStore != LocalStoreKeyring {
		t.Errorf("Identity/LocalStore = %q/%q", cfg.Identity, cfg.LocalStore)
	}
	if cfg.Remote.File.Dir != "/var/lib/dekvault/remote" {
		t.Errorf("Remote.File.Dir = %q", cfg.Remote.File.Dir)
	}

	rc := cfg.RemoteConfig()
	if rc.Backend != remote.BackendS3 || rc.S3Bucket != "vault-backups" || rc.S3Endpoint != "http://localhost:9000" {
		t.Errorf("RemoteConfig() = %+v", rc)
	}
	if rc.S3Region != "us-east-1" || rc.S3Prefix != "dekvault/" {
		t.Errorf("RemoteConfig() lost defaults: %+v", rc)
	}

	opts, err := cfg.WrapOptions()
	if err != nil {
		t.Fatalf("Failed to get wrap options: %v", err)
	}
	if opts.KDF != crypto.PBKDF2Params(300000) || opts.Cipher != crypto.CipherXChaCha {
		t.Errorf("WrapOptions() = %+v", opts)
	}
	if cfg.Log.Format != LogFormatJSON || !cfg.Log.Debug {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
}

func TestLoadSearchPath(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".dekvault")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	path := filepath.Join(dir, "dekvault.yaml")
	if err := os.WriteFile(path, []byte("identity: bob\n"), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if cfg.Identity != "bob" {
		t.Errorf("Identity = %q, want bob", cfg.Identity)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "identity: alice\nremote:\n  backend: file\n")

	t.Setenv("DEKVAULT_IDENTITY", "carol")
	t.Setenv("DEKVAULT_REMOTE_BACKEND", "mongo")
	t.Setenv("DEKVAULT_REMOTE_MONGO_URI", "mongodb://db:27017")
	t.Setenv("DEKVAULT_REJECT_CONCURRENT", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Identity != "carol" {
		t.Errorf("Identity = %q, want carol", cfg.Identity)
	}
	if cfg.Remote.Backend != remote.BackendMongo || cfg.Remote.Mongo.URI != "mongodb://db:27017" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if !cfg.RejectConcurrent {
		t.Error("RejectConcurrent = false, want true")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"local store", "local_store: floppy\n"},
		{"remote backend", "remote:\n  backend: ftp\n"},
		{"s3 without bucket", "remote:\n  backend: s3\n"},
		{"log format", "log:\n  format: xml\n"},
		{"kdf algorithm", "kdf:\n  algorithm: md5\n"},
		{"pbkdf2 too cheap", "kdf:\n  algorithm: pbkdf2-sha256\n  iterations: 10\n"},
		{"argon2 no threads", "kdf:\n  threads: 0\n"},
		{"cipher", "cipher: rot13\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing explicit file succeeded")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	isolate(t)

	if _, err := Load(writeConfig(t, "identity: [unterminated\n")); err == nil {
		t.Error("Load() of malformed YAML succeeded")
	}
}
