package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/illarion/dekvault/internal/config"
	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/remote"
	"github.com/illarion/dekvault/internal/storage"
	"go.uber.org/zap/zaptest"
)

// testEnv wires a vault to a bolt database in a temp dir and an in-memory
// remote store
func testEnv(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, storage.DBFile))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	rem := remote.NewMemory()
	log := zaptest.NewLogger(t)
	metrics := core.NewMetrics()

	v := core.New(db, db, rem, "dev-1", core.Options{
		Logger:  log,
		Metrics: metrics,
		Wrap:    crypto.WrapOptions{KDF: crypto.PBKDF2Params(1000), Cipher: crypto.CipherAESGCM},
	})
	t.Cleanup(func() {
		v.Close()
		db.Close()
	})

	return &Env{
		Config:   &config.Config{DataDir: dir, Identity: "alice", LocalStore: config.LocalStoreBolt},
		Log:      log,
		Storage:  db,
		Remote:   rem,
		Metrics:  metrics,
		Vault:    v,
		DeviceID: "dev-1",
		flushLog: func() {},
	}
}

func runShell(t *testing.T, env *Env, input string) string {
	t.Helper()
	var out bytes.Buffer
	sh := &shell{env: env, in: bufio.NewScanner(strings.NewReader(input)), out: &out}
	sh.run(context.Background())
	return out.String()
}

func setUpVault(t *testing.T, env *Env, secret string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := env.Vault.Initialize(ctx, env.Config.Identity); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	phrase, err := env.Vault.Setup(ctx, []byte(secret))
	if err != nil {
		t.Fatalf("Failed to set up: %v", err)
	}
	if err := env.Vault.Lock(ctx); err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}
	return phrase
}

func TestShellUnlockLock(t *testing.T) {
	env := testEnv(t)
	setUpVault(t, env, "s3cr3t")
	t.Setenv(core.SecretEnv, "s3cr3t")

	out := runShell(t, env, "unlock\nfingerprint\nlock\nquit\nstatus\n")

	if !strings.Contains(out, "Unlocked (key fingerprint ") {
		t.Errorf("Missing unlock confirmation in output:\n%s", out)
	}
	if !strings.Contains(out, "Locked (needs-phrase)") {
		t.Errorf("Missing lock confirmation in output:\n%s", out)
	}
	// quit stops before status
	if strings.Contains(out, "state=") {
		t.Errorf("Commands after quit ran:\n%s", out)
	}
	if got := env.Vault.State(); got != core.StateNeedsPhrase {
		t.Errorf("State = %s, want %s", got, core.StateNeedsPhrase)
	}
}

func TestShellWrongSecret(t *testing.T) {
	env := testEnv(t)
	setUpVault(t, env, "s3cr3t")
	t.Setenv(core.SecretEnv, "wrong")

	out := runShell(t, env, "unlock\nfingerprint\n")

	if !strings.Contains(out, "error: wrong passphrase or recovery phrase") {
		t.Errorf("Missing authentication error in output:\n%s", out)
	}
	if !strings.Contains(out, "error: vault is locked") {
		t.Errorf("fingerprint while locked did not fail:\n%s", out)
	}
}

func TestShellRecover(t *testing.T) {
	env := testEnv(t)
	phrase := setUpVault(t, env, "")
	t.Setenv(core.SecretEnv, phrase)

	out := runShell(t, env, "recover\n")

	if !strings.Contains(out, "Unlocked (key fingerprint ") {
		t.Errorf("Recover did not unlock:\n%s", out)
	}
}

func TestShellMode(t *testing.T) {
	env := testEnv(t)
	setUpVault(t, env, "s3cr3t")
	t.Setenv(core.SecretEnv, "s3cr3t")

	out := runShell(t, env, "mode\nunlock\nmode session\nstatus\nmode device\nstatus\nmode cloud\n")

	for _, want := range []string{
		"device\n",
		"Persistence mode: session",
		"state=unlocked mode=session source=remote stored_locally=false",
		"Persistence mode: device",
		"state=unlocked mode=device source=remote stored_locally=true",
		"error: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestShellStatusAndHelp(t *testing.T) {
	env := testEnv(t)
	if _, err := env.Vault.Initialize(context.Background(), "alice"); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	out := runShell(t, env, "\nstatus\nhelp\nretry\nbogus\n")

	if !strings.Contains(out, "state=needs-setup") {
		t.Errorf("Missing status line:\n%s", out)
	}
	if !strings.Contains(out, "Commands:") {
		t.Errorf("Missing help:\n%s", out)
	}
	if !strings.Contains(out, "needs-setup\n") {
		t.Errorf("Missing retry result:\n%s", out)
	}
	if !strings.Contains(out, `error: unknown command "bogus"`) {
		t.Errorf("Missing unknown command error:\n%s", out)
	}
}

func TestServeMetrics(t *testing.T) {
	env := testEnv(t)
	setUpVault(t, env, "s3cr3t")

	addr, stop, err := serveMetrics(env, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to serve metrics: %v", err)
	}
	defer stop()

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}

	for _, want := range []string{
		`dekvault_state{state="needs-phrase"} 1`,
		`dekvault_operations_total{operation="setup",result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics missing %q", want)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: bad tag", core.ErrAuthenticationFailure), "wrong passphrase or recovery phrase"},
		{core.ErrNotUnlocked, "vault is locked"},
		{core.ErrNotSetup, "vault not set up (run 'dekvault setup')"},
		{errors.New("disk on fire"), "disk on fire"},
	}
	for _, tt := range tests {
		if got := describe(tt.err); got != tt.want {
			t.Errorf("describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 bytes"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.size); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
