package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illarion/dekvault/internal/config"
	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/keyring"
	"github.com/illarion/dekvault/internal/logger"
	"github.com/illarion/dekvault/internal/remote"
	"github.com/illarion/dekvault/internal/session"
	"github.com/illarion/dekvault/internal/storage"
	"go.uber.org/zap"
)

// remoteCloseTimeout bounds disconnecting from the remote store on exit
const remoteCloseTimeout = 5 * time.Second

// Globals holds the flags accepted by every command
type Globals struct {
	ConfigFile string
	Identity   string
}

// Env is everything a command needs: configuration, stores and the vault
type Env struct {
	Config   *config.Config
	Log      *zap.Logger
	Storage  *storage.Storage
	Remote   remote.Backend
	Metrics  *core.Metrics
	Vault    *core.Vault
	DeviceID string

	flushLog func()
}

// Open loads configuration and opens the stores. Errors are fatal.
func Open(ctx context.Context, g Globals) *Env {
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if g.Identity != "" {
		cfg.Identity = g.Identity
	}
	if cfg.Identity == "" {
		HandleError(core.ErrNoIdentity)
	}

	log, flush, err := logger.New(logger.Config{
		Debug:  cfg.Log.Debug,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	env := &Env{Config: cfg, Log: log, flushLog: flush}

	env.Storage, err = storage.Open(cfg.DBPath())
	if err != nil {
		flush()
		HandleError(err)
	}
	env.DeviceID, err = env.Storage.GetOrCreateDeviceID()
	if err != nil {
		env.Close()
		HandleError(err)
	}

	env.Remote, err = remote.Open(ctx, cfg.RemoteConfig())
	if err != nil {
		env.Close()
		HandleError(err)
	}

	wrap, err := cfg.WrapOptions()
	if err != nil {
		env.Close()
		HandleError(err)
	}

	var local core.KeyStore = env.Storage
	if cfg.LocalStore == config.LocalStoreKeyring {
		local = keyring.New()
	}

	env.Metrics = core.NewMetrics()
	env.Vault = core.New(local, env.Storage, env.Remote, env.DeviceID, core.Options{
		Logger:           log,
		Metrics:          env.Metrics,
		Wrap:             wrap,
		RejectConcurrent: cfg.RejectConcurrent,
	})

	log.Debug("environment ready",
		zap.String("config", cfg.File),
		zap.String("identity", cfg.Identity),
		zap.String("device", env.DeviceID),
		zap.String("local_store", cfg.LocalStore),
		zap.String("remote", cfg.Remote.Backend))
	return env
}

// Close locks the vault and releases every store
func (e *Env) Close() {
	if e.Vault != nil {
		e.Vault.Close()
	}
	if e.Remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), remoteCloseTimeout)
		if err := e.Remote.Close(ctx); err != nil {
			e.Log.Warn("failed to close remote store", zap.Error(err))
		}
		cancel()
	}
	if e.Storage != nil {
		e.Storage.Close()
	}
	session.Purge()
	e.flushLog()
}

// Fail closes env and exits with err
func (e *Env) Fail(err error) {
	e.Close()
	HandleError(err)
}

// Initialize loads the vault for the configured identity
func (e *Env) Initialize(ctx context.Context) core.State {
	state, err := e.Vault.Initialize(ctx, e.Config.Identity)
	if err != nil {
		e.Fail(err)
	}
	return state
}

// UnlockOrExit initializes the vault and unlocks it with a secret from
// the environment or the terminal. The secret is returned for operations
// that need it again; the caller must clear it.
func (e *Env) UnlockOrExit(ctx context.Context) []byte {
	switch e.Initialize(ctx) {
	case core.StateNeedsSetup:
		e.Fail(core.ErrNotSetup)
	case core.StateUnlocked:
		return nil
	}

	secret := GetSecretOrExit("Passphrase or recovery phrase: ")
	if err := e.Vault.Unlock(ctx, secret); err != nil {
		crypto.ClearBytes(secret)
		e.Fail(err)
	}
	return secret
}

// GetSecret retrieves the secret from environment or prompts user.
// The caller is responsible for calling crypto.ClearBytes on the result.
func GetSecret(prompt string) ([]byte, error) {
	// Try environment variable first
	if secret := core.SecretFromEnv(); secret != nil {
		return secret, nil
	}
	if !core.IsTerminal() {
		return nil, fmt.Errorf("%w: set %s or run interactively", core.ErrSecretRequired, core.SecretEnv)
	}

	secret, err := core.ReadSecret(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return secret, nil
}

// GetSecretOrExit is like GetSecret but exits on error
func GetSecretOrExit(prompt string) []byte {
	secret, err := GetSecret(prompt)
	if err != nil {
		HandleError(err)
	}
	return secret
}

// GetNewSecret retrieves a new passphrase. Checks the environment
// variable first, then prompts with confirmation.
func GetNewSecret(prompt string) ([]byte, error) {
	if secret := core.SecretFromEnv(); secret != nil {
		return secret, nil
	}
	return core.ReadSecretConfirm(prompt)
}

// HandleError prints err for the user and exits
func HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrNotSetup):
		fmt.Fprintf(os.Stderr, "Error: vault not set up for this identity\n")
		fmt.Fprintf(os.Stderr, "Run 'dekvault setup' first\n")
	case errors.Is(err, core.ErrAlreadySetUp):
		fmt.Fprintf(os.Stderr, "Error: a vault already exists for this identity\n")
		fmt.Fprintf(os.Stderr, "Use 'dekvault unlock' or 'dekvault recover'\n")
	case errors.Is(err, core.ErrAuthenticationFailure):
		fmt.Fprintf(os.Stderr, "Error: wrong passphrase or recovery phrase\n")
	case errors.Is(err, core.ErrNotUnlocked):
		fmt.Fprintf(os.Stderr, "Error: vault is locked\n")
	case errors.Is(err, core.ErrStorageUnavailable), errors.Is(err, remote.ErrUnavailable), errors.Is(err, storage.ErrUnavailable):
		fmt.Fprintf(os.Stderr, "Error: storage unavailable: %s\n", err)
		fmt.Fprintf(os.Stderr, "Check the remote store and try again\n")
	case errors.Is(err, core.ErrOperationInProgress):
		fmt.Fprintf(os.Stderr, "Error: another vault operation is in progress\n")
	case errors.Is(err, core.ErrNoIdentity):
		fmt.Fprintf(os.Stderr, "Error: no identity configured\n")
		fmt.Fprintf(os.Stderr, "Use --identity or set %s_IDENTITY\n", config.EnvPrefix)
	case errors.Is(err, core.ErrSecretRequired):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "Interrupted\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

// confirm asks a yes/no question on the terminal
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
