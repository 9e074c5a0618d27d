package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/remote"
	"github.com/illarion/dekvault/internal/session"
	"github.com/illarion/dekvault/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Slots of a key bundle
const (
	slotPassphrase = "passphrase"
	slotRecovery   = "recovery"
)

// KeyStore is the durable per-device store for wrapped key bundles.
// Get returns storage.ErrNotFound when nothing is stored under id.
type KeyStore interface {
	Get(ctx context.Context, id string) (*storage.KeyBundle, error)
	Put(ctx context.Context, id string, bundle *storage.KeyBundle) error
	Clear(ctx context.Context, id string) error
}

// ModeStore records the persistence mode
type ModeStore interface {
	GetMode(ctx context.Context) (storage.PersistenceMode, error)
	SetMode(ctx context.Context, mode storage.PersistenceMode) error
}

// RemoteStore is the cross-device backup of wrapped key bundles.
// Get returns remote.ErrNotFound when the identity has no bundle.
type RemoteStore interface {
	Get(ctx context.Context, identity string) (*storage.KeyBundle, error)
	Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error
	Delete(ctx context.Context, identity string) error
}

// Options configures a Vault
type Options struct {
	Logger  *zap.Logger
	Metrics *Metrics

	// Wrap selects the KDF and cipher for new wraps. The zero value
	// selects crypto.DefaultWrapOptions.
	Wrap crypto.WrapOptions

	// RejectConcurrent makes a mutating call fail with
	// ErrOperationInProgress instead of waiting for the one in flight.
	RejectConcurrent bool
}

// Vault manages the lifecycle of one user's data encryption key
type Vault struct {
	local    KeyStore
	modes    ModeStore
	remote   RemoteStore
	deviceID string
	cache    *session.Cache
	wrap     crypto.WrapOptions
	log      *zap.Logger
	metrics  *Metrics
	reject   bool

	// sem serializes mutating operations. Fields below mu are only
	// written by the holder of sem, under mu.
	sem *semaphore.Weighted

	mu       sync.RWMutex
	state    State
	identity string
	bundle   *storage.KeyBundle
	source   string
	lastErr  error
	warnings []string
}

// New creates a vault in StateLoading. Call Initialize before anything else.
func New(local KeyStore, modes ModeStore, backup RemoteStore, deviceID string, opts Options) *Vault {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	wrap := opts.Wrap
	if wrap.Cipher == "" {
		wrap = crypto.DefaultWrapOptions()
	}

	v := &Vault{
		local:    local,
		modes:    modes,
		remote:   backup,
		deviceID: deviceID,
		cache:    session.New(),
		wrap:     wrap,
		log:      log.Named("vault"),
		metrics:  opts.Metrics,
		reject:   opts.RejectConcurrent,
		sem:      semaphore.NewWeighted(1),
		state:    StateLoading,
	}
	v.metrics.setState(StateLoading)
	return v
}

// run executes fn as the single in-flight mutating operation. Once
// started, fn runs to completion on a context detached from the caller's
// cancellation. With detach set, the caller may stop waiting earlier;
// otherwise run always waits for the result. Buffers in wipe are cleared
// after fn returns, or right away if fn never starts.
func (v *Vault) run(ctx context.Context, op string, detach bool, fn func(ctx context.Context) error, wipe ...[]byte) error {
	wipeAll := func() {
		for _, b := range wipe {
			crypto.ClearBytes(b)
		}
	}

	if v.reject {
		if !v.sem.TryAcquire(1) {
			wipeAll()
			v.metrics.observe(op, ErrOperationInProgress, 0)
			return ErrOperationInProgress
		}
	} else if err := v.sem.Acquire(ctx, 1); err != nil {
		wipeAll()
		return err
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer v.sem.Release(1)
		defer wipeAll()
		err := fn(context.WithoutCancel(ctx))
		v.metrics.observe(op, err, time.Since(start))
		done <- err
	}()

	if !detach {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		v.log.Debug("caller stopped waiting, operation continues", zap.String("op", op))
		return ctx.Err()
	}
}

func (v *Vault) keyID() string {
	return storage.KeyID(v.identity, v.deviceID)
}

// setState moves to a state without a key. The cache is cleared under the
// same lock so readers never observe a key outside StateUnlocked.
func (v *Vault) setState(s State, bundle *storage.KeyBundle, source string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cache.Clear()
	v.state = s
	v.bundle = bundle
	v.source = source
	if s != StateError {
		v.lastErr = nil
	}
	v.metrics.setState(s)
	v.log.Debug("state changed", zap.Stringer("state", s), zap.String("source", source))
}

func (v *Vault) setUnlocked(bundle *storage.KeyBundle, source string, dek []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.cache.Set(v.identity, dek); err != nil {
		return err
	}
	v.state = StateUnlocked
	v.bundle = bundle
	v.source = source
	v.lastErr = nil
	v.metrics.setState(StateUnlocked)
	v.log.Debug("state changed", zap.Stringer("state", StateUnlocked), zap.String("source", source),
		zap.String("fingerprint", crypto.Fingerprint(dek)))
	return nil
}

func (v *Vault) replaceBundle(bundle *storage.KeyBundle) {
	v.mu.Lock()
	v.bundle = bundle
	v.mu.Unlock()
}

// fail moves to StateError and returns err
func (v *Vault) fail(err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cache.Clear()
	v.state = StateError
	v.bundle = nil
	v.source = SourceNone
	v.lastErr = err
	v.metrics.setState(StateError)
	v.log.Error("vault unavailable", zap.String("identity", v.identity), zap.Error(err))
	return err
}

// warn records a degraded local store. Operations continue in session-only
// fashion.
func (v *Vault) warn(op, msg string, err error) {
	v.metrics.localStoreError(op)
	v.log.Warn(msg, zap.String("identity", v.identity), zap.Error(err))

	v.mu.Lock()
	defer v.mu.Unlock()
	if !slices.Contains(v.warnings, msg) {
		v.warnings = append(v.warnings, msg)
	}
}

// currentMode returns the persistence mode. An unreadable mode is treated
// as session so nothing new is written locally.
func (v *Vault) currentMode(ctx context.Context) storage.PersistenceMode {
	mode, err := v.modes.GetMode(ctx)
	if err != nil {
		v.warn("get_mode", "persistence mode unreadable, keeping key in session only", err)
		return storage.ModeSession
	}
	return mode
}

func (v *Vault) persistLocal(ctx context.Context, bundle *storage.KeyBundle) {
	if err := v.local.Put(ctx, v.keyID(), bundle); err != nil {
		v.warn("put", "failed to store key locally, continuing with session only", err)
	}
}

// openBundle returns the DEK from whichever slot secret opens. The
// passphrase slot is tried first, the recovery slot only for a
// well-formed phrase.
func openBundle(bundle *storage.KeyBundle, secret []byte) ([]byte, string, error) {
	if bundle == nil {
		return nil, "", ErrNotSetup
	}

	cause := crypto.ErrAuthFailed
	if bundle.Passphrase != nil {
		dek, err := crypto.UnwrapDEK(bundle.Passphrase, secret)
		if err == nil {
			return dek, slotPassphrase, nil
		}
		cause = err
	}

	if crypto.IsRecoveryPhrase(secret) {
		phrase := crypto.PhraseSecret(string(secret))
		defer crypto.ClearBytes(phrase)
		dek, err := crypto.UnwrapDEK(bundle.Recovery, phrase)
		if err == nil {
			return dek, slotRecovery, nil
		}
		cause = err
	} else if bundle.Passphrase == nil {
		cause = crypto.ErrInvalidPhrase
	}

	return nil, "", fmt.Errorf("%w: %w", ErrAuthenticationFailure, cause)
}

// matchesCache checks that dek is the key currently held in the session
func (v *Vault) matchesCache(dek []byte) error {
	err := v.cache.With(v.identity, func(cached []byte) error {
		if !crypto.ConstantTimeCompare(cached, dek) {
			return ErrAuthenticationFailure
		}
		return nil
	})
	if errors.Is(err, session.ErrEmpty) {
		return ErrNotUnlocked
	}
	return err
}

// Initialize loads the wrapped key for identity, looking in the local store
// first and the remote store second.
func (v *Vault) Initialize(ctx context.Context, identity string) (State, error) {
	if identity == "" {
		return v.State(), ErrNoIdentity
	}
	err := v.run(ctx, "initialize", true, func(ctx context.Context) error {
		return v.initialize(ctx, identity)
	})
	return v.State(), err
}

func (v *Vault) initialize(ctx context.Context, identity string) error {
	v.mu.Lock()
	if v.state == StateUnlocked && v.identity == identity && v.cache.Has(identity) {
		v.mu.Unlock()
		v.log.Debug("session already unlocked", zap.String("identity", identity))
		return nil
	}
	v.cache.Clear()
	v.identity = identity
	v.state = StateLoading
	v.bundle = nil
	v.source = SourceNone
	v.lastErr = nil
	v.warnings = nil
	v.metrics.setState(StateLoading)
	v.mu.Unlock()

	bundle, err := v.local.Get(ctx, v.keyID())
	switch {
	case err == nil:
		v.setState(StateNeedsPhrase, bundle, SourceLocal)
		return nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		v.warn("get", "local key store unreadable, falling back to remote", err)
	}

	bundle, err = v.remote.Get(ctx, identity)
	switch {
	case err == nil:
		v.setState(StateNeedsPhrase, bundle, SourceRemote)
	case errors.Is(err, remote.ErrNotFound):
		v.setState(StateNeedsSetup, nil, SourceNone)
	default:
		return v.fail(fmt.Errorf("%w: remote: %w", ErrStorageUnavailable, err))
	}
	return nil
}

// Setup creates the key for a new vault and returns its recovery phrase.
// The phrase is returned exactly once and is not stored anywhere. A
// non-empty secret adds a passphrase that also unlocks the key.
//
// Setup always waits for completion, since the phrase exists only in its
// result.
func (v *Vault) Setup(ctx context.Context, secret []byte) (string, error) {
	var phrase string
	err := v.run(ctx, "setup", false, func(ctx context.Context) error {
		var err error
		phrase, err = v.setup(ctx, secret)
		return err
	})
	return phrase, err
}

func (v *Vault) setup(ctx context.Context, secret []byte) (string, error) {
	switch state := v.State(); state {
	case StateNeedsSetup:
	case StateNeedsPhrase, StateUnlocked:
		return "", ErrAlreadySetUp
	default:
		return "", fmt.Errorf("%w: setup while %s", ErrInvalidState, state)
	}

	// Another device may have set up since Initialize
	existing, err := v.remote.Get(ctx, v.identity)
	switch {
	case err == nil:
		v.setState(StateNeedsPhrase, existing, SourceRemote)
		return "", ErrAlreadySetUp
	case !errors.Is(err, remote.ErrNotFound):
		return "", fmt.Errorf("%w: remote: %w", ErrStorageUnavailable, err)
	}

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(dek)

	phrase, err := crypto.GenerateRecoveryPhrase()
	if err != nil {
		return "", err
	}
	phraseSecret := crypto.PhraseSecret(phrase)
	defer crypto.ClearBytes(phraseSecret)

	recovery, err := crypto.WrapDEK(dek, phraseSecret, v.wrap)
	if err != nil {
		return "", fmt.Errorf("failed to wrap key under recovery phrase: %w", err)
	}
	var passphrase *crypto.WrappedDEK
	if len(secret) > 0 {
		passphrase, err = crypto.WrapDEK(dek, secret, v.wrap)
		if err != nil {
			return "", fmt.Errorf("failed to wrap key under passphrase: %w", err)
		}
	}
	bundle := storage.NewKeyBundle(recovery, passphrase)

	// Without the remote copy there is no recovery, so this one is fatal
	if err := v.remote.Put(ctx, v.identity, bundle); err != nil {
		return "", fmt.Errorf("%w: remote: %w", ErrStorageUnavailable, err)
	}
	if v.currentMode(ctx) == storage.ModeDevice {
		v.persistLocal(ctx, bundle)
	}

	if err := v.setUnlocked(bundle, SourceRemote, dek); err != nil {
		return "", err
	}
	v.log.Info("vault set up", zap.String("identity", v.identity), zap.Bool("passphrase", passphrase != nil))
	return phrase, nil
}

// Unlock opens the held key with a passphrase or the recovery phrase
func (v *Vault) Unlock(ctx context.Context, secret []byte) error {
	secret = bytes.Clone(secret)
	return v.run(ctx, "unlock", true, func(ctx context.Context) error {
		return v.unlock(ctx, secret)
	}, secret)
}

func (v *Vault) unlock(ctx context.Context, secret []byte) error {
	switch state := v.State(); state {
	case StateNeedsPhrase:
	case StateUnlocked:
		return nil
	case StateNeedsSetup:
		return ErrNotSetup
	default:
		return fmt.Errorf("%w: unlock while %s", ErrInvalidState, state)
	}
	if len(secret) == 0 {
		return ErrSecretRequired
	}

	bundle, source := v.bundle, v.source
	dek, slot, err := openBundle(bundle, secret)
	if err != nil {
		v.log.Info("unlock failed", zap.String("identity", v.identity), zap.Error(err))
		return err
	}
	defer crypto.ClearBytes(dek)

	if source == SourceRemote && v.currentMode(ctx) == storage.ModeDevice {
		v.persistLocal(ctx, bundle)
	}
	if err := v.setUnlocked(bundle, source, dek); err != nil {
		return err
	}
	v.log.Info("vault unlocked", zap.String("identity", v.identity), zap.String("slot", slot))
	return nil
}

// Recover fetches identity's key from the remote store and opens it with
// the recovery phrase. It is the path for a device with no local state.
func (v *Vault) Recover(ctx context.Context, identity, phrase string) error {
	if identity == "" {
		return ErrNoIdentity
	}
	return v.run(ctx, "recover", true, func(ctx context.Context) error {
		return v.recover(ctx, identity, phrase)
	})
}

func (v *Vault) recover(ctx context.Context, identity, phrase string) error {
	if v.State() == StateUnlocked {
		return fmt.Errorf("%w: lock before recovering", ErrInvalidState)
	}

	sameIdentity := identity == v.identity
	if !sameIdentity {
		v.mu.Lock()
		v.identity = identity
		v.warnings = nil
		v.mu.Unlock()
	}

	bundle, err := v.remote.Get(ctx, identity)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		v.setState(StateNeedsSetup, nil, SourceNone)
		return ErrNotSetup
	case err != nil:
		err = fmt.Errorf("%w: remote: %w", ErrStorageUnavailable, err)
		if sameIdentity && v.bundle != nil {
			return err
		}
		return v.fail(err)
	}
	v.setState(StateNeedsPhrase, bundle, SourceRemote)

	if err := crypto.ValidateRecoveryPhrase(phrase); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailure, err)
	}
	secret := crypto.PhraseSecret(phrase)
	defer crypto.ClearBytes(secret)

	dek, err := crypto.UnwrapDEK(bundle.Recovery, secret)
	if err != nil {
		v.log.Info("recovery failed", zap.String("identity", identity), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrAuthenticationFailure, err)
	}
	defer crypto.ClearBytes(dek)

	if v.currentMode(ctx) == storage.ModeDevice {
		v.persistLocal(ctx, bundle)
	}
	if err := v.setUnlocked(bundle, SourceRemote, dek); err != nil {
		return err
	}
	v.log.Info("vault recovered", zap.String("identity", identity))
	return nil
}

// Lock drops the session key. In session mode the local copy is cleared
// too. Locking a vault that is not unlocked does nothing.
func (v *Vault) Lock(ctx context.Context) error {
	return v.run(ctx, "lock", true, v.lock)
}

func (v *Vault) lock(ctx context.Context) error {
	if v.State() != StateUnlocked {
		return nil
	}
	v.setState(StateNeedsPhrase, v.bundle, v.source)

	if v.currentMode(ctx) == storage.ModeSession {
		if err := v.local.Clear(ctx, v.keyID()); err != nil {
			v.warn("clear", "failed to clear local key", err)
		}

		// The remote copy is now the only one; follow a remote wipe
		latest, err := v.remote.Get(ctx, v.identity)
		switch {
		case err == nil:
			v.setState(StateNeedsPhrase, latest, SourceRemote)
		case errors.Is(err, remote.ErrNotFound):
			v.setState(StateNeedsSetup, nil, SourceNone)
		default:
			v.log.Warn("remote store unreachable after lock, keeping held key", zap.Error(err))
		}
	}

	v.log.Info("vault locked", zap.String("identity", v.identity), zap.Stringer("state", v.State()))
	return nil
}

// DEK returns a copy of the unlocked key. The caller must clear it and must
// not persist it.
func (v *Vault) DEK() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.state != StateUnlocked {
		return nil, ErrNotUnlocked
	}
	dek, err := v.cache.Get(v.identity)
	if errors.Is(err, session.ErrEmpty) {
		return nil, ErrNotUnlocked
	}
	return dek, err
}

// WithDEK lends the unlocked key to fn without copying it. fn must not
// retain the slice or call back into the vault.
func (v *Vault) WithDEK(fn func(dek []byte) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.state != StateUnlocked {
		return ErrNotUnlocked
	}
	err := v.cache.With(v.identity, fn)
	if errors.Is(err, session.ErrEmpty) {
		return ErrNotUnlocked
	}
	return err
}

// PersistenceMode returns the current persistence mode
func (v *Vault) PersistenceMode(ctx context.Context) (storage.PersistenceMode, error) {
	mode, err := v.modes.GetMode(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return mode, nil
}

// SetPersistenceMode switches between session and device persistence.
//
// Switching to session clears the local copy for the current identity.
// Switching to device while unlocked stores a freshly re-wrapped copy
// locally; this needs the unlock secret again, since the vault does not
// retain it.
func (v *Vault) SetPersistenceMode(ctx context.Context, mode storage.PersistenceMode, secret []byte) error {
	if _, err := storage.ParseMode(string(mode)); err != nil {
		return err
	}
	secret = bytes.Clone(secret)
	return v.run(ctx, "set_mode", true, func(ctx context.Context) error {
		return v.setMode(ctx, mode, secret)
	}, secret)
}

func (v *Vault) setMode(ctx context.Context, mode storage.PersistenceMode, secret []byte) error {
	current, err := v.modes.GetMode(ctx)
	if err != nil {
		v.warn("get_mode", "persistence mode unreadable", err)
		current = ""
	}
	if mode == current {
		return nil
	}

	switch mode {
	case storage.ModeSession:
		if err := v.modes.SetMode(ctx, mode); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		if v.identity != "" {
			if err := v.local.Clear(ctx, v.keyID()); err != nil {
				return fmt.Errorf("%w: failed to clear local key: %w", ErrStorageUnavailable, err)
			}
		}

	case storage.ModeDevice:
		if v.State() == StateUnlocked {
			if len(secret) == 0 {
				return ErrSecretRequired
			}
			bundle, err := v.rewrap(secret)
			if err != nil {
				return err
			}
			if err := v.local.Put(ctx, v.keyID(), bundle); err != nil {
				return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			}
			if err := v.remote.Put(ctx, v.identity, bundle); err != nil {
				// The older remote bundle still opens the same key
				v.log.Warn("failed to refresh remote bundle", zap.Error(err))
			}
			v.replaceBundle(bundle)
		}
		if err := v.modes.SetMode(ctx, mode); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	}

	v.log.Info("persistence mode changed", zap.String("from", string(current)), zap.String("to", string(mode)))
	return nil
}

// rewrap verifies secret against the held bundle and returns a copy whose
// matching slot is wrapped again under a fresh salt and nonce
func (v *Vault) rewrap(secret []byte) (*storage.KeyBundle, error) {
	dek, slot, err := openBundle(v.bundle, secret)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(dek)
	if err := v.matchesCache(dek); err != nil {
		return nil, err
	}

	if slot == slotRecovery {
		phrase := crypto.PhraseSecret(string(secret))
		defer crypto.ClearBytes(phrase)
		w, err := crypto.WrapDEK(dek, phrase, v.wrap)
		if err != nil {
			return nil, err
		}
		return v.bundle.WithRecovery(w), nil
	}

	w, err := crypto.WrapDEK(dek, secret, v.wrap)
	if err != nil {
		return nil, err
	}
	return v.bundle.WithPassphrase(w), nil
}

// ChangePassphrase replaces the passphrase slot. current may be the old
// passphrase or the recovery phrase; an empty next removes the passphrase
// so only the recovery phrase unlocks.
func (v *Vault) ChangePassphrase(ctx context.Context, current, next []byte) error {
	current = bytes.Clone(current)
	next = bytes.Clone(next)
	return v.run(ctx, "change_passphrase", true, func(ctx context.Context) error {
		return v.changePassphrase(ctx, current, next)
	}, current, next)
}

func (v *Vault) changePassphrase(ctx context.Context, current, next []byte) error {
	if v.State() != StateUnlocked {
		return ErrNotUnlocked
	}
	if len(current) == 0 {
		return ErrSecretRequired
	}

	dek, _, err := openBundle(v.bundle, current)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(dek)
	if err := v.matchesCache(dek); err != nil {
		return err
	}

	var w *crypto.WrappedDEK
	if len(next) > 0 {
		w, err = crypto.WrapDEK(dek, next, v.wrap)
		if err != nil {
			return fmt.Errorf("failed to wrap key under new passphrase: %w", err)
		}
	}
	bundle := v.bundle.WithPassphrase(w)

	if err := v.remote.Put(ctx, v.identity, bundle); err != nil {
		return fmt.Errorf("%w: remote: %w", ErrStorageUnavailable, err)
	}
	if v.currentMode(ctx) == storage.ModeDevice {
		v.persistLocal(ctx, bundle)
	}
	v.replaceBundle(bundle)

	v.log.Info("passphrase changed", zap.String("identity", v.identity), zap.Bool("passphrase", w != nil))
	return nil
}

// Wipe deletes the vault for the current identity everywhere. The key is
// unrecoverable afterwards.
func (v *Vault) Wipe(ctx context.Context) error {
	return v.run(ctx, "wipe", true, v.wipe)
}

func (v *Vault) wipe(ctx context.Context) error {
	if v.State() != StateUnlocked {
		return ErrNotUnlocked
	}

	if err := v.remote.Delete(ctx, v.identity); err != nil {
		return fmt.Errorf("%w: remote: %w", ErrStorageUnavailable, err)
	}
	if err := v.local.Clear(ctx, v.keyID()); err != nil {
		v.warn("clear", "failed to clear local key", err)
	}
	v.setState(StateNeedsSetup, nil, SourceNone)

	v.log.Warn("vault wiped", zap.String("identity", v.identity))
	return nil
}

// Retry initializes again for the last identity. It is the way out of
// StateError.
func (v *Vault) Retry(ctx context.Context) (State, error) {
	v.mu.RLock()
	identity := v.identity
	v.mu.RUnlock()

	if identity == "" {
		return v.State(), ErrNoIdentity
	}
	return v.Initialize(ctx, identity)
}

// State returns the current state
func (v *Vault) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Identity returns the identity the vault was initialized for
func (v *Vault) Identity() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.identity
}

// Status returns status information (no secret required)
func (v *Vault) Status(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	status := &Status{
		State:    v.state,
		Identity: v.identity,
		DeviceID: v.deviceID,
		Source:   v.source,
		Err:      v.lastErr,
		Warnings: slices.Clone(v.warnings),
	}
	bundle := v.bundle
	v.mu.RUnlock()

	if bundle != nil {
		status.HasPassphrase = bundle.HasPassphrase()
		status.KDF = bundle.Recovery.KDF.Algorithm
		status.Cipher = bundle.Recovery.Cipher.Algorithm
		status.Created = bundle.Created
		status.Modified = bundle.Modified
	}

	_ = v.WithDEK(func(dek []byte) error {
		status.Fingerprint = crypto.Fingerprint(dek)
		return nil
	})

	if mode, err := v.modes.GetMode(ctx); err == nil {
		status.Mode = mode
	} else {
		status.Warnings = append(status.Warnings, "persistence mode unreadable")
	}

	if status.Identity != "" {
		_, err := v.local.Get(ctx, storage.KeyID(status.Identity, v.deviceID))
		status.StoredLocally = err == nil
	}

	return status, nil
}

// Close drops the session key. The vault can be initialized again
// afterwards.
func (v *Vault) Close() error {
	if err := v.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer v.sem.Release(1)

	if v.State() == StateUnlocked {
		v.setState(StateNeedsPhrase, v.bundle, v.source)
	}
	return nil
}
