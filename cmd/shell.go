package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/storage"
	"go.uber.org/zap"
)

const shellHelp = `Commands:
  unlock          Unlock with the passphrase or recovery phrase
  recover         Unlock from the remote store with the recovery phrase
  lock            Drop the key from memory
  status          Show vault state
  mode [m]        Show or set persistence mode (session|device)
  fingerprint     Show the unlocked key's fingerprint
  retry           Reload after a storage error
  help            Show this help
  quit            Lock and exit`

// Shell runs an interactive session holding one vault instance, so the key
// stays unlocked between commands. If metrics_addr is configured, vault
// metrics are served on /metrics while the shell runs.
func Shell(ctx context.Context, g Globals) {
	env := Open(ctx, g)
	defer env.Close()

	if addr := env.Config.MetricsAddr; addr != "" {
		bound, stop, err := serveMetrics(env, addr)
		if err != nil {
			env.Fail(err)
		}
		defer stop()
		fmt.Printf("Metrics on http://%s/metrics\n", bound)
	}

	state, err := env.Vault.Initialize(ctx, env.Config.Identity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	fmt.Printf("dekvault shell for %s (%s). Type 'help' for commands.\n", env.Config.Identity, state)

	sh := &shell{env: env, in: bufio.NewScanner(os.Stdin), out: os.Stdout}
	sh.run(ctx)
}

type shell struct {
	env *Env
	in  *bufio.Scanner
	out io.Writer
}

func (sh *shell) run(ctx context.Context) {
	for {
		fmt.Fprintf(sh.out, "[%s] > ", sh.env.Vault.State())
		if !sh.in.Scan() {
			fmt.Fprintln(sh.out)
			return
		}
		if ctx.Err() != nil {
			return
		}

		fields := strings.Fields(sh.in.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		if err := sh.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(sh.out, "error: %s\n", describe(err))
		}
	}
}

func (sh *shell) exec(ctx context.Context, command string, args []string) error {
	v := sh.env.Vault

	switch command {
	case "unlock":
		secret, err := GetSecret("Passphrase or recovery phrase: ")
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(secret)
		if err := v.Unlock(ctx, secret); err != nil {
			return err
		}
		return sh.fingerprint()

	case "recover":
		phrase, err := GetSecret("Recovery phrase: ")
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(phrase)
		if err := v.Recover(ctx, sh.env.Config.Identity, string(phrase)); err != nil {
			return err
		}
		return sh.fingerprint()

	case "lock":
		if err := v.Lock(ctx); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Locked (%s)\n", v.State())

	case "status":
		status, err := v.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "state=%s mode=%s source=%s stored_locally=%t passphrase=%t\n",
			status.State, status.Mode, status.Source, status.StoredLocally, status.HasPassphrase)
		if status.Err != nil {
			fmt.Fprintf(sh.out, "error: %s\n", status.Err)
		}
		for _, w := range status.Warnings {
			fmt.Fprintf(sh.out, "warning: %s\n", w)
		}

	case "mode":
		if len(args) == 0 {
			mode, err := v.PersistenceMode(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, mode)
			return nil
		}
		return sh.setMode(ctx, args[0])

	case "fingerprint":
		return sh.fingerprint()

	case "retry":
		state, err := v.Retry(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, state)

	case "help":
		fmt.Fprintln(sh.out, shellHelp)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func (sh *shell) setMode(ctx context.Context, arg string) error {
	mode, err := storage.ParseMode(arg)
	if err != nil {
		return err
	}

	var secret []byte
	if mode == storage.ModeDevice && sh.env.Vault.State() == core.StateUnlocked {
		secret, err = GetSecret("Passphrase or recovery phrase: ")
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(secret)
	}

	if err := sh.env.Vault.SetPersistenceMode(ctx, mode, secret); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Persistence mode: %s\n", mode)
	return nil
}

func (sh *shell) fingerprint() error {
	return sh.env.Vault.WithDEK(func(dek []byte) error {
		fmt.Fprintf(sh.out, "Unlocked (key fingerprint %s)\n", crypto.Fingerprint(dek))
		return nil
	})
}

// describe turns vault errors into short messages for the prompt
func describe(err error) string {
	switch {
	case errors.Is(err, core.ErrAuthenticationFailure):
		return "wrong passphrase or recovery phrase"
	case errors.Is(err, core.ErrNotUnlocked):
		return "vault is locked"
	case errors.Is(err, core.ErrNotSetup):
		return "vault not set up (run 'dekvault setup')"
	default:
		return err.Error()
	}
}

// serveMetrics starts the Prometheus endpoint. It returns the bound
// address and a function that shuts the server down.
func serveMetrics(env *Env, addr string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", env.Metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Log.Error("metrics server failed", zap.Error(err))
		}
	}()
	env.Log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
