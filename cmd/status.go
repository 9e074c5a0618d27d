package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/illarion/dekvault/internal/config"
	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/git"
	"github.com/illarion/dekvault/internal/keyring"
	"github.com/illarion/dekvault/internal/storage"
)

// Status shows the current state of the vault (no secret required)
func Status(ctx context.Context, g Globals) {
	env := Open(ctx, g)
	defer env.Close()

	// A storage failure still leaves something to report
	if _, err := env.Vault.Initialize(ctx, env.Config.Identity); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}

	status, err := env.Vault.Status(ctx)
	if err != nil {
		env.Fail(err)
	}

	fmt.Printf("Identity:     %s\n", status.Identity)
	fmt.Printf("Device:       %s\n", status.DeviceID)
	fmt.Printf("State:        %s\n", status.State)
	fmt.Printf("Mode:         %s\n", status.Mode)
	fmt.Printf("Local store:  %s (%s)\n", env.Config.LocalStore, localLocation(env))
	fmt.Printf("Remote store: %s\n", env.Config.Remote.Backend)
	if env.Config.File != "" {
		fmt.Printf("Config:       %s\n", env.Config.File)
	}

	switch status.State {
	case core.StateNeedsSetup:
		fmt.Println("\nNo vault for this identity. Run 'dekvault setup' to create one.")
	case core.StateError:
		fmt.Printf("\nVault unavailable: %s\n", status.Err)
	default:
		fmt.Println("\nKey:")
		fmt.Printf("  Loaded from:   %s\n", status.Source)
		fmt.Printf("  Stored here:   %s\n", yesNo(status.StoredLocally))
		fmt.Printf("  Passphrase:    %s\n", yesNo(status.HasPassphrase))
		fmt.Printf("  Encryption:    %s, %s\n", status.Cipher, status.KDF)
		fmt.Printf("  Created:       %s\n", status.Created.Format(time.RFC3339))
		fmt.Printf("  Last modified: %s\n", status.Modified.Format(time.RFC3339))
	}

	if len(status.Warnings) > 0 {
		fmt.Println()
		printWarnings(status.Warnings)
	}

	if env.Config.LocalStore == config.LocalStoreBolt {
		if gitStatus, err := git.CheckVaultFiles([]string{env.Config.DBPath()}); err == nil {
			fmt.Print(git.FormatGitStatus(gitStatus))
		}
	}
}

func localLocation(env *Env) string {
	if env.Config.LocalStore == config.LocalStoreKeyring {
		id := storage.KeyID(env.Config.Identity, env.DeviceID)
		if keyring.New().Has(id) {
			return "OS keyring, key present"
		}
		return "OS keyring"
	}
	summary, err := databaseSummary(env.Storage)
	if err != nil {
		return env.Config.DBPath()
	}
	return env.Config.DBPath() + ", " + summary
}

// databaseSummary describes the local database contents
func databaseSummary(db *storage.Storage) (string, error) {
	ids, err := db.Keys()
	if err != nil {
		return "", err
	}
	modified, err := db.GetModified()
	if err != nil {
		return "", err
	}

	keys := "keys"
	if len(ids) == 1 {
		keys = "key"
	}
	return fmt.Sprintf("%d stored %s, written %s", len(ids), keys, modified.Format(time.RFC3339)), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
