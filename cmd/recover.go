package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/crypto"
)

// Recover restores the key on this device from the remote store using the
// recovery phrase
func Recover(ctx context.Context, g Globals) {
	env := Open(ctx, g)
	defer env.Close()

	phrase, err := GetSecret("Recovery phrase: ")
	if err != nil {
		env.Fail(err)
	}
	defer crypto.ClearBytes(phrase)

	if err := crypto.ValidateRecoveryPhrase(string(phrase)); err != nil {
		env.Fail(fmt.Errorf("%w: %w", core.ErrAuthenticationFailure, err))
	}

	if err := env.Vault.Recover(ctx, env.Config.Identity, string(phrase)); err != nil {
		env.Fail(err)
	}

	fmt.Printf("Recovered vault for %s\n", env.Config.Identity)
	printFingerprint(env)

	status, err := env.Vault.Status(ctx)
	if err != nil {
		env.Fail(err)
	}
	if status.StoredLocally {
		fmt.Println("Key stored on this device")
	}
	printWarnings(status.Warnings)
}
