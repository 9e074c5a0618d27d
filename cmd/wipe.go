package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/dekvault/internal/crypto"
)

// Wipe deletes the vault for the configured identity on this device and in
// the remote store
func Wipe(ctx context.Context, g Globals, force bool) {
	env := Open(ctx, g)
	defer env.Close()

	secret := env.UnlockOrExit(ctx)
	crypto.ClearBytes(secret)

	if !force {
		fmt.Printf("This permanently destroys the key for %s.\n", env.Config.Identity)
		fmt.Println("Data encrypted with it cannot be recovered, not even with the recovery phrase.")
		if !confirm("Wipe vault?") {
			fmt.Println("Aborted")
			return
		}
	}

	if err := env.Vault.Wipe(ctx); err != nil {
		env.Fail(err)
	}
	fmt.Printf("Vault wiped for %s\n", env.Config.Identity)
}
