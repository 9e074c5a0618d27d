package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/dekvault/internal/crypto"
)

// Passwd changes the vault passphrase. With remove set the passphrase is
// dropped and only the recovery phrase unlocks.
func Passwd(ctx context.Context, g Globals, remove bool) {
	env := Open(ctx, g)
	defer env.Close()

	current := env.UnlockOrExit(ctx)
	defer crypto.ClearBytes(current)

	var next []byte
	if !remove {
		var err error
		next, err = GetNewSecret("Enter new passphrase: ")
		if err != nil {
			env.Fail(err)
		}
		defer crypto.ClearBytes(next)
		if len(next) == 0 {
			env.Fail(fmt.Errorf("empty passphrase, use --remove to drop it"))
		}
	}

	if err := env.Vault.ChangePassphrase(ctx, current, next); err != nil {
		env.Fail(err)
	}

	if remove {
		fmt.Println("Passphrase removed. Unlock with the recovery phrase.")
		return
	}
	fmt.Println("Passphrase changed successfully")
}
