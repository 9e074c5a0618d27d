package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/storage"
)

// Unlock verifies the secret against the stored key and prints its
// fingerprint. On a device in device mode it also stores the key locally.
func Unlock(ctx context.Context, g Globals) {
	env := Open(ctx, g)
	defer env.Close()

	secret := env.UnlockOrExit(ctx)
	crypto.ClearBytes(secret)

	printFingerprint(env)

	status, err := env.Vault.Status(ctx)
	if err != nil {
		env.Fail(err)
	}
	if status.Mode == storage.ModeDevice && status.StoredLocally {
		fmt.Println("Key stored on this device")
	}
	printWarnings(status.Warnings)
}

func printFingerprint(env *Env) {
	err := env.Vault.WithDEK(func(dek []byte) error {
		fmt.Printf("Unlocked (key fingerprint %s)\n", crypto.Fingerprint(dek))
		return nil
	})
	if err != nil {
		env.Fail(err)
	}
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
}
