package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/crypto"
	"github.com/illarion/dekvault/internal/storage"
)

// Mode prints or changes the persistence mode. Switching to device mode on
// a set-up vault unlocks it so the key can be stored right away.
func Mode(ctx context.Context, g Globals, arg string) {
	env := Open(ctx, g)
	defer env.Close()

	if arg == "" {
		mode, err := env.Vault.PersistenceMode(ctx)
		if err != nil {
			env.Fail(err)
		}
		fmt.Println(mode)
		return
	}

	mode, err := storage.ParseMode(arg)
	if err != nil {
		env.Fail(err)
	}
	if current, err := env.Vault.PersistenceMode(ctx); err == nil && current == mode {
		fmt.Printf("Persistence mode: %s (unchanged)\n", mode)
		return
	}

	var secret []byte
	if mode == storage.ModeDevice {
		if env.Initialize(ctx) == core.StateNeedsPhrase {
			secret = env.UnlockOrExit(ctx)
			defer crypto.ClearBytes(secret)
		}
	} else {
		env.Initialize(ctx)
	}

	if err := env.Vault.SetPersistenceMode(ctx, mode, secret); err != nil {
		env.Fail(err)
	}

	switch mode {
	case storage.ModeSession:
		fmt.Println("Persistence mode: session (key removed from this device)")
	case storage.ModeDevice:
		fmt.Println("Persistence mode: device (key kept on this device)")
	}
}
