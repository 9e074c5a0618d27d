package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/illarion/dekvault/internal/core"
	"github.com/illarion/dekvault/internal/crypto"
)

// Setup creates the vault for the configured identity and prints the
// recovery phrase
func Setup(ctx context.Context, g Globals, noPassphrase bool) {
	env := Open(ctx, g)
	defer env.Close()

	switch env.Initialize(ctx) {
	case core.StateNeedsPhrase, core.StateUnlocked:
		env.Fail(core.ErrAlreadySetUp)
	}

	var secret []byte
	if !noPassphrase {
		var err error
		secret, err = GetNewSecret("Enter passphrase: ")
		if err != nil {
			env.Fail(err)
		}
		defer crypto.ClearBytes(secret)
	}

	phrase, err := env.Vault.Setup(ctx, secret)
	if err != nil {
		env.Fail(err)
	}

	fmt.Printf("Vault created for %s\n", env.Config.Identity)
	fmt.Println()
	fmt.Println("Recovery phrase (write it down, it is shown only once):")
	fmt.Println()
	for i, word := range strings.Fields(phrase) {
		fmt.Printf("  %2d. %s\n", i+1, word)
	}
	fmt.Println()
	fmt.Println("The recovery phrase is the only way to restore your key on a new device.")
	if secret == nil {
		fmt.Println("No passphrase set: unlock with the recovery phrase.")
	}
}
