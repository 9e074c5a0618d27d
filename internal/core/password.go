package core

import (
	"fmt"
	"os"
	"syscall"

	"github.com/illarion/dekvault/internal/crypto"
	"golang.org/x/term"
)

// SecretEnv names the environment variable read by SecretFromEnv
const SecretEnv = "DEKVAULT_SECRET"

// ReadSecret reads a secret from the terminal without echoing
func ReadSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)

	// Read secret without echo
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // New line after secret

	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	return secret, nil
}

// ReadSecretConfirm reads a secret twice and ensures they match
func ReadSecretConfirm(prompt string) ([]byte, error) {
	secret1, err := ReadSecret(prompt)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(secret1)

	secret2, err := ReadSecret("Confirm: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(secret2)

	if !crypto.ConstantTimeCompare(secret1, secret2) {
		return nil, fmt.Errorf("secrets do not match")
	}

	// Return a copy of the secret
	result := make([]byte, len(secret1))
	copy(result, secret1)
	return result, nil
}

// SecretFromEnv reads the secret from DEKVAULT_SECRET
func SecretFromEnv() []byte {
	secret := os.Getenv(SecretEnv)
	if secret == "" {
		return nil
	}
	// Return a copy to avoid issues when clearing the bytes
	result := make([]byte, len(secret))
	copy(result, []byte(secret))
	return result
}

// IsTerminal reports whether stdin is an interactive terminal
func IsTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}
