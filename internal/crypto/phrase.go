package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	PhraseEntropyBits = 128 // 12 words
	PhraseWords       = 12
)

var ErrInvalidPhrase = errors.New("invalid recovery phrase")

// GenerateRecoveryPhrase returns a fresh 12-word BIP39 mnemonic
func GenerateRecoveryPhrase() (string, error) {
	entropy, err := bip39.NewEntropy(PhraseEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer ClearBytes(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to encode recovery phrase: %w", err)
	}
	return phrase, nil
}

// NormalizeRecoveryPhrase lower-cases the phrase and collapses whitespace,
// so that the same words always derive the same key.
func NormalizeRecoveryPhrase(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// ValidateRecoveryPhrase checks word count, wordlist membership and checksum
func ValidateRecoveryPhrase(phrase string) error {
	normalized := NormalizeRecoveryPhrase(phrase)
	if n := len(strings.Fields(normalized)); n != PhraseWords {
		return fmt.Errorf("%w: expected %d words, got %d", ErrInvalidPhrase, PhraseWords, n)
	}

	entropy, err := bip39.EntropyFromMnemonic(normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
	}
	ClearBytes(entropy)
	return nil
}

// IsRecoveryPhrase reports whether secret is a well-formed recovery phrase
func IsRecoveryPhrase(secret []byte) bool {
	return ValidateRecoveryPhrase(string(secret)) == nil
}

// PhraseSecret returns the bytes a recovery phrase wraps under
func PhraseSecret(phrase string) []byte {
	return []byte(NormalizeRecoveryPhrase(phrase))
}
