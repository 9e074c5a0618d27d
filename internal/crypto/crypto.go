package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 32     // Salt size in bytes
	KeySize      = 32     // Wrapping key size (AES-256 / XChaCha20)
	DEKSize      = 32     // Data encryption key size
	TagSize      = 16     // AEAD authentication tag size
	DefaultIters = 210000 // Default PBKDF2 iterations (OWASP minimum)

	// Argon2id defaults, ~1s on modest hardware
	DefaultArgonTime    = 3
	DefaultArgonMemory  = 64 * 1024 // KiB
	DefaultArgonThreads = 4
)

// Algorithm identifiers as written into WrappedDEK records
const (
	KDFPBKDF2   = "pbkdf2-sha256"
	KDFArgon2id = "argon2id"

	CipherAESGCM  = "aes-256-gcm"
	CipherXChaCha = "xchacha20-poly1305"
)

// Upper bounds on derivation cost accepted from a stored record.
const (
	minPBKDF2Iters  = 1000
	maxPBKDF2Iters  = 2_000_000
	maxArgonTime    = 8
	maxArgonMemory  = 256 * 1024 // KiB
	maxArgonThreads = 16
	minSaltSize     = 16
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrUnsupported       = errors.New("unsupported algorithm")
	ErrInvalidParams     = errors.New("invalid key derivation parameters")
)

// KDFParams selects a key derivation function and its cost.
// For pbkdf2-sha256 only Iterations is used; for argon2id Iterations is the
// time parameter.
type KDFParams struct {
	Algorithm   string
	Iterations  uint32
	Memory      uint32 // KiB, argon2id only
	Parallelism uint8  // argon2id only
}

// DefaultKDFParams returns argon2id with the default cost.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm:   KDFArgon2id,
		Iterations:  DefaultArgonTime,
		Memory:      DefaultArgonMemory,
		Parallelism: DefaultArgonThreads,
	}
}

// PBKDF2Params returns pbkdf2-sha256 with the given iteration count.
func PBKDF2Params(iterations uint32) KDFParams {
	return KDFParams{Algorithm: KDFPBKDF2, Iterations: iterations}
}

// Validate checks the parameters against the accepted bounds.
func (p KDFParams) Validate() error {
	switch p.Algorithm {
	case KDFPBKDF2:
		if p.Iterations < minPBKDF2Iters || p.Iterations > maxPBKDF2Iters {
			return fmt.Errorf("%w: pbkdf2 iterations %d out of range", ErrInvalidParams, p.Iterations)
		}
	case KDFArgon2id:
		if p.Iterations < 1 || p.Iterations > maxArgonTime {
			return fmt.Errorf("%w: argon2id time %d out of range", ErrInvalidParams, p.Iterations)
		}
		if p.Parallelism < 1 || p.Parallelism > maxArgonThreads {
			return fmt.Errorf("%w: argon2id parallelism %d out of range", ErrInvalidParams, p.Parallelism)
		}
		if p.Memory < 8*uint32(p.Parallelism) || p.Memory > maxArgonMemory {
			return fmt.Errorf("%w: argon2id memory %d KiB out of range", ErrInvalidParams, p.Memory)
		}
	default:
		return fmt.Errorf("%w: kdf %q", ErrUnsupported, p.Algorithm)
	}
	return nil
}

// KDF handles key derivation from passwords
type KDF struct {
	KDFParams
	Salt []byte
}

// NewKDF creates a new KDF with a random salt
func NewKDF(params KDFParams) (*KDF, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		KDFParams: params,
		Salt:      salt,
	}, nil
}

// DeriveKey derives a wrapping key from a password
func (k *KDF) DeriveKey(password []byte) ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if len(k.Salt) < minSaltSize {
		return nil, fmt.Errorf("%w: salt too short", ErrInvalidParams)
	}

	switch k.Algorithm {
	case KDFArgon2id:
		return argon2.IDKey(password, k.Salt, k.Iterations, k.Memory, k.Parallelism, KeySize), nil
	default:
		return pbkdf2.Key(password, k.Salt, int(k.Iterations), KeySize, sha256.New), nil
	}
}

// Encryptor provides authenticated encryption
type Encryptor struct {
	key       []byte
	algorithm string
}

// NewEncryptor creates a new encryptor with the given key
func NewEncryptor(algorithm string, key []byte) *Encryptor {
	return &Encryptor{
		key:       key,
		algorithm: algorithm,
	}
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	switch e.algorithm {
	case CipherAESGCM:
		block, err := aes.NewCipher(e.key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil
	case CipherXChaCha:
		aead, err := chacha20poly1305.NewX(e.key)
		if err != nil {
			return nil, fmt.Errorf("failed to create XChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: cipher %q", ErrUnsupported, e.algorithm)
	}
}

// NonceSize returns the nonce length of the configured algorithm.
func NonceSize(algorithm string) (int, error) {
	switch algorithm {
	case CipherAESGCM:
		return 12, nil
	case CipherXChaCha:
		return chacha20poly1305.NonceSizeX, nil
	default:
		return 0, fmt.Errorf("%w: cipher %q", ErrUnsupported, algorithm)
	}
}

// Seal encrypts and authenticates plaintext under a fresh random nonce.
// The tag is returned separately from the ciphertext.
func (e *Encryptor) Seal(plaintext, aad []byte) (nonce, ciphertext, tag []byte, err error) {
	aead, err := e.aead()
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - aead.Overhead()
	return nonce, sealed[:split:split], sealed[split:], nil
}

// Open verifies the tag and decrypts
func (e *Encryptor) Open(nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	aead, err := e.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// GenerateDEK returns a fresh data encryption key
func GenerateDEK() ([]byte, error) {
	return GenerateRandom(DEKSize)
}

// Fingerprint returns a short, non-reversible identifier for a key.
// Safe to display; never use it as key material.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
