package crypto

import (
	"encoding/json"
	"fmt"
)

// WrapVersion is the current WrappedDEK format version
const WrapVersion = 1

// KDFInfo describes how the wrapping key was derived
type KDFInfo struct {
	Algorithm   string `json:"algorithm"`
	Salt        []byte `json:"salt"`
	Iterations  uint32 `json:"iterations"`
	Memory      uint32 `json:"memory,omitempty"`
	Parallelism uint8  `json:"parallelism,omitempty"`
}

// CipherInfo describes the AEAD used to seal the DEK
type CipherInfo struct {
	Algorithm string `json:"algorithm"`
	Nonce     []byte `json:"nonce"`
}

// WrappedDEK is a DEK sealed under a secret-derived key. It is
// self-describing: unwrapping needs only the record and the secret.
type WrappedDEK struct {
	Version    int        `json:"version"`
	KDF        KDFInfo    `json:"kdf"`
	Cipher     CipherInfo `json:"cipher"`
	Ciphertext []byte     `json:"ciphertext"`
	AuthTag    []byte     `json:"authTag"`
}

// WrapOptions selects the algorithms used by WrapDEK
type WrapOptions struct {
	KDF    KDFParams
	Cipher string
}

// DefaultWrapOptions returns argon2id + AES-256-GCM
func DefaultWrapOptions() WrapOptions {
	return WrapOptions{
		KDF:    DefaultKDFParams(),
		Cipher: CipherAESGCM,
	}
}

func (w *WrappedDEK) params() KDFParams {
	return KDFParams{
		Algorithm:   w.KDF.Algorithm,
		Iterations:  w.KDF.Iterations,
		Memory:      w.KDF.Memory,
		Parallelism: w.KDF.Parallelism,
	}
}

// associatedData binds the header to the ciphertext so that a changed
// algorithm or cost parameter fails authentication.
func (w *WrappedDEK) associatedData() []byte {
	return []byte(fmt.Sprintf("dekvault/v%d|%s|%d|%d|%d|%s",
		w.Version, w.KDF.Algorithm, w.KDF.Iterations, w.KDF.Memory, w.KDF.Parallelism, w.Cipher.Algorithm))
}

// Clone returns a deep copy
func (w *WrappedDEK) Clone() *WrappedDEK {
	if w == nil {
		return nil
	}
	c := *w
	c.KDF.Salt = append([]byte(nil), w.KDF.Salt...)
	c.Cipher.Nonce = append([]byte(nil), w.Cipher.Nonce...)
	c.Ciphertext = append([]byte(nil), w.Ciphertext...)
	c.AuthTag = append([]byte(nil), w.AuthTag...)
	return &c
}

// WrapDEK seals dek under a key derived from secret. Every call draws a
// fresh salt and nonce.
func WrapDEK(dek, secret []byte, opts WrapOptions) (*WrappedDEK, error) {
	if len(dek) != DEKSize {
		return nil, fmt.Errorf("invalid DEK length %d", len(dek))
	}
	if _, err := NonceSize(opts.Cipher); err != nil {
		return nil, err
	}

	kdf, err := NewKDF(opts.KDF)
	if err != nil {
		return nil, fmt.Errorf("failed to create KDF: %w", err)
	}

	key, err := kdf.DeriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	enc := NewEncryptor(opts.Cipher, key)
	defer enc.Destroy()

	w := &WrappedDEK{
		Version: WrapVersion,
		KDF: KDFInfo{
			Algorithm:   kdf.Algorithm,
			Salt:        kdf.Salt,
			Iterations:  kdf.Iterations,
			Memory:      kdf.Memory,
			Parallelism: kdf.Parallelism,
		},
		Cipher: CipherInfo{Algorithm: opts.Cipher},
	}
	if kdf.Algorithm == KDFPBKDF2 {
		w.KDF.Memory = 0
		w.KDF.Parallelism = 0
	}

	nonce, ciphertext, tag, err := enc.Seal(dek, w.associatedData())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt DEK: %w", err)
	}
	w.Cipher.Nonce = nonce
	w.Ciphertext = ciphertext
	w.AuthTag = tag

	return w, nil
}

// UnwrapDEK re-derives the wrapping key from secret and opens the record.
// A wrong secret and a tampered record both yield ErrAuthFailed.
func UnwrapDEK(w *WrappedDEK, secret []byte) ([]byte, error) {
	if w == nil {
		return nil, ErrInvalidCiphertext
	}
	if w.Version != WrapVersion {
		return nil, fmt.Errorf("%w: wrap version %d", ErrUnsupported, w.Version)
	}
	nonceSize, err := NonceSize(w.Cipher.Algorithm)
	if err != nil {
		return nil, err
	}
	if len(w.Cipher.Nonce) != nonceSize || len(w.AuthTag) != TagSize || len(w.Ciphertext) != DEKSize {
		return nil, ErrInvalidCiphertext
	}

	kdf := &KDF{KDFParams: w.params(), Salt: w.KDF.Salt}
	key, err := kdf.DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	enc := NewEncryptor(w.Cipher.Algorithm, key)
	defer enc.Destroy()

	return enc.Open(w.Cipher.Nonce, w.Ciphertext, w.AuthTag, w.associatedData())
}

// Marshal encodes the record as JSON
func (w *WrappedDEK) Marshal() ([]byte, error) {
	return json.Marshal(w)
}
