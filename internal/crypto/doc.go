// Package crypto provides the key-wrapping primitives for dekvault.
//
// A data encryption key (DEK) is 32 random bytes. It is never stored in
// plaintext; it is wrapped under a key derived from a secret (a passphrase or
// a recovery phrase) and the resulting WrappedDEK carries everything needed
// to reverse the derivation:
//   - version, KDF algorithm, salt and cost parameters
//   - AEAD algorithm and nonce
//   - ciphertext and authentication tag
//
// Key derivation:
//   - argon2id (default): time 3, 64 MiB, 4 threads
//   - pbkdf2-sha256: 210,000 iterations (OWASP minimum recommendation)
//
// Encryption:
//   - aes-256-gcm (default) or xchacha20-poly1305
//   - the WrappedDEK header is bound as associated data
//
// Recovery phrases are 12-word BIP39 mnemonics (128 bits of entropy plus a
// checksum), so a mistyped phrase is rejected before any key derivation.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
