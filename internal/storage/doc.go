// Package storage provides the BBolt database interface for dekvault.
//
// Database structure uses two buckets:
//   - config: format version, creation time, device id, persistence mode
//   - keys: wrapped key bundles, one per user+device key id
//
// Only wrapped key material is ever written here. The plaintext DEK lives
// in the session cache and never reaches this package.
//
// BBolt provides ACID transactions, file locking, and corruption detection;
// every Put is a single transaction, so a bundle is either fully written or
// not at all.
package storage
