// Package core provides the dekvault state machine.
//
// A Vault owns one user's data encryption key (DEK) on one device and moves
// through these states:
//   - Loading: Initialize is looking for a wrapped key locally, then remotely
//   - NeedsSetup: no wrapped key exists anywhere; Setup creates one
//   - NeedsPhrase: a wrapped key is held; Unlock or Recover opens it
//   - Unlocked: the DEK is in protected session memory
//   - Error: storage failed irrecoverably; Retry leaves it
//
// The DEK is always wrapped under the recovery phrase, and optionally under
// a passphrase as well. The remote store always receives the wrapped key;
// the local store only in device persistence mode. Mutating operations are
// serialized per Vault.
package core
