package core

import "errors"

var (
	ErrAuthenticationFailure = errors.New("wrong secret or tampered key")
	ErrNotSetup              = errors.New("vault not set up")
	ErrNotUnlocked           = errors.New("vault is locked")
	ErrAlreadySetUp          = errors.New("vault already set up")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrOperationInProgress   = errors.New("another vault operation is in progress")
	ErrInvalidState          = errors.New("operation not valid in current state")
	ErrSecretRequired        = errors.New("secret required")
	ErrNoIdentity            = errors.New("no identity")
)
