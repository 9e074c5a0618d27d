package core

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// memguard starts its rekey goroutine on the first enclave, not at init
	goleak.VerifyTestMain(m,
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("github.com/awnumar/memguard/core.NewCoffer.func1"),
	)
}
