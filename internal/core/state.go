package core

import (
	"time"

	"github.com/illarion/dekvault/internal/storage"
)

// State is the vault lifecycle state
type State int

const (
	StateLoading State = iota
	StateNeedsSetup
	StateNeedsPhrase
	StateUnlocked
	StateError
)

var stateNames = [...]string{
	StateLoading:     "loading",
	StateNeedsSetup:  "needs-setup",
	StateNeedsPhrase: "needs-phrase",
	StateUnlocked:    "unlocked",
	StateError:       "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// States lists every state, in declaration order
func States() []State {
	return []State{StateLoading, StateNeedsSetup, StateNeedsPhrase, StateUnlocked, StateError}
}

// Where a held bundle was loaded from
const (
	SourceNone   = ""
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Status contains status information (no secret required)
type Status struct {
	State    State
	Identity string
	DeviceID string
	Mode     storage.PersistenceMode

	// Held bundle, if any
	Source        string
	HasPassphrase bool
	KDF           string
	Cipher        string
	Created       time.Time
	Modified      time.Time

	// Local copy for this identity and device
	StoredLocally bool

	// Fingerprint of the unlocked key, empty unless unlocked
	Fingerprint string

	// Err is the failure that put the vault in StateError
	Err error

	// Warnings lists degraded but non-fatal conditions, such as local
	// storage failures
	Warnings []string
}
