package ghost

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// State is the receive session state. The concrete types below are the only
// implementations.
type State interface {
	Name() string
	isState()
}

type Idle struct{}

type Generating struct {
	Amount decimal.Decimal
}

type Writing struct {
	SessionID string
	Address   solana.PublicKey
	Amount    decimal.Decimal
}

type Polling struct {
	SessionID string
	Address   solana.PublicKey
	Amount    decimal.Decimal
	Since     time.Time
}

// Received means the expected funds landed on the ephemeral address.
type Received struct {
	SessionID string
	Address   solana.PublicKey
	Amount    decimal.Decimal
	Raw       uint64
}

type Claiming struct {
	SessionID string
}

// Done carries the signature of the sweep and the amount moved.
type Done struct {
	SessionID string
	Signature solana.Signature
	Amount    decimal.Decimal
}

// Failed carries the reason. SessionID is empty when no record was created.
type Failed struct {
	SessionID string
	Err       error
}

func (Idle) Name() string       { return "idle" }
func (Generating) Name() string { return "generating" }
func (Writing) Name() string    { return "writing" }
func (Polling) Name() string    { return "polling" }
func (Received) Name() string   { return "received" }
func (Claiming) Name() string   { return "claiming" }
func (Done) Name() string       { return "done" }
func (Failed) Name() string     { return "failed" }

func (Idle) isState()       {}
func (Generating) isState() {}
func (Writing) isState()    {}
func (Polling) isState()    {}
func (Received) isState()   {}
func (Claiming) isState()   {}
func (Done) isState()       {}
func (Failed) isState()     {}

// Snapshot is a serializable view of a State.
type Snapshot struct {
	State     string `json:"state" yaml:"state"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Address   string `json:"address,omitempty" yaml:"address,omitempty"`
	Amount    string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SnapshotOf flattens s.
func SnapshotOf(s State) Snapshot {
	out := Snapshot{State: s.Name()}
	switch st := s.(type) {
	case Generating:
		out.Amount = st.Amount.String()
	case Writing:
		out.SessionID, out.Address, out.Amount = st.SessionID, st.Address.String(), st.Amount.String()
	case Polling:
		out.SessionID, out.Address, out.Amount = st.SessionID, st.Address.String(), st.Amount.String()
	case Received:
		out.SessionID, out.Address, out.Amount = st.SessionID, st.Address.String(), st.Amount.String()
	case Claiming:
		out.SessionID = st.SessionID
	case Done:
		out.SessionID, out.Signature, out.Amount = st.SessionID, st.Signature.String(), st.Amount.String()
	case Failed:
		out.SessionID = st.SessionID
		if st.Err != nil {
			out.Error = st.Err.Error()
		}
	}
	return out
}
