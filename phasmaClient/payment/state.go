package payment

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/router"
)

// State is the pipeline state. The concrete types below are the only
// implementations.
type State interface {
	Name() string
	isState()
}

type Idle struct{}

type Reading struct{}

type Optimizing struct{}

// AwaitingApproval holds the prebuilt plan until the user approves it.
type AwaitingApproval struct {
	Plan *router.Plan
}

type Signing struct {
	Plan *router.Plan
}

type Success struct {
	Signature solana.Signature
	Plan      *router.Plan
	Cashback  decimal.Decimal
	SavedGas  decimal.Decimal
}

type Failed struct {
	Err error
}

func (Idle) Name() string             { return "idle" }
func (Reading) Name() string          { return "reading" }
func (Optimizing) Name() string       { return "optimizing" }
func (AwaitingApproval) Name() string { return "awaiting_approval" }
func (Signing) Name() string          { return "signing" }
func (Success) Name() string          { return "success" }
func (Failed) Name() string           { return "failed" }

func (Idle) isState()             {}
func (Reading) isState()          {}
func (Optimizing) isState()       {}
func (AwaitingApproval) isState() {}
func (Signing) isState()          {}
func (Success) isState()          {}
func (Failed) isState()           {}
