// Package keystore owns the durable collection of ephemeral ghost payments.
package keystore

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle position of an ephemeral payment record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReceived Status = "received"
	StatusClaiming Status = "claiming"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// Claimable reports whether a record in this status may be swept.
func (s Status) Claimable() bool {
	return s == StatusReceived || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReceived, StatusClaiming, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Keypair is a freshly generated one-time identity.
type Keypair struct {
	SecretKey solana.PrivateKey
	PublicKey solana.PublicKey
}

// EphemeralPayment is one ghost receive session.
type EphemeralPayment struct {
	ID             string
	SecretKey      solana.PrivateKey
	PublicAddress  solana.PublicKey
	ExpectedAmount decimal.Decimal
	// ReceivedAmount is set once funds are observed, in smallest units.
	ReceivedAmount *uint64
	CreatedAt      time.Time
	Status         Status
}

// NewPayment builds a pending record for kp.
func NewPayment(kp Keypair, expected decimal.Decimal, now time.Time) EphemeralPayment {
	return EphemeralPayment{
		ID:             NewSessionID(now),
		SecretKey:      kp.SecretKey,
		PublicAddress:  kp.PublicKey,
		ExpectedAmount: expected,
		CreatedAt:      now,
		Status:         StatusPending,
	}
}

// NewSessionID returns "ghost-<unix millis>-<4 random chars>".
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("ghost-%d-%s", now.UnixMilli(), suffix)
}

// Patch holds the mutable fields of a record. Nil fields are left untouched.
type Patch struct {
	Status         *Status
	ReceivedAmount *uint64
}

// WithStatus returns a patch that only changes the status.
func WithStatus(s Status) Patch {
	return Patch{Status: &s}
}

// Received returns a patch marking funds of raw units as observed.
func Received(raw uint64) Patch {
	s := StatusReceived
	return Patch{Status: &s, ReceivedAmount: &raw}
}

func (p EphemeralPayment) apply(patch Patch) EphemeralPayment {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.ReceivedAmount != nil {
		raw := *patch.ReceivedAmount
		p.ReceivedAmount = &raw
	}
	return p
}
