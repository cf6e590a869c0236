package nearfield

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrBusy is returned when a channel is already publishing.
var ErrBusy = errors.New("near-field channel busy")

// Publisher exposes a payload to nearby readers. Publish takes exclusive
// ownership of the channel until Release, which never fails when nothing
// was acquired.
type Publisher interface {
	Publish(ctx context.Context, payload string) error
	Release(ctx context.Context) error
}

// Reader reads one payload from a nearby tag or device.
type Reader interface {
	Read(ctx context.Context) (string, error)
}

// Channel is a near-field transport that can both publish and read.
type Channel interface {
	Publisher
	Reader
}

// ReadRequest reads a payload from r and parses it as a pay request.
func ReadRequest(ctx context.Context, r Reader, defaultMint solana.PublicKey) (PayRequest, error) {
	payload, err := r.Read(ctx)
	if err != nil {
		return PayRequest{}, err
	}
	return ParsePayURL(payload, defaultMint)
}
