package keystore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// record is the persisted JSON form of an EphemeralPayment.
type record struct {
	ID             string          `json:"id"`
	SecretKey      string          `json:"secretKey"`
	PublicKey      string          `json:"publicKey"`
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`
	ReceivedAmount *uint64         `json:"receivedAmount,omitempty"`
	CreatedAt      int64           `json:"createdAt"`
	Status         Status          `json:"status"`
}

func toRecord(p EphemeralPayment) record {
	return record{
		ID:             p.ID,
		SecretKey:      base58.Encode(p.SecretKey),
		PublicKey:      p.PublicAddress.String(),
		ExpectedAmount: p.ExpectedAmount,
		ReceivedAmount: p.ReceivedAmount,
		CreatedAt:      p.CreatedAt.UnixMilli(),
		Status:         p.Status,
	}
}

func fromRecord(r record) (EphemeralPayment, error) {
	secret, err := base58.Decode(r.SecretKey)
	if err != nil {
		return EphemeralPayment{}, fmt.Errorf("record %s: invalid secret key encoding: %w", r.ID, err)
	}
	if len(secret) != 64 {
		return EphemeralPayment{}, fmt.Errorf("record %s: secret key has %d bytes", r.ID, len(secret))
	}
	address, err := solana.PublicKeyFromBase58(r.PublicKey)
	if err != nil {
		return EphemeralPayment{}, fmt.Errorf("record %s: invalid address: %w", r.ID, err)
	}
	if !r.Status.Valid() {
		return EphemeralPayment{}, fmt.Errorf("record %s: unknown status %q", r.ID, r.Status)
	}
	return EphemeralPayment{
		ID:             r.ID,
		SecretKey:      solana.PrivateKey(secret),
		PublicAddress:  address,
		ExpectedAmount: r.ExpectedAmount,
		ReceivedAmount: r.ReceivedAmount,
		CreatedAt:      time.UnixMilli(r.CreatedAt),
		Status:         r.Status,
	}, nil
}

func encodeCollection(payments []EphemeralPayment) (string, error) {
	records := make([]record, len(payments))
	for i, p := range payments {
		records[i] = toRecord(p)
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeCollection(raw string) ([]EphemeralPayment, error) {
	var records []record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	payments := make([]EphemeralPayment, 0, len(records))
	for _, r := range records {
		p, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// decodeLegacySecret parses the single-slot format: a JSON array of the 64 secret key bytes.
func decodeLegacySecret(raw string) (solana.PrivateKey, error) {
	var ints []int
	if err := json.Unmarshal([]byte(raw), &ints); err != nil {
		return nil, err
	}
	if len(ints) != 64 {
		return nil, fmt.Errorf("legacy secret key has %d bytes", len(ints))
	}
	secret := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("legacy secret key byte %d out of range", i)
		}
		secret[i] = byte(v)
	}
	return solana.PrivateKey(secret), nil
}
