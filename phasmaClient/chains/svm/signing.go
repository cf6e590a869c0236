package svm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PartialSign adds the signatures of keys to tx, leaving other signature
// slots untouched. Every key must be a required signer of the message.
func PartialSign(tx *solana.Transaction, keys ...solana.PrivateKey) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	for _, key := range keys {
		pub := key.PublicKey()
		index := signerIndex(tx, pub, required)
		if index < 0 {
			return fmt.Errorf("%s is not a required signer", pub)
		}
		sig, err := key.Sign(message)
		if err != nil {
			return fmt.Errorf("failed to sign with %s: %w", pub, err)
		}
		tx.Signatures[index] = sig
	}
	return nil
}

// IsFullySigned reports whether every required signature slot is filled.
func IsFullySigned(tx *solana.Transaction) bool {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		return false
	}
	for i := 0; i < required; i++ {
		if tx.Signatures[i] == (solana.Signature{}) {
			return false
		}
	}
	return true
}

// SerializeUnsigned encodes tx with empty signature slots, the wire form
// wallets expect when they add their own signature.
func SerializeUnsigned(tx *solana.Transaction) ([]byte, error) {
	clone := *tx
	required := int(tx.Message.Header.NumRequiredSignatures)
	clone.Signatures = make([]solana.Signature, required)
	copy(clone.Signatures, tx.Signatures)
	return clone.MarshalBinary()
}

func signerIndex(tx *solana.Transaction, pub solana.PublicKey, required int) int {
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			return i
		}
	}
	return -1
}
