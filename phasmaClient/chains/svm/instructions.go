package svm

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// ComputeBudgetProgramID is the Solana compute budget program.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeBudgetSetUnitLimit = 2
	computeBudgetSetUnitPrice = 3

	ataCreateIdempotent = 1
)

// SetComputeUnitLimitInstruction creates a SetComputeUnitLimit instruction.
// Instruction format: [1-byte instruction type (2)] + [4-byte u32 units]
func SetComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = computeBudgetSetUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)

	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// SetComputeUnitPriceInstruction creates a SetComputeUnitPrice instruction.
// Instruction format: [1-byte instruction type (3)] + [8-byte u64 micro-lamports]
func SetComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeBudgetSetUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)

	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// HoldingAccount derives the associated token account of owner for mint.
func HoldingAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive holding account: %w", err)
	}
	return ata, nil
}

// CreateHoldingAccountIdempotentInstruction creates the associated token
// account of owner for mint, succeeding when it already exists.
func CreateHoldingAccountIdempotentInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, err := HoldingAccount(owner, mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(mint),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.TokenProgramID),
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, []byte{ataCreateIdempotent}), ata, nil
}

// TransferCheckedInstruction moves amount smallest units between holding
// accounts. The token program rejects it when decimals does not match the mint.
func TransferCheckedInstruction(amount uint64, decimals uint8, source, mint, destination, owner solana.PublicKey) (solana.Instruction, error) {
	inst, err := token.NewTransferCheckedInstruction(amount, decimals, source, mint, destination, owner, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer: %w", err)
	}
	return inst, nil
}

// CloseAccountInstruction closes a zero-balance holding account, sending its
// rent deposit to destination.
func CloseAccountInstruction(account, destination, owner solana.PublicKey) (solana.Instruction, error) {
	inst, err := token.NewCloseAccountInstruction(account, destination, owner, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build close account: %w", err)
	}
	return inst, nil
}
