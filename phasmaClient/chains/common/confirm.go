package common

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
)

// statusCheckTimeout bounds the fallback status query, which runs even when
// the caller's context expired during confirmation.
const statusCheckTimeout = 10 * time.Second

// ConfirmWithFallback confirms a submitted signature. When the confirmation
// call itself fails, the signature status is queried before anything is
// declared failed: a status carrying a confirmation level counts as success.
func ConfirmWithFallback(ctx context.Context, gw Gateway, sig solana.Signature, fee FeeContext, session string, logger zerolog.Logger) error {
	confirmErr := gw.ConfirmTransaction(ctx, sig, fee)
	if confirmErr == nil {
		return nil
	}
	if errors.Is(confirmErr, ErrTransactionFailed) {
		return perrors.NewTransactionError(session, "transaction failed on chain", confirmErr).
			WithContext("signature", sig.String())
	}

	logger.Warn().
		Err(confirmErr).
		Str("signature", sig.String()).
		Msg("confirmation inconclusive, checking signature status")

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusCheckTimeout)
	defer cancel()

	status, err := gw.GetSignatureStatus(statusCtx, sig)
	if err != nil {
		return perrors.NewConfirmationAmbiguousError(session, sig.String(), errors.Join(confirmErr, err))
	}
	if status == nil || status.ConfirmationStatus == "" {
		if errors.Is(confirmErr, ErrBlockhashExpired) {
			return perrors.NewTransactionError(session, "transaction expired before landing", confirmErr).
				WithContext("signature", sig.String())
		}
		return perrors.NewConfirmationAmbiguousError(session, sig.String(), confirmErr)
	}
	if status.Err != nil {
		return perrors.NewTransactionError(session, "transaction failed on chain", ErrTransactionFailed).
			WithContext("signature", sig.String()).
			WithContext("ledger_error", status.Err)
	}

	logger.Info().
		Str("signature", sig.String()).
		Str("status", status.ConfirmationStatus).
		Msg("signature status confirms landing")
	return nil
}
