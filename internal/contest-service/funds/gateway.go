package funds

import (
	"context"
	"errors"
	"fmt"
)

type TransferKind string

const (
	KindWithdrawal TransferKind = "WITHDRAWAL"
	KindDeposit    TransferKind = "DEPOSIT"
)

// Gateway é o colaborador externo que move dinheiro de verdade
type Gateway interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Transfer(ctx context.Context, accountRef string, kind TransferKind, amountCents int64, sourceRef string) (string, error)
}

// TransferError é a falha de upstream; Retryable indica se vale tentar de novo
type TransferError struct {
	Retryable bool
	Err       error
}

func (e *TransferError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("upstream transfer (retryable): %v", e.Err)
	}
	return fmt.Sprintf("upstream transfer (terminal): %v", e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func Retryable(err error) error { return &TransferError{Retryable: true, Err: err} }

func Terminal(err error) error { return &TransferError{Retryable: false, Err: err} }

// IsRetryable trata erros desconhecidos como retentáveis
func IsRetryable(err error) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return err != nil
}
