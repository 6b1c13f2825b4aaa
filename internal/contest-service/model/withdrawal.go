package model

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalDenied     WithdrawalStatus = "DENIED"
)

// WithdrawalRequest é um pedido de saque; no máximo um PENDING por usuário
type WithdrawalRequest struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	RequestedCents int64            `json:"requested_cents"`
	ApprovedCents  int64            `json:"approved_cents"`
	Status         WithdrawalStatus `json:"status"`
	Destination    string           `json:"destination"`
	TransferRef    string           `json:"transferRef,omitempty"`
	LastError      string           `json:"lastError,omitempty"`
	Attempts       int              `json:"attempts"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
