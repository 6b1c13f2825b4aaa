package dto

import "github.com/shopspring/decimal"

type CreateContestRequest struct {
	CreatorID  string `json:"creatorId"`
	SubjectA   string `json:"subjectA"`
	SubjectB   string `json:"subjectB,omitempty"`
	Direction  string `json:"direction,omitempty"` // OVER | UNDER (default OVER)
	StakeCents int64  `json:"stake_cents"`
}

// UserRequest é usado por claim e close
type UserRequest struct {
	UserID string `json:"userId"`
}

type StatisticFinalRequest struct {
	SubjectID string          `json:"subjectId"`
	Value     decimal.Decimal `json:"value"`
}

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"`
}

type WithdrawalRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	Destination string `json:"destination,omitempty"`
}

type DenyRequest struct {
	Reason string `json:"reason"`
}
