package dto

import (
	"time"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

type ContestResponse struct {
	ID             string         `json:"id"`
	CreatorID      string         `json:"creatorId"`
	ClaimerID      string         `json:"claimerId,omitempty"`
	StakeCents     int64          `json:"stake_cents"`
	Status         string         `json:"status"`
	Ended          bool           `json:"ended"`
	CreatorSide    model.Side     `json:"creatorSide"`
	ClaimerSide    model.Side     `json:"claimerSide"`
	Outcome        *model.Outcome `json:"outcome,omitempty"`
	PlatformMargin int64          `json:"platform_margin_cents"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func NewContestResponse(c *model.Contest) ContestResponse {
	out := ContestResponse{
		ID:             c.ID,
		CreatorID:      c.CreatorID,
		StakeCents:     c.StakeCents,
		Status:         string(c.Status),
		Ended:          c.Ended,
		CreatorSide:    c.CreatorSide,
		ClaimerSide:    c.ClaimerSide,
		PlatformMargin: c.PlatformMargin(),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if id, ok := c.ClaimerID(); ok {
		out.ClaimerID = id
	}
	if o, ok := c.Outcome.Get(); ok {
		out.Outcome = &o
	}
	return out
}

type ContenderResponse struct {
	UserID     string `json:"userId"`
	SubjectID  string `json:"subjectId"`
	Direction  string `json:"direction"`
	StakeCents int64  `json:"stake_cents"`
	ToWinCents int64  `json:"to_win_cents"`
	Winner     bool   `json:"winner"`
	Tied       bool   `json:"tied"`
}

type SettleResponse struct {
	Contest ContestResponse `json:"contest"`
	Settled bool            `json:"settled"`
}

type BalanceResponse struct {
	UserID       string `json:"userId"`
	BalanceCents int64  `json:"balance_cents"`
}

type DepositResponse struct {
	UserID       string `json:"userId"`
	Created      bool   `json:"created"`
	BalanceCents int64  `json:"balance_cents"`
}

type LedgerEntryResponse struct {
	Kind         string    `json:"kind"`
	AmountCents  int64     `json:"amount_cents"`
	Reference    string    `json:"reference"`
	ContestID    string    `json:"contestId,omitempty"`
	WithdrawalID string    `json:"withdrawalId,omitempty"`
	Consumed     bool      `json:"consumed"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
