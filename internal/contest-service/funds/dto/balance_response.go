package dto

// BalanceResponse representa a resposta do endpoint de saldo do gateway de fundos.
type BalanceResponse struct {
	UserID       string `json:"userId"`
	BalanceCents int64  `json:"balance_cents"`
}
