package dto

// TransferRequest representa o payload para movimentar dinheiro no gateway.
type TransferRequest struct {
	AccountRef  string `json:"account_ref"`
	Kind        string `json:"kind"` // WITHDRAWAL | DEPOSIT
	AmountCents int64  `json:"amount_cents"`
	SourceRef   string `json:"source_ref"` // ex: withdrawalId, usado como chave de idempotência
}
