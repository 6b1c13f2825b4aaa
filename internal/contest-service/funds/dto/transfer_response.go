package dto

// TransferResponse representa a resposta do endpoint de transferência.
type TransferResponse struct {
	TransferRef string `json:"transfer_ref"`
	Status      string `json:"status"`
}

// ErrorResponse é o corpo de erro padrão do gateway
type ErrorResponse struct {
	Error string `json:"error"`
}
