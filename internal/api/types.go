package api

import (
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

type AuthRequest struct {
	APIKey string `json:"apiKey"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type ParseCSVRequest struct {
	Text string `json:"text"`
}

type ParseCSVResponse struct {
	Rows     []batch.Row `json:"rows"`
	Valid    int         `json:"valid"`
	Invalid  int         `json:"invalid"`
	Imported int         `json:"imported,omitempty"`
}

type RecipientInput struct {
	Address string     `json:"address"`
	Amount  string     `json:"amount"`
	Unit    batch.Unit `json:"unit"`
}

type SubmitRequest struct {
	Recipients []RecipientInput `json:"recipients"`
	Mock       bool             `json:"mock"`
}

type SubmitResponse struct {
	TxID    string `json:"txId"`
	BatchID int64  `json:"batchId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ValidateResponse struct {
	Valid          bool   `json:"valid"`
	RecipientCount int    `json:"recipientCount"`
	TotalAmount    int64  `json:"totalAmount"`
	Message        string `json:"message,omitempty"`
}

type MintRequest struct {
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
}

type TemplateRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Recipients  []RecipientInput `json:"recipients"`
}

type DeleteTemplateRequest struct {
	ID string `json:"id"`
}

type ConnectRequest struct {
	WalletID string `json:"walletId"`
}

type StatusRequest struct {
	BatchID int64  `json:"batchId"`
	Status  string `json:"status"`
}

type ResendRequest struct {
	BatchID int64 `json:"batchId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
