package contract

import (
	"context"
	"fmt"

	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

// BatchValidation is the result of the read-only validate-batch call.
type BatchValidation struct {
	Valid          bool  `json:"valid"`
	RecipientCount int   `json:"recipientCount"`
	TotalAmount    int64 `json:"totalAmount"`
}

// SenderStats aggregates a sender's on-chain batch activity.
type SenderStats struct {
	TotalBatches    int64 `json:"totalBatches"`
	TotalRecipients int64 `json:"totalRecipients"`
	TotalAmount     int64 `json:"totalAmount"`
}

// Info is the contract's self-reported metadata.
type Info struct {
	MaxRecipients int    `json:"maxRecipients"`
	Version       string `json:"version"`
}

// TxResult is the settlement of a state-changing call.
type TxResult struct {
	TxID string `json:"txId"`
}

// PostCondition declares the exact-spend guarantee attached to a batch
// submission: the sender transfers exactly Amount of the named asset, no
// more, in deny mode.
type PostCondition struct {
	Principal string
	Amount    int64
	Asset     string
}

// Signer is the connected wallet's signing entry point. CallContract
// suspends until the wallet signs and broadcasts, or the user cancels.
type Signer interface {
	CallContract(ctx context.Context, call ContractCall) (TxResult, error)
}

// ContractCall describes one state-changing contract invocation.
type ContractCall struct {
	Contract       string
	Function       string
	Recipients     []batch.TxRecipient
	MintAmount     int64
	MintRecipient  string
	PostConditions []PostCondition
}

// Client is the on-chain boundary. Read-only queries degrade to zero-value
// results when the chain API is unreachable; state-changing calls surface
// the wallet's rejection as an error.
type Client interface {
	ValidateBatch(ctx context.Context, recipients []batch.TxRecipient, sender string) (BatchValidation, error)
	CalculateBatchTotal(ctx context.Context, recipients []batch.TxRecipient, sender string) (int64, error)
	GetSenderStats(ctx context.Context, sender string) (SenderStats, error)
	GetContractInfo(ctx context.Context, sender string) (Info, error)
	GetRecipientReceived(ctx context.Context, recipient, sender string) (int64, error)
	GetMockBalance(ctx context.Context, address, sender string) (int64, error)

	BatchTransferSBTC(ctx context.Context, recipients []batch.TxRecipient, sender string) (TxResult, error)
	BatchTransferMock(ctx context.Context, recipients []batch.TxRecipient, sender string) (TxResult, error)
	MintMockSBTC(ctx context.Context, amount int64, recipient string) (TxResult, error)
}

// Contract error codes returned by the batch-transfer contract.
var contractErrors = map[int]string{
	100: "Empty batch - no recipients provided",
	101: "Batch too large - max 200 recipients",
	102: "Zero amount not allowed",
	103: "Transfer failed - insufficient balance or authorization",
	104: "Unauthorized (admin functions only)",
}

// ParseContractError maps a contract error code to its message.
func ParseContractError(code int) string {
	if msg, ok := contractErrors[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error (code: %d)", code)
}

// Total sums the normalized recipient amounts; it backs the local fallback
// when the read-only calculate-batch-total call fails.
func Total(recipients []batch.TxRecipient) int64 {
	var sum int64
	for _, r := range recipients {
		sum += r.AmountSats
	}
	return sum
}
