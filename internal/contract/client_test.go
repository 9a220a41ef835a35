package contract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

func TestParseContractError(t *testing.T) {
	assert.Equal(t, "Empty batch - no recipients provided", ParseContractError(100))
	assert.Equal(t, "Batch too large - max 200 recipients", ParseContractError(101))
	assert.Equal(t, "Zero amount not allowed", ParseContractError(102))
	assert.Equal(t, "Transfer failed - insufficient balance or authorization", ParseContractError(103))
	assert.Equal(t, "Unauthorized (admin functions only)", ParseContractError(104))
	assert.Equal(t, "Unknown error (code: 999)", ParseContractError(999))
}

func TestTotal(t *testing.T) {
	assert.Equal(t, int64(0), Total(nil))
	assert.Equal(t, int64(750000), Total([]batch.TxRecipient{
		{Address: "a", AmountSats: 500000},
		{Address: "b", AmountSats: 250000},
	}))
}

func TestValidateLocally(t *testing.T) {
	c := NewStacksClient(StacksConfig{MaxRecipients: 3}, nil)

	v := c.validateLocally(nil)
	assert.False(t, v.Valid)
	assert.Equal(t, 0, v.RecipientCount)

	v = c.validateLocally([]batch.TxRecipient{
		{Address: "a", AmountSats: 100},
		{Address: "b", AmountSats: 200},
	})
	assert.True(t, v.Valid)
	assert.Equal(t, 2, v.RecipientCount)
	assert.Equal(t, int64(300), v.TotalAmount)

	// zero amount invalidates the batch
	v = c.validateLocally([]batch.TxRecipient{{Address: "a", AmountSats: 0}})
	assert.False(t, v.Valid)

	// over the cap
	v = c.validateLocally([]batch.TxRecipient{
		{Address: "a", AmountSats: 1},
		{Address: "b", AmountSats: 1},
		{Address: "c", AmountSats: 1},
		{Address: "d", AmountSats: 1},
	})
	assert.False(t, v.Valid)
}

func TestSplitContractID(t *testing.T) {
	addr, name, err := splitContractID("ST262DFWDS07XGFC8HYE4H7MAESRD6M6G1B3K48JF.mock-sbtc")
	require.NoError(t, err)
	assert.Equal(t, "ST262DFWDS07XGFC8HYE4H7MAESRD6M6G1B3K48JF", addr)
	assert.Equal(t, "mock-sbtc", name)

	_, _, err = splitContractID("no-dot-here")
	assert.Error(t, err)
}

func TestSubmitWithoutSigner(t *testing.T) {
	c := NewStacksClient(StacksConfig{}, nil)

	ctx := context.Background()
	_, err := c.BatchTransferSBTC(ctx, []batch.TxRecipient{{Address: "a", AmountSats: 1}}, "sender")
	assert.ErrorIs(t, err, ErrNoSigner)

	_, err = c.MintMockSBTC(ctx, 100, "recipient")
	assert.ErrorIs(t, err, ErrNoSigner)
}
