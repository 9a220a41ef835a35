package contract

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

func testAddress() string {
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = byte(i)
	}
	return buildAddress(26, hash)
}

func readServer(t *testing.T, result []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req callReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(callReadResponse{
			Okay:   true,
			Result: "0x" + hex.EncodeToString(result),
		})
	}))
}

func testConfig(apiURL string) StacksConfig {
	return StacksConfig{
		APIURL:          apiURL,
		ContractAddress: testAddress(),
		ContractName:    "batch-transfer",
		SBTCContract:    testAddress() + ".sbtc-token",
		MockContract:    testAddress() + ".mock-sbtc",
		MaxRecipients:   200,
	}
}

func TestValidateBatchReadsContract(t *testing.T) {
	result := append([]byte{cvResponseOk}, encodeTuple(map[string][]byte{
		"valid":           {cvBoolTrue},
		"recipient-count": encodeUint(2),
		"total-amount":    encodeUint(750000),
	})...)
	srv := readServer(t, result)
	defer srv.Close()

	c := NewStacksClient(testConfig(srv.URL), nil)
	v, err := c.ValidateBatch(context.Background(), []batch.TxRecipient{
		{Address: testAddress(), AmountSats: 500000},
		{Address: testAddress(), AmountSats: 250000},
	}, testAddress())
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 2, v.RecipientCount)
	assert.Equal(t, int64(750000), v.TotalAmount)
}

func TestValidateBatchFallsBackOffline(t *testing.T) {
	c := NewStacksClient(testConfig("http://127.0.0.1:1"), nil)

	v, err := c.ValidateBatch(context.Background(), []batch.TxRecipient{
		{Address: testAddress(), AmountSats: 500000},
	}, testAddress())
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 1, v.RecipientCount)
	assert.Equal(t, int64(500000), v.TotalAmount)
}

func TestCalculateBatchTotalFallsBackOffline(t *testing.T) {
	c := NewStacksClient(testConfig("http://127.0.0.1:1"), nil)

	total, err := c.CalculateBatchTotal(context.Background(), []batch.TxRecipient{
		{Address: testAddress(), AmountSats: 100},
		{Address: testAddress(), AmountSats: 200},
	}, testAddress())
	require.NoError(t, err)
	assert.Equal(t, int64(300), total)
}

func TestGetSenderStats(t *testing.T) {
	result := append([]byte{cvResponseOk, cvOptionalSome}, encodeTuple(map[string][]byte{
		"total-batches":    encodeUint(4),
		"total-recipients": encodeUint(40),
		"total-amount":     encodeUint(9000000),
	})...)
	srv := readServer(t, result)
	defer srv.Close()

	c := NewStacksClient(testConfig(srv.URL), nil)
	stats, err := c.GetSenderStats(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalBatches)
	assert.Equal(t, int64(40), stats.TotalRecipients)
	assert.Equal(t, int64(9000000), stats.TotalAmount)
}

func TestGetSenderStatsNone(t *testing.T) {
	result := []byte{cvResponseOk, cvOptionalNone}
	srv := readServer(t, result)
	defer srv.Close()

	c := NewStacksClient(testConfig(srv.URL), nil)
	stats, err := c.GetSenderStats(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Equal(t, SenderStats{}, stats)
}

func TestGetContractInfoFallsBackOffline(t *testing.T) {
	c := NewStacksClient(testConfig("http://127.0.0.1:1"), nil)

	info, err := c.GetContractInfo(context.Background(), testAddress())
	require.NoError(t, err)
	assert.Equal(t, 200, info.MaxRecipients)
	assert.Equal(t, "1.0.0", info.Version)
}

func TestGetMockBalance(t *testing.T) {
	result := append([]byte{cvResponseOk}, encodeUint(123456)...)
	srv := readServer(t, result)
	defer srv.Close()

	c := NewStacksClient(testConfig(srv.URL), nil)
	balance, err := c.GetMockBalance(context.Background(), testAddress(), testAddress())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), balance)
}
