package historydb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

const senderAddr = "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ"

func initTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitSQLiteDB(filepath.Join(t.TempDir(), "history.db")))
}

func saveTestBatch(t *testing.T, txID string, amounts ...int64) *BatchRecord {
	t.Helper()
	recipients := make([]batch.TxRecipient, 0, len(amounts))
	for i, amount := range amounts {
		recipients = append(recipients, batch.TxRecipient{
			Address:    senderAddr[:len(senderAddr)-1] + string(rune('A'+i)),
			AmountSats: amount,
		})
	}
	record, err := SaveBatch(txID, senderAddr, recipients, 500, false)
	require.NoError(t, err)
	return record
}

func TestSaveAndGetBatch(t *testing.T) {
	initTestDB(t)

	record := saveTestBatch(t, "0xabc", 100, 200)
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, int64(300), record.TotalSats)
	assert.Equal(t, 2, record.RecipientCount)

	got, err := GetBatch(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.TxID)
	require.Len(t, got.Recipients, 2)
	assert.Equal(t, int64(100), got.Recipients[0].AmountSats)

	_, err = GetBatch(99999)
	assert.Error(t, err)
}

func TestListBatchesFilters(t *testing.T) {
	initTestDB(t)

	first := saveTestBatch(t, "0xaaa", 100)
	saveTestBatch(t, "0xbbb", 200)
	require.NoError(t, MarkBatchStatus(first.ID, StatusConfirmed))

	all, total, err := ListBatches(ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	confirmed, total, err := ListBatches(ListFilter{Status: StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, confirmed, 1)
	assert.Equal(t, first.ID, confirmed[0].ID)

	byTx, _, err := ListBatches(ListFilter{Search: "0xbbb"})
	require.NoError(t, err)
	require.Len(t, byTx, 1)
	assert.Equal(t, "0xbbb", byTx[0].TxID)

	none, _, err := ListBatches(ListFilter{Search: "nomatch"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListBatchesDateRange(t *testing.T) {
	initTestDB(t)
	saveTestBatch(t, "0xccc", 100)

	now := time.Now().UTC()
	inRange, _, err := ListBatches(ListFilter{
		From: now.Add(-time.Hour),
		To:   now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	outOfRange, _, err := ListBatches(ListFilter{From: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, outOfRange)
}

func TestListBatchesPagination(t *testing.T) {
	initTestDB(t)
	for i := 0; i < 5; i++ {
		saveTestBatch(t, "0xpage", 100)
	}

	page, total, err := ListBatches(ListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 2)

	lastPage, _, err := ListBatches(ListFilter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, lastPage, 1)
}

func TestMarkBatchStatus(t *testing.T) {
	initTestDB(t)
	record := saveTestBatch(t, "0xddd", 100)

	require.NoError(t, MarkBatchStatus(record.ID, StatusFailed))
	got, err := GetBatch(record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	assert.Error(t, MarkBatchStatus(99999, StatusConfirmed))
}

func TestSenderTotals(t *testing.T) {
	initTestDB(t)
	saveTestBatch(t, "0x1", 100, 200)
	saveTestBatch(t, "0x2", 300)

	batches, recipients, totalSats, err := SenderTotals(senderAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), batches)
	assert.Equal(t, int64(3), recipients)
	assert.Equal(t, int64(600), totalSats)

	batches, recipients, totalSats, err = SenderTotals("SPNOBODY123456789")
	require.NoError(t, err)
	assert.Zero(t, batches)
	assert.Zero(t, recipients)
	assert.Zero(t, totalSats)
}

func TestExportRows(t *testing.T) {
	initTestDB(t)
	record := saveTestBatch(t, "0xeee", 100)

	rows := ExportRows([]BatchRecord{*record})
	require.Len(t, rows, 1)
	assert.Equal(t, record.ID, rows[0].BatchNum)
	assert.Equal(t, 1, rows[0].Recipients)
	assert.Equal(t, int64(100), rows[0].TotalSats)
	assert.Equal(t, StatusPending, rows[0].Status)
	assert.Equal(t, "0xeee", rows[0].TxID)

	out := batch.HistoryCSV(rows)
	assert.Contains(t, out, "0xeee")
}
