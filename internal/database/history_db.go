package historydb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

// DB is the global SQLite database instance
var DB *gorm.DB

// Batch statuses as recorded in history.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// BatchRecord is one submitted batch.
type BatchRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TxID           string    `gorm:"index" json:"txId"`
	Sender         string    `gorm:"index" json:"sender"`
	RecipientCount int       `json:"recipientCount"`
	TotalSats      int64     `json:"totalSats"`
	FeeSats        int64     `json:"feeSats"`
	Status         string    `gorm:"index" json:"status"`
	Mock           bool      `json:"mock"`
	CreatedAt      time.Time `json:"createdAt"`

	Recipients []BatchRecipient `gorm:"foreignKey:BatchID" json:"recipients,omitempty"`
}

// BatchRecipient is one payout row inside a recorded batch.
type BatchRecipient struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	BatchID    int64  `gorm:"index" json:"-"`
	Address    string `gorm:"index" json:"address"`
	AmountSats int64  `json:"amountSats"`
}

// ListFilter narrows ListBatches. Zero fields are ignored.
type ListFilter struct {
	Status   string
	Search   string // matches tx id or recipient address
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// InitSQLiteDB initializes the batch history database
func InitSQLiteDB(dbPath string) error {
	var err error

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}

	config := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	}

	DB, err = gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}

	err = DB.AutoMigrate(
		&BatchRecord{},
		&BatchRecipient{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}

	logger.Info("batch history database initialized")
	return nil
}

// SaveBatch records a submitted batch with its recipients.
func SaveBatch(txID, sender string, recipients []batch.TxRecipient, feeSats int64, mock bool) (*BatchRecord, error) {
	record := BatchRecord{
		TxID:           txID,
		Sender:         sender,
		RecipientCount: len(recipients),
		FeeSats:        feeSats,
		Status:         StatusPending,
		Mock:           mock,
		CreatedAt:      time.Now().UTC(),
	}
	for _, r := range recipients {
		record.TotalSats += r.AmountSats
		record.Recipients = append(record.Recipients, BatchRecipient{
			Address:    r.Address,
			AmountSats: r.AmountSats,
		})
	}

	if err := DB.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to save batch: %v", err)
	}
	return &record, nil
}

// ListBatches returns matching batches, newest first, with the total match
// count for pagination.
func ListBatches(filter ListFilter) ([]BatchRecord, int64, error) {
	query := DB.Model(&BatchRecord{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where(
			"tx_id LIKE ? OR id IN (?)",
			like,
			DB.Model(&BatchRecipient{}).Select("batch_id").Where("address LIKE ?", like),
		)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at <= ?", filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count batches: %v", err)
	}

	query = query.Order("created_at DESC")
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var records []BatchRecord
	if err := query.Preload("Recipients").Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list batches: %v", err)
	}
	return records, total, nil
}

// GetBatch retrieves one batch with its recipients.
func GetBatch(id int64) (*BatchRecord, error) {
	var record BatchRecord
	result := DB.Preload("Recipients").First(&record, id)
	if result.Error != nil {
		return nil, fmt.Errorf("batch %d not found: %v", id, result.Error)
	}
	return &record, nil
}

// MarkBatchStatus updates a batch's settlement status.
func MarkBatchStatus(id int64, status string) error {
	result := DB.Model(&BatchRecord{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update batch %d: %v", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("batch %d not found", id)
	}
	return nil
}

// SenderTotals aggregates a sender's recorded activity.
func SenderTotals(sender string) (batches int64, recipients int64, totalSats int64, err error) {
	type row struct {
		Batches    int64
		Recipients int64
		TotalSats  int64
	}
	var r row
	result := DB.Model(&BatchRecord{}).
		Select("COUNT(*) as batches, COALESCE(SUM(recipient_count), 0) as recipients, COALESCE(SUM(total_sats), 0) as total_sats").
		Where("sender = ?", sender).
		Scan(&r)
	if result.Error != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate sender totals: %v", result.Error)
	}
	return r.Batches, r.Recipients, r.TotalSats, nil
}

// ExportRows flattens batches into the CSV export shape.
func ExportRows(records []BatchRecord) []batch.HistoryExportRow {
	rows := make([]batch.HistoryExportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, batch.HistoryExportRow{
			Date:       rec.CreatedAt.Format("2006-01-02 15:04:05"),
			BatchNum:   rec.ID,
			Recipients: rec.RecipientCount,
			TotalSats:  rec.TotalSats,
			Status:     rec.Status,
			TxID:       rec.TxID,
		})
	}
	return rows
}
