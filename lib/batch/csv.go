package batch

import (
	"fmt"
	"strings"
)

// Row is one parsed line of recipient CSV input.
type Row struct {
	Line    int    `json:"line"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// ParseCSV parses raw "address, amount" text into rows with per-row
// validation. Blank lines are skipped, whitespace around fields is trimmed,
// and line numbers refer to the original text. Parsing is deterministic:
// identical text always yields identical rows.
func ParseCSV(text string) []Row {
	var rows []Row
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		address := strings.TrimSpace(parts[0])
		amount := ""
		if len(parts) > 1 {
			amount = strings.TrimSpace(parts[1])
		}

		row := Row{Line: i + 1, Address: address, Amount: amount}
		switch {
		case address == "":
			row.Error = "Missing address"
		case !ValidAddress(address):
			row.Error = "Invalid address format"
		case !ValidAmount(amount):
			row.Error = "Invalid amount"
		default:
			row.Valid = true
		}
		rows = append(rows, row)
	}
	return rows
}

// TemplateCSV returns the fixed downloadable starter file: a header plus
// three valid sample rows.
func TemplateCSV() string {
	return "address,amount_sats\n" +
		"SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ,500000\n" +
		"SP3GWX3NE58KJET25ZZ6D193D4D3EMXT5E8KXNJV,250000\n" +
		"SP1HTBVD3JG9C05J7HBJTHGR0GGW7KXW28M5JS8K,750000"
}

// HistoryExportRow is the flattened batch record shape used by HistoryCSV.
type HistoryExportRow struct {
	Date       string
	BatchNum   int64
	Recipients int
	TotalSats  int64
	Status     string
	TxID       string
}

// HistoryCSV renders the batch-history export with its fixed header.
func HistoryCSV(rows []HistoryExportRow) string {
	var b strings.Builder
	b.WriteString("Date,Batch ID,Recipients,Total Sats,Status,TX ID")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("\n%s,%d,%d,%d,%s,%s",
			r.Date, r.BatchNum, r.Recipients, r.TotalSats, r.Status, r.TxID))
	}
	return b.String()
}
