package batch

import (
	"time"

	"github.com/google/uuid"
)

// TemplateRecipient is a recipient entry without the per-list id/status.
type TemplateRecipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Unit    Unit   `json:"unit"`
}

// Template is a named, reusable, pre-filled recipient list.
type Template struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	CreatedAt   time.Time           `json:"createdAt"`
	Recipients  []TemplateRecipient `json:"recipients"`
}

// NewTemplate captures the given recipients as a user template.
func NewTemplate(name, description string, recipients []Recipient) Template {
	trs := make([]TemplateRecipient, 0, len(recipients))
	for _, r := range recipients {
		trs = append(trs, TemplateRecipient{Address: r.Address, Amount: r.Amount, Unit: r.Unit})
	}
	return Template{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Recipients:  trs,
	}
}

// BuiltinTemplates returns the immutable starter templates. Callers get a
// fresh slice each time; the underlying data never changes.
func BuiltinTemplates() []Template {
	return []Template{
		{
			ID:          "payroll",
			Name:        "Monthly Payroll",
			Description: "Disburse monthly salaries to your team",
			Recipients: []TemplateRecipient{
				{Address: "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ", Amount: "1200000", Unit: UnitSats},
				{Address: "ST3GWX3NE58KJET25ZZ6D193D4D3EMXT5E8KXNJV", Amount: "950000", Unit: UnitSats},
				{Address: "ST1HTBVD3JG9C05J7HBJTHGR0GGW7KXW28M5JS8K", Amount: "800000", Unit: UnitSats},
				{Address: "ST2QXJDSWYFGT9022M5TEZZNKQGVYCNH5D2GQBPH", Amount: "750000", Unit: UnitSats},
				{Address: "ST3NFTHTNKNJRFB4NPRQVSRD6THVSZ8YZ36VBPM1", Amount: "600000", Unit: UnitSats},
				{Address: "ST1MXSZF4NFC9JQ55NZXHME0PC3FKXB28MX6ZKG2", Amount: "500000", Unit: UnitSats},
			},
		},
		{
			ID:          "airdrop",
			Name:        "Community Airdrop",
			Description: "Equal distribution to community wallet holders",
			Recipients: []TemplateRecipient{
				{Address: "ST1WN90HKT0E1FWCJT9JFPMC8YP7XGHA0GBW16BX", Amount: "100000", Unit: UnitSats},
				{Address: "ST2MN84Y4VP9N7H64ZDVQE5KVX4XRJB8BQBVBXJK", Amount: "100000", Unit: UnitSats},
				{Address: "ST3KDQZP3NTKZAKJ1NRQHX0FJCQ46YQQZQJX9MRT", Amount: "100000", Unit: UnitSats},
				{Address: "ST1P72Z3704VMT3DMHPP2CB8TAAT8GZSBF5RA2R0", Amount: "100000", Unit: UnitSats},
				{Address: "ST2C2YFP12AJZB4MABJBAJ85B6DCF7NPHQJD3GZ3", Amount: "100000", Unit: UnitSats},
				{Address: "ST3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5XQ2", Amount: "100000", Unit: UnitSats},
				{Address: "ST1Y5YSTAHZ88XYK1VPDH24GY0HPX5J4JECTMY4A", Amount: "100000", Unit: UnitSats},
				{Address: "ST2PABAF9FTAJYNFZH93XENAJ8FVY99RRM50D2JG9", Amount: "100000", Unit: UnitSats},
			},
		},
		{
			ID:          "treasury",
			Name:        "Treasury Allocation",
			Description: "Distribute funds across treasury sub-wallets",
			Recipients: []TemplateRecipient{
				{Address: "ST3D03GMKH86AXJCZJHFNX5C8ZX9KQJR2YPAHQZE", Amount: "5000000", Unit: UnitSats},
				{Address: "ST1QK1AZ24R132C0D84243RP9K1R7FEAP1FQZFB5G", Amount: "3000000", Unit: UnitSats},
				{Address: "ST2VCQJGH7PHP2DJK7Z0V48AGBHQAW3R3ZW1QQ97", Amount: "1500000", Unit: UnitSats},
				{Address: "ST3J3RJTX9TFNVTT7GZP6R73WPBSDN9BNZM3YV5F", Amount: "500000", Unit: UnitSats},
			},
		},
	}
}
