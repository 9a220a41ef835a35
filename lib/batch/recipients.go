package batch

import (
	"errors"

	"github.com/google/uuid"
)

// Status is the derived validity of a recipient entry within its list.
type Status string

const (
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusDuplicate Status = "duplicate"
)

// Recipient is one (address, amount) pair awaiting inclusion in a batch.
// Amount keeps the raw user input so decimal formatting survives edits.
type Recipient struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Unit    Unit   `json:"unit"`
	Status  Status `json:"status"`
}

// TxRecipient is the normalized form handed to the contract client.
type TxRecipient struct {
	Address    string `json:"address"`
	AmountSats int64  `json:"amount"`
}

var (
	ErrInvalidAddress = errors.New("invalid recipient address")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrListFull       = errors.New("recipient limit reached")
	ErrNotFound       = errors.New("recipient not found")
)

// List is the ordered in-memory recipient collection behind a batch build.
// It is not safe for concurrent use; callers mutate it from a single
// goroutine in response to discrete user actions.
type List struct {
	max     int
	entries []Recipient
}

// NewList returns an empty list capped at max entries. A max of zero or
// less falls back to the contract's 200-recipient limit.
func NewList(max int) *List {
	if max <= 0 {
		max = 200
	}
	return &List{max: max}
}

// Len returns the number of entries.
func (l *List) Len() int { return len(l.entries) }

// Max returns the list cap.
func (l *List) Max() int { return l.max }

// Snapshot returns a copy of the current entries.
func (l *List) Snapshot() []Recipient {
	out := make([]Recipient, len(l.entries))
	copy(out, l.entries)
	return out
}

// Add validates and appends a new entry. The entry lands with status
// duplicate when its address is already present, valid otherwise.
func (l *List) Add(address, amount string, unit Unit) (Recipient, error) {
	if !ValidAddress(address) {
		return Recipient{}, ErrInvalidAddress
	}
	if !ValidAmount(amount) {
		return Recipient{}, ErrInvalidAmount
	}
	if len(l.entries) >= l.max {
		return Recipient{}, ErrListFull
	}
	if !ValidUnit(unit) {
		unit = UnitSats
	}

	r := Recipient{
		ID:      uuid.NewString(),
		Address: address,
		Amount:  amount,
		Unit:    unit,
	}
	l.entries = append(l.entries, r)
	l.recompute()
	return l.entries[len(l.entries)-1], nil
}

// Remove deletes the entry with the given id and recomputes duplicate
// statuses, so deleting a first occurrence promotes the next one.
func (l *List) Remove(id string) error {
	for i, r := range l.entries {
		if r.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			l.recompute()
			return nil
		}
	}
	return ErrNotFound
}

// Edit removes the entry and hands its fields back for re-submission
// through the input form.
func (l *List) Edit(id string) (Recipient, error) {
	for i, r := range l.entries {
		if r.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			l.recompute()
			return r, nil
		}
	}
	return Recipient{}, ErrNotFound
}

// Clear empties the list. Confirmation for multi-entry lists is the
// caller's responsibility.
func (l *List) Clear() {
	l.entries = nil
}

// Import bulk-appends parsed CSV rows. Only rows already marked valid are
// taken; statuses are rederived over the combined list, so repeats within
// the imported rows are flagged as duplicates too.
func (l *List) Import(rows []Row) int {
	added := 0
	for _, row := range rows {
		if !row.Valid || len(l.entries) >= l.max {
			continue
		}
		l.entries = append(l.entries, Recipient{
			ID:      uuid.NewString(),
			Address: row.Address,
			Amount:  row.Amount,
			Unit:    UnitSats,
		})
		added++
	}
	l.recompute()
	return added
}

// Load replaces the list contents with a template's recipients. Callers must
// have confirmed the overwrite when the list is non-empty.
func (l *List) Load(recipients []TemplateRecipient) {
	l.entries = l.entries[:0]
	for _, tr := range recipients {
		if len(l.entries) >= l.max {
			break
		}
		l.entries = append(l.entries, Recipient{
			ID:      uuid.NewString(),
			Address: tr.Address,
			Amount:  tr.Amount,
			Unit:    tr.Unit,
		})
	}
	l.recompute()
}

// ForSubmission returns the normalized (address, sats) pairs for the valid
// entries only, in list order.
func (l *List) ForSubmission() []TxRecipient {
	out := make([]TxRecipient, 0, len(l.entries))
	for _, r := range l.entries {
		if r.Status != StatusValid {
			continue
		}
		out = append(out, TxRecipient{
			Address:    r.Address,
			AmountSats: ToBaseUnits(r.Amount, r.Unit),
		})
	}
	return out
}

// recompute rederives every entry's status: invalid beats everything, the
// first occurrence of an address is valid, later occurrences duplicate.
func (l *List) recompute() {
	seen := make(map[string]bool, len(l.entries))
	for i := range l.entries {
		r := &l.entries[i]
		switch {
		case !ValidAddress(r.Address) || !ValidAmount(r.Amount):
			r.Status = StatusInvalid
		case seen[r.Address]:
			r.Status = StatusDuplicate
		default:
			r.Status = StatusValid
			seen[r.Address] = true
		}
	}
}
