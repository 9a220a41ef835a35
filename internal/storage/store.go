// Package storage persists the app's small client-side state (wallet
// session, custom templates, history filter, resend hand-off) in a graviton
// key-value store. Reads are forgiving: absent or unreadable entries come
// back as zero values so a corrupt store never blocks startup.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/deroproject/graviton"

	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
	"github.com/carlton-source/sbtc-batch-lib/internal/wallet"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

const treeName = "batchpay"

// Storage keys, mirroring the app's persisted slots.
const (
	keyWalletSession = "batchpay_wallet_session"
	keyTemplates     = "custom_templates"
	keyDateRange     = "date_range"
	keyResend        = "resend"
)

// DateRange is the persisted history filter window.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ResendPayload is the one-shot hand-off from history into a new batch.
type ResendPayload struct {
	SourceBatch int64                     `json:"sourceBatch"`
	Recipients  []batch.TemplateRecipient `json:"recipients"`
}

// Store wraps a graviton disk store.
type Store struct {
	db *graviton.Store
}

// Open creates or opens the store at path.
func Open(path string) (*Store, error) {
	db, err := graviton.NewDiskStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage at %s: %v", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", key, err)
	}

	ss, err := s.db.LoadSnapshot(0)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %v", err)
	}
	tree, err := ss.GetTree(treeName)
	if err != nil {
		return fmt.Errorf("failed to get tree: %v", err)
	}
	if err := tree.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to put %s: %v", key, err)
	}
	if _, err := graviton.Commit(tree); err != nil {
		return fmt.Errorf("failed to commit %s: %v", key, err)
	}
	return nil
}

// get unmarshals the stored value into out. Absent or unreadable entries
// report ok=false without an error.
func (s *Store) get(key string, out interface{}) (bool, error) {
	ss, err := s.db.LoadSnapshot(0)
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %v", err)
	}
	tree, err := ss.GetTree(treeName)
	if err != nil {
		return false, fmt.Errorf("failed to get tree: %v", err)
	}

	data, err := tree.Get([]byte(key))
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Warnf("discarding unreadable %s entry: %v", key, err)
		return false, nil
	}
	return true, nil
}

func (s *Store) delete(key string) error {
	ss, err := s.db.LoadSnapshot(0)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %v", err)
	}
	tree, err := ss.GetTree(treeName)
	if err != nil {
		return fmt.Errorf("failed to get tree: %v", err)
	}
	if err := tree.Delete([]byte(key)); err != nil {
		return fmt.Errorf("failed to delete %s: %v", key, err)
	}
	if _, err := graviton.Commit(tree); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %v", key, err)
	}
	return nil
}

// SaveWalletSession persists the active wallet session.
func (s *Store) SaveWalletSession(session wallet.Session) error {
	return s.put(keyWalletSession, session)
}

// LoadWalletSession returns the persisted session if one exists.
func (s *Store) LoadWalletSession() (wallet.Session, bool, error) {
	var session wallet.Session
	ok, err := s.get(keyWalletSession, &session)
	return session, ok, err
}

// ClearWalletSession removes the persisted session.
func (s *Store) ClearWalletSession() error {
	return s.delete(keyWalletSession)
}

// SaveTemplates stores the full custom template set as one blob.
func (s *Store) SaveTemplates(templates []batch.Template) error {
	return s.put(keyTemplates, templates)
}

// LoadTemplates returns the custom template set, empty when none is stored.
func (s *Store) LoadTemplates() ([]batch.Template, error) {
	var templates []batch.Template
	if _, err := s.get(keyTemplates, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// SaveDateRange persists the history filter window.
func (s *Store) SaveDateRange(r DateRange) error {
	return s.put(keyDateRange, r)
}

// LoadDateRange returns the persisted filter window.
func (s *Store) LoadDateRange() (DateRange, bool, error) {
	var r DateRange
	ok, err := s.get(keyDateRange, &r)
	return r, ok, err
}

// ClearDateRange removes the persisted filter window.
func (s *Store) ClearDateRange() error {
	return s.delete(keyDateRange)
}

// PutResend stages recipients for a resend.
func (s *Store) PutResend(p ResendPayload) error {
	return s.put(keyResend, p)
}

// TakeResend returns the staged resend payload and consumes it. The
// hand-off is one-shot: a second call finds nothing.
func (s *Store) TakeResend() (ResendPayload, bool, error) {
	var p ResendPayload
	ok, err := s.get(keyResend, &p)
	if err != nil || !ok {
		return ResendPayload{}, false, err
	}
	if err := s.delete(keyResend); err != nil {
		return ResendPayload{}, false, err
	}
	return p, true, nil
}
