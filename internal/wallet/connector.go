// Package wallet manages the connection to an external Stacks wallet. The
// wallet itself (key custody, signing UI) lives outside this process; this
// package tracks the session, enforces the network match, and persists the
// session across restarts.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

// Session is one established wallet connection.
type Session struct {
	Address     string    `json:"address"`
	PublicKey   string    `json:"publicKey,omitempty"`
	WalletID    string    `json:"walletId"`
	Network     string    `json:"network"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Provider is the external wallet-connect layer. Connect suspends until the
// user approves or rejects in the wallet UI.
type Provider interface {
	Connect(ctx context.Context, walletID string) (Session, error)
	Disconnect(ctx context.Context) error
}

// SessionStore persists the active session so a restart reconnects
// silently.
type SessionStore interface {
	SaveWalletSession(s Session) error
	LoadWalletSession() (Session, bool, error)
	ClearWalletSession() error
}

// ErrWrongNetwork is returned when the connected address belongs to the
// other network; the connection is torn down before it is surfaced.
var ErrWrongNetwork = errors.New("wallet is on the wrong network")

// ErrNotConnected is returned by Current when no session is active.
var ErrNotConnected = errors.New("no wallet connected")

// ErrKind buckets connection failures for presentation.
type ErrKind string

const (
	ErrKindGeneric      ErrKind = "generic"
	ErrKindCancelled    ErrKind = "cancelled"
	ErrKindWrongNetwork ErrKind = "wrong_network"
)

// ClassifyError buckets a connection error by message: user cancellations
// and network mismatches are distinguished from everything else.
func ClassifyError(err error) ErrKind {
	if err == nil {
		return ErrKindGeneric
	}
	if errors.Is(err, ErrWrongNetwork) {
		return ErrKindWrongNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "cancel"):
		return ErrKindCancelled
	case strings.Contains(msg, "testnet") || strings.Contains(msg, "switch"):
		return ErrKindWrongNetwork
	default:
		return ErrKindGeneric
	}
}

// Connector owns the wallet session lifecycle.
type Connector struct {
	mu       sync.Mutex
	provider Provider
	store    SessionStore
	network  string
	session  *Session
}

// NewConnector builds a connector for the given network ("testnet" or
// "mainnet").
func NewConnector(provider Provider, store SessionStore, network string) *Connector {
	return &Connector{provider: provider, store: store, network: network}
}

// Connect opens a session with the preferred wallet, validates the address
// against the configured network, and persists the session. On a network
// mismatch the provider is disconnected and nothing is persisted.
func (c *Connector) Connect(ctx context.Context, walletID string) (Session, error) {
	session, err := c.provider.Connect(ctx, walletID)
	if err != nil {
		return Session{}, fmt.Errorf("wallet connect failed: %v", err)
	}

	if !c.addressMatchesNetwork(session.Address) {
		if derr := c.provider.Disconnect(ctx); derr != nil {
			logger.Warnf("failed to disconnect mismatched wallet: %v", derr)
		}
		return Session{}, fmt.Errorf("address %s: please switch your wallet to %s: %w",
			session.Address, c.network, ErrWrongNetwork)
	}

	session.Network = c.network
	if session.ConnectedAt.IsZero() {
		session.ConnectedAt = time.Now().UTC()
	}

	if err := c.store.SaveWalletSession(session); err != nil {
		logger.Warnf("failed to persist wallet session: %v", err)
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()

	logger.Infof("wallet connected: %s (%s)", session.Address, session.WalletID)
	return session, nil
}

// Restore loads a persisted session from a previous run. Sessions saved for
// the other network are discarded.
func (c *Connector) Restore() (Session, bool, error) {
	session, ok, err := c.store.LoadWalletSession()
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to load wallet session: %v", err)
	}
	if !ok {
		return Session{}, false, nil
	}

	if !c.addressMatchesNetwork(session.Address) {
		logger.Warnf("discarding persisted session for %s: wrong network", session.Address)
		if cerr := c.store.ClearWalletSession(); cerr != nil {
			logger.Warnf("failed to clear stale session: %v", cerr)
		}
		return Session{}, false, nil
	}

	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
	return session, true, nil
}

// Disconnect tears down the session and removes the persisted copy.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if err := c.store.ClearWalletSession(); err != nil {
		logger.Warnf("failed to clear wallet session: %v", err)
	}
	if err := c.provider.Disconnect(ctx); err != nil {
		return fmt.Errorf("wallet disconnect failed: %v", err)
	}
	logger.Info("wallet disconnected")
	return nil
}

// Current returns the active session.
func (c *Connector) Current() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, ErrNotConnected
	}
	return *c.session, nil
}

// Connected reports whether a session is active.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Connector) addressMatchesNetwork(address string) bool {
	switch c.network {
	case "mainnet":
		return batch.IsMainnetAddress(address)
	default:
		return batch.IsTestnetAddress(address)
	}
}
