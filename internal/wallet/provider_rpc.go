package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RPCProvider talks to the external wallet daemon's connect endpoints. The
// daemon shows the approval UI and returns the account it exposes.
type RPCProvider struct {
	baseURL string
	client  *http.Client
}

func NewRPCProvider(baseURL string) *RPCProvider {
	return &RPCProvider{
		baseURL: baseURL,
		// Connecting waits on user approval in the wallet UI.
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type connectRequest struct {
	WalletID string `json:"walletId"`
}

type connectResponse struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	WalletID  string `json:"walletId"`
	Error     string `json:"error"`
}

func (p *RPCProvider) Connect(ctx context.Context, walletID string) (Session, error) {
	body, err := json.Marshal(connectRequest{WalletID: walletID})
	if err != nil {
		return Session{}, fmt.Errorf("failed to marshal connect request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/connect", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("wallet connect failed: %v", err)
	}
	defer resp.Body.Close()

	var parsed connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Session{}, fmt.Errorf("failed to decode connect response: %v", err)
	}
	if parsed.Error != "" {
		return Session{}, fmt.Errorf("%s", parsed.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("wallet returned status %d", resp.StatusCode)
	}

	return Session{
		Address:     parsed.Address,
		PublicKey:   parsed.PublicKey,
		WalletID:    parsed.WalletID,
		ConnectedAt: time.Now().UTC(),
	}, nil
}

func (p *RPCProvider) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/disconnect", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("wallet disconnect failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("wallet returned status %d", resp.StatusCode)
	}
	return nil
}
