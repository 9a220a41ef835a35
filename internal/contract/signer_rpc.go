package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RPCSigner forwards signing requests to the external wallet daemon. The
// daemon owns the keys and the approval UI; a rejected request comes back
// as an error whose message carries the wallet's reason.
type RPCSigner struct {
	baseURL string
	client  *http.Client
}

func NewRPCSigner(baseURL string) *RPCSigner {
	return &RPCSigner{
		baseURL: baseURL,
		// Signing waits on user approval, so the timeout is generous.
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type signRequest struct {
	Contract       string          `json:"contract"`
	Function       string          `json:"function"`
	Recipients     interface{}     `json:"recipients,omitempty"`
	MintAmount     int64           `json:"mintAmount,omitempty"`
	MintRecipient  string          `json:"mintRecipient,omitempty"`
	PostConditions []PostCondition `json:"postConditions,omitempty"`
}

type signResponse struct {
	TxID  string `json:"txId"`
	Error string `json:"error"`
}

// CallContract submits the call to the wallet and waits for the signed
// transaction id.
func (s *RPCSigner) CallContract(ctx context.Context, call ContractCall) (TxResult, error) {
	body, err := json.Marshal(signRequest{
		Contract:       call.Contract,
		Function:       call.Function,
		Recipients:     call.Recipients,
		MintAmount:     call.MintAmount,
		MintRecipient:  call.MintRecipient,
		PostConditions: call.PostConditions,
	})
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to marshal sign request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return TxResult{}, fmt.Errorf("wallet signing failed: %v", err)
	}
	defer resp.Body.Close()

	var parsed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return TxResult{}, fmt.Errorf("failed to decode wallet response: %v", err)
	}
	if parsed.Error != "" {
		return TxResult{}, fmt.Errorf("%s", parsed.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return TxResult{}, fmt.Errorf("wallet returned status %d", resp.StatusCode)
	}
	if parsed.TxID == "" {
		return TxResult{}, fmt.Errorf("wallet returned no transaction id")
	}
	return TxResult{TxID: parsed.TxID}, nil
}
