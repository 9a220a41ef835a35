// Package api exposes the batch-transfer app over HTTP for the frontend:
// CSV parsing, price quotes, templates, batch submission with step
// progress, history, and the wallet session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/carlton-source/sbtc-batch-lib/internal/contract"
	historydb "github.com/carlton-source/sbtc-batch-lib/internal/database"
	"github.com/carlton-source/sbtc-batch-lib/internal/price"
	"github.com/carlton-source/sbtc-batch-lib/internal/storage"
	"github.com/carlton-source/sbtc-batch-lib/internal/wallet"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
	"github.com/carlton-source/sbtc-batch-lib/lib/progress"
)

type API struct {
	Contract contract.Client
	Wallet   *wallet.Connector
	Price    *price.Poller
	Store    *storage.Store
	Progress *progress.Controller
}

func NewAPI(client contract.Client, connector *wallet.Connector, poller *price.Poller,
	store *storage.Store, controller *progress.Controller) *API {
	return &API{
		Contract: client,
		Wallet:   connector,
		Price:    poller,
		Store:    store,
		Progress: controller,
	}
}

// NewChainSubmitter adapts the contract client to one submission run, for
// callers outside the HTTP layer.
func NewChainSubmitter(client contract.Client, sender string, mock bool) progress.Submitter {
	return &chainSubmitter{client: client, sender: sender, mock: mock}
}

// chainSubmitter adapts the contract client to one submission run.
type chainSubmitter struct {
	client contract.Client
	sender string
	mock   bool
}

func (cs *chainSubmitter) Validate(ctx context.Context, recipients []batch.TxRecipient) error {
	result, err := cs.client.ValidateBatch(ctx, recipients, cs.sender)
	if err != nil {
		return err
	}
	if !result.Valid {
		switch {
		case result.RecipientCount == 0:
			return errors.New(contract.ParseContractError(100))
		case hasZeroAmount(recipients):
			return errors.New(contract.ParseContractError(102))
		default:
			return errors.New(contract.ParseContractError(101))
		}
	}
	return nil
}

func (cs *chainSubmitter) Submit(ctx context.Context, recipients []batch.TxRecipient) (string, error) {
	var result contract.TxResult
	var err error
	if cs.mock {
		result, err = cs.client.BatchTransferMock(ctx, recipients, cs.sender)
	} else {
		result, err = cs.client.BatchTransferSBTC(ctx, recipients, cs.sender)
	}
	if err != nil {
		return "", err
	}
	return result.TxID, nil
}

// storageResendPayload converts a recorded batch into the staged resend
// shape, amounts back in plain sats.
func storageResendPayload(record *historydb.BatchRecord) storage.ResendPayload {
	payload := storage.ResendPayload{SourceBatch: record.ID}
	for _, r := range record.Recipients {
		payload.Recipients = append(payload.Recipients, batch.TemplateRecipient{
			Address: r.Address,
			Amount:  strconv.FormatInt(r.AmountSats, 10),
			Unit:    batch.UnitSats,
		})
	}
	return payload
}

func hasZeroAmount(recipients []batch.TxRecipient) bool {
	for _, r := range recipients {
		if r.AmountSats <= 0 {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error(), Kind: kind})
}

// toTxRecipients normalizes request rows to base units, dropping rows that
// fail validation.
func toTxRecipients(inputs []RecipientInput) ([]batch.TxRecipient, error) {
	out := make([]batch.TxRecipient, 0, len(inputs))
	for i, in := range inputs {
		if !batch.ValidAddress(in.Address) {
			return nil, fmt.Errorf("recipient %d: invalid address", i+1)
		}
		if !batch.ValidAmount(in.Amount) {
			return nil, fmt.Errorf("recipient %d: invalid amount", i+1)
		}
		out = append(out, batch.TxRecipient{
			Address:    in.Address,
			AmountSats: batch.ToBaseUnits(in.Amount, in.Unit),
		})
	}
	return out, nil
}
