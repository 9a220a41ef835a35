package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carlton-source/sbtc-batch-lib/internal/contract"
	historydb "github.com/carlton-source/sbtc-batch-lib/internal/database"
	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
	"github.com/carlton-source/sbtc-batch-lib/internal/storage"
	"github.com/carlton-source/sbtc-batch-lib/internal/wallet"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
	"github.com/carlton-source/sbtc-batch-lib/lib/progress"
)

// HandleParseCSV validates pasted recipient text row by row.
func (s *API) HandleParseCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req ParseCSVRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rows := batch.ParseCSV(req.Text)
	resp := ParseCSVResponse{Rows: rows}
	for _, row := range rows {
		if row.Valid {
			resp.Valid++
		} else {
			resp.Invalid++
		}
	}
	writeJSON(w, resp)
}

// HandleCSVTemplate serves the downloadable starter CSV.
func (s *API) HandleCSVTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="batch_template.csv"`)
	fmt.Fprint(w, batch.TemplateCSV())
}

// HandlePrice returns the cached BTC quote.
func (s *API) HandlePrice(w http.ResponseWriter, r *http.Request) {
	quote, err := s.Price.Quote()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err, "")
		return
	}
	writeJSON(w, quote)
}

// HandleTemplates lists built-in plus custom templates, or saves a new
// custom one.
func (s *API) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		custom, err := s.Store.LoadTemplates()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
		writeJSON(w, append(batch.BuiltinTemplates(), custom...))

	case http.MethodPost:
		var req TemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "Template name is required", http.StatusBadRequest)
			return
		}

		recipients := make([]batch.Recipient, 0, len(req.Recipients))
		for _, in := range req.Recipients {
			recipients = append(recipients, batch.Recipient{
				Address: in.Address, Amount: in.Amount, Unit: in.Unit,
			})
		}
		tmpl := batch.NewTemplate(req.Name, req.Description, recipients)

		custom, err := s.Store.LoadTemplates()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
		if err := s.Store.SaveTemplates(append(custom, tmpl)); err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
		writeJSON(w, tmpl)

	default:
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
	}
}

// HandleDeleteTemplate removes a custom template by id. Built-in templates
// cannot be deleted.
func (s *API) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req DeleteTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	custom, err := s.Store.LoadTemplates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}

	kept := make([]batch.Template, 0, len(custom))
	for _, t := range custom {
		if t.ID != req.ID {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(custom) {
		http.Error(w, "Template not found", http.StatusNotFound)
		return
	}

	if err := s.Store.SaveTemplates(kept); err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleValidateBatch runs the read-only pre-flight check.
func (s *API) HandleValidateBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	recipients, err := toTxRecipients(req.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	sender := s.currentSender()
	result, err := s.Contract.ValidateBatch(r.Context(), recipients, sender)
	if err != nil {
		writeJSON(w, ValidateResponse{Message: err.Error()})
		return
	}
	writeJSON(w, ValidateResponse{
		Valid:          result.Valid,
		RecipientCount: result.RecipientCount,
		TotalAmount:    result.TotalAmount,
	})
}

// HandleSubmit runs the full submission flow. A second submission while one
// is in flight gets 409.
func (s *API) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := s.Wallet.Current()
	if err != nil {
		writeError(w, http.StatusUnauthorized, err, "")
		return
	}

	recipients, err := toTxRecipients(req.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	// the sign step waits on wallet approval for minutes; the server-wide
	// write deadline must not close the connection mid-flow
	allowLongResponse(w)

	submitter := &chainSubmitter{client: s.Contract, sender: session.Address, mock: req.Mock}
	txID, err := s.Progress.Run(r.Context(), submitter, recipients)
	if err != nil {
		if errors.Is(err, progress.ErrInFlight) {
			writeError(w, http.StatusConflict, err, "")
			return
		}
		writeError(w, http.StatusBadGateway, err, string(progress.ClassifyFailure(err)))
		return
	}

	record, err := historydb.SaveBatch(txID, session.Address, recipients,
		batch.EstimateFee(contract.Total(recipients)), req.Mock)
	if err != nil {
		logger.Errorf("failed to record batch %s: %v", txID, err)
		writeJSON(w, SubmitResponse{TxID: txID, Status: historydb.StatusPending,
			Message: "submitted, but history recording failed"})
		return
	}

	writeJSON(w, SubmitResponse{TxID: txID, BatchID: record.ID, Status: record.Status})
}

// HandleProgress reports the submission flow state. With ?stream=1 the
// response is a server-sent-event stream of snapshots.
func (s *API) HandleProgress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("stream") == "1" {
			s.streamProgress(w, r)
			return
		}
		writeJSON(w, s.Progress.Snapshot())
	case http.MethodDelete:
		s.Progress.Finish()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
	}
}

// streamProgress pushes the current snapshot and then every step transition
// until the client goes away.
func (s *API) streamProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	allowLongResponse(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	writeEvent := func(snap progress.Snapshot) bool {
		data, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(s.Progress.Snapshot()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-s.Progress.Updates():
			if !writeEvent(snap) {
				return
			}
		}
	}
}

// HandleMint mints mock sBTC to the given recipient for testnet trials.
func (s *API) HandleMint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	recipient := req.Recipient
	if recipient == "" {
		session, err := s.Wallet.Current()
		if err != nil {
			writeError(w, http.StatusUnauthorized, err, "")
			return
		}
		recipient = session.Address
	}

	allowLongResponse(w)
	result, err := s.Contract.MintMockSBTC(r.Context(), req.Amount, recipient)
	if err != nil {
		writeError(w, http.StatusBadGateway, err, string(progress.ClassifyFailure(err)))
		return
	}
	writeJSON(w, result)
}

// HandleHistory lists recorded batches with filtering and pagination. When
// the query names no date range, the persisted selection applies.
func (s *API) HandleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	s.applySavedDateRange(r, &filter)

	records, total, err := historydb.ListBatches(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, map[string]interface{}{
		"batches": records,
		"total":   total,
	})
}

// HandleHistoryExport streams the filtered history as CSV.
func (s *API) HandleHistoryExport(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	filter.Page, filter.PageSize = 0, 0

	records, _, err := historydb.ListBatches(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="batch_history.csv"`)
	fmt.Fprint(w, batch.HistoryCSV(historydb.ExportRows(records)))
}

// HandleDateRange manages the shared history filter window.
func (s *API) HandleDateRange(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rng, ok, err := s.Store.LoadDateRange()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
		if !ok {
			http.Error(w, "No date range set", http.StatusNotFound)
			return
		}
		writeJSON(w, rng)

	case http.MethodPost:
		var rng storage.DateRange
		if err := json.NewDecoder(r.Body).Decode(&rng); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		for _, v := range []string{rng.Start, rng.End} {
			if v == "" {
				continue
			}
			if _, err := time.Parse("2006-01-02", v); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date %q", v), "")
				return
			}
		}
		if err := s.Store.SaveDateRange(rng); err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
		writeJSON(w, rng)

	case http.MethodDelete:
		if err := s.Store.ClearDateRange(); err != nil {
			writeError(w, http.StatusInternalServerError, err, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
	}
}

// applySavedDateRange fills an unset filter window from the persisted
// selection. Explicit query dates win.
func (s *API) applySavedDateRange(r *http.Request, filter *historydb.ListFilter) {
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		return
	}
	rng, ok, err := s.Store.LoadDateRange()
	if err != nil || !ok {
		return
	}
	if t, err := time.Parse("2006-01-02", rng.Start); err == nil {
		filter.From = t
	}
	if t, err := time.Parse("2006-01-02", rng.End); err == nil {
		filter.To = t.Add(24*time.Hour - time.Second)
	}
}

// HandleBatchStatus updates a recorded batch's settlement status.
func (s *API) HandleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case historydb.StatusPending, historydb.StatusConfirmed, historydb.StatusFailed:
	default:
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}

	if err := historydb.MarkBatchStatus(req.BatchID, req.Status); err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResend stages a past batch's recipients for a new submission.
func (s *API) HandleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := historydb.GetBatch(req.BatchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}

	payload := storageResendPayload(record)
	if err := s.Store.PutResend(payload); err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, payload)
}

// HandleResendTake consumes the staged resend payload. The hand-off is
// one-shot; a second call gets 404.
func (s *API) HandleResendTake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	payload, ok, err := s.Store.TakeResend()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if !ok {
		http.Error(w, "No resend staged", http.StatusNotFound)
		return
	}
	writeJSON(w, payload)
}

// HandleWallet reports the current session.
func (s *API) HandleWallet(w http.ResponseWriter, r *http.Request) {
	session, err := s.Wallet.Current()
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}
	writeJSON(w, session)
}

// HandleWalletConnect opens a wallet session.
func (s *API) HandleWalletConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	allowLongResponse(w)
	session, err := s.Wallet.Connect(r.Context(), req.WalletID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err, string(wallet.ClassifyError(err)))
		return
	}
	writeJSON(w, session)
}

// HandleWalletDisconnect tears down the wallet session.
func (s *API) HandleWalletDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	if err := s.Wallet.Disconnect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats merges on-chain sender stats with contract metadata.
func (s *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		address = s.currentSender()
	}
	if address == "" {
		http.Error(w, "No address given and no wallet connected", http.StatusBadRequest)
		return
	}

	stats, err := s.Contract.GetSenderStats(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusBadGateway, err, "")
		return
	}
	info, err := s.Contract.GetContractInfo(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusBadGateway, err, "")
		return
	}
	writeJSON(w, map[string]interface{}{
		"address":  address,
		"stats":    stats,
		"contract": info,
	})
}

// allowLongResponse lifts the connection write deadline for handlers whose
// upstream call can outlast the server's WriteTimeout, such as waiting for
// the user to approve a signature in the wallet.
func allowLongResponse(w http.ResponseWriter) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debugf("could not clear write deadline: %v", err)
	}
}

func (s *API) currentSender() string {
	session, err := s.Wallet.Current()
	if err != nil {
		return ""
	}
	return session.Address
}

func historyFilterFromQuery(r *http.Request) (historydb.ListFilter, error) {
	q := r.URL.Query()
	filter := historydb.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, fmt.Errorf("invalid from date: %v", err)
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, fmt.Errorf("invalid to date: %v", err)
		}
		filter.To = t.Add(24*time.Hour - time.Second)
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, fmt.Errorf("invalid page %q", v)
		}
		filter.Page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return filter, fmt.Errorf("invalid pageSize %q", v)
		}
		filter.PageSize = size
	}
	return filter, nil
}
