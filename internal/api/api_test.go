package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlton-source/sbtc-batch-lib/internal/contract"
	historydb "github.com/carlton-source/sbtc-batch-lib/internal/database"
	"github.com/carlton-source/sbtc-batch-lib/internal/price"
	"github.com/carlton-source/sbtc-batch-lib/internal/storage"
	"github.com/carlton-source/sbtc-batch-lib/internal/wallet"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
	"github.com/carlton-source/sbtc-batch-lib/lib/progress"
)

const testnetAddr = "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ"

type fakeClient struct {
	submitErr error
	txID      string
	gate      chan struct{}
	delay     time.Duration
}

func (f *fakeClient) ValidateBatch(ctx context.Context, recipients []batch.TxRecipient, sender string) (contract.BatchValidation, error) {
	valid := len(recipients) > 0 && len(recipients) <= 200
	for _, r := range recipients {
		if r.AmountSats <= 0 {
			valid = false
		}
	}
	return contract.BatchValidation{
		Valid:          valid,
		RecipientCount: len(recipients),
		TotalAmount:    contract.Total(recipients),
	}, nil
}

func (f *fakeClient) CalculateBatchTotal(ctx context.Context, recipients []batch.TxRecipient, sender string) (int64, error) {
	return contract.Total(recipients), nil
}

func (f *fakeClient) GetSenderStats(ctx context.Context, sender string) (contract.SenderStats, error) {
	return contract.SenderStats{TotalBatches: 2}, nil
}

func (f *fakeClient) GetContractInfo(ctx context.Context, sender string) (contract.Info, error) {
	return contract.Info{MaxRecipients: 200, Version: "1.0.0"}, nil
}

func (f *fakeClient) GetRecipientReceived(ctx context.Context, recipient, sender string) (int64, error) {
	return 0, nil
}

func (f *fakeClient) GetMockBalance(ctx context.Context, address, sender string) (int64, error) {
	return 0, nil
}

func (f *fakeClient) submit() (contract.TxResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.submitErr != nil {
		return contract.TxResult{}, f.submitErr
	}
	return contract.TxResult{TxID: f.txID}, nil
}

func (f *fakeClient) BatchTransferSBTC(ctx context.Context, recipients []batch.TxRecipient, sender string) (contract.TxResult, error) {
	return f.submit()
}

func (f *fakeClient) BatchTransferMock(ctx context.Context, recipients []batch.TxRecipient, sender string) (contract.TxResult, error) {
	return f.submit()
}

func (f *fakeClient) MintMockSBTC(ctx context.Context, amount int64, recipient string) (contract.TxResult, error) {
	return f.submit()
}

type fakeProvider struct{}

func (fakeProvider) Connect(ctx context.Context, walletID string) (wallet.Session, error) {
	return wallet.Session{Address: testnetAddr, WalletID: walletID}, nil
}

func (fakeProvider) Disconnect(ctx context.Context) error { return nil }

func newTestAPI(t *testing.T, client contract.Client) *API {
	t.Helper()
	require.NoError(t, historydb.InitSQLiteDB(filepath.Join(t.TempDir(), "history.db")))
	store, err := storage.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	connector := wallet.NewConnector(fakeProvider{}, store, "testnet")
	_, err = connector.Connect(context.Background(), "leather")
	require.NoError(t, err)

	poller := price.NewPoller(price.Config{FeedURL: "http://127.0.0.1:1", MaxRetries: 1})
	controller := progress.NewController(nil)
	return NewAPI(client, connector, poller, store, controller)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestAuthFlow(t *testing.T) {
	viper.Set("api_key", "secret")
	require.NoError(t, InitJWTKey())
	s := newTestAPI(t, &fakeClient{})

	w := postJSON(t, s.HandleAuth, AuthRequest{APIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, s.HandleAuth, AuthRequest{APIKey: "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	// the issued token passes the middleware
	called := false
	protected := s.JWTMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	protected(rec, req)
	assert.True(t, called)

	// and a junk token does not
	called = false
	req.Header.Set("Authorization", "Bearer junk")
	rec = httptest.NewRecorder()
	protected(rec, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleParseCSV(t *testing.T) {
	s := newTestAPI(t, &fakeClient{})

	w := postJSON(t, s.HandleParseCSV, ParseCSVRequest{
		Text: testnetAddr + ",500000\nbad-address,1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ParseCSVResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Valid)
	assert.Equal(t, 1, resp.Invalid)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Invalid address format", resp.Rows[1].Error)
}

func TestHandleSubmitRecordsHistory(t *testing.T) {
	s := newTestAPI(t, &fakeClient{txID: "0xfeed"})

	w := postJSON(t, s.HandleSubmit, SubmitRequest{
		Recipients: []RecipientInput{
			{Address: testnetAddr, Amount: "500000", Unit: batch.UnitSats},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0xfeed", resp.TxID)
	assert.Equal(t, historydb.StatusPending, resp.Status)

	record, err := historydb.GetBatch(resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", record.TxID)
	assert.Equal(t, int64(500000), record.TotalSats)
}

func TestHandleSubmitRejectsBadRecipient(t *testing.T) {
	s := newTestAPI(t, &fakeClient{txID: "0x1"})

	w := postJSON(t, s.HandleSubmit, SubmitRequest{
		Recipients: []RecipientInput{{Address: "nope", Amount: "1", Unit: batch.UnitSats}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSubmitConflictWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{txID: "0x1", gate: gate}
	s := newTestAPI(t, client)

	firstDone := make(chan int, 1)
	go func() {
		w := postJSON(t, s.HandleSubmit, SubmitRequest{
			Recipients: []RecipientInput{{Address: testnetAddr, Amount: "100", Unit: batch.UnitSats}},
		})
		firstDone <- w.Code
	}()

	for {
		snap := s.Progress.Snapshot()
		if snap.Running {
			break
		}
	}

	w := postJSON(t, s.HandleSubmit, SubmitRequest{
		Recipients: []RecipientInput{{Address: testnetAddr, Amount: "100", Unit: batch.UnitSats}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	close(gate)
	assert.Equal(t, http.StatusOK, <-firstDone)
}

func TestHandleSubmitClassifiesWalletRejection(t *testing.T) {
	s := newTestAPI(t, &fakeClient{submitErr: errors.New("User canceled the request")})

	w := postJSON(t, s.HandleSubmit, SubmitRequest{
		Recipients: []RecipientInput{{Address: testnetAddr, Amount: "100", Unit: batch.UnitSats}},
	})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(progress.FailureCancelled), resp.Kind)
}

func TestHandleSubmitOutlastsServerWriteTimeout(t *testing.T) {
	// the wallet approval wait must survive a server write deadline shorter
	// than the signing flow
	s := newTestAPI(t, &fakeClient{txID: "0xslow", delay: 400 * time.Millisecond})

	srv := httptest.NewUnstartedServer(http.HandlerFunc(s.HandleSubmit))
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	defer srv.Close()

	body, err := json.Marshal(SubmitRequest{
		Recipients: []RecipientInput{{Address: testnetAddr, Amount: "100", Unit: batch.UnitSats}},
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "0xslow", out.TxID)
}

func TestHandleProgressStream(t *testing.T) {
	s := newTestAPI(t, &fakeClient{txID: "0xstream"})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/?stream=1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.HandleProgress(w, req)
		close(done)
	}()

	// a run publishes transitions into the open stream
	postJSON(t, s.HandleSubmit, SubmitRequest{
		Recipients: []RecipientInput{{Address: testnetAddr, Amount: "100", Unit: batch.UnitSats}},
	})

	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.NotEmpty(t, events)
	for _, event := range events {
		var snap progress.Snapshot
		require.True(t, strings.HasPrefix(event, "data: "), event)
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(event, "data: ")), &snap))
	}
}

func TestResendHandOff(t *testing.T) {
	s := newTestAPI(t, &fakeClient{txID: "0xresend"})

	w := postJSON(t, s.HandleSubmit, SubmitRequest{
		Recipients: []RecipientInput{{Address: testnetAddr, Amount: "250000", Unit: batch.UnitSats}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var submitted SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))

	// the submit run must be acknowledged before the next one
	s.Progress.Finish()

	w = postJSON(t, s.HandleResend, ResendRequest{BatchID: submitted.BatchID})
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, s.HandleResendTake, struct{}{})
	require.Equal(t, http.StatusOK, w.Code)

	var payload storage.ResendPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, submitted.BatchID, payload.SourceBatch)
	require.Len(t, payload.Recipients, 1)
	assert.Equal(t, "250000", payload.Recipients[0].Amount)

	// one-shot: the second take finds nothing
	w = postJSON(t, s.HandleResendTake, struct{}{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDateRange(t *testing.T) {
	s := newTestAPI(t, &fakeClient{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.HandleDateRange(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postJSON(t, s.HandleDateRange, storage.DateRange{Start: "2026-08-01", End: "2026-08-30"})
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	s.HandleDateRange(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var rng storage.DateRange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rng))
	assert.Equal(t, "2026-08-01", rng.Start)

	w = postJSON(t, s.HandleDateRange, storage.DateRange{Start: "not-a-date"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	w = httptest.NewRecorder()
	s.HandleDateRange(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleCSVTemplate(t *testing.T) {
	s := newTestAPI(t, &fakeClient{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.HandleCSVTemplate(w, req)

	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "address,amount_sats")
}

func TestHandleTemplatesCRUD(t *testing.T) {
	s := newTestAPI(t, &fakeClient{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.HandleTemplates(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var templates []batch.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &templates))
	builtins := len(templates)
	assert.Equal(t, 3, builtins)

	w = postJSON(t, s.HandleTemplates, TemplateRequest{
		Name: "Team",
		Recipients: []RecipientInput{
			{Address: testnetAddr, Amount: "100", Unit: batch.UnitSats},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var created batch.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w2 := httptest.NewRecorder()
	s.HandleTemplates(w2, req)
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &templates))
	assert.Len(t, templates, builtins+1)

	w3 := postJSON(t, s.HandleDeleteTemplate, DeleteTemplateRequest{ID: created.ID})
	assert.Equal(t, http.StatusNoContent, w3.Code)

	w3 = postJSON(t, s.HandleDeleteTemplate, DeleteTemplateRequest{ID: "missing"})
	assert.Equal(t, http.StatusNotFound, w3.Code)
}
