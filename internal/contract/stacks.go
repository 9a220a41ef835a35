package contract

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
	"github.com/carlton-source/sbtc-batch-lib/lib/batch"
)

// ErrNoSigner is returned from state-changing calls when no wallet is
// connected to sign them.
var ErrNoSigner = errors.New("no wallet connected")

// StacksConfig carries the contract identifiers and API endpoint for a
// StacksClient.
type StacksConfig struct {
	APIURL          string
	ContractAddress string
	ContractName    string
	SBTCContract    string
	MockContract    string
	MaxRecipients   int
}

// StacksClient talks to a Stacks node's read-only call endpoint and routes
// state-changing calls through the connected wallet's Signer.
type StacksClient struct {
	cfg    StacksConfig
	signer Signer
	client *http.Client
}

func NewStacksClient(cfg StacksConfig, signer Signer) *StacksClient {
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = 200
	}
	return &StacksClient{
		cfg:    cfg,
		signer: signer,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetSigner swaps the signing wallet, e.g. after a connect or disconnect.
func (c *StacksClient) SetSigner(signer Signer) {
	c.signer = signer
}

func (c *StacksClient) contractID() string {
	return c.cfg.ContractAddress + "." + c.cfg.ContractName
}

// callReadRequest/Response match the node's /v2/contracts/call-read wire
// shape. Arguments and result are hex-encoded serialized Clarity values.
type callReadRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type callReadResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// callRead performs one read-only contract call and decodes the result.
func (c *StacksClient) callRead(ctx context.Context, contractAddr, contractName, function, sender string, args [][]byte) (clarityValue, error) {
	hexArgs := make([]string, 0, len(args))
	for _, a := range args {
		hexArgs = append(hexArgs, "0x"+hex.EncodeToString(a))
	}
	if sender == "" {
		sender = contractAddr
	}

	body, err := json.Marshal(callReadRequest{Sender: sender, Arguments: hexArgs})
	if err != nil {
		return clarityValue{}, fmt.Errorf("failed to marshal call-read request: %v", err)
	}

	url := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s",
		c.cfg.APIURL, contractAddr, contractName, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return clarityValue{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return clarityValue{}, fmt.Errorf("failed to call %s: %v", function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return clarityValue{}, fmt.Errorf("call-read %s returned status %d", function, resp.StatusCode)
	}

	var parsed callReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return clarityValue{}, fmt.Errorf("failed to decode call-read response: %v", err)
	}
	if !parsed.Okay {
		return clarityValue{}, fmt.Errorf("call-read %s failed: %s", function, parsed.Cause)
	}

	raw, err := hex.DecodeString(trimHexPrefix(parsed.Result))
	if err != nil {
		return clarityValue{}, fmt.Errorf("bad result encoding: %v", err)
	}
	val, _, err := decodeClarity(raw)
	if err != nil {
		return clarityValue{}, fmt.Errorf("failed to decode result: %v", err)
	}
	return val, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// recipientsArg serializes the recipient list into the contract's
// (list 200 {amount: uint, to: principal}) argument.
func recipientsArg(recipients []batch.TxRecipient) ([]byte, error) {
	items := make([][]byte, 0, len(recipients))
	for _, r := range recipients {
		to, err := encodePrincipal(r.Address)
		if err != nil {
			return nil, err
		}
		items = append(items, encodeTuple(map[string][]byte{
			"amount": encodeUint(r.AmountSats),
			"to":     to,
		}))
	}
	return encodeList(items), nil
}

// responseErrCode extracts the contract error code from a response err
// value, or -1 if the value is not an error response.
func responseErrCode(v clarityValue) int {
	if v.Type != cvResponseErr || v.Inner == nil {
		return -1
	}
	return int(v.Inner.Uint)
}

// ValidateBatch runs the read-only validate-batch call. When the node is
// unreachable the same rules are applied locally so the pre-flight check
// still works offline.
func (c *StacksClient) ValidateBatch(ctx context.Context, recipients []batch.TxRecipient, sender string) (BatchValidation, error) {
	arg, err := recipientsArg(recipients)
	if err != nil {
		return BatchValidation{}, err
	}

	val, err := c.callRead(ctx, c.cfg.ContractAddress, c.cfg.ContractName, "validate-batch", sender, [][]byte{arg})
	if err != nil {
		logger.Warnf("validate-batch read failed, validating locally: %v", err)
		return c.validateLocally(recipients), nil
	}

	res := val.unwrap()
	if code := responseErrCode(res); code >= 0 {
		return BatchValidation{}, errors.New(ParseContractError(code))
	}
	return BatchValidation{
		Valid:          res.Tuple["valid"].Bool,
		RecipientCount: int(res.tupleUint("recipient-count")),
		TotalAmount:    res.tupleUint("total-amount"),
	}, nil
}

// validateLocally mirrors the contract's validate-batch rules.
func (c *StacksClient) validateLocally(recipients []batch.TxRecipient) BatchValidation {
	v := BatchValidation{
		RecipientCount: len(recipients),
		TotalAmount:    Total(recipients),
	}
	if len(recipients) == 0 || len(recipients) > c.cfg.MaxRecipients {
		return v
	}
	for _, r := range recipients {
		if r.AmountSats <= 0 {
			return v
		}
	}
	v.Valid = true
	return v
}

// CalculateBatchTotal asks the contract for the batch total, summing
// locally when the read fails.
func (c *StacksClient) CalculateBatchTotal(ctx context.Context, recipients []batch.TxRecipient, sender string) (int64, error) {
	arg, err := recipientsArg(recipients)
	if err != nil {
		return 0, err
	}

	val, err := c.callRead(ctx, c.cfg.ContractAddress, c.cfg.ContractName, "calculate-batch-total", sender, [][]byte{arg})
	if err != nil {
		logger.Warnf("calculate-batch-total read failed, summing locally: %v", err)
		return Total(recipients), nil
	}
	return val.unwrap().Uint, nil
}

// GetSenderStats reads a sender's aggregate batch activity. Zero stats are
// returned when the read fails or the sender has no history.
func (c *StacksClient) GetSenderStats(ctx context.Context, sender string) (SenderStats, error) {
	arg, err := encodePrincipal(sender)
	if err != nil {
		return SenderStats{}, err
	}

	val, err := c.callRead(ctx, c.cfg.ContractAddress, c.cfg.ContractName, "get-sender-stats", sender, [][]byte{arg})
	if err != nil {
		logger.Warnf("get-sender-stats read failed: %v", err)
		return SenderStats{}, nil
	}

	res := val.unwrap()
	if res.Type == cvOptionalNone {
		return SenderStats{}, nil
	}
	return SenderStats{
		TotalBatches:    res.tupleUint("total-batches"),
		TotalRecipients: res.tupleUint("total-recipients"),
		TotalAmount:     res.tupleUint("total-amount"),
	}, nil
}

// GetContractInfo reads the contract's self-reported limits, falling back
// to the configured defaults when the node is unreachable.
func (c *StacksClient) GetContractInfo(ctx context.Context, sender string) (Info, error) {
	val, err := c.callRead(ctx, c.cfg.ContractAddress, c.cfg.ContractName, "get-contract-info", sender, nil)
	if err != nil {
		logger.Warnf("get-contract-info read failed: %v", err)
		return Info{MaxRecipients: c.cfg.MaxRecipients, Version: "1.0.0"}, nil
	}

	res := val.unwrap()
	info := Info{
		MaxRecipients: int(res.tupleUint("max-recipients")),
		Version:       res.Tuple["version"].Str,
	}
	if info.MaxRecipients == 0 {
		info.MaxRecipients = c.cfg.MaxRecipients
	}
	if info.Version == "" {
		info.Version = "1.0.0"
	}
	return info, nil
}

// GetRecipientReceived reads the lifetime amount received by an address
// through the contract.
func (c *StacksClient) GetRecipientReceived(ctx context.Context, recipient, sender string) (int64, error) {
	arg, err := encodePrincipal(recipient)
	if err != nil {
		return 0, err
	}

	val, err := c.callRead(ctx, c.cfg.ContractAddress, c.cfg.ContractName, "get-recipient-received", sender, [][]byte{arg})
	if err != nil {
		logger.Warnf("get-recipient-received read failed: %v", err)
		return 0, nil
	}
	return val.unwrap().Uint, nil
}

// GetMockBalance reads an address's mock sBTC balance.
func (c *StacksClient) GetMockBalance(ctx context.Context, address, sender string) (int64, error) {
	addrCV, err := encodePrincipal(address)
	if err != nil {
		return 0, err
	}

	mockAddr, mockName, err := splitContractID(c.cfg.MockContract)
	if err != nil {
		return 0, err
	}

	val, err := c.callRead(ctx, mockAddr, mockName, "get-balance", sender, [][]byte{addrCV})
	if err != nil {
		logger.Warnf("get-balance read failed: %v", err)
		return 0, nil
	}
	return val.unwrap().Uint, nil
}

func splitContractID(id string) (string, string, error) {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return id[:i], id[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed contract id %q", id)
}

// BatchTransferSBTC submits the real sBTC batch through the wallet with an
// exact-spend post condition on the total.
func (c *StacksClient) BatchTransferSBTC(ctx context.Context, recipients []batch.TxRecipient, sender string) (TxResult, error) {
	return c.submitBatch(ctx, "batch-transfer-sbtc", c.cfg.SBTCContract, recipients, sender)
}

// BatchTransferMock submits the batch against the mock sBTC token.
func (c *StacksClient) BatchTransferMock(ctx context.Context, recipients []batch.TxRecipient, sender string) (TxResult, error) {
	return c.submitBatch(ctx, "batch-transfer-mock", c.cfg.MockContract, recipients, sender)
}

func (c *StacksClient) submitBatch(ctx context.Context, function, asset string, recipients []batch.TxRecipient, sender string) (TxResult, error) {
	if c.signer == nil {
		return TxResult{}, ErrNoSigner
	}

	total := Total(recipients)
	result, err := c.signer.CallContract(ctx, ContractCall{
		Contract:   c.contractID(),
		Function:   function,
		Recipients: recipients,
		PostConditions: []PostCondition{{
			Principal: sender,
			Amount:    total,
			Asset:     asset,
		}},
	})
	if err != nil {
		return TxResult{}, err
	}

	logger.Infof("submitted %s: %d recipients, %d sats, txid %s",
		function, len(recipients), total, result.TxID)
	return result, nil
}

// MintMockSBTC mints mock tokens to the recipient for testnet trials.
func (c *StacksClient) MintMockSBTC(ctx context.Context, amount int64, recipient string) (TxResult, error) {
	if c.signer == nil {
		return TxResult{}, ErrNoSigner
	}

	result, err := c.signer.CallContract(ctx, ContractCall{
		Contract:      c.cfg.MockContract,
		Function:      "mint",
		MintAmount:    amount,
		MintRecipient: recipient,
	})
	if err != nil {
		return TxResult{}, err
	}

	logger.Infof("minted %d mock sats to %s, txid %s", amount, recipient, result.TxID)
	return result, nil
}
