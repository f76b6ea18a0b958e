package blockchain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// anchorSelector is the 4-byte selector of anchor(bytes32,bytes32).
var anchorSelector = func() [4]byte {
	var sel [4]byte
	d := Digest([]byte("anchor(bytes32,bytes32)"))
	copy(sel[:], d[:4])
	return sel
}()

// RPCWriter submits anchor calls through a node's eth_sendTransaction.
type RPCWriter struct {
	httpURL      string
	fromAddress  string
	contractAddr string
	gasLimit     uint64
	httpClient   *http.Client
}

func NewRPCWriter(httpURL, fromAddress, contractAddr string, gasLimit uint64) (*RPCWriter, error) {
	if strings.TrimSpace(httpURL) == "" {
		return nil, fmt.Errorf("missing CHAIN_HTTP_RPC")
	}
	if !addressPattern.MatchString(strings.TrimSpace(fromAddress)) {
		return nil, fmt.Errorf("invalid CHAIN_WRITER_FROM_ADDRESS")
	}
	if !addressPattern.MatchString(strings.TrimSpace(contractAddr)) {
		return nil, fmt.Errorf("invalid EVENT_ANCHOR_CONTRACT")
	}
	if gasLimit == 0 {
		gasLimit = 200000
	}
	return &RPCWriter{
		httpURL:      strings.TrimSpace(httpURL),
		fromAddress:  strings.TrimSpace(fromAddress),
		contractAddr: strings.TrimSpace(contractAddr),
		gasLimit:     gasLimit,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
	}, nil
}

func (w *RPCWriter) AnchorEvent(ctx context.Context, eventID string, digest [32]byte) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(eventID))
	if err != nil {
		return "", fmt.Errorf("invalid event id %q: %w", eventID, err)
	}
	txObj := map[string]string{
		"from":  w.fromAddress,
		"to":    w.contractAddr,
		"gas":   fmt.Sprintf("0x%x", w.gasLimit),
		"data":  "0x" + hex.EncodeToString(AnchorCalldata(id, digest)),
		"value": "0x0",
	}

	var txHash string
	if err := w.rpc(ctx, "eth_sendTransaction", []any{txObj}, &txHash); err != nil {
		return "", err
	}
	if !strings.HasPrefix(txHash, "0x") {
		return "", fmt.Errorf("invalid tx hash response")
	}
	return txHash, nil
}

// AnchorCalldata encodes anchor(eventId, digest) with the uuid left-padded
// into the first word.
func AnchorCalldata(eventID uuid.UUID, digest [32]byte) []byte {
	out := make([]byte, 0, 4+64)
	out = append(out, anchorSelector[:]...)
	var word [32]byte
	copy(word[16:], eventID[:])
	out = append(out, word[:]...)
	out = append(out, digest[:]...)
	return out
}

func (w *RPCWriter) rpc(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.httpURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}

	var payload struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("rpc %s: decode: %w", method, err)
	}
	if payload.Error != nil {
		return fmt.Errorf("rpc error %d: %s", payload.Error.Code, payload.Error.Message)
	}
	if len(payload.Result) == 0 {
		return fmt.Errorf("rpc empty result")
	}
	return json.Unmarshal(payload.Result, out)
}
