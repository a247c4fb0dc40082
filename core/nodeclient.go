package core

// Node Client Contract (C3, spec.md §4.3) and its JSON-RPC-over-HTTP
// implementation.
//
// RawRequest-as-swappable-function and the retry/backoff/logging shape are
// adapted from the zcash-lightwalletd `common` package (common.go's
// RawRequest variable and FirstRPC retry loop), generalized into a proper
// interface so tests can substitute a mock NodeClient instead of patching a
// package-level function.

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// CommitmentTreeState is the node's view of the Orchard commitment tree at
// a given height (spec.md §4.3).
type CommitmentTreeState struct {
	Height          uint32
	Anchor          Anchor
	CommitmentCount uint64
}

// BlockAction is the raw hex-field shape of one Orchard action as returned
// by the node's block RPC (spec.md §4.4).
type BlockAction struct {
	Nullifier     string `json:"nullifier"`
	Cmx           string `json:"cmx"`
	EphemeralKey  string `json:"ephemeralKey"`
	EncCiphertext string `json:"encCiphertext"`
	OutCiphertext string `json:"outCiphertext"`
	Cv            string `json:"cv"`
	Rk            string `json:"rk"`
}

// BlockTx is one transaction within a Block as returned by the node.
type BlockTx struct {
	Txid    string `json:"txid"`
	RawHex  string `json:"hex"`
	Orchard struct {
		Actions []BlockAction `json:"actions"`
	} `json:"orchard"`
}

// Block is the per-height block payload requested at verbosity >= 2
// (spec.md §4.3, §4.4).
type Block struct {
	Hash   string    `json:"hash"`
	Height uint32    `json:"height"`
	Tx     []BlockTx `json:"tx"`
}

// FeeEstimate is the node's fee_estimate() reply; the field name varies by
// deployment (spec.md §4.7), so ParseFeeZatoshis inspects all of them.
type FeeEstimate struct {
	Fee      json.Number `json:"fee"`
	FeeRate  json.Number `json:"feerate"`
	FeeRateB json.Number `json:"feeRate"`
	FeeRateC json.Number `json:"fee_rate"`
}

// NodeClient is the capability surface the core requires from the full
// node (spec.md §4.3).
type NodeClient interface {
	TipHeight(ctx context.Context) (uint32, error)
	BlockHash(ctx context.Context, height uint32) (string, error)
	GetBlock(ctx context.Context, hash string) (*Block, error)
	RawTx(ctx context.Context, txid string) (string, error)
	CommitmentTreeState(ctx context.Context, height uint32) (*CommitmentTreeState, error)
	NotePosition(ctx context.Context, cmx [32]byte) (uint32, error)
	AuthPath(ctx context.Context, position uint32, anchor Anchor) (*AuthPath, error)
	FeeEstimate(ctx context.Context) (*FeeEstimate, error)
	Broadcast(ctx context.Context, rawTx []byte) (string, error)
}

// RPCNodeClient is a JSON-RPC 2.0 client over HTTP(S).
type RPCNodeClient struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
}

// NormalizeNodeURL applies spec.md §6's scheme-inference rule: a bare
// host[:port] gets "https://" prepended when the port is 443, "http://"
// otherwise.
func NormalizeNodeURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasSuffix(raw, ":443") {
		return "https://" + raw
	}
	return "http://" + raw
}

// IsLocalNode reports whether host refers to the local machine, which
// governs the shorter RPC timeout (spec.md §5).
func IsLocalNode(rawURL string) bool {
	return strings.Contains(rawURL, "127.0.0.1") || strings.Contains(rawURL, "localhost")
}

// NewRPCNodeClient builds a client against rawURL, selecting the 10s local
// / 30s remote timeout class per spec.md §5.
func NewRPCNodeClient(rawURL string) *RPCNodeClient {
	url := NormalizeNodeURL(rawURL)
	timeout := 30 * time.Second
	if IsLocalNode(url) {
		timeout = 10 * time.Second
	}
	return &RPCNodeClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		timeout:    timeout,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// retry budget: up to 3 retries after the first attempt (4 attempts in
// all), 100/200/400ms backoff, transport errors only (spec.md §5).
var retryBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

func (c *RPCNodeClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return newErr(ErrNetworkError, "marshal rpc request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		if attempt > 0 {
			globalLogger.WithFields(log.Fields{"method": method, "attempt": attempt, "error": lastErr}).Warn("retrying node rpc call")
			select {
			case <-time.After(retryBackoff[attempt-1]):
			case <-ctx.Done():
				return newErr(ErrNetworkError, "rpc call cancelled", ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return newErr(ErrNetworkError, "build rpc request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue // transport error: connect/timeout/reset are retried
		}
		defer resp.Body.Close()

		var rr rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return newErr(ErrNetworkError, "decode rpc response", err)
		}
		if rr.Error != nil {
			// JSON-RPC error responses are not retried (spec.md §5, §7).
			return newErr(ErrNetworkError, fmt.Sprintf("rpc error %d: %s", rr.Error.Code, rr.Error.Message), nil)
		}
		if out != nil {
			if err := json.Unmarshal(rr.Result, out); err != nil {
				return newErr(ErrNetworkError, "unmarshal rpc result", err)
			}
		}
		return nil
	}
	return newErr(ErrNetworkError, "rpc call failed after retries", lastErr)
}

func (c *RPCNodeClient) TipHeight(ctx context.Context) (uint32, error) {
	var height uint32
	if err := c.call(ctx, "tip_height", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *RPCNodeClient) BlockHash(ctx context.Context, height uint32) (string, error) {
	var hash string
	if err := c.call(ctx, "block_hash", []interface{}{height}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

func (c *RPCNodeClient) GetBlock(ctx context.Context, hash string) (*Block, error) {
	var b Block
	if err := c.call(ctx, "block", []interface{}{hash, 2}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *RPCNodeClient) RawTx(ctx context.Context, txid string) (string, error) {
	var hexTx string
	if err := c.call(ctx, "raw_tx", []interface{}{txid}, &hexTx); err != nil {
		return "", err
	}
	return hexTx, nil
}

func (c *RPCNodeClient) CommitmentTreeState(ctx context.Context, height uint32) (*CommitmentTreeState, error) {
	var reply struct {
		Height          uint32 `json:"height"`
		Anchor          string `json:"anchor"`
		CommitmentCount uint64 `json:"commitment_count"`
	}
	if err := c.call(ctx, "commitment_tree_state", []interface{}{height}, &reply); err != nil {
		return nil, err
	}
	anchorBytes, err := hex.DecodeString(reply.Anchor)
	if err != nil || len(anchorBytes) != 32 {
		return nil, newErr(ErrCryptographic, "invalid anchor bytes", err)
	}
	var anchor Anchor
	copy(anchor[:], anchorBytes)
	return &CommitmentTreeState{Height: reply.Height, Anchor: anchor, CommitmentCount: reply.CommitmentCount}, nil
}

func (c *RPCNodeClient) NotePosition(ctx context.Context, cmx [32]byte) (uint32, error) {
	var position uint32
	if err := c.call(ctx, "note_position", []interface{}{hex.EncodeToString(cmx[:])}, &position); err != nil {
		return 0, err
	}
	return position, nil
}

func (c *RPCNodeClient) AuthPath(ctx context.Context, position uint32, anchor Anchor) (*AuthPath, error) {
	var siblingsHex []string
	if err := c.call(ctx, "auth_path", []interface{}{position, hex.EncodeToString(anchor[:])}, &siblingsHex); err != nil {
		return nil, err
	}
	if len(siblingsHex) != 32 {
		return nil, newErr(ErrCryptographic, "invalid auth path length", nil)
	}
	var path AuthPath
	path.Position = position
	for i, s := range siblingsHex {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != 32 {
			return nil, newErr(ErrCryptographic, "invalid auth path sibling bytes", err)
		}
		copy(path.Siblings[i][:], b)
	}
	return &path, nil
}

func (c *RPCNodeClient) FeeEstimate(ctx context.Context) (*FeeEstimate, error) {
	var fe FeeEstimate
	if err := c.call(ctx, "fee_estimate", nil, &fe); err != nil {
		return nil, err
	}
	return &fe, nil
}

func (c *RPCNodeClient) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	var txid string
	if err := c.call(ctx, "broadcast", []interface{}{hex.EncodeToString(rawTx)}, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// ParseFeeZatoshis extracts a zatoshi fee from a FeeEstimate, accepting any
// of the field-name variants a deployment might use, and falling back to
// the 10,000-zatoshi default on any parse failure (spec.md §4.7).
func ParseFeeZatoshis(fe *FeeEstimate, fallback uint64) uint64 {
	if fe == nil {
		return fallback
	}
	for _, n := range []json.Number{fe.Fee, fe.FeeRate, fe.FeeRateB, fe.FeeRateC} {
		if n == "" {
			continue
		}
		if f, err := n.Float64(); err == nil && f > 0 {
			// Values below 1 are assumed to be whole ZEC, not zatoshis.
			if f < 1 {
				return uint64(f * 1e8)
			}
			return uint64(f)
		}
	}
	return fallback
}
