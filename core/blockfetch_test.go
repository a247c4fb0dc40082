package core

import (
	"context"
	"encoding/hex"
	"testing"
)

// mockNodeClient serves a small in-memory chain keyed by height, enough
// surface to drive FetchHeight and ScanRange without a real node (spec.md
// §4.3's NodeClient interface is exactly the seam this exploits).
type mockNodeClient struct {
	blocks map[uint32]*Block
}

func newMockNodeClient() *mockNodeClient {
	return &mockNodeClient{blocks: make(map[uint32]*Block)}
}

func (m *mockNodeClient) TipHeight(ctx context.Context) (uint32, error) {
	var max uint32
	for h := range m.blocks {
		if h > max {
			max = h
		}
	}
	return max, nil
}

func (m *mockNodeClient) BlockHash(ctx context.Context, height uint32) (string, error) {
	return hex.EncodeToString([]byte{byte(height)}), nil
}

func (m *mockNodeClient) GetBlock(ctx context.Context, hash string) (*Block, error) {
	b, err := hex.DecodeString(hash)
	if err != nil || len(b) != 1 {
		return &Block{}, nil
	}
	height := uint32(b[0])
	if block, ok := m.blocks[height]; ok {
		return block, nil
	}
	return &Block{Height: height}, nil
}

func (m *mockNodeClient) RawTx(ctx context.Context, txid string) (string, error) { return "", nil }

func (m *mockNodeClient) CommitmentTreeState(ctx context.Context, height uint32) (*CommitmentTreeState, error) {
	return &CommitmentTreeState{Height: height}, nil
}

func (m *mockNodeClient) NotePosition(ctx context.Context, cmx [32]byte) (uint32, error) {
	return 0, nil
}

func (m *mockNodeClient) AuthPath(ctx context.Context, position uint32, anchor Anchor) (*AuthPath, error) {
	return &AuthPath{Position: position}, nil
}

func (m *mockNodeClient) FeeEstimate(ctx context.Context) (*FeeEstimate, error) {
	return &FeeEstimate{}, nil
}

func (m *mockNodeClient) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	return "broadcasttxid", nil
}

func hexField(b []byte) string { return hex.EncodeToString(b) }

// blockActionFor builds a real hex-encoded BlockAction from a ParsedTx
// fixture built by buildParsedTx, filling the fields FetchHeight does not
// exercise cryptographically (cv, rk, outCiphertext) with fixed-length
// zero bytes.
func blockActionFor(action ParsedAction) BlockAction {
	full := make([]byte, encCiphertextLen)
	copy(full, action.CompactEnc[:])
	return BlockAction{
		Nullifier:     hexField(action.Nullifier[:]),
		Cmx:           hexField(action.Cmx[:]),
		EphemeralKey:  hexField(action.EphemeralKey[:]),
		EncCiphertext: hexField(full),
		OutCiphertext: hexField(make([]byte, outCiphertextLen)),
		Cv:            hexField(make([]byte, cvLen)),
		Rk:            hexField(make([]byte, rkLen)),
	}
}

func (m *mockNodeClient) addBlock(height uint32, txs ...ParsedTx) {
	block := &Block{Height: height}
	for _, tx := range txs {
		bt := BlockTx{Txid: tx.Txid, RawHex: tx.RawHex}
		for _, a := range tx.Actions {
			bt.Orchard.Actions = append(bt.Orchard.Actions, blockActionFor(a))
		}
		block.Tx = append(block.Tx, bt)
	}
	m.blocks[height] = block
}

func TestFetchHeightExtractsOrchardActions(t *testing.T) {
	fvk, _ := testFVK(t)
	recipient, _ := AddressAt(fvk, ScopeExternal, 0)
	tx := buildParsedTx(100, "tx1", recipient, 1234, 7)

	node := newMockNodeClient()
	node.addBlock(100, tx)

	txs, err := FetchHeight(context.Background(), node, 100)
	if err != nil {
		t.Fatalf("fetch height: %v", err)
	}
	if len(txs) != 1 || len(txs[0].Actions) != 1 {
		t.Fatalf("expected 1 tx with 1 action, got %+v", txs)
	}
	if txs[0].Actions[0].Cmx != tx.Actions[0].Cmx {
		t.Fatal("extracted cmx does not match the fixture")
	}
}

func TestFetchHeightSkipsMalformedAction(t *testing.T) {
	node := newMockNodeClient()
	node.blocks[100] = &Block{
		Height: 100,
		Tx: []BlockTx{{
			Txid: "tx1",
			Orchard: struct {
				Actions []BlockAction `json:"actions"`
			}{Actions: []BlockAction{{Nullifier: "not-hex"}}},
		}},
	}

	txs, err := FetchHeight(context.Background(), node, 100)
	if err != nil {
		t.Fatalf("fetch height: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected the malformed-action tx to be dropped entirely, got %+v", txs)
	}
}

func TestFetchHeightEmptyBlock(t *testing.T) {
	node := newMockNodeClient()
	node.blocks[100] = &Block{Height: 100}

	txs, err := FetchHeight(context.Background(), node, 100)
	if err != nil {
		t.Fatalf("fetch height: %v", err)
	}
	if txs == nil || len(txs) != 0 {
		t.Fatalf("expected a non-nil empty slice, got %+v", txs)
	}
}

func TestScanRangeIntegration(t *testing.T) {
	fvk, nk := testFVK(t)
	recipient, _ := AddressAt(fvk, ScopeExternal, 0)

	node := newMockNodeClient()
	node.addBlock(100, buildParsedTx(100, "tx1", recipient, 1000, 1))
	node.addBlock(101, buildParsedTx(101, "tx2", recipient, 2000, 2))

	result, err := ScanRange(context.Background(), node, fvk, nk, 100, 101, nil)
	if err != nil {
		t.Fatalf("scan range: %v", err)
	}
	if len(result.Notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(result.Notes))
	}
	if result.ToHeight != 101 {
		t.Fatalf("expected ToHeight 101, got %d", result.ToHeight)
	}
}
