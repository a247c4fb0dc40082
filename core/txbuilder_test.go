package core

import (
	"context"
	"testing"
)

func spendableNoteOf(value uint64, nullifierByte byte, recipient [43]byte, sk OrchardSpendingKey) SpendableNote {
	var nf [32]byte
	nf[0] = nullifierByte
	return SpendableNote{
		OrchardNote: OrchardNote{
			Value:            value,
			RecipientAddress: recipient,
			Nullifier:        nf,
		},
		SpendingKey: sk,
	}
}

func TestBuildTransactionSuccessWithChange(t *testing.T) {
	seed, err := SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	sk, err := DeriveOrchard(seed, 0)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	fvk := sk.FVK()
	ownAddr, err := AddressAt(fvk, ScopeExternal, 0)
	if err != nil {
		t.Fatalf("address: %v", err)
	}

	otherSeed, _ := SeedFromMnemonic(testMnemonic, "recipient")
	otherSK, _ := DeriveOrchard(otherSeed, 0)
	recipientRaw, err := AddressAt(otherSK.FVK(), ScopeExternal, 0)
	if err != nil {
		t.Fatalf("recipient address: %v", err)
	}

	notes := []SpendableNote{spendableNoteOf(10_000, 1, ownAddr, *sk)}
	node := newMockNodeClient()
	node.addBlock(1) // establishes a tip at height 1 with no transactions

	result, err := BuildTransaction(context.Background(), node, BuildTransactionRequest{
		Notes:        notes,
		RecipientRaw: recipientRaw,
		AmountZat:    5_000,
		FeeZat:       1_000,
		ChangeFVK:    fvk,
		ChangeScope:  ScopeInternal,
	})
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}
	if !result.Broadcast {
		t.Fatal("expected broadcast to succeed against the mock node")
	}
	if result.Record.Change != 4_000 {
		t.Fatalf("expected change 4000 (10000-5000-1000), got %d", result.Record.Change)
	}
	if len(result.Record.SpentNullifiers) != 1 {
		t.Fatalf("expected 1 spent nullifier recorded, got %d", len(result.Record.SpentNullifiers))
	}
	if result.Txid == "" {
		t.Fatal("expected a non-empty txid")
	}
}

func TestBuildTransactionInsufficientFunds(t *testing.T) {
	seed, _ := SeedFromMnemonic(testMnemonic, "")
	sk, _ := DeriveOrchard(seed, 0)
	fvk := sk.FVK()
	ownAddr, _ := AddressAt(fvk, ScopeExternal, 0)

	otherSeed, _ := SeedFromMnemonic(testMnemonic, "recipient")
	otherSK, _ := DeriveOrchard(otherSeed, 0)
	recipientRaw, _ := AddressAt(otherSK.FVK(), ScopeExternal, 0)

	notes := []SpendableNote{spendableNoteOf(100, 1, ownAddr, *sk)}
	node := newMockNodeClient()
	node.addBlock(1)

	_, err := BuildTransaction(context.Background(), node, BuildTransactionRequest{
		Notes:        notes,
		RecipientRaw: recipientRaw,
		AmountZat:    5_000,
		FeeZat:       1_000,
		ChangeFVK:    fvk,
		ChangeScope:  ScopeInternal,
	})
	if err == nil {
		t.Fatal("expected InsufficientFunds error")
	}
	we, ok := err.(*WalletError)
	if !ok || we.Tag != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestBuildTransactionRejectsTransparentReceiver(t *testing.T) {
	seed, _ := SeedFromMnemonic(testMnemonic, "")
	sk, _ := DeriveOrchard(seed, 0)
	fvk := sk.FVK()
	ownAddr, _ := AddressAt(fvk, ScopeExternal, 0)

	notes := []SpendableNote{spendableNoteOf(10_000, 1, ownAddr, *sk)}
	// The zero-value raw receiver simulates a caller that never obtained a
	// valid Orchard receiver (e.g. decode of a transparent address, which
	// DecodeAddress rejects before this function ever sees it).
	var zeroReceiver [43]byte

	callCountNode := &countingNodeClient{mockNodeClient: newMockNodeClient()}
	_, err := BuildTransaction(context.Background(), callCountNode, BuildTransactionRequest{
		Notes:        notes,
		RecipientRaw: zeroReceiver,
		AmountZat:    5_000,
		FeeZat:       1_000,
		ChangeFVK:    fvk,
		ChangeScope:  ScopeInternal,
	})
	if err == nil {
		t.Fatal("expected the transparent/invalid receiver to be rejected")
	}
	we, ok := err.(*WalletError)
	if !ok || we.Tag != ErrAddressParsing {
		t.Fatalf("expected ErrAddressParsing, got %v", err)
	}
	if callCountNode.calls != 0 {
		t.Fatalf("expected zero node calls before the policy check rejects, got %d", callCountNode.calls)
	}
}

// countingNodeClient wraps mockNodeClient to assert the policy check in
// BuildTransaction's step 1 runs before any node RPC (spec.md §4.7 S6).
type countingNodeClient struct {
	*mockNodeClient
	calls int
}

func (c *countingNodeClient) TipHeight(ctx context.Context) (uint32, error) {
	c.calls++
	return c.mockNodeClient.TipHeight(ctx)
}
