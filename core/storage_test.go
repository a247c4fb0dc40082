package core

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadSeedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.dat")

	blob := NewSeedBlob(testMnemonic)
	if err := SaveSeed(path, blob, "correct horse", false); err != nil {
		t.Fatalf("save seed: %v", err)
	}

	loaded, err := LoadSeed(path, "correct horse")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if loaded.Mnemonic != testMnemonic {
		t.Fatalf("mnemonic mismatch after round trip: got %q", loaded.Mnemonic)
	}
	if loaded.Version != seedBlobVersion {
		t.Fatalf("expected version %d, got %d", seedBlobVersion, loaded.Version)
	}
}

func TestLoadSeedWrongPassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.dat")

	blob := NewSeedBlob(testMnemonic)
	if err := SaveSeed(path, blob, "correct horse", false); err != nil {
		t.Fatalf("save seed: %v", err)
	}

	_, err := LoadSeed(path, "wrong password")
	if err == nil {
		t.Fatal("expected decryption to fail with the wrong password")
	}
	we, ok := err.(*WalletError)
	if !ok || we.Tag != ErrDecryption {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestSaveSeedRefusesOverwriteByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.dat")

	blob := NewSeedBlob(testMnemonic)
	if err := SaveSeed(path, blob, "pw", false); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := SaveSeed(path, blob, "pw", false); err == nil {
		t.Fatal("expected second save without overwrite=true to fail")
	}
	if err := SaveSeed(path, blob, "pw", true); err != nil {
		t.Fatalf("save with overwrite=true should succeed: %v", err)
	}
}
