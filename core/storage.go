package core

// Encrypted Storage (C2, spec.md §4.2).
//
// The AEAD shape (AES-GCM, random nonce prefixed to ciphertext) is lifted
// directly from the teacher's encrypt/decrypt pair
// (core/ai_secure_storage.go), generalized from a fixed symmetric key to a
// password-derived one via PBKDF2, the same "derive-then-AEAD" idiom the
// chapool-go-wallet seed manager uses for its BIP-39 seed derivation.

import (
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen        = 16
	nonceLen       = 12
	pbkdf2Rounds   = 200_000
	seedBlobVersion = 1
)

// SeedBlob is the JSON payload encrypted inside wallet.dat.
type SeedBlob struct {
	Mnemonic  string `json:"mnemonic"`
	CreatedAt int64  `json:"created_at"`
	Version   int    `json:"version"`
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, 32, sha256.New)
}

func aeadFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SaveSeed encrypts blob under password and atomically writes it to path.
// It errors if the file already exists, unless overwrite is true (the
// `restore` path explicitly opts into overwriting per spec.md §4.2).
func SaveSeed(path string, blob SeedBlob, password string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return newErr(ErrStorage, "wallet file already exists", nil)
		}
	}

	blob.Version = seedBlobVersion
	plain, err := json.Marshal(blob)
	if err != nil {
		return newErr(ErrStorage, "marshal seed blob", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(crand.Reader, salt); err != nil {
		return newErr(ErrStorage, "read random salt", err)
	}
	key := deriveKey(password, salt)

	gcm, err := aeadFor(key)
	if err != nil {
		return newErr(ErrStorage, "init cipher", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(crand.Reader, nonce); err != nil {
		return newErr(ErrStorage, "read random nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, plain, nil) // ciphertext || tag

	layout := make([]byte, 0, saltLen+nonceLen+len(sealed))
	layout = append(layout, salt...)
	layout = append(layout, nonce...)
	layout = append(layout, sealed...)

	return atomicWriteFile(path, []byte(hex.EncodeToString(layout)), 0o600)
}

// LoadSeed decrypts the wallet.dat at path with password.
func LoadSeed(path string, password string) (SeedBlob, error) {
	var blob SeedBlob

	raw, err := os.ReadFile(path)
	if err != nil {
		return blob, newErr(ErrStorage, "read wallet file", err)
	}
	layout, err := hex.DecodeString(string(raw))
	if err != nil {
		return blob, newErr(ErrStorage, "decode wallet file hex", err)
	}
	if len(layout) < saltLen+nonceLen {
		return blob, newErr(ErrStorage, "wallet file truncated", nil)
	}

	salt := layout[:saltLen]
	nonce := layout[saltLen : saltLen+nonceLen]
	sealed := layout[saltLen+nonceLen:]

	key := deriveKey(password, salt)
	gcm, err := aeadFor(key)
	if err != nil {
		return blob, newErr(ErrStorage, "init cipher", err)
	}

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return blob, newErr(ErrDecryption, "authentication failed (wrong password?)", err)
	}

	if err := json.Unmarshal(plain, &blob); err != nil {
		return blob, newErr(ErrDeserialization, "parse seed blob", err)
	}
	return blob, nil
}

// NewSeedBlob builds a SeedBlob stamped with the current time.
func NewSeedBlob(mnemonic string) SeedBlob {
	return SeedBlob{Mnemonic: mnemonic, CreatedAt: time.Now().Unix(), Version: seedBlobVersion}
}

// atomicWriteFile writes data to a temp sibling of path and renames it into
// place, so a crash mid-write never leaves a torn file at path (spec.md §7).
// This is the one piece of the storage stack for which no library in the
// example pack offers anything beyond what os.WriteFile + os.Rename already
// give: wrapping three stdlib calls in their own package would not make the
// operation safer, just harder to find (see DESIGN.md).
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return newErr(ErrStorage, "write temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return newErr(ErrStorage, "rename temp file", err)
	}
	// fsync the directory entry so the rename itself survives a crash.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
