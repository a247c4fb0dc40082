package core

// Seed & Key Hierarchy (C1, spec.md §4.1).
//
// Derivation follows the teacher's SLIP-0010-style HMAC-SHA512 chain
// (core/wallet.go's hmacSHA512 + derivePrivate), generalized from a single
// ed25519 leaf key into a ZIP-32-shaped Orchard key bundle: a master
// HMAC-SHA512 expansion yields a key and chain code, two hardened steps
// (coin type, then account) walk the same chain, and the four 32-byte
// components (ask, nk, rivk, dk) are BLAKE2b-personalized hashes of the
// account key and chain code (see SPEC_FULL.md §4.1).

import (
	"crypto/ed25519"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha512"
	"encoding/binary"

	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

const hardenedOffset uint32 = 0x80000000

// domain-separation tags for the master expansion and per-scope IVK PRF.
var (
	masterHMACKey  = []byte("ZcashIP32Orchard")
	ivkExpandExt   = []byte("Zcash_ExpandSeed\x00")
	ivkExpandInt   = []byte("Zcash_ExpandSeed\x01")
	diversifierTag = []byte("OrchardDiv_Key_")
)

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func personalizedHash(tag []byte, parts ...[]byte) [32]byte {
	var p [16]byte
	copy(p[:], tag)
	h, err := blake2b.New256(p[:])
	if err != nil {
		// blake2b.New256 only fails on a bad key length, which p never is.
		panic(err)
	}
	for _, part := range parts {
		h.Write(part)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GenerateSeed draws 32 bytes of cryptographic entropy, encodes it as a
// 24-word BIP-39 mnemonic, and returns the 64-byte BIP-39 seed of that
// mnemonic (empty passphrase) together with the mnemonic (spec.md §4.1
// generate_seed). The seed equals SeedFromMnemonic(mnemonic, "").
func GenerateSeed() (seed []byte, mnemonic string, err error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", newErr(ErrKeyDerivation, "generate entropy", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", newErr(ErrKeyDerivation, "generate mnemonic", err)
	}
	return bip39.NewSeed(mnemonic, ""), mnemonic, nil
}

// SeedFromMnemonic deterministically recovers seed bytes from a BIP-39
// mnemonic and optional passphrase (spec.md §4.1 seed_from_mnemonic).
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, newErr(ErrKeyDerivation, "invalid mnemonic checksum", nil)
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// OrchardSpendingKey is the ZIP-32 Orchard spending key material for one
// account. It is never persisted (spec.md §3).
type OrchardSpendingKey struct {
	Ask  [32]byte // spend authorization key (ed25519 seed in this core)
	Nk   [32]byte // nullifier deriving key
	Rivk [32]byte // IVK commitment-randomness base
	Dk   [32]byte // diversifier key
}

// FullViewingKey is the public derivation the wallet persists-in-memory and
// hands to the scanner.
type FullViewingKey struct {
	Ak   ed25519.PublicKey
	Nk   [32]byte
	Rivk [32]byte
	Dk   [32]byte
}

// IncomingViewingKey is a 32-byte scalar-equivalent key used for trial
// decryption under one scope.
type IncomingViewingKey [32]byte

// derivePrivate mirrors core/wallet.go's derivePrivate: hardened-only
// HMAC-SHA512 child derivation over an opaque key+chain-code pair.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, chain []byte) {
	data := make([]byte, 1+len(parentKey)+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[1+len(parentKey):], index)
	I := hmacSHA512(parentChain, data)
	return I[:32], I[32:]
}

// DeriveOrchard derives the Orchard spending key for (seed, account) at
// Zcash's coin type 133 (spec.md §4.1 derive_orchard).
func DeriveOrchard(seed []byte, account uint32) (*OrchardSpendingKey, error) {
	if len(seed) < 32 {
		return nil, newErr(ErrKeyDerivation, "seed too short", nil)
	}
	if account >= hardenedOffset {
		return nil, newErr(ErrKeyDerivation, "invalid account id", nil)
	}

	master := hmacSHA512(masterHMACKey, seed)
	masterKey, masterChain := master[:32], master[32:]

	coinKey, coinChain := derivePrivate(masterKey, masterChain, CoinType|hardenedOffset)
	acctKey, acctChain := derivePrivate(coinKey, coinChain, account|hardenedOffset)

	ask := personalizedHash([]byte("OrchardASK_Key_"), acctKey, acctChain)
	nk := personalizedHash([]byte("OrchardNK_Key__"), acctKey, acctChain, []byte{1})
	rivk := personalizedHash([]byte("OrchardRIVK_Key"), acctKey, acctChain, []byte{2})
	dk := personalizedHash([]byte("OrchardDK_Key__"), acctKey, acctChain, []byte{3})

	return &OrchardSpendingKey{Ask: ask, Nk: nk, Rivk: rivk, Dk: dk}, nil
}

// FVK derives the full viewing key from a spending key.
func (sk *OrchardSpendingKey) FVK() FullViewingKey {
	pub := ed25519.NewKeyFromSeed(sk.Ask[:]).Public().(ed25519.PublicKey)
	return FullViewingKey{Ak: pub, Nk: sk.Nk, Rivk: sk.Rivk, Dk: sk.Dk}
}

// IVK derives the incoming viewing key for one scope (spec.md §4.1, §4.5).
func (fvk FullViewingKey) IVK(scope Scope) IncomingViewingKey {
	tag := ivkExpandExt
	if scope == ScopeInternal {
		tag = ivkExpandInt
	}
	return IncomingViewingKey(personalizedHash([]byte("OrchardIVK_Key_"), fvk.Rivk[:], tag))
}

// Diversifier derives the 11-byte diversifier for a diversifier index,
// keyed by the FVK's diversifier key dk.
func Diversifier(dk [32]byte, index uint32) [11]byte {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	full := personalizedHash(diversifierTag, dk[:], idx[:])
	var d [11]byte
	copy(d[:], full[:11])
	return d
}

// AddressAt derives the raw 43-byte Orchard address (diversifier || pk_d)
// for (fvk, scope, diversifierIndex) (spec.md §4.1 address_at).
func AddressAt(fvk FullViewingKey, scope Scope, diversifierIndex uint32) ([43]byte, error) {
	ivk := fvk.IVK(scope)
	d := Diversifier(fvk.Dk, diversifierIndex)
	pkd := PkD(ivk, d)

	var raw [43]byte
	copy(raw[:11], d[:])
	copy(raw[11:], pkd[:])
	return raw, nil
}

// RandomMnemonicEntropy produces cryptographically-secure random entropy of
// the given number of bits (must be a multiple of 32).
func RandomMnemonicEntropy(bits int) ([]byte, error) {
	if bits%32 != 0 {
		return nil, newErr(ErrKeyDerivation, "entropy bits must be multiple of 32", nil)
	}
	b := make([]byte, bits/8)
	if _, err := crand.Read(b); err != nil {
		return nil, newErr(ErrKeyDerivation, "read random entropy", err)
	}
	return b, nil
}

// Wipe zeroes a byte slice in-place. Callers must invoke this on every exit
// path after consuming seed or spending-key material (spec.md §4.1
// Zeroization, §5 Scoped resources).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// WipeSpendingKey zeroes every field of an OrchardSpendingKey in-place.
func WipeSpendingKey(sk *OrchardSpendingKey) {
	if sk == nil {
		return
	}
	Wipe(sk.Ask[:])
	Wipe(sk.Nk[:])
	Wipe(sk.Rivk[:])
	Wipe(sk.Dk[:])
}
