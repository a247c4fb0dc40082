package core

// Data model for the shielded wallet core (spec.md §3).

// CoinType is the SLIP-44 coin type for Zcash, fixed per spec.md §3.
const CoinType uint32 = 133

// Scope distinguishes the user-facing (External) and change (Internal)
// incoming-viewing-key derivation paths.
type Scope int

const (
	ScopeExternal Scope = iota
	ScopeInternal
)

func (s Scope) String() string {
	if s == ScopeInternal {
		return "internal"
	}
	return "external"
}

// Network selects the HRP family used for Unified Address encoding.
type Network int

const (
	NetworkMain Network = iota
	NetworkTest
	NetworkRegtest
)

func ParseNetwork(s string) Network {
	switch s {
	case "test", "testnet":
		return NetworkTest
	case "regtest":
		return NetworkRegtest
	default:
		return NetworkMain
	}
}

func (n Network) hrp() string {
	switch n {
	case NetworkTest:
		return "utest"
	case NetworkRegtest:
		return "uregtest"
	default:
		return "u"
	}
}

// SpendStatus is the lifecycle state of a SentTransactionRecord.
type SpendStatus string

const (
	StatusPending   SpendStatus = "Pending"
	StatusConfirmed SpendStatus = "Confirmed"
	StatusFailed    SpendStatus = "Failed"
)

// Note is the decrypted Orchard note payload recovered by trial decryption.
type Note struct {
	Value     uint64
	Rho       [32]byte
	Rseed     [32]byte
	Recipient [43]byte // diversifier(11) || pk_d(32)
}

// OrchardNote is the in-memory, wallet-owned view of a decrypted note
// (spec.md §3 "OrchardNote"). InsertSeq records the note's ascending slot in
// the index (assigned by NoteIndex.Add), the tiebreaker spec.md §4.6's
// ordering guarantee requires when two notes share a BlockHeight.
type OrchardNote struct {
	Note             Note
	Value            uint64
	RecipientAddress [43]byte
	Nullifier        [32]byte
	BlockHeight      uint32
	Txid             string
	Spent            bool
	Memo             []byte // trimmed, <= 512 bytes
	InsertSeq        uint64
}

// SerializableNote is the on-disk shape of an OrchardNote: it deliberately
// omits any re-derivable private material (spec.md §3).
type SerializableNote struct {
	Value          uint64 `json:"value"`
	AddressBytes   []byte `json:"address_bytes"`
	NullifierBytes []byte `json:"nullifier_bytes"`
	BlockHeight    uint32 `json:"block_height"`
	Txid           string `json:"txid"`
	Spent          bool   `json:"spent"`
	Memo           []byte `json:"memo"`
	InsertSeq      uint64 `json:"insert_seq"`
}

// ToSerializable strips private/re-derivable fields for persistence.
func (n *OrchardNote) ToSerializable() SerializableNote {
	addr := make([]byte, 43)
	copy(addr, n.RecipientAddress[:])
	nf := make([]byte, 32)
	copy(nf, n.Nullifier[:])
	return SerializableNote{
		Value:          n.Value,
		AddressBytes:   addr,
		NullifierBytes: nf,
		BlockHeight:    n.BlockHeight,
		Txid:           n.Txid,
		Spent:          n.Spent,
		Memo:           n.Memo,
		InsertSeq:      n.InsertSeq,
	}
}

// FromSerializable reconstructs the persistable fields of an OrchardNote.
// The decrypted Note payload itself (value/rho/rseed/recipient as the
// on-chain note struct) is not recoverable from disk alone; callers that
// need to re-derive spendability re-associate these against the in-memory
// seed on load (spec.md §3).
func FromSerializable(s SerializableNote) OrchardNote {
	n := OrchardNote{
		Value:       s.Value,
		BlockHeight: s.BlockHeight,
		Txid:        s.Txid,
		Spent:       s.Spent,
		Memo:        s.Memo,
		InsertSeq:   s.InsertSeq,
	}
	copy(n.RecipientAddress[:], s.AddressBytes)
	copy(n.Nullifier[:], s.NullifierBytes)
	return n
}

// SpendableNote pairs a decrypted note with the material the transaction
// builder needs to spend it. It is never persisted (spec.md §9).
type SpendableNote struct {
	OrchardNote
	SpendingKey OrchardSpendingKey
}

// Anchor is a 32-byte Orchard commitment-tree root.
type Anchor [32]byte

// AuthPath is a Merkle authentication path: 32 sibling hashes plus the
// note's leaf position in the tree.
type AuthPath struct {
	Siblings [32][32]byte
	Position uint32
}

// ScanCursor is the resumable block-scan bookmark (spec.md §3, §4.8).
type ScanCursor struct {
	LastScanHeight *uint32 `json:"last_scan_height"`
}

// SentTransactionRecord is the persisted history of an outgoing transaction
// (spec.md §3).
type SentTransactionRecord struct {
	Txid           string      `json:"txid"`
	Status         SpendStatus `json:"status"`
	BroadcastUnix  int64       `json:"broadcast_unix"`
	Confirmations  int         `json:"confirmations"`
	SpentNullifiers [][32]byte `json:"spent_nullifiers"`
	Amount         uint64      `json:"amount"`
	Fee            uint64      `json:"fee"`
	Change         uint64      `json:"change"`
}

// ParsedAction is the fixed-shape record C4 extracts from one Orchard
// action's seven hex fields (spec.md §4.4).
type ParsedAction struct {
	Nullifier      [32]byte
	Cmx            [32]byte
	EphemeralKey   [32]byte
	EncCiphertext  []byte // full ciphertext, >= 580 bytes
	CompactEnc     [52]byte
	OutCiphertext  [80]byte
	Cv             [32]byte
	Rk             [32]byte
}

// ParsedTx is a transaction containing one or more Orchard actions, as
// extracted from a block by the Block Fetcher (spec.md §4.4).
type ParsedTx struct {
	Txid    string
	Height  uint32
	Index   int
	RawHex  string
	Actions []ParsedAction
}
