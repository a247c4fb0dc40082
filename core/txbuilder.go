package core

// Transaction Builder (C7, spec.md §4.7) and the ZIP-244-style txid digest
// tree it depends on.
//
// The overall build-then-serialize-then-digest shape, and the digest tree's
// personalization tags ("ZTxIdHeadersHash", "ZTxIdOrchardHash", ...), are
// adapted from zcash-lightwalletd's parser package (computeV5TxID /
// readAndHashOrchard in zip244.go). Since this core only ever emits Orchard
// data, the transparent and Sapling digests collapse to their empty-bundle
// constants rather than reimplementing those sections.

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	memoLen            = 512
	defaultFeeZatoshis = 10_000
	orchardFlagsEnabled = 0x03 // spends enabled | outputs enabled
)

// OutputAction is one constructed Orchard output action in a bundle being
// built: the recipient output or the change output. This core emits one
// action per output and adds no dummy actions; spent notes are carried
// separately as SpendWitness entries.
type OutputAction struct {
	Cv            [32]byte
	Nullifier     [32]byte
	Rk            [32]byte
	Cmx           [32]byte
	EphemeralKey  [32]byte
	EncCiphertext [encCiphertextLen]byte
	OutCiphertext [outCiphertextLen]byte
}

// SpendWitness pairs one selected input note's nullifier with the Merkle
// authentication path proving its commitment is present under Anchor. This
// core does not implement the proving system that would consume the path to
// produce a zero-knowledge spend proof, but the path is still bound into the
// transaction's digest (see hashOrchardBundle) so that a different witness
// for the same note produces a different, non-broadcastable txid — the path
// is load-bearing, not fetched and discarded.
type SpendWitness struct {
	Nullifier [32]byte
	Anchor    Anchor
	Path      AuthPath
}

// UnsignedBundle is the assembled, not-yet-proven Orchard bundle (spec.md
// §4.7 step 8): real proof and binding-signature bytes require the
// Pallas-curve proving system this core does not implement, so the bundle
// has no proof or binding-signature section at all.
type UnsignedBundle struct {
	Flags        byte
	Spends       []SpendWitness
	Actions      []OutputAction
	ValueBalance int64
	Anchor       Anchor
}

// BuildTransactionRequest bundles the inputs to BuildTransaction.
type BuildTransactionRequest struct {
	Notes        []SpendableNote
	RecipientRaw [43]byte
	AmountZat    uint64
	Memo         []byte
	FeeZat       uint64
	ChangeFVK    FullViewingKey
	ChangeScope  Scope
	ChangeDivIdx uint32
}

// BuildTransactionResult is returned on both success and failed broadcast:
// per spec.md §4.7 step 10, a failed broadcast still returns the locally
// computed txid with Broadcast=false so callers can record the attempt.
type BuildTransactionResult struct {
	Txid      string
	RawTx     []byte
	Broadcast bool
	Record    SentTransactionRecord
}

// BuildTransaction executes the full C7 algorithm: policy check,
// sufficiency check, anchor fetch, note selection, witness assembly,
// output construction, bundle serialization, txid computation, and
// broadcast.
func BuildTransaction(ctx context.Context, node NodeClient, req BuildTransactionRequest) (*BuildTransactionResult, error) {
	// 1. Policy check: transparent receivers are a hard reject before any
	// node call is made (spec.md §4.7 step 1, S6).
	if err := rejectTransparentReceiver(req.RecipientRaw); err != nil {
		return nil, err
	}

	// 2. Sufficiency check.
	var sum uint64
	for _, n := range req.Notes {
		if !n.Spent {
			sum += n.Value
		}
	}
	fee := req.FeeZat
	if fee == 0 {
		fee = defaultFeeZatoshis
	}
	if sum < req.AmountZat+fee {
		return nil, newErr(ErrInsufficientFunds, "unspent notes do not cover amount + fee", nil)
	}

	// 3. Anchor.
	tip, err := node.TipHeight(ctx)
	if err != nil {
		return nil, err
	}
	treeState, err := node.CommitmentTreeState(ctx, tip)
	if err != nil {
		return nil, err
	}
	anchor := treeState.Anchor

	// 4. Note selection: deterministic greedy sum-to-cover over the
	// caller-supplied notes, sorted by nullifier for a stable order.
	selected := selectNotes(req.Notes, req.AmountZat+fee)

	// 5. Witnesses, one per selected note, bound into the bundle as
	// SpendWitness entries (spec.md §4.7 step 5).
	spends := make([]SpendWitness, 0, len(selected))
	for _, n := range selected {
		cmx := NoteCommit(n.Note.Value, n.Note.Rho, n.Note.Rseed, rawDiversifier(n.RecipientAddress), rawPkD(n.RecipientAddress))
		position, err := node.NotePosition(ctx, cmx)
		if err != nil {
			return nil, err
		}
		path, err := node.AuthPath(ctx, position, anchor)
		if err != nil {
			return nil, err
		}
		spends = append(spends, SpendWitness{Nullifier: n.Nullifier, Anchor: anchor, Path: *path})
	}

	// 6 & 7. Outputs: recipient, plus change if any remains.
	memo := padMemo(req.Memo)
	actions := make([]OutputAction, 0, 2)

	recipientAction, err := buildOutputAction(req.RecipientRaw, req.AmountZat, memo)
	if err != nil {
		return nil, err
	}
	actions = append(actions, recipientAction)

	// Change comes from the selected inputs only, so that
	// inputs == amount + fee + change.
	var selectedSum uint64
	for _, n := range selected {
		selectedSum += n.Value
	}
	change := selectedSum - req.AmountZat - fee
	if change > 0 {
		changeAddr, err := AddressAt(req.ChangeFVK, req.ChangeScope, req.ChangeDivIdx)
		if err != nil {
			return nil, err
		}
		changeAction, err := buildOutputAction(changeAddr, change, padMemo(nil))
		if err != nil {
			return nil, err
		}
		actions = append(actions, changeAction)
	}

	// 8. Bundle assembly.
	bundle := UnsignedBundle{
		Flags:        orchardFlagsEnabled,
		Spends:       spends,
		Actions:      actions,
		ValueBalance: int64(req.AmountZat) + int64(fee) - int64(change),
		Anchor:       anchor,
	}

	// 9. Serialize and compute txid.
	rawTx := serializeBundle(bundle)
	txid := computeTxID(bundle)

	spentNullifiers := make([][32]byte, 0, len(selected))
	for _, n := range selected {
		spentNullifiers = append(spentNullifiers, n.Nullifier)
	}

	record := SentTransactionRecord{
		Txid:            txid,
		Status:          StatusPending,
		BroadcastUnix:   time.Now().Unix(),
		SpentNullifiers: spentNullifiers,
		Amount:          req.AmountZat,
		Fee:             fee,
		Change:          change,
	}

	// 10. Broadcast.
	networkTxid, err := node.Broadcast(ctx, rawTx)
	if err != nil {
		globalLogger.WithFields(log.Fields{"txid": txid, "error": err}).Warn("broadcast failed, recording attempt locally")
		record.Status = StatusFailed
		return &BuildTransactionResult{Txid: txid, RawTx: rawTx, Broadcast: false, Record: record}, nil
	}
	if networkTxid != "" {
		record.Txid = networkTxid
		txid = networkTxid
	}
	return &BuildTransactionResult{Txid: txid, RawTx: rawTx, Broadcast: true, Record: record}, nil
}

func rejectTransparentReceiver(raw [43]byte) error {
	// The raw receiver carries no typecode of its own once unwrapped from
	// the Unified Address string; callers that hand BuildTransaction a raw
	// Orchard receiver have already passed DecodeAddress, which itself
	// rejects t1/tm-prefixed strings. This check guards the zero-value
	// case defensively against an empty/unset receiver.
	var zero [43]byte
	if raw == zero {
		return newErr(ErrAddressParsing, "recipient has no orchard receiver", nil)
	}
	return nil
}

func selectNotes(notes []SpendableNote, target uint64) []SpendableNote {
	candidates := make([]SpendableNote, 0, len(notes))
	for _, n := range notes {
		if !n.Spent {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return string(candidates[i].Nullifier[:]) < string(candidates[j].Nullifier[:])
	})

	var sum uint64
	var selected []SpendableNote
	for _, n := range candidates {
		if sum >= target {
			break
		}
		selected = append(selected, n)
		sum += n.Value
	}
	return selected
}

func rawDiversifier(addr [43]byte) [11]byte {
	var d [11]byte
	copy(d[:], addr[:11])
	return d
}

func rawPkD(addr [43]byte) [32]byte {
	var pkd [32]byte
	copy(pkd[:], addr[11:])
	return pkd
}

func padMemo(memo []byte) [memoLen]byte {
	var out [memoLen]byte
	n := len(memo)
	if n > memoLen {
		n = memoLen
	}
	copy(out[:n], memo[:n])
	return out
}

func buildOutputAction(recipient [43]byte, value uint64, memo [memoLen]byte) (OutputAction, error) {
	var esk [32]byte
	if err := randomFill(esk[:]); err != nil {
		return OutputAction{}, err
	}
	var rseed [32]byte
	if err := randomFill(rseed[:]); err != nil {
		return OutputAction{}, err
	}

	ephemeralKey, compact := EncryptCompactTo(esk, recipient, value, rseed)

	d := rawDiversifier(recipient)
	pkd := rawPkD(recipient)
	// rho is fixed at the zero value, matching TryDecryptCompact's
	// recomputation convention (see crypto_notes.go).
	var rho [32]byte
	cmx := NoteCommit(value, rho, rseed, d, pkd)

	var enc [encCiphertextLen]byte
	copy(enc[:compactPlaintextLen], compact[:])
	copy(enc[compactPlaintextLen:], memo[:])

	return OutputAction{
		Cmx:           cmx,
		EphemeralKey:  ephemeralKey,
		EncCiphertext: enc,
		// Cv, Nullifier, Rk, OutCiphertext stay zero-filled: this core does
		// not implement value-commitment or binding-signature cryptography
		// (spec.md §4.7 step 8).
	}, nil
}

func randomFill(b []byte) error {
	if _, err := crand.Read(b); err != nil {
		return newErr(ErrCryptographic, "read random bytes", err)
	}
	return nil
}

// serializeBundle writes the fixed binary layout specified in
// SPEC_FULL.md §4.7: flags(1) | nSpends(compact) | spends[] |
// nActions(compact) | actions[] | valueBalance(8) | anchor(32).
func serializeBundle(b UnsignedBundle) []byte {
	var buf bytes.Buffer
	buf.WriteByte(b.Flags)
	writeCompactSize(&buf, len(b.Spends))
	for _, s := range b.Spends {
		writeSpendWitness(&buf, s)
	}
	writeCompactSize(&buf, len(b.Actions))
	for _, a := range b.Actions {
		buf.Write(a.Cv[:])
		buf.Write(a.Nullifier[:])
		buf.Write(a.Rk[:])
		buf.Write(a.Cmx[:])
		buf.Write(a.EphemeralKey[:])
		buf.Write(a.EncCiphertext[:])
		buf.Write(a.OutCiphertext[:])
	}
	var vb [8]byte
	binary.LittleEndian.PutUint64(vb[:], uint64(b.ValueBalance))
	buf.Write(vb[:])
	buf.Write(b.Anchor[:])
	return buf.Bytes()
}

func writeSpendWitness(buf *bytes.Buffer, s SpendWitness) {
	buf.Write(s.Nullifier[:])
	buf.Write(s.Anchor[:])
	for _, sib := range s.Path.Siblings {
		buf.Write(sib[:])
	}
	var pos [4]byte
	binary.LittleEndian.PutUint32(pos[:], s.Path.Position)
	buf.Write(pos[:])
}

func writeCompactSize(buf *bytes.Buffer, n int) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xfe)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
}

func personalizedTag(tag string) [16]byte {
	var p [16]byte
	copy(p[:], tag)
	return p
}

func blake2bSumPersonalized(tag string, data []byte) [32]byte {
	p := personalizedTag(tag)
	h, err := blake2b.New256(p[:])
	if err != nil {
		panic(err)
	}
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// computeTxID hashes an UnsignedBundle through the ZIP-244 digest tree,
// collapsing the transparent and Sapling digests to their empty-bundle
// constants since this core never populates those sections.
func computeTxID(b UnsignedBundle) string {
	headerDigest := blake2bSumPersonalized("ZTxIdHeadersHash", serializeHeader())
	transparentDigest := blake2bSumPersonalized("ZTxIdTranspaHash", nil)
	saplingDigest := blake2bSumPersonalized("ZTxIdSaplingHash", nil)
	orchardDigest := hashOrchardBundle(b)

	h, err := blake2b.New256(personalizedTag("ZTxIdTxHash_____")[:])
	if err != nil {
		panic(err)
	}
	h.Write(headerDigest[:])
	h.Write(transparentDigest[:])
	h.Write(saplingDigest[:])
	h.Write(orchardDigest[:])
	sum := h.Sum(nil)

	reversed := make([]byte, len(sum))
	for i, c := range sum {
		reversed[len(sum)-1-i] = c
	}
	return hex.EncodeToString(reversed)
}

func serializeHeader() []byte {
	// The only header field this core emits is the transaction version (5);
	// no version group id or consensus branch id is written.
	var buf bytes.Buffer
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], 5)
	buf.Write(v[:])
	return buf.Bytes()
}

func hashOrchardBundle(b UnsignedBundle) [32]byte {
	if len(b.Actions) == 0 && len(b.Spends) == 0 {
		return blake2bSumPersonalized("ZTxIdOrchardHash", nil)
	}

	compactHasher, err := blake2b.New256(personalizedTag("ZTxIdOrcActCHash")[:])
	if err != nil {
		panic(err)
	}
	memosHasher, err := blake2b.New256(personalizedTag("ZTxIdOrcActMHash")[:])
	if err != nil {
		panic(err)
	}
	noncompactHasher, err := blake2b.New256(personalizedTag("ZTxIdOrcActNHash")[:])
	if err != nil {
		panic(err)
	}

	for _, a := range b.Actions {
		compactHasher.Write(a.Nullifier[:])
		compactHasher.Write(a.Cmx[:])
		compactHasher.Write(a.EphemeralKey[:])
		compactHasher.Write(a.EncCiphertext[:compactPlaintextLen])

		memosHasher.Write(a.EncCiphertext[compactPlaintextLen:])

		noncompactHasher.Write(a.Cv[:])
		noncompactHasher.Write(a.Rk[:])
		noncompactHasher.Write(a.OutCiphertext[:])
	}

	// Spend witnesses bind the consumed notes and their Merkle paths into
	// the digest tree, in the compact section alongside the other
	// nullifier-bearing data (spec.md §4.7 step 5/8).
	for _, s := range b.Spends {
		compactHasher.Write(s.Nullifier[:])
		compactHasher.Write(s.Anchor[:])
		for _, sib := range s.Path.Siblings {
			compactHasher.Write(sib[:])
		}
		var pos [4]byte
		binary.LittleEndian.PutUint32(pos[:], s.Path.Position)
		compactHasher.Write(pos[:])
	}

	h, err := blake2b.New256(personalizedTag("ZTxIdOrchardHash")[:])
	if err != nil {
		panic(err)
	}
	h.Write(compactHasher.Sum(nil))
	h.Write(memosHasher.Sum(nil))
	h.Write(noncompactHasher.Sum(nil))
	h.Write([]byte{b.Flags})
	var vb [8]byte
	binary.LittleEndian.PutUint64(vb[:], uint64(b.ValueBalance))
	h.Write(vb[:])
	h.Write(b.Anchor[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
