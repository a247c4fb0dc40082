package core

// Block Fetcher / Action Extractor (C4, spec.md §4.4).
//
// The per-height fetch-then-filter loop is grounded on zcash-lightwalletd's
// BlockIngestor (common.go), simplified from a streaming ingest loop into a
// single FetchHeight call the scanner drives one height at a time.

import (
	"context"
	"encoding/hex"

	log "github.com/sirupsen/logrus"
)

const (
	cmxLen           = 32
	nullifierLen     = 32
	ephemeralKeyLen  = 32
	encCiphertextLen = 580
	outCiphertextLen = 80
	cvLen            = 32
	rkLen            = 32
)

// FetchHeight retrieves the block at height via the node client and
// extracts every transaction carrying at least one Orchard action. Blocks
// with zero shielded transactions return an empty, non-nil slice.
func FetchHeight(ctx context.Context, node NodeClient, height uint32) ([]ParsedTx, error) {
	hash, err := node.BlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	block, err := node.GetBlock(ctx, hash)
	if err != nil {
		return nil, err
	}

	var out []ParsedTx
	for idx, tx := range block.Tx {
		if len(tx.Orchard.Actions) == 0 {
			continue
		}
		actions := make([]ParsedAction, 0, len(tx.Orchard.Actions))
		for actionIdx, raw := range tx.Orchard.Actions {
			parsed, ok := parseAction(raw)
			if !ok {
				globalLogger.WithFields(log.Fields{
					"height": height, "txid": tx.Txid, "action": actionIdx,
				}).Warn("skipping malformed orchard action")
				continue
			}
			actions = append(actions, parsed)
		}
		if len(actions) == 0 {
			continue
		}
		out = append(out, ParsedTx{
			Txid:    tx.Txid,
			Height:  height,
			Index:   idx,
			RawHex:  tx.RawHex,
			Actions: actions,
		})
	}
	if out == nil {
		out = []ParsedTx{}
	}
	return out, nil
}

// parseAction decodes the seven hex fields of a BlockAction, validating
// each field's decoded length (spec.md §4.4 edge case: malformed actions
// are skipped with a warning, not fatal).
func parseAction(raw BlockAction) (ParsedAction, bool) {
	var p ParsedAction

	nf, ok := decodeFixed(raw.Nullifier, nullifierLen)
	if !ok {
		return p, false
	}
	copy(p.Nullifier[:], nf)

	cmx, ok := decodeFixed(raw.Cmx, cmxLen)
	if !ok {
		return p, false
	}
	copy(p.Cmx[:], cmx)

	eph, ok := decodeFixed(raw.EphemeralKey, ephemeralKeyLen)
	if !ok {
		return p, false
	}
	copy(p.EphemeralKey[:], eph)

	enc, err := hex.DecodeString(raw.EncCiphertext)
	if err != nil || len(enc) < encCiphertextLen {
		return p, false
	}
	p.EncCiphertext = enc
	copy(p.CompactEnc[:], enc[:compactPlaintextLen])

	out, ok := decodeFixed(raw.OutCiphertext, outCiphertextLen)
	if !ok {
		return p, false
	}
	copy(p.OutCiphertext[:], out)

	cv, ok := decodeFixed(raw.Cv, cvLen)
	if !ok {
		return p, false
	}
	copy(p.Cv[:], cv)

	rk, ok := decodeFixed(raw.Rk, rkLen)
	if !ok {
		return p, false
	}
	copy(p.Rk[:], rk)

	return p, true
}

func decodeFixed(s string, want int) ([]byte, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != want {
		return nil, false
	}
	return b, true
}
