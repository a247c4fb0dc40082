package core

// Trial-Decryption Scanner (C5, spec.md §4.5).
//
// The scan loop's shape — derive viewing keys once, then walk heights in
// strict order driving the block fetcher — follows zcash-lightwalletd's
// BlockIngestor loop (common.go); per-action trial decryption under both
// IVK scopes and nullifier-keyed dedup are this core's own construction
// (there is no parser-level equivalent in the pack, see SPEC_FULL.md §4.5).

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// ScanResult is the output of scanning a closed height range: newly
// decrypted notes (deduplicated by nullifier against notesSeen) and the
// highest height actually scanned.
type ScanResult struct {
	Notes      []OrchardNote
	ToHeight   uint32
	FromHeight uint32
}

// ScanRange performs trial decryption for every Orchard action between
// fromHeight and toHeight inclusive, under both the external and internal
// IVK scopes of fvk, skipping nullifiers already present in seen.
//
// Determinism (spec.md §4.5 S2/S3): scanning the same (seed, range) always
// yields the same note set in the same order, and splitting a range into
// contiguous sub-ranges and unioning their results yields the same set as
// one full-range scan, because this function carries no state across
// calls other than the caller-supplied seen set.
func ScanRange(ctx context.Context, node NodeClient, fvk FullViewingKey, nk [32]byte, fromHeight, toHeight uint32, seen map[[32]byte]bool) (*ScanResult, error) {
	if seen == nil {
		seen = make(map[[32]byte]bool)
	}
	ivkExternal := fvk.IVK(ScopeExternal)
	ivkInternal := fvk.IVK(ScopeInternal)

	result := &ScanResult{Notes: []OrchardNote{}, FromHeight: fromHeight, ToHeight: fromHeight}
	if toHeight < fromHeight {
		return result, nil
	}

	for height := fromHeight; height <= toHeight; height++ {
		select {
		case <-ctx.Done():
			return result, newErr(ErrNetworkError, "scan cancelled", ctx.Err())
		default:
		}

		txs, err := FetchHeight(ctx, node, height)
		if err != nil {
			return result, err
		}

		for _, tx := range txs {
			for _, action := range tx.Actions {
				if seen[action.Nullifier] {
					continue
				}

				note, scope, ok := tryDecryptBothScopes(ivkExternal, ivkInternal, action)
				if !ok {
					continue
				}

				nullifier := ComputeNullifier(nk, action.Cmx, note.Rseed)
				if seen[nullifier] {
					continue
				}
				seen[nullifier] = true

				result.Notes = append(result.Notes, OrchardNote{
					Note:             note,
					Value:            note.Value,
					RecipientAddress: note.Recipient,
					Nullifier:        nullifier,
					BlockHeight:      height,
					Txid:             tx.Txid,
					Spent:            false,
				})

				globalLogger.WithFields(log.Fields{
					"height": height, "txid": tx.Txid, "scope": scope.String(), "value": note.Value,
				}).Debug("decrypted orchard note")
			}
		}
		result.ToHeight = height
	}

	return result, nil
}

// tryDecryptBothScopes attempts decryption under the external scope first,
// then internal, matching the order a wallet checks user-facing notes
// before change notes.
func tryDecryptBothScopes(external, internal IncomingViewingKey, action ParsedAction) (Note, Scope, bool) {
	if note, ok := TryDecryptCompact(external, action.EphemeralKey, action.CompactEnc, action.Cmx); ok {
		return note, ScopeExternal, true
	}
	if note, ok := TryDecryptCompact(internal, action.EphemeralKey, action.CompactEnc, action.Cmx); ok {
		return note, ScopeInternal, true
	}
	return Note{}, 0, false
}
