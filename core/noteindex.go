package core

// Note Index (C6, spec.md §4.6).
//
// The RWMutex-guarded map shape and the versioned-JSON
// save/load-with-upgrade pattern are both grounded on
// chapool-go-wallet's seed manager (sync.RWMutex-guarded state, explicit
// Clear()-style zeroization) generalized from a single seed record to a
// note collection keyed by nullifier. No secondary indexes are kept:
// height, address and unspent lookups scan every note.

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
)

const (
	noteIndexV1 = 1
	noteIndexV2 = 2
	// currentNoteIndexVersion is the version new saves are written at.
	currentNoteIndexVersion = noteIndexV2
)

// NoteIndex is the wallet's in-memory view of every note it has ever
// decrypted, keyed by nullifier (spec.md §4.6 invariant I1). nextSeq hands
// out the ascending insertion slot spec.md §4.6 uses to break BlockHeight
// ties.
type NoteIndex struct {
	mu      sync.RWMutex
	notes   map[[32]byte]*OrchardNote
	nextSeq uint64
}

// NewNoteIndex constructs an empty index.
func NewNoteIndex() *NoteIndex {
	return &NoteIndex{notes: make(map[[32]byte]*OrchardNote)}
}

// Add inserts note, keyed by its nullifier. Re-adding the same nullifier
// overwrites the prior record but keeps its original insertion slot (spec.md
// §4.6 invariant I1: at most one entry per nullifier).
func (idx *NoteIndex) Add(note OrchardNote) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := note
	if existing, ok := idx.notes[note.Nullifier]; ok {
		n.InsertSeq = existing.InsertSeq
	} else {
		n.InsertSeq = idx.nextSeq
		idx.nextSeq++
	}
	idx.notes[note.Nullifier] = &n
}

// GetByNullifier returns the note stored under nullifier, if any.
func (idx *NoteIndex) GetByNullifier(nullifier [32]byte) (OrchardNote, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.notes[nullifier]
	if !ok {
		return OrchardNote{}, false
	}
	return *n, true
}

// GetByHeightRange returns every note with fromHeight <= BlockHeight <=
// toHeight, sorted by height, ties broken by ascending insertion slot.
func (idx *NoteIndex) GetByHeightRange(fromHeight, toHeight uint32) []OrchardNote {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []OrchardNote
	for _, n := range idx.notes {
		if n.BlockHeight >= fromHeight && n.BlockHeight <= toHeight {
			out = append(out, *n)
		}
	}
	sortNotes(out)
	return out
}

// GetByAddress returns every note paid to the given raw Orchard address.
func (idx *NoteIndex) GetByAddress(address [43]byte) []OrchardNote {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []OrchardNote
	for _, n := range idx.notes {
		if n.RecipientAddress == address {
			out = append(out, *n)
		}
	}
	sortNotes(out)
	return out
}

// UnspentIter returns every note with Spent == false.
func (idx *NoteIndex) UnspentIter() []OrchardNote {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []OrchardNote
	for _, n := range idx.notes {
		if !n.Spent {
			out = append(out, *n)
		}
	}
	sortNotes(out)
	return out
}

// MarkSpent flips a note's Spent flag to true. It reports whether the
// nullifier was present (spec.md §4.6 invariant I2: spent notes are never
// removed, only flagged).
func (idx *NoteIndex) MarkSpent(nullifier [32]byte) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n, ok := idx.notes[nullifier]
	if !ok {
		return false
	}
	n.Spent = true
	return true
}

// TotalUnspentValue sums Value across every unspent note (spec.md §4.6
// invariant I3).
func (idx *NoteIndex) TotalUnspentValue() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var total uint64
	for _, n := range idx.notes {
		if !n.Spent {
			total += n.Value
		}
	}
	return total
}

// Count returns the total number of indexed notes, spent or unspent.
func (idx *NoteIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.notes)
}

// UnspentCount returns the number of unspent notes.
func (idx *NoteIndex) UnspentCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, note := range idx.notes {
		if !note.Spent {
			n++
		}
	}
	return n
}

// sortNotes orders by BlockHeight, ties broken by ascending insertion slot
// (spec.md §4.6), not by nullifier — nullifier bytes carry no ordering
// meaning of their own.
func sortNotes(notes []OrchardNote) {
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].BlockHeight != notes[j].BlockHeight {
			return notes[i].BlockHeight < notes[j].BlockHeight
		}
		return notes[i].InsertSeq < notes[j].InsertSeq
	})
}

// noteIndexFileV1 is the legacy on-disk shape with no version tag: an
// object holding only the notes array. LoadNoteIndex also accepts the
// notes as a bare JSON array.
type noteIndexFileV1 struct {
	Notes []SerializableNote `json:"notes"`
}

// noteIndexFileV2 adds an explicit version tag, allowing future formats to
// be distinguished without guessing from shape (spec.md §4.6 persistence).
type noteIndexFileV2 struct {
	Version int                `json:"version"`
	Notes   []SerializableNote `json:"notes"`
}

// Save checks that no nullifier appears twice, then atomically persists
// the index at the current version.
func (idx *NoteIndex) Save(path string) error {
	idx.mu.RLock()
	notes := make([]SerializableNote, 0, len(idx.notes))
	for _, n := range idx.notes {
		notes = append(notes, n.ToSerializable())
	}
	idx.mu.RUnlock()

	sort.Slice(notes, func(i, j int) bool {
		return string(notes[i].NullifierBytes) < string(notes[j].NullifierBytes)
	})

	if err := validateNoteIndexInvariants(notes); err != nil {
		return err
	}

	file := noteIndexFileV2{Version: currentNoteIndexVersion, Notes: notes}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return newErr(ErrStorage, "marshal note index", err)
	}
	return atomicWriteFile(path, data, 0o600)
}

// LoadNoteIndex reads a persisted index from path, transparently upgrading
// a v1 (unversioned) file to v2 shape in memory. The upgraded shape is not
// written back until the next explicit Save (spec.md §4.6 persistence:
// v1->v2 upgrade-on-save).
func LoadNoteIndex(path string) (*NoteIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newErr(ErrStorage, "read note index file", err)
	}

	var withVersion struct {
		Version int `json:"version"`
	}
	var bare []SerializableNote
	bareErr := json.Unmarshal(data, &bare)
	if bareErr != nil {
		if err := json.Unmarshal(data, &withVersion); err != nil {
			return nil, newErr(ErrDeserialization, "parse note index file", err)
		}
	}

	var notes []SerializableNote
	legacy := withVersion.Version < noteIndexV2
	if bareErr == nil {
		notes = bare
	} else if !legacy {
		var v2 noteIndexFileV2
		if err := json.Unmarshal(data, &v2); err != nil {
			return nil, newErr(ErrDeserialization, "parse v2 note index", err)
		}
		notes = v2.Notes
	} else {
		var v1 noteIndexFileV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, newErr(ErrDeserialization, "parse v1 note index", err)
		}
		notes = v1.Notes
	}

	idx := NewNoteIndex()
	for i, s := range notes {
		n := FromSerializable(s)
		// v1 never persisted InsertSeq; approximate the original insertion
		// order with the file's array order, the best information available.
		if legacy {
			n.InsertSeq = uint64(i)
		}
		idx.notes[n.Nullifier] = &n
		if n.InsertSeq >= idx.nextSeq {
			idx.nextSeq = n.InsertSeq + 1
		}
	}
	return idx, nil
}

// validateNoteIndexInvariants checks I1 (unique nullifiers) before a save
// is allowed to proceed; duplicates would only arise from a programming
// error upstream since Add already de-duplicates by map key.
func validateNoteIndexInvariants(notes []SerializableNote) error {
	seen := make(map[string]bool, len(notes))
	for _, n := range notes {
		key := string(n.NullifierBytes)
		if seen[key] {
			return newErr(ErrInvalidOperation, "duplicate nullifier in note index", nil)
		}
		seen[key] = true
	}
	return nil
}
