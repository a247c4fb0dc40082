package core

// Sync Cursor (C8, spec.md §4.8).
//
// A minimal JSON bookmark file (no version tag), grounded on the same
// atomicWriteFile persistence idiom as the Note Index and Encrypted
// Storage components.

import (
	"encoding/json"
	"os"
)

// LoadCursor reads a ScanCursor from path. A missing file is not an error:
// it means the wallet has never scanned, so the cursor starts empty.
func LoadCursor(path string) (ScanCursor, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ScanCursor{}, nil
	}
	if err != nil {
		return ScanCursor{}, newErr(ErrStorage, "read cursor file", err)
	}
	var cursor ScanCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return ScanCursor{}, newErr(ErrDeserialization, "parse cursor file", err)
	}
	return cursor, nil
}

// SaveCursor atomically persists cursor to path.
func SaveCursor(path string, cursor ScanCursor) error {
	data, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return newErr(ErrStorage, "marshal cursor", err)
	}
	return atomicWriteFile(path, data, 0o600)
}

// NextRange computes the next closed height range to scan given the
// current cursor and chain tip, bounded by window (spec.md §4.8
// next_range). It returns ok=false when there is nothing new to scan
// (tip <= last scanned height), in which case the cursor must not be
// touched.
func NextRange(cursor ScanCursor, tip uint32, window uint32) (from uint32, to uint32, ok bool) {
	var from0 uint32
	if cursor.LastScanHeight != nil {
		from0 = *cursor.LastScanHeight + 1
	}
	if from0 > tip {
		return 0, 0, false
	}
	to0 := from0 + window - 1
	if to0 > tip {
		to0 = tip
	}
	return from0, to0, true
}

// AdvanceCursor returns a new cursor with LastScanHeight set to toHeight.
func AdvanceCursor(toHeight uint32) ScanCursor {
	h := toHeight
	return ScanCursor{LastScanHeight: &h}
}
