package core

// Sent-transaction history (spec.md §3, §4.7 "Side effects on success").
// Persisted the same way the Note Index and Sync Cursor are: a flat JSON
// array written atomically.

import (
	"encoding/json"
	"os"
	"sync"
)

var historyMu sync.RWMutex

// LoadHistory reads the sent-transaction history from path. A missing
// file means no transactions have been sent yet.
func LoadHistory(path string) ([]SentTransactionRecord, error) {
	historyMu.RLock()
	defer historyMu.RUnlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []SentTransactionRecord{}, nil
	}
	if err != nil {
		return nil, newErr(ErrStorage, "read history file", err)
	}
	var records []SentTransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, newErr(ErrDeserialization, "parse history file", err)
	}
	return records, nil
}

// SaveHistory atomically writes records to path.
func SaveHistory(path string, records []SentTransactionRecord) error {
	historyMu.Lock()
	defer historyMu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return newErr(ErrStorage, "marshal history", err)
	}
	return atomicWriteFile(path, data, 0o600)
}
