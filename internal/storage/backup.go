package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Snapshot is the on-disk backup format: the raw JSON of each record
type Snapshot struct {
	CreatedAt time.Time                  `json:"created_at"`
	Records   map[string]json.RawMessage `json:"records"`
}

var backupKeys = []string{KeyUsers, KeyActivityMonitor, KeyGuild}

// Export writes a zstd-compressed snapshot of every registry record to w.
// Records that were never written are left out.
func Export(ctx context.Context, kv KV, w io.Writer) error {
	snap := Snapshot{
		CreatedAt: time.Now().UTC(),
		Records:   make(map[string]json.RawMessage),
	}
	for _, key := range backupKeys {
		data, err := kv.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		snap.Records[key] = json.RawMessage(data)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return enc.Close()
}

// Import reads a snapshot written by Export and replaces the records it holds
func Import(ctx context.Context, kv KV, r io.Reader) (*Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	for _, key := range backupKeys {
		data, ok := snap.Records[key]
		if !ok {
			continue
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("record %s is not valid JSON", key)
		}
		if err := kv.Set(ctx, key, data); err != nil {
			return nil, err
		}
	}
	return &snap, nil
}
