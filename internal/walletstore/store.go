package walletstore

import (
	"context"
	"encoding/json"
	"fmt"

	"virtual-exchange/internal/wallet"
)

// Store persists wallet.State blobs keyed by run_id. Every write
// overwrites the row for that run_id wholesale — spec's chosen
// durability model forbids partial updates.
type Store struct {
	db *DB
}

// NewStore wraps a connected, migrated DB as a Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func marshalState(state wallet.State) ([]byte, error) {
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("walletstore: marshal snapshot: %w", err)
	}
	return blob, nil
}

// Save serialises state and upserts it for runID in a single statement,
// so a concurrent reader never observes a partially written row.
func (s *Store) Save(ctx context.Context, runID string, state wallet.State) error {
	blob, err := marshalState(state)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO wallet_snapshots (run_id, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (run_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, q, runID, blob); err != nil {
		return fmt.Errorf("walletstore: save snapshot: %w", err)
	}
	return nil
}

// Load returns the wallet state previously saved for runID.
// ErrSnapshotNotFound is returned if no row exists.
func (s *Store) Load(ctx context.Context, runID string) (wallet.State, error) {
	const q = `SELECT snapshot FROM wallet_snapshots WHERE run_id = $1`

	var blob []byte
	row := s.db.QueryRowContext(ctx, q, runID)
	if err := row.Scan(&blob); err != nil {
		return wallet.State{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, runID)
	}

	var state wallet.State
	if err := json.Unmarshal(blob, &state); err != nil {
		return wallet.State{}, fmt.Errorf("walletstore: unmarshal snapshot: %w", err)
	}
	return state, nil
}
