package walletstore

import "errors"

var (
	// ErrInvalidDSN is returned when the DSN is empty.
	ErrInvalidDSN = errors.New("walletstore: invalid or empty DSN")

	// ErrMigrationFailed is returned when migrations fail to apply.
	ErrMigrationFailed = errors.New("walletstore: migration failed")

	// ErrSnapshotNotFound is returned when no snapshot exists for a run_id.
	ErrSnapshotNotFound = errors.New("walletstore: snapshot not found")
)
