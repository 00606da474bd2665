package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/fanout/flychat/internal/models"
)

// PebbleOptions configures the embedded Pebble store.
type PebbleOptions struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// Sync requests a WAL fsync on each committed write. When false, Pebble
	// group-commits WAL syncs within SyncInterval.
	Sync bool
	// SyncInterval controls group-commit when Sync is false.
	SyncInterval time.Duration
}

// PebbleStore keeps room logs in an embedded Pebble database. Pebble has no
// conditional write, so the read-compare-write is serialized in process; the
// database must not be shared between processes.
type PebbleStore struct {
	db        *pebble.DB
	writeSync bool

	mu sync.Mutex
}

// NewPebbleStore opens or creates a Pebble database.
func NewPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: DataDir is required")
	}

	po := &pebble.Options{}
	if !opts.Sync {
		interval := opts.SyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db, writeSync: opts.Sync}, nil
}

// Close closes the Pebble database.
func (s *PebbleStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping reports whether the database is open.
func (s *PebbleStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("pebble: closed")
	}
	return ctx.Err()
}

func pebbleLogKey(room string) []byte {
	return []byte("room/" + room + "/log")
}

// Load reads the room's log document.
func (s *PebbleStore) Load(ctx context.Context, room string) (*models.RoomLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.get(pebbleLogKey(room))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return emptyLog(room), nil
		}
		return nil, err
	}
	return decodeLog(room, data)
}

// CompareAndSwap writes next if the stored version equals prevVersion.
func (s *PebbleStore) CompareAndSwap(ctx context.Context, room string, prevVersion int64, next *models.RoomLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeLog(next)
	if err != nil {
		return err
	}
	key := pebbleLogKey(room)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.get(key)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		if prevVersion != 0 {
			return ErrConflict
		}
	case err != nil:
		return err
	default:
		l, err := decodeLog(room, cur)
		if err != nil {
			return err
		}
		if l.Version != prevVersion {
			return ErrConflict
		}
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, data, nil); err != nil {
		return err
	}
	syncMode := pebble.NoSync
	if s.writeSync {
		syncMode = pebble.Sync
	}
	return b.Commit(syncMode)
}

// get copies the value for the given key.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}
