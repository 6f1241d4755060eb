// Package history keeps terminal session outcomes in a Badger database.
// Records expire on their own after the configured retention.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Key prefixes.
const (
	prefixRecord = "r:" // r:<started unix nanos, 8 bytes BE><id> -> record JSON
	prefixID     = "i:" // i:<id> -> record key
	prefixMeta   = "m:"
)

const schemaKey = prefixMeta + "__schema__"

// SchemaVersion is bumped when the record encoding changes.
const SchemaVersion = 1

// DefaultRetention is how long records live.
const DefaultRetention = 30 * types.Day

var (
	// ErrNotFound is returned by Get when no record matches.
	ErrNotFound = errors.New("history record not found")

	// ErrAmbiguous is returned by Get when an id prefix matches several records.
	ErrAmbiguous = errors.New("history id prefix is ambiguous")
)

// DefaultPath is $XDG_DATA_HOME/wintools/history.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "wintools", "history")
}

// Store is the session history.
type Store struct {
	db        *badger.DB
	retention time.Duration
}

// Option configures a Store.
type Option func(*options)

type options struct {
	retention time.Duration
	inMemory  bool
}

// WithRetention sets the record TTL. Zero or negative keeps records forever.
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// InMemory opens a throwaway store; path is ignored.
func InMemory() Option {
	return func(o *options) { o.inMemory = true }
}

// Open opens or creates the store at path.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{retention: DefaultRetention}
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badger.DefaultOptions(path)
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening history at %s: %w", path, err)
	}

	s := &Store{db: db, retention: o.retention}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ensureSchema stamps a fresh database and refuses a newer one.
func (s *Store) ensureSchema() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			data, err := json.Marshal(schema{Version: SchemaVersion, UpdatedAt: time.Now()})
			if err != nil {
				return err
			}
			return txn.Set([]byte(schemaKey), data)
		}
		if err != nil {
			return err
		}
		var sc schema
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &sc) }); err != nil {
			return fmt.Errorf("reading history schema: %w", err)
		}
		if sc.Version > SchemaVersion {
			return fmt.Errorf("history schema v%d is newer than supported v%d", sc.Version, SchemaVersion)
		}
		return nil
	})
}

func recordKey(rec *types.SessionRecord) []byte {
	key := make([]byte, 0, len(prefixRecord)+8+len(rec.ID))
	key = append(key, prefixRecord...)
	key = binary.BigEndian.AppendUint64(key, uint64(rec.StartedAt.UnixNano()))
	return append(key, rec.ID...)
}

// Append stores rec. Records without an id are rejected.
func (s *Store) Append(rec types.SessionRecord) error {
	if rec.ID == "" {
		return errors.New("history record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}

	key := recordKey(&rec)
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		idx := badger.NewEntry([]byte(prefixID+rec.ID), key)
		if s.retention > 0 {
			e = e.WithTTL(s.retention)
			idx = idx.WithTTL(s.retention)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		return txn.SetEntry(idx)
	})
}

// Filter narrows List.
type Filter struct {
	Kind  types.Kind
	State types.SessionState
	Since time.Time

	// Limit caps the result; 0 means no cap.
	Limit int
}

func (f Filter) match(rec *types.SessionRecord) bool {
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.State != "" && rec.State != f.State {
		return false
	}
	return true
}

// List returns matching records, newest first.
func (s *Store) List(f Filter) ([]types.SessionRecord, error) {
	var out []types.SessionRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible record key when iterating backwards.
		seek := append([]byte(prefixRecord), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if f.Limit > 0 && len(out) >= f.Limit {
				break
			}
			key := it.Item().Key()
			if !f.Since.IsZero() && len(key) >= len(prefixRecord)+8 {
				started := int64(binary.BigEndian.Uint64(key[len(prefixRecord):]))
				if started < f.Since.UnixNano() {
					break
				}
			}

			var rec types.SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if f.match(&rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// Get returns the record whose id equals or starts with id.
func (s *Store) Get(id string) (types.SessionRecord, error) {
	var rec types.SessionRecord
	if id == "" {
		return rec, ErrNotFound
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixID + id)
		it := txn.NewIterator(opts)
		defer it.Close()

		var key []byte
		matches := 0
		for it.Rewind(); it.Valid(); it.Next() {
			matches++
			if matches > 1 {
				return fmt.Errorf("%w: %s", ErrAmbiguous, id)
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			key = v
		}
		if matches == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// Clean deletes records that started before cutoff, or every record when
// cutoff is zero. It returns how many were removed.
func (s *Store) Clean(cutoff time.Time) (int, error) {
	type victim struct{ key, id []byte }
	var victims []victim

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if len(key) < len(prefixRecord)+8 {
				continue
			}
			started := int64(binary.BigEndian.Uint64(key[len(prefixRecord):]))
			if !cutoff.IsZero() && started >= cutoff.UnixNano() {
				break
			}
			victims = append(victims, victim{key: key, id: key[len(prefixRecord)+8:]})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, v := range victims {
		if err := wb.Delete(v.key); err != nil {
			return 0, err
		}
		if err := wb.Delete([]byte(prefixID + string(v.id))); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(victims), nil
}

// Totals aggregates BytesFreed and counts per kind over recs.
func Totals(recs []types.SessionRecord) map[types.Kind]Total {
	out := make(map[types.Kind]Total)
	for _, r := range recs {
		t := out[r.Kind]
		t.Sessions++
		if r.State == types.StateFailed {
			t.Failed++
		}
		t.BytesFreed += r.BytesFreed
		out[r.Kind] = t
	}
	return out
}

// Total is one row of Totals.
type Total struct {
	Sessions   int
	Failed     int
	BytesFreed int64
}

// ShortID trims a uuid for display.
func ShortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
