package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"peershield/storage"
)

// Manager reads and writes RLP encoded records on top of a storage backend.
// Writes are buffered in an overlay until Commit applies them as one batch,
// so a request that fails halfway can be dropped with Discard.
type Manager struct {
	db      storage.Database
	pending map[string]*pendingWrite
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string]*pendingWrite)}
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if w, ok := m.pending[string(key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.pending[string(key)] = &pendingWrite{value: encoded}
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %q: %w", key, err)
	}
	return true, nil
}

// KVDelete removes key. Deleting a missing key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.pending[string(key)] = &pendingWrite{deleted: true}
	return nil
}

// KVKeys lists every key under prefix in ascending order, including writes
// that have not been committed yet.
func (m *Manager) KVKeys(prefix []byte) ([][]byte, error) {
	stored, err := m.db.Keys(prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]struct{}, len(stored))
	for _, k := range stored {
		merged[string(k)] = struct{}{}
	}
	for k, w := range m.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = struct{}{}
		}
	}
	keys := make([][]byte, 0, len(merged))
	for k := range merged {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

// Dirty reports the number of buffered writes.
func (m *Manager) Dirty() int { return len(m.pending) }

// Commit flushes the overlay to the database in a single batch.
func (m *Manager) Commit() error {
	if len(m.pending) == 0 {
		return nil
	}
	batch := storage.NewBatch()
	for k, w := range m.pending {
		if w.deleted {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), w.value)
		}
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.pending = make(map[string]*pendingWrite)
	return nil
}

// Discard drops every buffered write.
func (m *Manager) Discard() {
	m.pending = make(map[string]*pendingWrite)
}
