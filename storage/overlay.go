package storage

import "sync"

// Overlay buffers writes on top of a base database until Commit flushes them.
// Every guarded ledger operation runs against a fresh overlay so a failure at
// any step discards the buffered writes and the base store observes nothing.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay wraps the base database with an empty write buffer.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		o.mu.RUnlock()
		return nil, nil
	}
	if value, ok := o.writes[k]; ok {
		o.mu.RUnlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.RUnlock()
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		o.mu.RUnlock()
		return false, nil
	}
	if _, ok := o.writes[k]; ok {
		o.mu.RUnlock()
		return true, nil
	}
	o.mu.RUnlock()
	return o.base.Has(key)
}

// batchWriter is implemented by bases that can flush a buffer atomically.
type batchWriter interface {
	writeBatch(writes map[string][]byte, deletes map[string]struct{}) error
}

// Commit flushes buffered writes and deletes to the base database. Bases
// that support batched writes receive the whole buffer in a single atomic
// batch so a mid-flush failure cannot leave a partial commit behind.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if bw, ok := o.base.(batchWriter); ok {
		if err := bw.writeBatch(o.writes, o.deletes); err != nil {
			return err
		}
	} else {
		for k, v := range o.writes {
			if err := o.base.Put([]byte(k), v); err != nil {
				return err
			}
		}
		for k := range o.deletes {
			if err := o.base.Delete([]byte(k)); err != nil {
				return err
			}
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops all buffered mutations.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Dirty reports whether uncommitted mutations are buffered.
func (o *Overlay) Dirty() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.writes) > 0 || len(o.deletes) > 0
}

// Close satisfies the Database interface. The base store stays open; the
// overlay only forgets its buffer.
func (o *Overlay) Close() {
	o.Discard()
}
