package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	ledgererr "tokenledger/core/errors"
	"tokenledger/storage"
)

// Store owns the backing database plus the set of write capabilities. Reads
// are open; every mutation goes through a Manager bound to a capability name
// the store has granted, mirroring the ownership gate of the original
// storage contract.
type Store struct {
	db      storage.Database
	mu      sync.RWMutex
	writers map[string]struct{}
}

// NewStore wraps the database with an empty capability set.
func NewStore(db storage.Database) *Store {
	return &Store{db: db, writers: make(map[string]struct{})}
}

// AllowWriter grants the named component write access.
func (s *Store) AllowWriter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[name] = struct{}{}
}

// RevokeWriter withdraws a previously granted capability.
func (s *Store) RevokeWriter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.writers, name)
}

func (s *Store) authorized(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.writers[name]
	return ok
}

// DB exposes the backing database, primarily so the engine can layer a write
// overlay on top of it.
func (s *Store) DB() storage.Database {
	return s.db
}

// Access returns a manager holding the named write capability.
func (s *Store) Access(name string) *Manager {
	return &Manager{store: s, db: s.db, owner: name}
}

// View returns a read-only manager.
func (s *Store) View() *Manager {
	return &Manager{store: s, db: s.db}
}

// Manager reads and writes typed values addressed by deterministic
// identifiers. Keys are hashed with keccak256 before reaching the database;
// values are RLP encoded.
type Manager struct {
	store *Store
	db    storage.Database
	owner string
}

// WithDB rebinds the manager to a different database (typically a per-call
// overlay) while keeping its write capability.
func (m *Manager) WithDB(db storage.Database) *Manager {
	return &Manager{store: m.store, db: db, owner: m.owner}
}

func (m *Manager) canWrite() error {
	if m.owner == "" || !m.store.authorized(m.owner) {
		return fmt.Errorf("state: write by %q: %w", m.owner, ledgererr.ErrUnauthorized)
	}
	return nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) put(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	if err := m.canWrite(); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the entry stored under the key. Deleting an absent key is a
// no-op; the next read returns the type's zero value either way.
func (m *Manager) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	if err := m.canWrite(); err != nil {
		return err
	}
	return m.db.Delete(kvKey(key))
}

// Has reports whether any value is stored under the key.
func (m *Manager) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("state: key must not be empty")
	}
	return m.db.Has(kvKey(key))
}

// SetUint stores a non-negative integer.
func (m *Manager) SetUint(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: uint value must not be negative")
	}
	return m.put(key, value)
}

// GetUint returns the stored integer, defaulting to zero for absent keys.
func (m *Manager) GetUint(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.get(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

type signedValue struct {
	Neg bool
	Abs *big.Int
}

// SetInt stores a signed integer.
func (m *Manager) SetInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	return m.put(key, signedValue{Neg: value.Sign() < 0, Abs: new(big.Int).Abs(value)})
}

// GetInt returns the stored signed integer, defaulting to zero.
func (m *Manager) GetInt(key []byte) (*big.Int, error) {
	var stored signedValue
	ok, err := m.get(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Abs == nil {
		return big.NewInt(0), nil
	}
	value := new(big.Int).Set(stored.Abs)
	if stored.Neg {
		value.Neg(value)
	}
	return value, nil
}

// SetBool stores a boolean flag.
func (m *Manager) SetBool(key []byte, value bool) error {
	return m.put(key, value)
}

// GetBool returns the stored flag, defaulting to false.
func (m *Manager) GetBool(key []byte) (bool, error) {
	var value bool
	ok, err := m.get(key, &value)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return value, nil
}

// SetString stores a string.
func (m *Manager) SetString(key []byte, value string) error {
	return m.put(key, value)
}

// GetString returns the stored string, defaulting to "".
func (m *Manager) GetString(key []byte) (string, error) {
	var value string
	ok, err := m.get(key, &value)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

// SetAddress stores a 20-byte address.
func (m *Manager) SetAddress(key []byte, value common.Address) error {
	return m.put(key, value.Bytes())
}

// GetAddress returns the stored address, defaulting to the zero address.
func (m *Manager) GetAddress(key []byte) (common.Address, error) {
	var raw []byte
	ok, err := m.get(key, &raw)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, nil
	}
	return common.BytesToAddress(raw), nil
}

// SetBytes stores an opaque byte sequence.
func (m *Manager) SetBytes(key []byte, value []byte) error {
	return m.put(key, value)
}

// GetBytes returns the stored byte sequence, defaulting to empty.
func (m *Manager) GetBytes(key []byte) ([]byte, error) {
	var value []byte
	ok, err := m.get(key, &value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte{}, nil
	}
	return value, nil
}

// SetStruct stores an RLP-encodable record.
func (m *Manager) SetStruct(key []byte, value interface{}) error {
	return m.put(key, value)
}

// GetStruct decodes the stored record into out, reporting whether the key
// was present.
func (m *Manager) GetStruct(key []byte, out interface{}) (bool, error) {
	return m.get(key, out)
}

// Append appends the value to the byte-slice list stored under the key.
// Duplicates are ignored so indexes stay deterministic.
func (m *Manager) Append(key []byte, value []byte) error {
	var list [][]byte
	if _, err := m.get(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.put(key, list)
}

// GetList returns the byte-slice list stored under the key, defaulting to an
// empty slice.
func (m *Manager) GetList(key []byte) ([][]byte, error) {
	var list [][]byte
	ok, err := m.get(key, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return list, nil
}
