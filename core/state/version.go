package state

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// SchemaVersion identifies the expected on-disk layout of the ledger state.
// Increment whenever a breaking change is made to the stored structure and
// register the corresponding step in migrations.
const SchemaVersion uint32 = 1

var schemaVersionKey = []byte("state.version")

// ErrSchemaVersionMismatch indicates the stored layout version does not match
// what this binary supports.
var ErrSchemaVersionMismatch = errors.New("state: schema version mismatch")

// SetSchemaVersion records the provided layout version.
func (m *Manager) SetSchemaVersion(version uint32) error {
	return m.SetUint(schemaVersionKey, new(big.Int).SetUint64(uint64(version)))
}

// GetSchemaVersion returns the stored layout version; zero means the store
// has never been initialised.
func (m *Manager) GetSchemaVersion() (uint32, error) {
	stored, err := m.GetUint(schemaVersionKey)
	if err != nil {
		return 0, err
	}
	if !stored.IsUint64() || stored.Uint64() > uint64(math.MaxUint32) {
		return 0, fmt.Errorf("state: schema version overflow: %s", stored)
	}
	return uint32(stored.Uint64()), nil
}

// MigrateState moves the stored layout from oldVersion to newVersion. The
// single versioned component replaces the proxy indirection of the source
// system: upgrades are explicit store rewrites, not runtime dispatch.
// Migration steps are registered per target version; a missing step is an
// error rather than a silent skip.
func (m *Manager) MigrateState(oldVersion, newVersion uint32) error {
	stored, err := m.GetSchemaVersion()
	if err != nil {
		return err
	}
	if stored != oldVersion {
		return fmt.Errorf("%w: on-disk=%d caller expected=%d", ErrSchemaVersionMismatch, stored, oldVersion)
	}
	if newVersion < oldVersion {
		return fmt.Errorf("state: cannot migrate backwards from %d to %d", oldVersion, newVersion)
	}
	if newVersion > SchemaVersion {
		return fmt.Errorf("%w: target=%d supported=%d", ErrSchemaVersionMismatch, newVersion, SchemaVersion)
	}
	for v := oldVersion + 1; v <= newVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return fmt.Errorf("state: no migration step registered for version %d", v)
		}
		if err := step(m); err != nil {
			return fmt.Errorf("state: migration to version %d: %w", v, err)
		}
	}
	return m.SetSchemaVersion(newVersion)
}

// migrations maps a target version to the rewrite producing it from the
// previous version. Version 1 is the initial layout and writes nothing.
var migrations = map[uint32]func(*Manager) error{
	1: func(*Manager) error { return nil },
}
