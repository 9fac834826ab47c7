package state

import (
	"errors"
	"fmt"
)

// StateVersion identifies the expected on-disk schema layout. Increment this
// constant whenever breaking changes are made to the stored structure.
const StateVersion uint32 = 1

var (
	hostVersionKey = []byte("host/version")
	hostHeightKey  = []byte("host/height")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// ContractInfo names the application that owns the stored state.
type ContractInfo struct {
	Name          string
	Version       string
	SchemaVersion uint32
}

// SetContractInfo records the application identity. Callers should invoke
// this once when initialising a fresh database.
func (m *Manager) SetContractInfo(info ContractInfo) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if info.Name == "" {
		return fmt.Errorf("state: contract name required")
	}
	return m.KVPut(hostVersionKey, &info)
}

// ContractInfo returns the stored application identity and whether it was
// present.
func (m *Manager) ContractInfo() (*ContractInfo, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("state: manager unavailable")
	}
	info := new(ContractInfo)
	ok, err := m.KVGet(hostVersionKey, info)
	if err != nil || !ok {
		return nil, ok, err
	}
	return info, true, nil
}

// EnsureContractInfo writes info when the database is fresh and otherwise
// verifies the stored record belongs to the same application and schema.
// When allowMigrate is true, schema mismatches are tolerated so operators can
// perform manual migrations.
func (m *Manager) EnsureContractInfo(info ContractInfo, allowMigrate bool) error {
	stored, ok, err := m.ContractInfo()
	if err != nil {
		return err
	}
	if !ok {
		return m.SetContractInfo(info)
	}
	if stored.Name != info.Name {
		return fmt.Errorf("state: database belongs to %q, not %q", stored.Name, info.Name)
	}
	if stored.SchemaVersion == info.SchemaVersion {
		if stored.Version != info.Version {
			return m.SetContractInfo(info)
		}
		return nil
	}
	if allowMigrate {
		return m.SetContractInfo(info)
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, stored.SchemaVersion, info.SchemaVersion)
}

// Height returns the last applied request height. A fresh database reports 0.
func (m *Manager) Height() (uint64, error) {
	var height uint64
	if _, err := m.KVGet(hostHeightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// SetHeight records the last applied request height.
func (m *Manager) SetHeight(height uint64) error {
	return m.KVPut(hostHeightKey, height)
}
