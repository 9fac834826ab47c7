package state

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"peershield/native/coverage"
)

var (
	coveragePoolKey         = []byte("coverage/pool")
	coverageInsurancePrefix = []byte("coverage/insurance/")
	coverageClaimPrefix     = []byte("coverage/claim/")
)

func insuranceKey(id string) []byte {
	buf := make([]byte, len(coverageInsurancePrefix)+len(id))
	copy(buf, coverageInsurancePrefix)
	copy(buf[len(coverageInsurancePrefix):], id)
	return buf
}

func claimKey(id string) []byte {
	buf := make([]byte, len(coverageClaimPrefix)+len(id))
	copy(buf, coverageClaimPrefix)
	copy(buf[len(coverageClaimPrefix):], id)
	return buf
}

type storedTokenAmount struct {
	Contract string
	Amount   *big.Int
}

type storedBalance struct {
	Native *big.Int
	Tokens []storedTokenAmount
}

type storedPool struct {
	Balance  storedBalance
	Reserved *big.Int
}

type storedInsurance struct {
	ID             string
	Arbiter        string
	Recipient      string
	Source         string
	Title          string
	Description    string
	HasEndHeight   bool
	EndHeight      uint64
	HasEndTime     bool
	EndTime        uint64
	Balance        storedBalance
	TokenWhitelist []string
	Reserved       *big.Int
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("coverage: negative stored amount")
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("coverage: stored amount overflows 256 bits")
	}
	return out, nil
}

func newStoredBalance(b *coverage.Balance) storedBalance {
	out := storedBalance{Native: big.NewInt(0)}
	if b == nil {
		return out
	}
	out.Native = toBig(b.Native)
	for _, contract := range b.TokenContracts() {
		out.Tokens = append(out.Tokens, storedTokenAmount{Contract: contract, Amount: toBig(b.TokenAmount(contract))})
	}
	return out
}

func (s storedBalance) toBalance() (*coverage.Balance, error) {
	out := coverage.NewBalance()
	native, err := fromBig(s.Native)
	if err != nil {
		return nil, err
	}
	out.Native = native
	for _, token := range s.Tokens {
		amount, err := fromBig(token.Amount)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() || token.Contract == "" {
			continue
		}
		out.Tokens[token.Contract] = amount
	}
	return out, nil
}

func newStoredInsurance(ins *coverage.Insurance) *storedInsurance {
	out := &storedInsurance{
		ID:             ins.ID,
		Arbiter:        ins.Arbiter,
		Recipient:      ins.Recipient,
		Source:         ins.Source,
		Title:          ins.Title,
		Description:    ins.Description,
		Balance:        newStoredBalance(ins.Balance),
		TokenWhitelist: append([]string{}, ins.TokenWhitelist...),
		Reserved:       toBig(ins.Reserved),
	}
	if ins.EndHeight != nil {
		out.HasEndHeight = true
		out.EndHeight = *ins.EndHeight
	}
	if ins.EndTime != nil {
		out.HasEndTime = true
		out.EndTime = *ins.EndTime
	}
	return out
}

func (s *storedInsurance) toInsurance() (*coverage.Insurance, error) {
	balance, err := s.Balance.toBalance()
	if err != nil {
		return nil, err
	}
	reserved, err := fromBig(s.Reserved)
	if err != nil {
		return nil, err
	}
	out := &coverage.Insurance{
		ID:             s.ID,
		Arbiter:        s.Arbiter,
		Recipient:      s.Recipient,
		Source:         s.Source,
		Title:          s.Title,
		Description:    s.Description,
		Balance:        balance,
		TokenWhitelist: append([]string{}, s.TokenWhitelist...),
		Reserved:       reserved,
	}
	if s.HasEndHeight {
		v := s.EndHeight
		out.EndHeight = &v
	}
	if s.HasEndTime {
		v := s.EndTime
		out.EndTime = &v
	}
	return out, nil
}

// CoveragePoolGet loads the shared coverage pool.
func (m *Manager) CoveragePoolGet() (*coverage.CoveragePool, bool, error) {
	var stored storedPool
	ok, err := m.KVGet(coveragePoolKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	balance, err := stored.Balance.toBalance()
	if err != nil {
		return nil, false, err
	}
	reserved, err := fromBig(stored.Reserved)
	if err != nil {
		return nil, false, err
	}
	return &coverage.CoveragePool{Pool: balance, Reserved: reserved}, true, nil
}

// CoveragePoolPut persists the shared coverage pool.
func (m *Manager) CoveragePoolPut(pool *coverage.CoveragePool) error {
	if pool == nil {
		return fmt.Errorf("coverage: nil pool")
	}
	return m.KVPut(coveragePoolKey, &storedPool{
		Balance:  newStoredBalance(pool.Pool),
		Reserved: toBig(pool.Reserved),
	})
}

// InsuranceGet loads the agreement stored under id.
func (m *Manager) InsuranceGet(id string) (*coverage.Insurance, bool, error) {
	var stored storedInsurance
	ok, err := m.KVGet(insuranceKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	ins, err := stored.toInsurance()
	if err != nil {
		return nil, false, err
	}
	return ins, true, nil
}

// InsurancePut persists an agreement under its id.
func (m *Manager) InsurancePut(ins *coverage.Insurance) error {
	if ins == nil {
		return fmt.Errorf("coverage: nil insurance")
	}
	if ins.ID == "" {
		return fmt.Errorf("coverage: insurance id required")
	}
	return m.KVPut(insuranceKey(ins.ID), newStoredInsurance(ins))
}

// InsuranceDelete removes the agreement stored under id.
func (m *Manager) InsuranceDelete(id string) error {
	return m.KVDelete(insuranceKey(id))
}

// InsuranceIDs lists every stored agreement id.
func (m *Manager) InsuranceIDs() ([]string, error) {
	return m.idsUnder(coverageInsurancePrefix)
}

// ClaimGet loads the claim marker for id.
func (m *Manager) ClaimGet(id string) (coverage.ClaimStatus, bool, error) {
	var raw uint64
	ok, err := m.KVGet(claimKey(id), &raw)
	if err != nil || !ok {
		return 0, ok, err
	}
	status := coverage.ClaimStatus(raw)
	if !status.Valid() {
		return 0, false, fmt.Errorf("coverage: invalid claim status %d for %s", raw, id)
	}
	return status, true, nil
}

// ClaimPut records a claim marker for id.
func (m *Manager) ClaimPut(id string, status coverage.ClaimStatus) error {
	if !status.Valid() {
		return fmt.Errorf("coverage: invalid claim status %d", status)
	}
	return m.KVPut(claimKey(id), uint64(status))
}

// ClaimDelete clears the claim marker for id.
func (m *Manager) ClaimDelete(id string) error {
	return m.KVDelete(claimKey(id))
}

// ClaimIDs lists every agreement id with an open claim.
func (m *Manager) ClaimIDs() ([]string, error) {
	return m.idsUnder(coverageClaimPrefix)
}

func (m *Manager) idsUnder(prefix []byte) ([]string, error) {
	keys, err := m.KVKeys(prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, string(bytes.TrimPrefix(key, prefix)))
	}
	return ids, nil
}
