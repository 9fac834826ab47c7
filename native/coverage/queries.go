package coverage

import (
	"sort"

	"github.com/holiman/uint256"
)

// TokenAmount is a single token balance entry.
type TokenAmount struct {
	Contract string
	Amount   *uint256.Int
}

// Details is the read-only projection of one agreement.
type Details struct {
	ID             string
	Arbiter        string
	Recipient      string
	Source         string
	Title          string
	Description    string
	EndHeight      *uint64
	EndTime        *uint64
	Denom          string
	NativeBalance  *uint256.Int
	TokenBalances  []TokenAmount
	TokenWhitelist []string
}

// List returns every live agreement id in ascending order.
func (e *Engine) List() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.InsuranceIDs()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Details returns the full projection of agreement id.
func (e *Engine) Details(id string) (*Details, error) {
	ins, err := e.loadInsurance(id)
	if err != nil {
		return nil, err
	}
	out := &Details{
		ID:             ins.ID,
		Arbiter:        ins.Arbiter,
		Recipient:      ins.Recipient,
		Source:         ins.Source,
		Title:          ins.Title,
		Description:    ins.Description,
		EndHeight:      ins.EndHeight,
		EndTime:        ins.EndTime,
		Denom:          e.cfg.NativeDenom,
		NativeBalance:  ins.Balance.NativeAmount(),
		TokenBalances:  make([]TokenAmount, 0, len(ins.Balance.Tokens)),
		TokenWhitelist: append([]string{}, ins.TokenWhitelist...),
	}
	for _, contract := range ins.Balance.TokenContracts() {
		out.TokenBalances = append(out.TokenBalances, TokenAmount{
			Contract: contract,
			Amount:   ins.Balance.TokenAmount(contract),
		})
	}
	return out, nil
}

// ListClaims returns the ids of agreements with an open claim.
func (e *Engine) ListClaims() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.ClaimIDs()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
