package coverage

import (
	"fmt"

	"github.com/holiman/uint256"
)

// PoolView is the read-only projection of the coverage pool.
type PoolView struct {
	Denom    string
	Native   *uint256.Int
	Reserved *uint256.Int
}

// loadPool returns the stored pool, or an empty pool when nobody has
// contributed yet. The boolean reports whether the record exists.
func (e *Engine) loadPool() (*CoveragePool, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	pool, ok, err := e.state.CoveragePoolGet()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &CoveragePool{Pool: NewBalance(), Reserved: new(uint256.Int)}, false, nil
	}
	if pool.Pool == nil {
		pool.Pool = NewBalance()
	}
	if pool.Reserved == nil {
		pool.Reserved = new(uint256.Int)
	}
	return pool, true, nil
}

// coverable is the native amount a new commitment may be checked against.
func (e *Engine) coverable(pool *CoveragePool) *uint256.Int {
	if e.cfg.Policy == PoolPolicyReserve {
		return pool.Available()
	}
	return pool.Pool.NativeAmount()
}

func (e *Engine) reserve(pool *CoveragePool, ins *Insurance, amount *uint256.Int) error {
	if e.cfg.Policy != PoolPolicyReserve || amount.IsZero() {
		return nil
	}
	reserved, overflow := new(uint256.Int).AddOverflow(pool.Reserved, amount)
	if overflow {
		return ErrOverflow
	}
	current := ins.Reserved
	if current == nil {
		current = new(uint256.Int)
	}
	held, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return ErrOverflow
	}
	pool.Reserved = reserved
	ins.Reserved = held
	return e.state.CoveragePoolPut(pool)
}

func (e *Engine) release(pool *CoveragePool, ins *Insurance) {
	if ins.Reserved == nil || ins.Reserved.IsZero() {
		return
	}
	if pool.Reserved.Lt(ins.Reserved) {
		pool.Reserved = new(uint256.Int)
	} else {
		pool.Reserved = new(uint256.Int).Sub(pool.Reserved, ins.Reserved)
	}
	ins.Reserved = new(uint256.Int)
}

// debitForApproval removes the agreement's native amount from the pool. An
// underflow means concurrent agreements exhausted the pool after this one
// passed its solvency check.
func (e *Engine) debitForApproval(pool *CoveragePool, ins *Insurance) error {
	e.release(pool, ins)
	if err := pool.Pool.Sub(ins.Balance.NativeAmount()); err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientCover, err)
	}
	return nil
}

// ProvideCoverage adds funds to the shared pool. The first contribution
// creates the pool; contributions are not attributed to their sender.
func (e *Engine) ProvideCoverage(funds *Balance) error {
	if funds.IsEmpty() {
		return ErrEmptyBalance
	}
	pool, exists, err := e.loadPool()
	if err != nil {
		return err
	}
	if !exists {
		pool = &CoveragePool{Pool: funds.Clone(), Reserved: new(uint256.Int)}
	} else if err := pool.Pool.Add(funds); err != nil {
		return err
	}
	if err := e.state.CoveragePoolPut(pool); err != nil {
		return err
	}
	e.emit(NewCoverageProvidedEvent(funds, pool))
	return nil
}

// Pool returns the native side of the coverage pool.
func (e *Engine) Pool() (*PoolView, error) {
	pool, _, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return &PoolView{
		Denom:    e.cfg.NativeDenom,
		Native:   pool.Pool.NativeAmount(),
		Reserved: new(uint256.Int).Set(pool.Reserved),
	}, nil
}
