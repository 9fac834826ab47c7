package coverage

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Env carries the block context a request is evaluated against.
type Env struct {
	Height uint64
	// Time is the block time in seconds since the unix epoch.
	Time uint64
}

// ClaimStatus is the state stored for an open claim request.
type ClaimStatus uint8

const (
	ClaimPendingApproval ClaimStatus = iota + 1
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimPendingApproval:
		return "pending_approval"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s ClaimStatus) Valid() bool {
	return s == ClaimPendingApproval
}

// PoolPolicy selects how agreements draw on the coverage pool.
type PoolPolicy uint8

const (
	// PoolPolicyCheck only compares the agreement against the pool at
	// creation; nothing is set aside, so concurrent agreements can
	// overcommit the pool.
	PoolPolicyCheck PoolPolicy = iota
	// PoolPolicyReserve sets the agreement's native amount aside at creation
	// and top-up, and releases it on approval or refund.
	PoolPolicyReserve
)

func (p PoolPolicy) String() string {
	switch p {
	case PoolPolicyCheck:
		return "check"
	case PoolPolicyReserve:
		return "reserve"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// ParsePoolPolicy maps a configuration value onto a policy. An empty value
// selects PoolPolicyCheck.
func ParsePoolPolicy(raw string) (PoolPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "check":
		return PoolPolicyCheck, nil
	case "reserve":
		return PoolPolicyReserve, nil
	default:
		return 0, fmt.Errorf("unsupported pool policy: %s", raw)
	}
}

// CoveragePool is the single shared backstop balance.
type CoveragePool struct {
	Pool *Balance
	// Reserved is the native amount set aside for live agreements under
	// PoolPolicyReserve.
	Reserved *uint256.Int
}

// Available returns the native amount not yet reserved.
func (p *CoveragePool) Available() *uint256.Int {
	native := p.Pool.NativeAmount()
	if p.Reserved == nil {
		return native
	}
	if native.Lt(p.Reserved) {
		return new(uint256.Int)
	}
	return native.Sub(native, p.Reserved)
}

// Clone returns a deep copy of the pool.
func (p *CoveragePool) Clone() *CoveragePool {
	if p == nil {
		return nil
	}
	clone := &CoveragePool{Pool: p.Pool.Clone(), Reserved: new(uint256.Int)}
	if p.Reserved != nil {
		clone.Reserved.Set(p.Reserved)
	}
	return clone
}

// Insurance is a single escrow agreement backed by the coverage pool.
type Insurance struct {
	ID          string
	Arbiter     string
	Recipient   string
	Source      string
	Title       string
	Description string
	EndHeight   *uint64
	EndTime     *uint64
	Balance     *Balance
	// TokenWhitelist holds the token contracts accepted by TopUp, in the
	// order they were added.
	TokenWhitelist []string
	// Reserved is the native amount held against the pool under
	// PoolPolicyReserve.
	Reserved *uint256.Int
}

// HasRecipient reports whether a recipient has been assigned.
func (i *Insurance) HasRecipient() bool {
	return i != nil && i.Recipient != ""
}

// IsExpired evaluates the height and time bounds against env. An agreement
// with neither bound never expires.
func (i *Insurance) IsExpired(env Env) bool {
	if i == nil {
		return false
	}
	if i.EndHeight != nil && env.Height >= *i.EndHeight {
		return true
	}
	if i.EndTime != nil && env.Time >= *i.EndTime {
		return true
	}
	return false
}

// Whitelisted reports whether contract may be used to top up the agreement.
func (i *Insurance) Whitelisted(contract string) bool {
	for _, entry := range i.TokenWhitelist {
		if entry == contract {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the agreement so callers can safely mutate
// the copy without affecting the stored instance.
func (i *Insurance) Clone() *Insurance {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Balance = i.Balance.Clone()
	clone.TokenWhitelist = append([]string(nil), i.TokenWhitelist...)
	if i.EndHeight != nil {
		v := *i.EndHeight
		clone.EndHeight = &v
	}
	if i.EndTime != nil {
		v := *i.EndTime
		clone.EndTime = &v
	}
	clone.Reserved = new(uint256.Int)
	if i.Reserved != nil {
		clone.Reserved.Set(i.Reserved)
	}
	return &clone
}

// CreateMsg describes a new agreement.
type CreateMsg struct {
	// ID is a human-readable name used to address the agreement later.
	ID          string
	Recipient   string
	Title       string
	Description string
	EndHeight   *uint64
	EndTime     *uint64
	// TokenWhitelist lists the token contracts accepted during top-up in
	// addition to any token funding the creation itself.
	TokenWhitelist []string
}
