package coverage

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"peershield/core/events"
	"peershield/core/types"
)

type engineState interface {
	CoveragePoolGet() (*CoveragePool, bool, error)
	CoveragePoolPut(*CoveragePool) error
	InsuranceGet(id string) (*Insurance, bool, error)
	InsurancePut(*Insurance) error
	InsuranceDelete(id string) error
	InsuranceIDs() ([]string, error)
	ClaimGet(id string) (ClaimStatus, bool, error)
	ClaimPut(id string, status ClaimStatus) error
	ClaimDelete(id string) error
	ClaimIDs() ([]string, error)
}

// AddressValidator canonicalises caller supplied addresses. It is provided
// by the host; the engine only consumes the verdict.
type AddressValidator interface {
	ValidateAddress(addr string) (string, error)
}

// Config captures the process-wide settings shared by every agreement.
type Config struct {
	// Arbiter is the single identity allowed to set recipients, file claims
	// and approve agreements.
	Arbiter string
	// NativeDenom labels native transfer instructions.
	NativeDenom string
	Policy      PoolPolicy
}

// Engine wires the coverage business logic with external state, address
// validation and event emitters. It holds no state of its own between calls.
type Engine struct {
	cfg       Config
	state     engineState
	emitter   events.Emitter
	validator AddressValidator
}

type trimValidator struct{}

func (trimValidator) ValidateAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", fmt.Errorf("empty address")
	}
	return trimmed, nil
}

// NewEngine creates an engine with a no-op emitter and a validator that only
// rejects blank addresses.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		emitter:   events.NoopEmitter{},
		validator: trimValidator{},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetValidator configures address validation. Passing nil restores the
// default blank-address check.
func (e *Engine) SetValidator(v AddressValidator) {
	if v == nil {
		e.validator = trimValidator{}
		return
	}
	e.validator = v
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(coverageEvent{evt: event})
}

func (e *Engine) validate(field, addr string) (string, error) {
	canonical, err := e.validator.ValidateAddress(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, field, err)
	}
	return canonical, nil
}

func (e *Engine) loadInsurance(id string) (*Insurance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ins, ok, err := e.state.InsuranceGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ins, nil
}

func (e *Engine) isArbiter(ins *Insurance, caller string) bool {
	return caller != "" && caller == ins.Arbiter
}

// Create validates and stores a new agreement funded by funds. The pool is
// checked for solvency but only mutated under PoolPolicyReserve.
func (e *Engine) Create(msg CreateMsg, funds *Balance, creator string) (*Insurance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if funds.IsEmpty() {
		return nil, ErrEmptyBalance
	}
	if strings.TrimSpace(msg.ID) == "" {
		return nil, ErrInvalidID
	}
	if e.cfg.Arbiter == "" {
		return nil, errNilArbiter
	}

	whitelist := make([]string, 0, len(msg.TokenWhitelist)+len(funds.Tokens))
	seen := make(map[string]struct{})
	for _, raw := range msg.TokenWhitelist {
		addr, err := e.validate("token whitelist", raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		whitelist = append(whitelist, addr)
	}
	// the funding token is always accepted for later top-ups
	for _, contract := range funds.TokenContracts() {
		if _, ok := seen[contract]; ok {
			continue
		}
		seen[contract] = struct{}{}
		whitelist = append(whitelist, contract)
	}

	source, err := e.validate("source", creator)
	if err != nil {
		return nil, err
	}
	ins := &Insurance{
		ID:             msg.ID,
		Arbiter:        e.cfg.Arbiter,
		Source:         source,
		Title:          msg.Title,
		Description:    msg.Description,
		Balance:        funds.Clone(),
		TokenWhitelist: whitelist,
		Reserved:       new(uint256.Int),
	}
	// a malformed recipient is dropped; the arbiter can assign one later
	if strings.TrimSpace(msg.Recipient) != "" {
		if recipient, err := e.validate("recipient", msg.Recipient); err == nil {
			ins.Recipient = recipient
		}
	}
	if msg.EndHeight != nil {
		v := *msg.EndHeight
		ins.EndHeight = &v
	}
	if msg.EndTime != nil {
		v := *msg.EndTime
		ins.EndTime = &v
	}

	pool, _, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	amount := ins.Balance.NativeAmount()
	if amount.Gt(e.coverable(pool)) {
		return nil, fmt.Errorf("%w: %s exceeds pool", ErrInsufficientCover, amount.Dec())
	}

	_, exists, err := e.state.InsuranceGet(msg.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInUse, msg.ID)
	}
	if err := e.reserve(pool, ins, amount); err != nil {
		return nil, err
	}
	if err := e.state.InsurancePut(ins); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(ins))
	return ins.Clone(), nil
}

// TopUp adds funds to an existing agreement. Token funds must come from a
// whitelisted contract.
func (e *Engine) TopUp(id string, funds *Balance) error {
	if funds.IsEmpty() {
		return ErrEmptyBalance
	}
	ins, err := e.loadInsurance(id)
	if err != nil {
		return err
	}
	for _, contract := range funds.TokenContracts() {
		if !ins.Whitelisted(contract) {
			return fmt.Errorf("%w: %s", ErrNotInWhitelist, contract)
		}
	}
	if added := funds.NativeAmount(); !added.IsZero() && e.cfg.Policy == PoolPolicyReserve {
		pool, _, err := e.loadPool()
		if err != nil {
			return err
		}
		if added.Gt(e.coverable(pool)) {
			return fmt.Errorf("%w: %s exceeds pool", ErrInsufficientCover, added.Dec())
		}
		if err := e.reserve(pool, ins, added); err != nil {
			return err
		}
	}
	if err := ins.Balance.Add(funds); err != nil {
		return err
	}
	if err := e.state.InsurancePut(ins); err != nil {
		return err
	}
	e.emit(NewToppedUpEvent(ins, funds))
	return nil
}

// SetRecipient assigns the payout recipient. Only the arbiter may call it.
func (e *Engine) SetRecipient(id, caller, recipient string) error {
	ins, err := e.loadInsurance(id)
	if err != nil {
		return err
	}
	if !e.isArbiter(ins, caller) {
		return ErrUnauthorized
	}
	validated, err := e.validate("recipient", recipient)
	if err != nil {
		return err
	}
	ins.Recipient = validated
	if err := e.state.InsurancePut(ins); err != nil {
		return err
	}
	e.emit(NewRecipientSetEvent(ins))
	return nil
}

// Approve pays the whole agreement balance out to the recipient, debits the
// pool by the native amount and removes the agreement together with any open
// claim. Only the arbiter may approve, and only before expiry.
func (e *Engine) Approve(id, caller string, env Env) ([]Transfer, error) {
	ins, err := e.loadInsurance(id)
	if err != nil {
		return nil, err
	}
	pool, exists, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if !e.isArbiter(ins, caller) {
		return nil, ErrUnauthorized
	}
	if ins.IsExpired(env) {
		return nil, ErrExpired
	}
	if !ins.HasRecipient() {
		return nil, ErrRecipientNotSet
	}

	if err := e.debitForApproval(pool, ins); err != nil {
		return nil, err
	}
	if exists {
		if err := e.state.CoveragePoolPut(pool); err != nil {
			return nil, err
		}
	}
	if err := e.state.InsuranceDelete(id); err != nil {
		return nil, err
	}
	if err := e.state.ClaimDelete(id); err != nil {
		return nil, err
	}
	e.emit(NewApprovedEvent(ins))
	return sendAll(ins.Recipient, e.cfg.NativeDenom, ins.Balance), nil
}

// Refund returns the whole agreement balance to its source. The arbiter may
// refund at any time; anyone else only once the agreement has expired.
func (e *Engine) Refund(id, caller string, env Env) ([]Transfer, error) {
	ins, err := e.loadInsurance(id)
	if err != nil {
		return nil, err
	}
	if !ins.IsExpired(env) && !e.isArbiter(ins, caller) {
		return nil, ErrUnauthorized
	}
	if ins.Reserved != nil && !ins.Reserved.IsZero() {
		pool, _, err := e.loadPool()
		if err != nil {
			return nil, err
		}
		e.release(pool, ins)
		if err := e.state.CoveragePoolPut(pool); err != nil {
			return nil, err
		}
	}
	if err := e.state.InsuranceDelete(id); err != nil {
		return nil, err
	}
	if err := e.state.ClaimDelete(id); err != nil {
		return nil, err
	}
	e.emit(NewRefundedEvent(ins))
	return sendAll(ins.Source, e.cfg.NativeDenom, ins.Balance), nil
}
