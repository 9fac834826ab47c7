package core

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"peershield/native/coverage"
)

var (
	// ErrUnsupportedMsg is returned for messages the dispatcher cannot route.
	ErrUnsupportedMsg = errors.New("core: unsupported message")
	// ErrUnexpectedFunds is returned when native funds accompany a message
	// that cannot accept them.
	ErrUnexpectedFunds = errors.New("core: message does not accept native funds")
)

// Msg is an execute message routed to the coverage engine.
type Msg interface {
	Route() string
}

// CreateMsg opens a new agreement funded by the attached funds.
type CreateMsg struct {
	coverage.CreateMsg
}

// TopUpMsg adds the attached funds to an agreement.
type TopUpMsg struct {
	ID string
}

// SetRecipientMsg assigns the payout recipient of an agreement.
type SetRecipientMsg struct {
	ID        string
	Recipient string
}

// ApproveMsg pays an agreement out to its recipient.
type ApproveMsg struct {
	ID string
}

// RefundMsg returns an agreement's funds to its source.
type RefundMsg struct {
	ID string
}

// ClaimMsg files a claim against an agreement.
type ClaimMsg struct {
	ID string
}

// ProvideCoverageMsg adds the attached funds to the coverage pool.
type ProvideCoverageMsg struct{}

// ReceiveMsg is the notification sent by a token contract after it moved
// Amount of its tokens to this application on behalf of Sender. The caller
// of the request is the token contract. Inner must be a CreateMsg, TopUpMsg
// or ProvideCoverageMsg.
type ReceiveMsg struct {
	Sender string
	Amount *uint256.Int
	Inner  Msg
}

func (CreateMsg) Route() string          { return "create" }
func (TopUpMsg) Route() string           { return "top_up" }
func (SetRecipientMsg) Route() string    { return "set_recipient" }
func (ApproveMsg) Route() string         { return "approve" }
func (RefundMsg) Route() string          { return "refund" }
func (ClaimMsg) Route() string           { return "claim" }
func (ProvideCoverageMsg) Route() string { return "provide_coverage" }
func (ReceiveMsg) Route() string         { return "receive" }

// dispatch applies msg against engine. Transfers are only produced by
// approvals and refunds.
func dispatch(engine *coverage.Engine, validator coverage.AddressValidator, caller string, funds *coverage.Balance, msg Msg, env coverage.Env) ([]coverage.Transfer, error) {
	switch m := msg.(type) {
	case CreateMsg:
		_, err := engine.Create(m.CreateMsg, funds, caller)
		return nil, err
	case *CreateMsg:
		if m == nil {
			return nil, fmt.Errorf("%w: nil create message", ErrUnsupportedMsg)
		}
		return dispatch(engine, validator, caller, funds, *m, env)
	case TopUpMsg:
		return nil, engine.TopUp(m.ID, funds)
	case SetRecipientMsg:
		return nil, requireNoFunds(funds, func() error { return engine.SetRecipient(m.ID, caller, m.Recipient) })
	case ApproveMsg:
		if !funds.IsEmpty() {
			return nil, ErrUnexpectedFunds
		}
		return engine.Approve(m.ID, caller, env)
	case RefundMsg:
		if !funds.IsEmpty() {
			return nil, ErrUnexpectedFunds
		}
		return engine.Refund(m.ID, caller, env)
	case ClaimMsg:
		return nil, requireNoFunds(funds, func() error { return engine.FileClaim(m.ID, caller, env) })
	case ProvideCoverageMsg:
		return nil, engine.ProvideCoverage(funds)
	case ReceiveMsg:
		return receive(engine, validator, caller, funds, m, env)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMsg, msg)
	}
}

func requireNoFunds(funds *coverage.Balance, fn func() error) error {
	if !funds.IsEmpty() {
		return ErrUnexpectedFunds
	}
	return fn()
}

// receive turns a token notification into a token funded create, top-up or
// pool contribution. The token contract becomes the funding asset and the
// embedded sender becomes the source of a created agreement.
func receive(engine *coverage.Engine, validator coverage.AddressValidator, caller string, funds *coverage.Balance, m ReceiveMsg, env coverage.Env) ([]coverage.Transfer, error) {
	if !funds.IsEmpty() {
		return nil, ErrUnexpectedFunds
	}
	contract, err := validator.ValidateAddress(caller)
	if err != nil {
		return nil, fmt.Errorf("%w: token contract: %v", coverage.ErrInvalidAddress, err)
	}
	amount := m.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	tokens := coverage.NewTokenBalance(contract, amount)
	switch m.Inner.(type) {
	case CreateMsg, *CreateMsg:
		// only a created agreement records the sender, as its source
		sender, err := validator.ValidateAddress(m.Sender)
		if err != nil {
			return nil, fmt.Errorf("%w: sender: %v", coverage.ErrInvalidAddress, err)
		}
		return dispatch(engine, validator, sender, tokens, m.Inner, env)
	case TopUpMsg, ProvideCoverageMsg:
		return dispatch(engine, validator, m.Sender, tokens, m.Inner, env)
	default:
		return nil, fmt.Errorf("%w: %T inside receive", ErrUnsupportedMsg, m.Inner)
	}
}
