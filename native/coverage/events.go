package coverage

import (
	"peershield/core/types"
)

const (
	EventTypeCreate          = "coverage.create"
	EventTypeTopUp           = "coverage.top_up"
	EventTypeSetRecipient    = "coverage.set_recipient"
	EventTypeApprove         = "coverage.approve"
	EventTypeRefund          = "coverage.refund"
	EventTypeClaim           = "coverage.claim"
	EventTypeProvideCoverage = "coverage.provide_coverage"
)

type coverageEvent struct {
	evt *types.Event
}

func (e coverageEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e coverageEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the payload emitted when an agreement is stored.
func NewCreatedEvent(ins *Insurance) *types.Event {
	return newInsuranceEvent(EventTypeCreate, "create", ins, nil)
}

// NewToppedUpEvent returns the payload emitted when funds are added to an
// agreement.
func NewToppedUpEvent(ins *Insurance, funds *Balance) *types.Event {
	return newInsuranceEvent(EventTypeTopUp, "top_up", ins, map[string]string{"amount": funds.String()})
}

// NewRecipientSetEvent returns the payload emitted when the arbiter assigns
// a recipient.
func NewRecipientSetEvent(ins *Insurance) *types.Event {
	return newInsuranceEvent(EventTypeSetRecipient, "set_recipient", ins, map[string]string{"recipient": ins.Recipient})
}

// NewApprovedEvent returns the payload emitted when an agreement pays out.
func NewApprovedEvent(ins *Insurance) *types.Event {
	return newInsuranceEvent(EventTypeApprove, "approve", ins, map[string]string{"to": ins.Recipient})
}

// NewRefundedEvent returns the payload emitted when funds return to the
// source.
func NewRefundedEvent(ins *Insurance) *types.Event {
	return newInsuranceEvent(EventTypeRefund, "refund", ins, map[string]string{"to": ins.Source})
}

// NewClaimedEvent returns the payload emitted when the arbiter files a claim.
func NewClaimedEvent(ins *Insurance) *types.Event {
	return newInsuranceEvent(EventTypeClaim, "claim", ins, map[string]string{"status": ClaimPendingApproval.String()})
}

// NewCoverageProvidedEvent returns the payload emitted for a pool
// contribution.
func NewCoverageProvidedEvent(funds *Balance, pool *CoveragePool) *types.Event {
	attrs := map[string]string{
		"action": "provide_coverage",
		"amount": funds.String(),
	}
	if pool != nil {
		attrs["pool"] = pool.Pool.NativeAmount().Dec()
	}
	return &types.Event{Type: EventTypeProvideCoverage, Attributes: attrs}
}

func newInsuranceEvent(eventType, action string, ins *Insurance, extra map[string]string) *types.Event {
	attrs := map[string]string{"action": action}
	if ins == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = ins.ID
	for k, v := range extra {
		if v != "" {
			attrs[k] = v
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
