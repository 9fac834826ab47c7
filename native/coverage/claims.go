package coverage

import "fmt"

// FileClaim records the arbiter's intent to approve. At most one claim may be
// open per agreement; approval and refund clear it.
func (e *Engine) FileClaim(id, caller string, env Env) error {
	ins, err := e.loadInsurance(id)
	if err != nil {
		return err
	}
	if !e.isArbiter(ins, caller) {
		return ErrUnauthorized
	}
	if ins.IsExpired(env) {
		return ErrExpired
	}
	_, exists, err := e.state.ClaimGet(id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: claim for %s", ErrAlreadyInUse, id)
	}
	if err := e.state.ClaimPut(id, ClaimPendingApproval); err != nil {
		return err
	}
	e.emit(NewClaimedEvent(ins))
	return nil
}
