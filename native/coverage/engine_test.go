package coverage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"peershield/core/events"
	"peershield/core/types"
)

const (
	testArbiter = "arbiter"
	testDenom   = "uosmo"
)

type mockState struct {
	pool       *CoveragePool
	insurances map[string]*Insurance
	claims     map[string]ClaimStatus
}

func newMockState() *mockState {
	return &mockState{
		insurances: make(map[string]*Insurance),
		claims:     make(map[string]ClaimStatus),
	}
}

func (m *mockState) CoveragePoolGet() (*CoveragePool, bool, error) {
	if m.pool == nil {
		return nil, false, nil
	}
	return m.pool.Clone(), true, nil
}

func (m *mockState) CoveragePoolPut(p *CoveragePool) error {
	m.pool = p.Clone()
	return nil
}

func (m *mockState) InsuranceGet(id string) (*Insurance, bool, error) {
	ins, ok := m.insurances[id]
	if !ok {
		return nil, false, nil
	}
	return ins.Clone(), true, nil
}

func (m *mockState) InsurancePut(ins *Insurance) error {
	m.insurances[ins.ID] = ins.Clone()
	return nil
}

func (m *mockState) InsuranceDelete(id string) error {
	delete(m.insurances, id)
	return nil
}

func (m *mockState) InsuranceIDs() ([]string, error) {
	ids := make([]string, 0, len(m.insurances))
	for id := range m.insurances {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockState) ClaimGet(id string) (ClaimStatus, bool, error) {
	status, ok := m.claims[id]
	return status, ok, nil
}

func (m *mockState) ClaimPut(id string, status ClaimStatus) error {
	m.claims[id] = status
	return nil
}

func (m *mockState) ClaimDelete(id string) error {
	delete(m.claims, id)
	return nil
}

func (m *mockState) ClaimIDs() ([]string, error) {
	ids := make([]string, 0, len(m.claims))
	for id := range m.claims {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type prefixValidator struct{ prefix string }

func (v prefixValidator) ValidateAddress(addr string) (string, error) {
	if !strings.HasPrefix(addr, v.prefix) {
		return "", fmt.Errorf("address %q lacks prefix %s", addr, v.prefix)
	}
	return addr, nil
}

func newTestEngine(t *testing.T, policy PoolPolicy) (*Engine, *mockState, *events.Recorder) {
	t.Helper()
	state := newMockState()
	recorder := &events.Recorder{}
	engine := NewEngine(Config{Arbiter: testArbiter, NativeDenom: testDenom, Policy: policy})
	engine.SetState(state)
	engine.SetEmitter(recorder)
	return engine, state, recorder
}

func mustProvide(t *testing.T, e *Engine, amount uint64) {
	t.Helper()
	if err := e.ProvideCoverage(NewNativeBalance(u(amount))); err != nil {
		t.Fatalf("provide coverage: %v", err)
	}
}

func mustCreate(t *testing.T, e *Engine, msg CreateMsg, funds *Balance, creator string) *Insurance {
	t.Helper()
	ins, err := e.Create(msg, funds, creator)
	if err != nil {
		t.Fatalf("create %s: %v", msg.ID, err)
	}
	return ins
}

func poolNative(t *testing.T, e *Engine) uint64 {
	t.Helper()
	view, err := e.Pool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return view.Native.Uint64()
}

func ptr(v uint64) *uint64 { return &v }

func TestProvideCoverageAccumulates(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 200)
	mustProvide(t, engine, 300)
	if got := poolNative(t, engine); got != 500 {
		t.Fatalf("expected pool 500, got %d", got)
	}
}

func TestProvideCoverageRejectsEmpty(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	if err := engine.ProvideCoverage(NewBalance()); !errors.Is(err, ErrEmptyBalance) {
		t.Fatalf("expected empty balance error, got %v", err)
	}
	if state.pool != nil {
		t.Fatalf("pool should not be created by an empty contribution")
	}
}

func TestProvideCoverageWithTokensKeepsNativeView(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	if err := engine.ProvideCoverage(NewTokenBalance("token1", u(50))); err != nil {
		t.Fatalf("provide token coverage: %v", err)
	}
	mustProvide(t, engine, 10)
	if got := poolNative(t, engine); got != 10 {
		t.Fatalf("expected native 10, got %d", got)
	}
	if got := state.pool.Pool.TokenAmount("token1").Uint64(); got != 50 {
		t.Fatalf("expected token pool 50, got %d", got)
	}
}

func TestCreateApproveScenario(t *testing.T) {
	engine, state, recorder := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 500)

	mustCreate(t, engine, CreateMsg{ID: "A", Title: "flight delay", Description: "pays on delay"}, NewNativeBalance(u(100)), "alice")
	if got := poolNative(t, engine); got != 500 {
		t.Fatalf("pool must not be debited at creation, got %d", got)
	}

	if err := engine.SetRecipient("A", testArbiter, "recipient"); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	transfers, err := engine.Approve("A", testArbiter, Env{Height: 10, Time: 1000})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := poolNative(t, engine); got != 400 {
		t.Fatalf("expected pool 400 after approval, got %d", got)
	}
	ids, err := engine.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("approved insurance still listed: %v", ids)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(transfers))
	}
	tr := transfers[0]
	if tr.Kind != TransferNative || tr.Recipient != "recipient" || tr.Denom != testDenom || tr.Amount.Uint64() != 100 {
		t.Fatalf("unexpected transfer %s", tr)
	}
	if _, ok := state.insurances["A"]; ok {
		t.Fatalf("insurance record should be deleted")
	}

	var approved *types.Event
	for _, evt := range recorder.Events() {
		if evt.EventType() == EventTypeApprove {
			approved = evt.(coverageEvent).Event()
		}
	}
	if approved == nil {
		t.Fatalf("approve event not emitted")
	}
	if approved.Attr("id") != "A" || approved.Attr("to") != "recipient" || approved.Attr("action") != "approve" {
		t.Fatalf("unexpected approve attributes %v", approved.Attributes)
	}
}

func TestCreateInsufficientCoverLeavesStateUnchanged(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 500)
	mustCreate(t, engine, CreateMsg{ID: "existing"}, NewNativeBalance(u(50)), "alice")

	_, err := engine.Create(CreateMsg{ID: "big"}, NewNativeBalance(u(501)), "bob")
	if !errors.Is(err, ErrInsufficientCover) {
		t.Fatalf("expected insufficient cover, got %v", err)
	}
	if got := poolNative(t, engine); got != 500 {
		t.Fatalf("pool changed: %d", got)
	}
	if _, ok := state.insurances["big"]; ok {
		t.Fatalf("rejected insurance stored")
	}
	if got := state.insurances["existing"].Balance.NativeAmount().Uint64(); got != 50 {
		t.Fatalf("other insurance changed: %d", got)
	}
}

func TestCreateWithoutPool(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	if _, err := engine.Create(CreateMsg{ID: "native"}, NewNativeBalance(u(1)), "alice"); !errors.Is(err, ErrInsufficientCover) {
		t.Fatalf("expected insufficient cover without a pool, got %v", err)
	}
	ins := mustCreate(t, engine, CreateMsg{ID: "token"}, NewTokenBalance("token1", u(10)), "alice")
	if !ins.Whitelisted("token1") {
		t.Fatalf("funding token should be whitelisted")
	}
}

func TestCreateRejectsEmptyFundsAndID(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 10)
	if _, err := engine.Create(CreateMsg{ID: "A"}, NewBalance(), "alice"); !errors.Is(err, ErrEmptyBalance) {
		t.Fatalf("expected empty balance, got %v", err)
	}
	if _, err := engine.Create(CreateMsg{ID: "  "}, NewNativeBalance(u(1)), "alice"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", Title: "first"}, NewNativeBalance(u(10)), "alice")
	_, err := engine.Create(CreateMsg{ID: "A", Title: "second"}, NewNativeBalance(u(20)), "bob")
	if !errors.Is(err, ErrAlreadyInUse) {
		t.Fatalf("expected already in use, got %v", err)
	}
	stored := state.insurances["A"]
	if stored.Title != "first" || stored.Source != "alice" {
		t.Fatalf("existing insurance overwritten: %+v", stored)
	}
}

func TestCreateAssignsConfiguredArbiter(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	ins := mustCreate(t, engine, CreateMsg{ID: "A", Recipient: "rcpt"}, NewNativeBalance(u(10)), "alice")
	if ins.Arbiter != testArbiter {
		t.Fatalf("expected configured arbiter, got %s", ins.Arbiter)
	}
	if ins.Source != "alice" || ins.Recipient != "rcpt" {
		t.Fatalf("unexpected parties %+v", ins)
	}
}

func TestCreateWhitelistDedupAndFundingToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	msg := CreateMsg{ID: "A", TokenWhitelist: []string{"tokenB", "tokenA", "tokenB"}}
	ins := mustCreate(t, engine, msg, NewTokenBalance("tokenC", u(5)), "alice")
	want := []string{"tokenB", "tokenA", "tokenC"}
	if strings.Join(ins.TokenWhitelist, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected whitelist %v", ins.TokenWhitelist)
	}

	ins = mustCreate(t, engine, CreateMsg{ID: "B", TokenWhitelist: []string{"tokenC"}}, NewTokenBalance("tokenC", u(5)), "alice")
	if len(ins.TokenWhitelist) != 1 {
		t.Fatalf("funding token duplicated in whitelist: %v", ins.TokenWhitelist)
	}
}

func TestCreateValidatesAddresses(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	engine.SetValidator(prefixValidator{prefix: "osmo1"})
	mustProvide(t, engine, 100)

	_, err := engine.Create(CreateMsg{ID: "A", TokenWhitelist: []string{"bad"}}, NewNativeBalance(u(1)), "osmo1alice")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid whitelist entry, got %v", err)
	}
	_, err = engine.Create(CreateMsg{ID: "A"}, NewNativeBalance(u(1)), "cosmos1alice")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid source, got %v", err)
	}
	if len(state.insurances) != 0 {
		t.Fatalf("invalid creations stored: %v", state.insurances)
	}

	ins, err := engine.Create(CreateMsg{ID: "A", Recipient: "cosmos1xyz"}, NewNativeBalance(u(1)), "osmo1alice")
	if err != nil {
		t.Fatalf("create with malformed recipient: %v", err)
	}
	if ins.HasRecipient() || state.insurances["A"].HasRecipient() {
		t.Fatalf("malformed recipient kept: %q", state.insurances["A"].Recipient)
	}
	if _, err := engine.Approve("A", testArbiter, Env{}); !errors.Is(err, ErrRecipientNotSet) {
		t.Fatalf("expected recipient not set, got %v", err)
	}
	if err := engine.SetRecipient("A", testArbiter, "cosmos1xyz"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid recipient on set, got %v", err)
	}

	ins = mustCreate(t, engine, CreateMsg{ID: "B", Recipient: "osmo1bob"}, NewNativeBalance(u(1)), "osmo1alice")
	if ins.Recipient != "osmo1bob" {
		t.Fatalf("recipient = %q", ins.Recipient)
	}
}

func TestTopUp(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", TokenWhitelist: []string{"token1"}}, NewNativeBalance(u(10)), "alice")

	if err := engine.TopUp("A", NewNativeBalance(u(5))); err != nil {
		t.Fatalf("native top up: %v", err)
	}
	if err := engine.TopUp("A", NewTokenBalance("token1", u(7))); err != nil {
		t.Fatalf("token top up: %v", err)
	}
	bal := state.insurances["A"].Balance
	if bal.NativeAmount().Uint64() != 15 || bal.TokenAmount("token1").Uint64() != 7 {
		t.Fatalf("unexpected balance %s", bal)
	}

	if err := engine.TopUp("A", NewTokenBalance("token2", u(1))); !errors.Is(err, ErrNotInWhitelist) {
		t.Fatalf("expected not in whitelist, got %v", err)
	}
	if err := engine.TopUp("A", NewBalance()); !errors.Is(err, ErrEmptyBalance) {
		t.Fatalf("expected empty balance, got %v", err)
	}
	if got := state.insurances["A"].Balance.String(); got != bal.String() {
		t.Fatalf("failed top ups changed balance: %s", got)
	}
	if err := engine.TopUp("missing", NewNativeBalance(u(1))); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetRecipientRequiresArbiter(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A"}, NewNativeBalance(u(10)), "alice")

	if err := engine.SetRecipient("A", "alice", "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if state.insurances["A"].HasRecipient() {
		t.Fatalf("recipient set by non-arbiter")
	}
	if err := engine.SetRecipient("missing", testArbiter, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := engine.SetRecipient("A", testArbiter, "bob"); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if state.insurances["A"].Recipient != "bob" {
		t.Fatalf("recipient not stored")
	}
}

func TestApproveGuards(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", EndHeight: ptr(50)}, NewNativeBalance(u(10)), "alice")
	env := Env{Height: 10}

	if _, err := engine.Approve("A", "alice", env); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := engine.Approve("A", testArbiter, env); !errors.Is(err, ErrRecipientNotSet) {
		t.Fatalf("expected recipient not set, got %v", err)
	}
	if err := engine.SetRecipient("A", testArbiter, "bob"); err != nil {
		t.Fatalf("set recipient: %v", err)
	}
	if _, err := engine.Approve("A", testArbiter, Env{Height: 50}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, ok := state.insurances["A"]; !ok {
		t.Fatalf("failed approvals must keep the insurance")
	}
	if got := poolNative(t, engine); got != 100 {
		t.Fatalf("failed approvals debited pool: %d", got)
	}
	if _, err := engine.Approve("missing", testArbiter, env); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApproveUnauthorizedBeforeExpiredCheck(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", EndHeight: ptr(1)}, NewNativeBalance(u(10)), "alice")
	if _, err := engine.Approve("A", "mallory", Env{Height: 5}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("authorization must be checked before expiry, got %v", err)
	}
}

func TestTerminalTransitionsHappenOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", Recipient: "bob"}, NewNativeBalance(u(10)), "alice")
	if _, err := engine.Approve("A", testArbiter, Env{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.Approve("A", testArbiter, Env{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second approve: expected not found, got %v", err)
	}
	if _, err := engine.Refund("A", testArbiter, Env{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("refund after approve: expected not found, got %v", err)
	}
	if err := engine.TopUp("A", NewNativeBalance(u(1))); !errors.Is(err, ErrNotFound) {
		t.Fatalf("top up after approve: expected not found, got %v", err)
	}

	mustCreate(t, engine, CreateMsg{ID: "B"}, NewNativeBalance(u(10)), "alice")
	if _, err := engine.Refund("B", testArbiter, Env{}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := engine.Approve("B", testArbiter, Env{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("approve after refund: expected not found, got %v", err)
	}
	if _, err := engine.Refund("B", testArbiter, Env{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second refund: expected not found, got %v", err)
	}
}

func TestExpiredAtCreationScenario(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	env := Env{Height: 42, Time: 1_700_000_000}
	mustCreate(t, engine, CreateMsg{ID: "B", Recipient: "bob", EndHeight: ptr(env.Height)}, NewNativeBalance(u(30)), "alice")

	if _, err := engine.Approve("B", testArbiter, env); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	transfers, err := engine.Refund("B", "stranger", env)
	if err != nil {
		t.Fatalf("refund by anyone after expiry: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Recipient != "alice" || transfers[0].Amount.Uint64() != 30 {
		t.Fatalf("unexpected refund transfers %v", transfers)
	}
	if got := poolNative(t, engine); got != 100 {
		t.Fatalf("refund must not touch the pool: %d", got)
	}
}

func TestRefundAuthorization(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", EndTime: ptr(2000)}, NewNativeBalance(u(10)), "alice")

	if _, err := engine.Refund("A", "alice", Env{Time: 1999}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized before expiry, got %v", err)
	}
	if _, err := engine.Refund("A", testArbiter, Env{Time: 1}); err != nil {
		t.Fatalf("arbiter refund: %v", err)
	}
}

func TestRefundSendsAllAssets(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", TokenWhitelist: []string{"tokenZ"}}, NewTokenBalance("tokenB", u(4)), "alice")
	if err := engine.TopUp("A", NewTokenBalance("tokenZ", u(6))); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if err := engine.TopUp("A", NewNativeBalance(u(9))); err != nil {
		t.Fatalf("top up: %v", err)
	}
	transfers, err := engine.Refund("A", testArbiter, Env{})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(transfers) != 3 {
		t.Fatalf("expected three transfers, got %v", transfers)
	}
	if transfers[0].Kind != TransferNative || transfers[0].Amount.Uint64() != 9 {
		t.Fatalf("native transfer must come first: %v", transfers[0])
	}
	if transfers[1].Contract != "tokenB" || transfers[2].Contract != "tokenZ" {
		t.Fatalf("token transfers out of order: %v", transfers)
	}
	for _, tr := range transfers {
		if tr.Recipient != "alice" {
			t.Fatalf("refund sent to %s", tr.Recipient)
		}
	}
}

func TestClaims(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "A", Recipient: "bob", EndHeight: ptr(100)}, NewNativeBalance(u(10)), "alice")
	mustCreate(t, engine, CreateMsg{ID: "B"}, NewNativeBalance(u(10)), "alice")

	if err := engine.FileClaim("A", "alice", Env{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.FileClaim("A", testArbiter, Env{Height: 100}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if err := engine.FileClaim("A", testArbiter, Env{}); err != nil {
		t.Fatalf("file claim: %v", err)
	}
	if err := engine.FileClaim("A", testArbiter, Env{}); !errors.Is(err, ErrAlreadyInUse) {
		t.Fatalf("expected already in use, got %v", err)
	}
	if err := engine.FileClaim("B", testArbiter, Env{}); err != nil {
		t.Fatalf("file claim B: %v", err)
	}
	if state.claims["A"] != ClaimPendingApproval {
		t.Fatalf("unexpected claim status %s", state.claims["A"])
	}
	claims, err := engine.ListClaims()
	if err != nil || strings.Join(claims, ",") != "A,B" {
		t.Fatalf("unexpected claims %v (%v)", claims, err)
	}

	if _, err := engine.Approve("A", testArbiter, Env{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := engine.Refund("B", testArbiter, Env{}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	claims, err = engine.ListClaims()
	if err != nil || len(claims) != 0 {
		t.Fatalf("claims not cleared: %v (%v)", claims, err)
	}
	if err := engine.FileClaim("missing", testArbiter, Env{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDetails(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	msg := CreateMsg{
		ID:             "A",
		Title:          "crop insurance",
		Description:    "drought cover",
		EndTime:        ptr(1_800_000_000),
		TokenWhitelist: []string{"token1"},
	}
	mustCreate(t, engine, msg, NewNativeBalance(u(25)), "alice")
	if err := engine.TopUp("A", NewTokenBalance("token1", u(3))); err != nil {
		t.Fatalf("top up: %v", err)
	}
	details, err := engine.Details("A")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Arbiter != testArbiter || details.Source != "alice" || details.Recipient != "" {
		t.Fatalf("unexpected parties %+v", details)
	}
	if details.Title != msg.Title || details.Description != msg.Description {
		t.Fatalf("unexpected text fields %+v", details)
	}
	if details.EndTime == nil || *details.EndTime != 1_800_000_000 || details.EndHeight != nil {
		t.Fatalf("unexpected bounds %+v", details)
	}
	if details.NativeBalance.Uint64() != 25 || details.Denom != testDenom {
		t.Fatalf("unexpected native balance %s %s", details.NativeBalance.Dec(), details.Denom)
	}
	if len(details.TokenBalances) != 1 || details.TokenBalances[0].Amount.Uint64() != 3 {
		t.Fatalf("unexpected token balances %+v", details.TokenBalances)
	}
	if strings.Join(details.TokenWhitelist, ",") != "token1" {
		t.Fatalf("unexpected whitelist %v", details.TokenWhitelist)
	}
	if _, err := engine.Details("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCheckPolicyAllowsOvercommit(t *testing.T) {
	engine, _, _ := newTestEngine(t, PoolPolicyCheck)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "X", Recipient: "bob"}, NewNativeBalance(u(100)), "alice")
	mustCreate(t, engine, CreateMsg{ID: "Y", Recipient: "bob"}, NewNativeBalance(u(100)), "carol")

	if _, err := engine.Approve("X", testArbiter, Env{}); err != nil {
		t.Fatalf("approve X: %v", err)
	}
	_, err := engine.Approve("Y", testArbiter, Env{})
	if !errors.Is(err, ErrInsufficientCover) || !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected pool underflow on second approval, got %v", err)
	}
	if got := poolNative(t, engine); got != 0 {
		t.Fatalf("unexpected pool %d", got)
	}
}

func TestReservePolicyPreventsOvercommit(t *testing.T) {
	engine, state, _ := newTestEngine(t, PoolPolicyReserve)
	mustProvide(t, engine, 100)
	mustCreate(t, engine, CreateMsg{ID: "X", Recipient: "bob"}, NewNativeBalance(u(100)), "alice")

	view, err := engine.Pool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if view.Native.Uint64() != 100 || view.Reserved.Uint64() != 100 {
		t.Fatalf("unexpected pool view native=%s reserved=%s", view.Native.Dec(), view.Reserved.Dec())
	}
	if _, err := engine.Create(CreateMsg{ID: "Y"}, NewNativeBalance(u(1)), "carol"); !errors.Is(err, ErrInsufficientCover) {
		t.Fatalf("expected insufficient cover with fully reserved pool, got %v", err)
	}

	if _, err := engine.Refund("X", testArbiter, Env{}); err != nil {
		t.Fatalf("refund X: %v", err)
	}
	if !state.pool.Reserved.IsZero() {
		t.Fatalf("refund must release the reservation, reserved=%s", state.pool.Reserved.Dec())
	}

	mustCreate(t, engine, CreateMsg{ID: "Y", Recipient: "bob"}, NewNativeBalance(u(60)), "carol")
	if err := engine.TopUp("Y", NewNativeBalance(u(41))); !errors.Is(err, ErrInsufficientCover) {
		t.Fatalf("expected top up beyond available cover to fail, got %v", err)
	}
	if err := engine.TopUp("Y", NewNativeBalance(u(40))); err != nil {
		t.Fatalf("top up within cover: %v", err)
	}
	if _, err := engine.Approve("Y", testArbiter, Env{}); err != nil {
		t.Fatalf("approve Y: %v", err)
	}
	view, err = engine.Pool()
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if !view.Native.IsZero() || !view.Reserved.IsZero() {
		t.Fatalf("unexpected pool after approval native=%s reserved=%s", view.Native.Dec(), view.Reserved.Dec())
	}
}

func TestEngineWithoutState(t *testing.T) {
	engine := NewEngine(Config{Arbiter: testArbiter})
	if _, err := engine.Create(CreateMsg{ID: "A"}, NewNativeBalance(u(1)), "alice"); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
	if _, err := engine.List(); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}

func TestCreateRequiresArbiter(t *testing.T) {
	engine := NewEngine(Config{})
	engine.SetState(newMockState())
	if _, err := engine.Create(CreateMsg{ID: "A"}, NewTokenBalance("t", u(1)), "alice"); !errors.Is(err, errNilArbiter) {
		t.Fatalf("expected missing arbiter error, got %v", err)
	}
}

func TestInsuranceExpiry(t *testing.T) {
	cases := []struct {
		name string
		ins  Insurance
		env  Env
		want bool
	}{
		{name: "no bounds", ins: Insurance{}, env: Env{Height: 1 << 40, Time: 1 << 40}, want: false},
		{name: "height before", ins: Insurance{EndHeight: ptr(10)}, env: Env{Height: 9}, want: false},
		{name: "height reached", ins: Insurance{EndHeight: ptr(10)}, env: Env{Height: 10}, want: true},
		{name: "time before", ins: Insurance{EndTime: ptr(500)}, env: Env{Time: 499}, want: false},
		{name: "time reached", ins: Insurance{EndTime: ptr(500)}, env: Env{Time: 501}, want: true},
		{name: "either bound", ins: Insurance{EndHeight: ptr(10), EndTime: ptr(500)}, env: Env{Height: 1, Time: 600}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ins.IsExpired(tc.env); got != tc.want {
				t.Fatalf("IsExpired = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInsuranceCloneIsDeep(t *testing.T) {
	ins := &Insurance{ID: "A", EndHeight: ptr(5), Balance: NewNativeBalance(u(1)), TokenWhitelist: []string{"t"}, Reserved: uint256.NewInt(1)}
	clone := ins.Clone()
	*clone.EndHeight = 6
	clone.TokenWhitelist[0] = "x"
	clone.Balance.Native.SetUint64(9)
	if *ins.EndHeight != 5 || ins.TokenWhitelist[0] != "t" || ins.Balance.Native.Uint64() != 1 {
		t.Fatalf("clone shares memory with original")
	}
}
