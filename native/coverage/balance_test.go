package coverage

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestBalanceIsEmpty(t *testing.T) {
	if !NewBalance().IsEmpty() {
		t.Fatalf("new balance should be empty")
	}
	var nilBalance *Balance
	if !nilBalance.IsEmpty() {
		t.Fatalf("nil balance should be empty")
	}
	if NewNativeBalance(u(1)).IsEmpty() {
		t.Fatalf("native balance should not be empty")
	}
	if NewTokenBalance("token1", u(0)).IsEmpty() != true {
		t.Fatalf("zero token balance should be empty")
	}
	if NewTokenBalance("token1", u(3)).IsEmpty() {
		t.Fatalf("token balance should not be empty")
	}
}

func TestBalanceAddMergesTokens(t *testing.T) {
	b := NewNativeBalance(u(10))
	if err := b.Add(NewTokenBalance("tokenB", u(5))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Add(NewTokenBalance("tokenA", u(7))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Add(NewTokenBalance("tokenB", u(1))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Add(NewNativeBalance(u(32))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := b.NativeAmount().Uint64(); got != 42 {
		t.Fatalf("unexpected native amount %d", got)
	}
	if got := b.TokenAmount("tokenB").Uint64(); got != 6 {
		t.Fatalf("unexpected tokenB amount %d", got)
	}
	contracts := b.TokenContracts()
	if len(contracts) != 2 || contracts[0] != "tokenA" || contracts[1] != "tokenB" {
		t.Fatalf("unexpected contract order %v", contracts)
	}
}

func TestBalanceAddOverflowLeavesBalanceUntouched(t *testing.T) {
	ceiling := new(uint256.Int).SetAllOne()
	b := NewNativeBalance(ceiling)
	other := NewNativeBalance(u(1))
	if err := b.Add(other); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if !b.NativeAmount().Eq(ceiling) {
		t.Fatalf("balance mutated on failed add")
	}
}

func TestBalanceSub(t *testing.T) {
	b := NewNativeBalance(u(500))
	if err := b.Sub(u(100)); err != nil {
		t.Fatalf("sub: %v", err)
	}
	if got := b.NativeAmount().Uint64(); got != 400 {
		t.Fatalf("unexpected native %d", got)
	}
	if err := b.Sub(u(401)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if got := b.NativeAmount().Uint64(); got != 400 {
		t.Fatalf("failed sub mutated balance: %d", got)
	}
}

func TestBalanceCloneIsDeep(t *testing.T) {
	b := NewTokenBalance("token1", u(9))
	clone := b.Clone()
	clone.Tokens["token1"].SetUint64(1)
	if got := b.TokenAmount("token1").Uint64(); got != 9 {
		t.Fatalf("clone shares token amounts")
	}
}

func TestBalanceString(t *testing.T) {
	b := NewNativeBalance(u(100))
	_ = b.Add(NewTokenBalance("cw20", u(5)))
	if got := b.String(); got != "100,5@cw20" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := NewBalance().String(); got != "0" {
		t.Fatalf("unexpected empty string %q", got)
	}
}
