package vm

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/lockdrop-actors/actors/states"
	"github.com/filecoin-project/lockdrop-actors/support/ipld"
	tutil "github.com/filecoin-project/lockdrop-actors/support/testing"
)

//
// Genesis like setup
//

// NewVMWithAccounts creates an in-memory VM running the built-in actors, with n funded accounts.
func NewVMWithAccounts(ctx context.Context, t testing.TB, cfg Config, n int, balance abi.TokenAmount) (*VM, []address.Address) {
	v, err := NewVM(ctx, BuiltinLookup(), ipld.NewADTStore(ctx), cfg)
	require.NoError(t, err)
	return v, CreateAccounts(t, v, n, balance)
}

// CreateAccounts creates n account actors in the VM with the given balance.
func CreateAccounts(t testing.TB, v *VM, n int, balance abi.TokenAmount) []address.Address {
	addrs := make([]address.Address, n)
	for i := range addrs {
		addrs[i] = tutil.NewBLSAddr(t, 93837778+int64(v.accountSeed))
		v.accountSeed++
		require.NoError(t, v.CreateAccount(addrs[i], balance))
	}
	return addrs
}

// ApplyOk applies a message and requires it to succeed, returning its return value.
func ApplyOk(t testing.TB, v *VM, from, to address.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler) cbor.Marshaler {
	return ApplyCode(t, v, from, to, value, method, params, exitcode.Ok)
}

// ApplyCode applies a message and requires it to exit with code.
func ApplyCode(t testing.TB, v *VM, from, to address.Address, value abi.TokenAmount, method abi.MethodNum, params cbor.Marshaler, code exitcode.ExitCode) cbor.Marshaler {
	result, err := v.ApplyMessage(from, to, value, method, params)
	require.NoError(t, err)
	require.Equal(t, code, result.Code, "unexpected exit code applying method %d to %v", method, to)
	return result.Ret
}

// RequireBalance requires the actor at addr to hold exactly expected.
func RequireBalance(t testing.TB, v *VM, addr address.Address, expected abi.TokenAmount) {
	actual, err := v.GetBalance(addr)
	require.NoError(t, err)
	require.True(t, expected.Equals(actual), "balance of %v: expected %v, got %v", addr, expected, actual)
}

// TotalBalance sums the balances of every actor in the state tree.
func TotalBalance(t testing.TB, v *VM) abi.TokenAmount {
	total, err := v.GetTotalActorBalance()
	require.NoError(t, err)
	return total
}

// CheckStateInvariants requires every actor's state, and the tree as a whole, to be consistent.
// The supply is the total balance expected across all actors.
func CheckStateInvariants(t testing.TB, v *VM, supply abi.TokenAmount) {
	tree, err := v.GetStateTree()
	require.NoError(t, err)
	msgs, err := states.CheckStateInvariants(tree, supply, v.Timestamp())
	require.NoError(t, err)
	require.True(t, msgs.IsEmpty(), strings.Join(msgs.Messages(), "\n"))
}

//
// Invocation expectations
//

func ExpectObject(v cbor.Marshaler) *objectExpectation {
	return &objectExpectation{v}
}

// distinguishes a non-expectation from an expectation of nil
type objectExpectation struct {
	val cbor.Marshaler
}

func ExpectAttoFil(amount big.Int) *big.Int                    { return &amount }
func ExpectAddress(addr address.Address) *address.Address      { return &addr }
func ExpectExitCode(code exitcode.ExitCode) *exitcode.ExitCode { return &code }

// match by cbor encoding to avoid inconsistencies in internal representations of effectively equal objects
func (oe objectExpectation) matches(obj interface{}) bool {
	if oe.val == nil || obj == nil {
		return oe.val == nil && obj == nil
	}

	paramBuf1 := new(bytes.Buffer)
	oe.val.MarshalCBOR(paramBuf1) // nolint: errcheck
	marshaller, ok := obj.(cbor.Marshaler)
	if !ok {
		return false
	}
	paramBuf2 := new(bytes.Buffer)
	if marshaller != nil {
		marshaller.MarshalCBOR(paramBuf2) // nolint: errcheck
	}
	return bytes.Equal(paramBuf1.Bytes(), paramBuf2.Bytes())
}

type ExpectInvocation struct {
	To       address.Address
	Method   abi.MethodNum
	Exitcode exitcode.ExitCode

	From           *address.Address
	Value          *abi.TokenAmount
	Params         *objectExpectation
	Ret            *objectExpectation
	SubInvocations []ExpectInvocation
}

func (ei ExpectInvocation) Matches(t testing.TB, invocation *Invocation) {
	require.NotNil(t, invocation, "missing invocation [%s:%d]", ei.To, ei.Method)
	ei.matches(t, "", invocation)
}

func (ei ExpectInvocation) matches(t testing.TB, breadcrumb string, invocation *Invocation) {
	identifier := fmt.Sprintf("%s[%s:%d]", breadcrumb, invocation.Msg.to, invocation.Msg.method)

	// mismatch of to or method probably indicates skipped message or messages out of order. halt.
	require.Equal(t, ei.To, invocation.Msg.to, "%s unexpected `to` address", identifier)
	require.Equal(t, ei.Method, invocation.Msg.method, "%s unexpected method", identifier)

	// other expectations are optional
	if ei.From != nil {
		assert.Equal(t, *ei.From, invocation.Msg.from, "%s unexpected from address", identifier)
	}
	if ei.Value != nil {
		assert.True(t, ei.Value.Equals(invocation.Msg.value), "%s unexpected value %v, expected %v", identifier, invocation.Msg.value, *ei.Value)
	}
	if ei.Params != nil {
		assert.True(t, ei.Params.matches(invocation.Msg.params), "%s params aren't equal (%v != %v)", identifier, ei.Params.val, invocation.Msg.params)
	}
	if ei.SubInvocations != nil {
		for i, invk := range invocation.SubInvocations {
			subidentifier := fmt.Sprintf("%s%d:", identifier, i)
			require.Greater(t, len(ei.SubInvocations), i, "%s unexpected subinvocation [%s:%d]", subidentifier, invk.Msg.to, invk.Msg.method)
			ei.SubInvocations[i].matches(t, subidentifier, invk)
		}
		missingInvocations := len(ei.SubInvocations) - len(invocation.SubInvocations)
		if missingInvocations > 0 {
			missingIndex := len(invocation.SubInvocations)
			missingExpect := ei.SubInvocations[missingIndex]
			require.Fail(t, fmt.Sprintf("%s%d: expected invocation [%s:%d]", identifier, missingIndex, missingExpect.To, missingExpect.Method))
		}
	}

	// expect results
	assert.Equal(t, ei.Exitcode, invocation.Exitcode, "%s unexpected exitcode", identifier)
	if ei.Ret != nil {
		assert.True(t, ei.Ret.matches(invocation.Ret), "%s unexpected return value (%v != %v)", identifier, ei.Ret, invocation.Ret)
	}
}

// ParamsForInvocation returns the params of the invocation found by following idxs down the call tree.
func ParamsForInvocation(t testing.TB, v *VM, idxs ...int) interface{} {
	invocations := v.Invocations()
	var invocation *Invocation
	for _, idx := range idxs {
		require.Greater(t, len(invocations), idx)
		invocation = invocations[idx]
		invocations = invocation.SubInvocations
	}
	require.NotNil(t, invocation)
	return invocation.Msg.params
}

// SetState overwrites the state of the actor at addr and commits it. It sets up conditions that
// no message sequence reaches.
func SetState(t testing.TB, v *VM, addr address.Address, state cbor.Marshaler) {
	require.NoError(t, v.setActorState(v.ctx, addr, state))
	_, err := v.checkpoint()
	require.NoError(t, err)
}
