package migrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalRequest(canonical bool) ApprovalRequest {
	return ApprovalRequest{
		ChainID:   1,
		Token:     testPair,
		Owner:     testAccount,
		Spender:   testDeploy.Migrator,
		Amount:    big.NewInt(10),
		Deadline:  blockTime + 600,
		Canonical: canonical,
	}
}

func TestApproval_RequestApproval(t *testing.T) {
	svc := &fakeAllowances{}
	m := NewApprovalMachine(svc, discardLogger())
	assert.Equal(t, NotApproved, m.State())
	assert.False(t, m.IsReady())

	require.NoError(t, m.RequestApproval(context.Background(), approvalRequest(true)))
	assert.Equal(t, ApprovalPending, m.State())
	tx, pending := m.PendingApproval()
	assert.True(t, pending)
	assert.Equal(t, svc.approveTx, tx)

	m.ObserveApproval(TxPending)
	assert.Equal(t, ApprovalPending, m.State())

	m.ObserveApproval(TxConfirmed)
	assert.Equal(t, Approved, m.State())
	assert.True(t, m.IsReady())
}

func TestApproval_RevertedApproval(t *testing.T) {
	m := NewApprovalMachine(&fakeAllowances{}, discardLogger())
	require.NoError(t, m.RequestApproval(context.Background(), approvalRequest(true)))
	m.ObserveApproval(TxReverted)
	assert.Equal(t, NotApproved, m.State())
}

func TestApproval_Permit(t *testing.T) {
	svc := &fakeAllowances{}
	m := NewApprovalMachine(svc, discardLogger())

	require.NoError(t, m.RequestPermit(context.Background(), approvalRequest(true)))
	assert.Equal(t, SignedPermit, m.State())
	assert.True(t, m.IsReady())
	assert.Equal(t, 1, svc.permitCalls)
	assert.Equal(t, 0, svc.approveCalls)

	out := m.Outcome()
	require.NotNil(t, out.Permit)
	assert.Equal(t, blockTime+600, out.Permit.Deadline)
	assert.Equal(t, testDeploy.Migrator, svc.lastPermit.Spender)
}

func TestApproval_PermitFailures(t *testing.T) {
	testCases := []struct {
		name          string
		permitErr     error
		expectedState ApprovalState
		approveCalls  int
		expectErr     error
	}{
		{
			name:          "user declined signature",
			permitErr:     ErrUserRejected,
			expectedState: NotApproved,
			approveCalls:  0,
			expectErr:     ErrUserRejected,
		},
		{
			name:          "wrapped user rejection",
			permitErr:     fmt.Errorf("wallet: %w", ErrUserRejected),
			expectedState: NotApproved,
			approveCalls:  0,
			expectErr:     ErrExternalRejection,
		},
		{
			name:          "unsupported signing method",
			permitErr:     errors.New("eth_signTypedData_v4 not supported"),
			expectedState: ApprovalPending,
			approveCalls:  1,
		},
		{
			name:          "transient signing failure",
			permitErr:     Transient(errRPC),
			expectedState: ApprovalPending,
			approveCalls:  1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeAllowances{permitErr: tc.permitErr}
			m := NewApprovalMachine(svc, discardLogger())

			err := m.RequestPermit(context.Background(), approvalRequest(true))
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedState, m.State())
			assert.Equal(t, 1, svc.permitCalls)
			assert.Equal(t, tc.approveCalls, svc.approveCalls)
		})
	}
}

func TestApproval_FallbackAlsoFails(t *testing.T) {
	svc := &fakeAllowances{permitErr: errors.New("boom"), approveErr: ErrUserRejected}
	m := NewApprovalMachine(svc, discardLogger())

	err := m.RequestPermit(context.Background(), approvalRequest(true))
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, NotApproved, m.State())
	assert.Equal(t, 1, svc.approveCalls, "fallback runs exactly once")
}

func TestApproval_ForkNeverSigns(t *testing.T) {
	svc := &fakeAllowances{}
	m := NewApprovalMachine(svc, discardLogger())

	require.NoError(t, m.RequestPermit(context.Background(), approvalRequest(false)))
	assert.Equal(t, 0, svc.permitCalls)
	assert.Equal(t, 1, svc.approveCalls)
	assert.Equal(t, ApprovalPending, m.State())
}

func TestApproval_RequestWhenAlreadyReady(t *testing.T) {
	svc := &fakeAllowances{}
	m := NewApprovalMachine(svc, discardLogger())
	m.Sync(big.NewInt(10), big.NewInt(10), blockTime)
	require.Equal(t, Approved, m.State())

	require.NoError(t, m.RequestApproval(context.Background(), approvalRequest(true)))
	require.NoError(t, m.RequestPermit(context.Background(), approvalRequest(true)))
	assert.Equal(t, 0, svc.approveCalls)
	assert.Equal(t, 0, svc.permitCalls)
}

func TestApproval_InvalidRequest(t *testing.T) {
	m := NewApprovalMachine(&fakeAllowances{}, discardLogger())
	req := approvalRequest(true)
	req.Amount = big.NewInt(0)
	assert.ErrorIs(t, m.RequestApproval(context.Background(), req), ErrNoBalance)
}

func TestApproval_Sync(t *testing.T) {
	m := NewApprovalMachine(&fakeAllowances{}, discardLogger())

	m.Sync(big.NewInt(5), big.NewInt(10), blockTime)
	assert.Equal(t, NotApproved, m.State())

	m.Sync(big.NewInt(10), big.NewInt(10), blockTime)
	assert.Equal(t, Approved, m.State())

	// balance grew past the allowance
	m.Sync(big.NewInt(10), big.NewInt(11), blockTime)
	assert.Equal(t, NotApproved, m.State())
}

func TestApproval_PermitExpires(t *testing.T) {
	m := NewApprovalMachine(&fakeAllowances{}, discardLogger())
	require.NoError(t, m.RequestPermit(context.Background(), approvalRequest(true)))

	m.Sync(big.NewInt(0), big.NewInt(10), blockTime+599)
	assert.Equal(t, SignedPermit, m.State())

	m.Sync(big.NewInt(0), big.NewInt(10), blockTime+600)
	assert.Equal(t, NotApproved, m.State())
	assert.Nil(t, m.Outcome().Permit)
}

func TestApproval_PermitTooSmall(t *testing.T) {
	m := NewApprovalMachine(&fakeAllowances{}, discardLogger())
	require.NoError(t, m.RequestPermit(context.Background(), approvalRequest(true)))

	m.Sync(big.NewInt(0), big.NewInt(11), blockTime)
	assert.Equal(t, NotApproved, m.State())
}

func TestApproval_ConsumePermit(t *testing.T) {
	m := NewApprovalMachine(&fakeAllowances{}, discardLogger())
	require.NoError(t, m.RequestPermit(context.Background(), approvalRequest(true)))
	m.ConsumePermit()
	assert.Equal(t, NotApproved, m.State())
}
