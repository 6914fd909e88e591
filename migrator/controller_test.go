package migrator

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyPlan(t *testing.T) *Plan {
	t.Helper()
	plan, err := BuildPlan(ApprovalOutcome{State: Approved}, planInputs(false))
	require.NoError(t, err)
	return plan
}

func confirmingController(t *testing.T, sub Submitter) *Controller {
	t.Helper()
	c := NewController(sub, discardLogger(), nil)
	require.Equal(t, Confirming, c.Update(Readiness{Approved: true, Complete: true}))
	return c
}

func TestController_Readiness(t *testing.T) {
	var transitions [][2]ExecutionState
	c := NewController(&fakeSubmitter{}, discardLogger(), func(from, to ExecutionState) {
		transitions = append(transitions, [2]ExecutionState{from, to})
	})
	assert.Equal(t, Idle, c.State())

	assert.Equal(t, AwaitingApproval, c.Update(Readiness{}))
	assert.Equal(t, AwaitingApproval, c.Update(Readiness{Approved: true}))
	assert.Equal(t, AwaitingApproval, c.Update(Readiness{Complete: true}))
	assert.Equal(t, Confirming, c.Update(Readiness{Approved: true, Complete: true}))

	// losing approval or inputs steps back
	assert.Equal(t, AwaitingApproval, c.Update(Readiness{Approved: true}))

	assert.Equal(t, [][2]ExecutionState{
		{Idle, AwaitingApproval},
		{AwaitingApproval, Confirming},
		{Confirming, AwaitingApproval},
	}, transitions)
}

func TestController_SubmitOnlyFromConfirming(t *testing.T) {
	sub := &fakeSubmitter{}
	c := NewController(sub, discardLogger(), nil)

	_, err := c.Submit(context.Background(), readyPlan(t))
	assert.ErrorIs(t, err, ErrNotReady)

	c.Update(Readiness{})
	_, err = c.Submit(context.Background(), readyPlan(t))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, sub.plans)
}

func TestController_SubmitAndSucceed(t *testing.T) {
	sub := &fakeSubmitter{hash: common.HexToHash("0x1234")}
	c := confirmingController(t, sub)

	hash, err := c.Submit(context.Background(), readyPlan(t))
	require.NoError(t, err)
	assert.Equal(t, sub.hash, hash)
	assert.Equal(t, Pending, c.State())

	pending, ok := c.PendingTx()
	assert.True(t, ok)
	assert.Equal(t, hash, pending)

	// a second submission while in flight is refused
	_, err = c.Submit(context.Background(), readyPlan(t))
	assert.ErrorIs(t, err, ErrMigrationInFlight)

	// readiness observations do not disturb a pending migration
	assert.Equal(t, Pending, c.Update(Readiness{}))

	assert.Equal(t, Pending, c.Observe(TxPending, big.NewInt(10)))
	// confirmed but the balance has not been seen to drop yet
	assert.Equal(t, Pending, c.Observe(TxConfirmed, big.NewInt(10)))
	assert.Equal(t, Succeeded, c.Observe(TxConfirmed, big.NewInt(0)))

	// terminal
	assert.Equal(t, Succeeded, c.Update(Readiness{Approved: true, Complete: true}))
}

func TestController_BalanceZeroWithoutConfirmation(t *testing.T) {
	c := confirmingController(t, &fakeSubmitter{})
	_, err := c.Submit(context.Background(), readyPlan(t))
	require.NoError(t, err)
	assert.Equal(t, Pending, c.Observe(TxPending, big.NewInt(0)))
}

func TestController_Rejection(t *testing.T) {
	sub := &fakeSubmitter{err: ErrUserRejected}
	c := confirmingController(t, sub)

	_, err := c.Submit(context.Background(), readyPlan(t))
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, Failed, c.State())
	assert.ErrorIs(t, c.Failure(), ErrUserRejected)

	// approval still valid: back to awaiting, then confirming again
	assert.Equal(t, AwaitingApproval, c.Update(Readiness{Approved: true, Complete: true}))
	assert.Equal(t, Confirming, c.Update(Readiness{Approved: true, Complete: true}))

	sub.err = nil
	_, err = c.Submit(context.Background(), readyPlan(t))
	require.NoError(t, err)
	assert.Equal(t, Pending, c.State())
}

func TestController_RejectionWithoutApproval(t *testing.T) {
	c := confirmingController(t, &fakeSubmitter{err: ErrUserRejected})
	_, err := c.Submit(context.Background(), readyPlan(t))
	require.Error(t, err)
	assert.Equal(t, Idle, c.Update(Readiness{}))
}

func TestController_TransientSubmission(t *testing.T) {
	sub := &fakeSubmitter{err: errRPC}
	c := confirmingController(t, sub)

	_, err := c.Submit(context.Background(), readyPlan(t))
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, Confirming, c.State())
	assert.Nil(t, c.Failure())
}

func TestController_Reverted(t *testing.T) {
	c := confirmingController(t, &fakeSubmitter{})
	_, err := c.Submit(context.Background(), readyPlan(t))
	require.NoError(t, err)

	assert.Equal(t, Failed, c.Observe(TxReverted, big.NewInt(10)))
	assert.ErrorIs(t, c.Failure(), ErrTransactionReverted)
	_, ok := c.PendingTx()
	assert.False(t, ok)
}

func TestController_PlanSubmittedOnce(t *testing.T) {
	sub := &fakeSubmitter{err: errRPC}
	c := confirmingController(t, sub)
	plan := readyPlan(t)

	_, err := c.Submit(context.Background(), plan)
	assert.ErrorIs(t, err, ErrTransient)

	_, err = c.Submit(context.Background(), plan)
	assert.ErrorIs(t, err, ErrPlanConsumed)
	assert.Len(t, sub.plans, 1)
	assert.Equal(t, Confirming, c.State())
}

func TestController_ConfirmedWithBalanceLogsWhy(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sub := &fakeSubmitter{hash: common.HexToHash("0xbeef")}
	c := NewController(sub, logger, nil)
	require.Equal(t, Confirming, c.Update(Readiness{Approved: true, Complete: true}))

	_, err := c.Submit(context.Background(), readyPlan(t))
	require.NoError(t, err)

	assert.Equal(t, Pending, c.Observe(TxConfirmed, big.NewInt(3)))
	assert.Contains(t, logs.String(), "waiting for the share balance to empty")
	assert.Contains(t, logs.String(), "balance=3")
	assert.NotContains(t, logs.String(), "Migration succeeded")

	assert.Equal(t, Succeeded, c.Observe(TxConfirmed, big.NewInt(0)))
	assert.Contains(t, logs.String(), "Migration succeeded")
}
