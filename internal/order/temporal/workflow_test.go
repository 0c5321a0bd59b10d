package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"ms-payment-verification/internal/models"
)

type fakeApprover struct {
	mu     sync.Mutex
	calls  []string
	failed int
	err    error
}

func (f *fakeApprover) AutoApprove(_ context.Context, orderNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderNumber)
	if f.err != nil {
		return f.err
	}
	if f.failed > 0 {
		f.failed--
		return errors.New("database unavailable")
	}
	return nil
}

func TestGracePeriodWorkflow_ApprovesAfterSleep(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	approver := &fakeApprover{}
	env.RegisterActivity(&Activities{Approver: approver})

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	env.SetStartTime(start)

	var firedAt time.Time
	env.SetOnActivityStartedListener(func(_ *activity.Info, _ context.Context, _ converter.EncodedValues) {
		firedAt = env.Now()
	})

	env.ExecuteWorkflow(GracePeriodWorkflow, GracePeriodInput{
		OrderNumber: "ORD-1",
		DueAt:       start.Add(5 * time.Minute),
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []string{"ORD-1"}, approver.calls)
	assert.False(t, firedAt.Before(start.Add(5*time.Minute)), "fired at %s", firedAt)
}

func TestGracePeriodWorkflow_OverdueFiresImmediately(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	approver := &fakeApprover{}
	env.RegisterActivity(&Activities{Approver: approver})
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	env.SetStartTime(start)

	env.ExecuteWorkflow(GracePeriodWorkflow, GracePeriodInput{
		OrderNumber: "ORD-2",
		DueAt:       start.Add(-time.Minute),
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, []string{"ORD-2"}, approver.calls)
}

func TestGracePeriodWorkflow_RetriesTransientFailure(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	approver := &fakeApprover{failed: 2}
	env.RegisterActivity(&Activities{Approver: approver})

	env.ExecuteWorkflow(GracePeriodWorkflow, GracePeriodInput{OrderNumber: "ORD-3", DueAt: time.Now()})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Len(t, approver.calls, 3)
}

func TestGracePeriodWorkflow_MissingOrderIsNotRetried(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	approver := &fakeApprover{err: fmt.Errorf("load order ORD-4: %w", models.ErrOrderNotFound)}
	env.RegisterActivity(&Activities{Approver: approver})

	env.ExecuteWorkflow(GracePeriodWorkflow, GracePeriodInput{OrderNumber: "ORD-4", DueAt: time.Now()})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Len(t, approver.calls, 1)
}

func TestWorkflowID_DistinctPerDueTime(t *testing.T) {
	due := time.UnixMilli(1_700_000_000_000)
	assert.Equal(t, "auto-approval-ORD-9-1700000000000", WorkflowID("ORD-9", due))
	assert.NotEqual(t, WorkflowID("ORD-9", due), WorkflowID("ORD-9", due.Add(time.Second)))
}
