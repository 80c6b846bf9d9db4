package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	tests "go.temporal.io/sdk/testsuite"
)

type MaintenanceWorkflowTestSuite struct {
	suite.Suite
	testSuite *tests.WorkflowTestSuite
	env       *tests.TestWorkflowEnvironment
}

func (s *MaintenanceWorkflowTestSuite) SetupTest() {
	s.testSuite = &tests.WorkflowTestSuite{}
	s.env = s.testSuite.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(MaintenanceWorkflow)
	s.env.RegisterActivityWithOptions(func(ctx context.Context) (ProbeOutput, error) {
		return ProbeOutput{}, nil
	}, activity.RegisterOptions{Name: "ProbeRuntime"})
	s.env.RegisterActivityWithOptions(func(ctx context.Context) (ScheduleOutput, error) {
		return ScheduleOutput{}, nil
	}, activity.RegisterOptions{Name: "RunDueSchedules"})
	s.env.RegisterActivityWithOptions(func(ctx context.Context) (FailSafeOutput, error) {
		return FailSafeOutput{}, nil
	}, activity.RegisterOptions{Name: "FailSafeSweep"})
}

func (s *MaintenanceWorkflowTestSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
}

func (s *MaintenanceWorkflowTestSuite) TestMaintenanceWorkflow_AggregatesResults() {
	s.env.OnActivity("ProbeRuntime", mock.Anything).Return(ProbeOutput{Probed: 2}, nil).Once()
	s.env.OnActivity("RunDueSchedules", mock.Anything).Return(ScheduleOutput{Executed: 1, Ran: []string{"pr-1"}}, nil).Once()
	s.env.OnActivity("FailSafeSweep", mock.Anything).Return(FailSafeOutput{Reason: "failsafe_timeout"}, nil).Once()

	s.env.ExecuteWorkflow(MaintenanceWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result MaintenanceResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(2, result.Probed)
	s.Equal(1, result.Executed)
	s.Equal("failsafe_timeout", result.FailSafeReset)
}

func (s *MaintenanceWorkflowTestSuite) TestMaintenanceWorkflow_ProbeFailureDoesNotAbort() {
	s.env.OnActivity("ProbeRuntime", mock.Anything).Return(ProbeOutput{}, errors.New("probe failed")).Once()
	s.env.OnActivity("RunDueSchedules", mock.Anything).Return(ScheduleOutput{Executed: 3}, nil).Once()
	s.env.OnActivity("FailSafeSweep", mock.Anything).Return(FailSafeOutput{}, nil).Once()

	s.env.ExecuteWorkflow(MaintenanceWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result MaintenanceResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Zero(result.Probed)
	s.Equal(3, result.Executed)
}

func (s *MaintenanceWorkflowTestSuite) TestMaintenanceWorkflow_AllFailuresStillComplete() {
	s.env.OnActivity("ProbeRuntime", mock.Anything).Return(ProbeOutput{}, errors.New("probe failed")).Once()
	s.env.OnActivity("RunDueSchedules", mock.Anything).Return(ScheduleOutput{}, errors.New("tick failed")).Once()
	s.env.OnActivity("FailSafeSweep", mock.Anything).Return(FailSafeOutput{}, errors.New("sweep failed")).Once()

	s.env.ExecuteWorkflow(MaintenanceWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result MaintenanceResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(MaintenanceResult{}, result)
}

func TestMaintenanceWorkflowSuite(t *testing.T) {
	suite.Run(t, new(MaintenanceWorkflowTestSuite))
}
