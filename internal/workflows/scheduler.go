package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
)

// Scheduler starts DeriveFeatureWorkflow runs. It implements
// ports.DerivationScheduler.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

// NewScheduler creates a Scheduler on taskQueue; an empty queue means
// DefaultTaskQueue.
func NewScheduler(c client.Client, taskQueue string) *Scheduler {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// ScheduleDerivation starts a derivation run for featureID and returns
// without waiting for it. Every write gets its own run so a run started
// before the latest write never has the last word.
func (s *Scheduler) ScheduleDerivation(ctx context.Context, featureID string) error {
	opts := client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("derive-%s-%d", featureID, time.Now().UnixNano()),
		TaskQueue:                s.taskQueue,
		WorkflowExecutionTimeout: 5 * time.Minute,
	}
	if _, err := s.client.ExecuteWorkflow(ctx, opts, DeriveFeatureWorkflow, DeriveInput{FeatureID: featureID}); err != nil {
		return fmt.Errorf("start derivation for %s: %w", featureID, err)
	}
	return nil
}
