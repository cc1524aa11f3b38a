package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// DefaultTaskQueue is the queue the deriver worker polls.
const DefaultTaskQueue = "shotengai-derive"

// DeriveInput is the input for the derivation workflow.
type DeriveInput struct {
	FeatureID string
}

// DeriveFeatureWorkflow recomputes a feature's derived attributes (length_m,
// slug) from its stored geometry and names, then merges them back without
// touching geometry. A feature deleted in the meantime ends the workflow
// quietly.
func DeriveFeatureWorkflow(ctx workflow.Context, input DeriveInput) (domain.Attributes, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting derivation workflow", "featureID", input.FeatureID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var feature *domain.StoredFeature
	if err := workflow.ExecuteActivity(ctx, "LoadFeature", input.FeatureID).Get(ctx, &feature); err != nil {
		return nil, err
	}
	if feature == nil {
		logger.Info("Feature gone, nothing to derive", "featureID", input.FeatureID)
		return nil, nil
	}

	var derived domain.Attributes
	if err := workflow.ExecuteActivity(ctx, "ComputeDerived", *feature).Get(ctx, &derived); err != nil {
		return nil, err
	}

	if err := workflow.ExecuteActivity(ctx, "MergeAttributes", input.FeatureID, derived).Get(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("Derived attributes stored", "featureID", input.FeatureID)
	return derived, nil
}
