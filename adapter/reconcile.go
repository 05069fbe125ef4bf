package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/dratasich/ndn-orion-adapter/metrics"
	"github.com/dratasich/ndn-orion-adapter/orion"
)

// Broker is the part of the context broker the reconciler writes to.
type Broker interface {
	UpdateAttributes(ctx context.Context, id string, attrs []orion.Attribute) error
	CreateEntity(ctx context.Context, id, entityType string, attrs []orion.Attribute) error
}

// Outcome of one reconciliation.
type Outcome int

const (
	Failed Outcome = iota
	Updated
	Created
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return metrics.OutcomeUpdated
	case Created:
		return metrics.OutcomeCreated
	default:
		return metrics.OutcomeFailed
	}
}

// Reconciler writes attributes to an entity, creating it on first sight.
type Reconciler struct {
	broker     Broker
	entityType string
}

func NewReconciler(broker Broker, entityType string) *Reconciler {
	return &Reconciler{broker: broker, entityType: entityType}
}

// Reconcile updates the entity and falls back to creating it only when the
// update reports orion.ErrEntityNotFound. Other errors are returned as is
// and nothing is retried.
func (r *Reconciler) Reconcile(ctx context.Context, id string, attrs []orion.Attribute) (Outcome, error) {
	err := r.broker.UpdateAttributes(ctx, id, attrs)
	if err == nil {
		return Updated, nil
	}
	if !errors.Is(err, orion.ErrEntityNotFound) {
		return Failed, fmt.Errorf("update %s: %w", id, err)
	}
	if err := r.broker.CreateEntity(ctx, id, r.entityType, attrs); err != nil {
		return Failed, fmt.Errorf("create %s: %w", id, err)
	}
	return Created, nil
}
