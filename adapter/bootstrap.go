package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dratasich/ndn-orion-adapter/orion"
)

// SubscriptionBroker lists and creates broker subscriptions.
type SubscriptionBroker interface {
	ListSubscriptions(ctx context.Context) ([]orion.Subscription, error)
	CreateSubscription(ctx context.Context, sub orion.Subscription) error
}

// SubscriptionSpec describes the forwarding subscription. Tag identifies
// it across restarts and prefixes its description.
type SubscriptionSpec struct {
	Tag             string
	Description     string
	EntityType      string
	Attrs           []string
	NotificationURL string
}

// Subscription renders the create request.
func (s SubscriptionSpec) Subscription() orion.Subscription {
	description := s.Tag
	if s.Description != "" {
		description += " " + s.Description
	}
	return orion.NewSubscription(description, "", s.EntityType, s.Attrs, s.NotificationURL)
}

// Bootstrapper makes sure exactly one tagged subscription exists.
type Bootstrapper struct {
	broker SubscriptionBroker
	spec   SubscriptionSpec
	log    zerolog.Logger
}

func NewBootstrapper(broker SubscriptionBroker, spec SubscriptionSpec, logger zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{
		broker: broker,
		spec:   spec,
		log:    logger.With().Str("component", "bootstrap").Logger(),
	}
}

// Ensure creates the subscription unless one whose description starts with
// the tag already exists. It reports whether a subscription was created.
func (b *Bootstrapper) Ensure(ctx context.Context) (bool, error) {
	subs, err := b.broker.ListSubscriptions(ctx)
	if err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	for _, s := range subs {
		if strings.HasPrefix(s.DescriptionText(), b.spec.Tag) {
			b.log.Debug().Msgf("Subscription %s already exists", b.spec.Tag)
			return false, nil
		}
	}
	if err := b.broker.CreateSubscription(ctx, b.spec.Subscription()); err != nil {
		return false, fmt.Errorf("create subscription %s: %w", b.spec.Tag, err)
	}
	b.log.Info().Msgf("Created subscription %s notifying %s", b.spec.Tag, b.spec.NotificationURL)
	return true, nil
}
