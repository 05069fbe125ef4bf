package adapter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dratasich/ndn-orion-adapter/dispatch"
	"github.com/dratasich/ndn-orion-adapter/metrics"
	"github.com/dratasich/ndn-orion-adapter/ndn"
	"github.com/dratasich/ndn-orion-adapter/orion"
)

// Submitter runs tasks off the event loop without blocking.
type Submitter interface {
	Submit(task dispatch.Task) error
}

// Mirror republishes decoded measurements, e.g. over MQTT.
type Mirror interface {
	PublishMeasurement(ctx context.Context, entityID string, value float64, at time.Time) error
}

type HandlerOptions struct {
	EntityType    string
	AttributeName string
	// Mirror is optional.
	Mirror  Mirror
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Handler serves measurement interests. Decoding and acknowledging run on
// the event loop; the broker write runs on the Submitter.
type Handler struct {
	reconciler *Reconciler
	tasks      Submitter
	liveness   *Liveness
	opts       HandlerOptions
	log        zerolog.Logger
	now        func() time.Time
}

func NewHandler(reconciler *Reconciler, tasks Submitter, liveness *Liveness, opts HandlerOptions) *Handler {
	return &Handler{
		reconciler: reconciler,
		tasks:      tasks,
		liveness:   liveness,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "handler").Logger(),
		now:        time.Now,
	}
}

// OnInterest has the signature of ndn.InterestHandler. Every interest is
// answered with an empty Data packet of the same name, whether or not it
// decodes.
func (h *Handler) OnInterest(prefix ndn.Name, interest *ndn.Interest, sink ndn.DataSink) {
	h.opts.Metrics.IncInterests()
	defer h.acknowledge(interest, sink)

	m, err := DecodeMeasurement(prefix, interest.Name)
	if err != nil {
		h.opts.Metrics.IncDecodeErrors()
		h.log.Warn().Err(err).Msg("Dropping measurement")
		return
	}
	h.liveness.Reset()
	h.log.Debug().Msgf("Received value from device %d: %s=%v", m.DeviceID, m.Path, m.Value)

	id := m.EntityID(h.opts.EntityType)
	attrs := []orion.Attribute{{Name: h.opts.AttributeName, Value: orion.DoubleValue(m.Value)}}
	at := h.now()
	if err := h.tasks.Submit(func(ctx context.Context) { h.reconcile(ctx, id, attrs, m.Value, at) }); err != nil {
		h.log.Warn().Err(err).Msgf("Dropping measurement for %s", id)
	}
}

func (h *Handler) reconcile(ctx context.Context, id string, attrs []orion.Attribute, value float64, at time.Time) {
	outcome, err := h.reconciler.Reconcile(ctx, id, attrs)
	h.opts.Metrics.IncReconciled(outcome.String())
	if err != nil {
		h.log.Error().Err(err).Msgf("Failed to store measurement for %s", id)
	} else {
		h.log.Debug().Msgf("Entity %s %s", id, outcome)
	}

	if h.opts.Mirror == nil {
		return
	}
	if err := h.opts.Mirror.PublishMeasurement(ctx, id, value, at); err != nil {
		h.opts.Metrics.IncMirrorErrors()
		h.log.Error().Err(err).Msgf("Failed to mirror measurement for %s", id)
	}
}

func (h *Handler) acknowledge(interest *ndn.Interest, sink ndn.DataSink) {
	if err := sink.PutData(ndn.NewData(interest.Name)); err != nil {
		h.log.Error().Err(err).Msgf("Failed to acknowledge %s", interest.Name)
	}
}
