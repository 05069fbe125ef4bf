package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dratasich/ndn-orion-adapter/dispatch"
	"github.com/dratasich/ndn-orion-adapter/ndn"
	"github.com/dratasich/ndn-orion-adapter/orion"
)

var testPrefix = ndn.MustParseName("/esp/fiware")

type brokerCall struct {
	op         string
	id         string
	entityType string
	attrs      []orion.Attribute
}

// fakeBroker keeps entities and subscriptions in memory.
type fakeBroker struct {
	mu            sync.Mutex
	calls         []brokerCall
	entities      map[string]bool
	subscriptions []orion.Subscription
	updateErr     error
	createErr     error
	listSubsErr   error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{entities: map[string]bool{}}
}

func (b *fakeBroker) UpdateAttributes(_ context.Context, id string, attrs []orion.Attribute) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, brokerCall{op: "update", id: id, attrs: attrs})
	if b.updateErr != nil {
		return b.updateErr
	}
	if !b.entities[id] {
		return fmt.Errorf("%w: %s", orion.ErrEntityNotFound, id)
	}
	return nil
}

func (b *fakeBroker) CreateEntity(_ context.Context, id, entityType string, attrs []orion.Attribute) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, brokerCall{op: "create", id: id, entityType: entityType, attrs: attrs})
	if b.createErr != nil {
		return b.createErr
	}
	if b.entities[id] {
		return &orion.BrokerError{Op: "CreateEntity", StatusCode: 422, Body: "Already Exists"}
	}
	b.entities[id] = true
	return nil
}

func (b *fakeBroker) ListSubscriptions(context.Context) ([]orion.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, brokerCall{op: "listSubscriptions"})
	if b.listSubsErr != nil {
		return nil, b.listSubsErr
	}
	return append([]orion.Subscription(nil), b.subscriptions...), nil
}

func (b *fakeBroker) CreateSubscription(_ context.Context, sub orion.Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, brokerCall{op: "createSubscription"})
	b.subscriptions = append(b.subscriptions, sub)
	return nil
}

func (b *fakeBroker) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]string, len(b.calls))
	for i, c := range b.calls {
		ops[i] = c.op
	}
	return ops
}

func (b *fakeBroker) tagged(tag string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subscriptions {
		if strings.HasPrefix(s.DescriptionText(), tag) {
			n++
		}
	}
	return n
}

// inlineSubmitter runs tasks on the caller's goroutine.
type inlineSubmitter struct {
	err   error
	tasks int
}

func (s *inlineSubmitter) Submit(task dispatch.Task) error {
	if s.err != nil {
		return s.err
	}
	s.tasks++
	task(context.Background())
	return nil
}

type sinkRecorder struct {
	data []*ndn.Data
	err  error
}

func (s *sinkRecorder) PutData(d *ndn.Data) error {
	s.data = append(s.data, d)
	return s.err
}

type mirrored struct {
	entityID string
	value    float64
	at       time.Time
}

type fakeMirror struct {
	published []mirrored
	err       error
}

func (m *fakeMirror) PublishMeasurement(_ context.Context, entityID string, value float64, at time.Time) error {
	m.published = append(m.published, mirrored{entityID: entityID, value: value, at: at})
	return m.err
}

// fakeFace replays scripted events from ProcessEvents.
type fakeFace struct {
	prefix      ndn.Name
	onInterest  ndn.InterestHandler
	onFailed    func(ndn.Name, error)
	onSuccess   func(ndn.Name, uint64)
	registerErr error
	// noAck leaves the registration unanswered.
	noAck bool

	processed int
	shutdowns int
	sink      sinkRecorder

	// onProcess runs on every ProcessEvents call with the call number.
	onProcess func(f *fakeFace, call int) error
}

func (f *fakeFace) RegisterPrefix(prefix ndn.Name, onInterest ndn.InterestHandler, onFailed func(ndn.Name, error), onSuccess func(ndn.Name, uint64)) (uint64, error) {
	if f.registerErr != nil {
		return 0, f.registerErr
	}
	f.prefix = prefix
	f.onInterest = onInterest
	f.onFailed = onFailed
	f.onSuccess = onSuccess
	return 1, nil
}

func (f *fakeFace) ProcessEvents() error {
	f.processed++
	if f.processed == 1 && !f.noAck && f.onSuccess != nil {
		f.onSuccess(f.prefix, 1)
	}
	if f.onProcess != nil {
		return f.onProcess(f, f.processed)
	}
	return nil
}

func (f *fakeFace) Shutdown() error {
	f.shutdowns++
	return nil
}

// deliver feeds one interest to the registered handler.
func (f *fakeFace) deliver(name ndn.Name) {
	f.onInterest(f.prefix, &ndn.Interest{Name: name}, &f.sink)
}

type fakeVersionChecker struct {
	calls      int
	err        error
	// budgets holds the time left on each request's deadline.
	budgets    []time.Duration
	noDeadline int
}

func (p *fakeVersionChecker) Version(ctx context.Context) (string, error) {
	p.calls++
	if d, ok := ctx.Deadline(); ok {
		p.budgets = append(p.budgets, time.Until(d))
	} else {
		p.noDeadline++
	}
	if p.err != nil {
		return "", p.err
	}
	return "3.10.1", nil
}

// fakeClock advances only when the supervisor sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	// onSleep may cancel the run; its error is returned from sleep.
	onSleep func(d time.Duration) error
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		if err := c.onSleep(d); err != nil {
			return err
		}
	}
	return ctx.Err()
}
