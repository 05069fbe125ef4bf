package ndn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrFaceClosed is returned once the face is shut down or the
	// forwarder closed the connection.
	ErrFaceClosed = errors.New("ndn: face closed")
	// ErrRegistrationFailed wraps every prefix registration failure.
	ErrRegistrationFailed = errors.New("ndn: prefix registration failed")
)

const (
	incomingDepth = 256
	writeTimeout  = 5 * time.Second
)

// InterestHandler is called for each interest under a registered prefix.
type InterestHandler func(prefix Name, interest *Interest, sink DataSink)

// DataSink accepts data packets in reply to interests.
type DataSink interface {
	PutData(d *Data) error
}

// NackReason of an NDNLPv2 network nack.
type NackReason uint64

const (
	NackNone       NackReason = 0
	NackCongestion NackReason = 50
	NackDuplicate  NackReason = 100
	NackNoRoute    NackReason = 150
)

const typeLpNackReason = 0x0321

func (r NackReason) String() string {
	switch r {
	case NackCongestion:
		return "Congestion"
	case NackDuplicate:
		return "Duplicate"
	case NackNoRoute:
		return "NoRoute"
	default:
		return fmt.Sprintf("Nack(%d)", uint64(r))
	}
}

// Options for a Face.
type Options struct {
	// Identity names the in-memory command signing key.
	Identity Name
	// CommandSigner signs management commands. Generated from Identity when nil.
	CommandSigner Signer
	// DataSigner signs data packets put on the face. DigestSha256 when nil.
	DataSigner Signer
	// RegisterTimeout bounds the prefix registration command.
	RegisterTimeout time.Duration
	Logger          zerolog.Logger
}

type pendingInterest struct {
	interest  *Interest
	deadline  time.Time
	onData    func(*Interest, *Data)
	onTimeout func(*Interest)
	onNack    func(*Interest, NackReason)
}

type interestFilter struct {
	id      uint64
	prefix  Name
	handler InterestHandler
}

// Face is a connection to an NDN forwarder. Packets are read in the
// background and delivered, together with all callbacks, from
// ProcessEvents on the caller's goroutine.
type Face struct {
	conn  net.Conn
	opts  Options
	log   zerolog.Logger
	local bool
	now   func() time.Time

	incoming chan []byte
	readErr  error // set before incoming is closed
	stop     chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	pending []*pendingInterest
	filters []interestFilter
	nextID  uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// Dial connects to a forwarder, e.g. Dial(ctx, "tcp", "localhost:6363", opts).
func Dial(ctx context.Context, network, address string, opts Options) (*Face, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial forwarder %s: %w", address, err)
	}
	f, err := NewFace(conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return f, nil
}

// NewFace wraps an established connection.
func NewFace(conn net.Conn, opts Options) (*Face, error) {
	if opts.Identity == nil {
		opts.Identity = MustParseName("/ndn-orion-adapter")
	}
	if opts.CommandSigner == nil {
		signer, err := NewECDSASigner(opts.Identity)
		if err != nil {
			return nil, err
		}
		opts.CommandSigner = signer
	}
	if opts.DataSigner == nil {
		opts.DataSigner = DigestSigner{}
	}
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = DefaultInterestLifetime
	}
	f := &Face{
		conn:     conn,
		opts:     opts,
		log:      opts.Logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		local:    isLocalAddr(conn.RemoteAddr()),
		now:      time.Now,
		incoming: make(chan []byte, incomingDepth),
		stop:     make(chan struct{}),
	}
	go f.readLoop()
	return f, nil
}

func isLocalAddr(addr net.Addr) bool {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.IsLoopback()
	case *net.UDPAddr:
		return a.IP.IsLoopback()
	default:
		// unix sockets and in-process pipes
		return true
	}
}

func (f *Face) readLoop() {
	defer close(f.incoming)
	r := bufio.NewReader(f.conn)
	for {
		wire, err := readPacket(r)
		if err != nil {
			f.readErr = err
			return
		}
		select {
		case f.incoming <- wire:
		case <-f.stop:
			f.readErr = ErrFaceClosed
			return
		}
	}
}

// ProcessEvents delivers all packets received so far and expires timed
// out interests. It never blocks on the network.
func (f *Face) ProcessEvents() error {
	if f.closed.Load() {
		return ErrFaceClosed
	}
	for n := 0; n < incomingDepth; n++ {
		select {
		case wire, ok := <-f.incoming:
			if !ok {
				if errors.Is(f.readErr, io.EOF) || errors.Is(f.readErr, ErrFaceClosed) {
					return fmt.Errorf("%w: connection closed by forwarder", ErrFaceClosed)
				}
				return fmt.Errorf("ndn: read: %w", f.readErr)
			}
			f.dispatch(wire, true)
		default:
			f.expire(f.now())
			return nil
		}
	}
	f.expire(f.now())
	return nil
}

func (f *Face) dispatch(wire []byte, allowLp bool) {
	el, _, err := readElement(wire)
	if err != nil {
		f.log.Warn().Err(err).Msg("Dropping undecodable packet")
		return
	}
	switch el.Type {
	case TypeInterest:
		f.handleInterest(wire)
	case TypeData:
		f.handleData(wire)
	case TypeLpPacket:
		if allowLp {
			f.handleLpPacket(el.Value)
		}
	default:
		f.log.Debug().Msgf("Ignoring packet of type %#x", el.Type)
	}
}

func (f *Face) handleLpPacket(value []byte) {
	fields, err := readElements(value)
	if err != nil {
		f.log.Warn().Err(err).Msg("Dropping undecodable LpPacket")
		return
	}
	var fragment []byte
	nacked := false
	reason := NackNone
	for _, field := range fields {
		switch field.Type {
		case TypeLpFragment:
			fragment = field.Value
		case TypeLpNack:
			nacked = true
			if sub, err := readElements(field.Value); err == nil {
				for _, s := range sub {
					if s.Type == typeLpNackReason {
						if v, err := parseNonNeg(s.Value); err == nil {
							reason = NackReason(v)
						}
					}
				}
			}
		}
	}
	if fragment == nil {
		// idle packet
		return
	}
	if !nacked {
		f.dispatch(fragment, false)
		return
	}
	interest, err := DecodeInterest(fragment)
	if err != nil {
		f.log.Warn().Err(err).Msg("Dropping nack with undecodable interest")
		return
	}
	f.mu.Lock()
	var hit *pendingInterest
	for i, p := range f.pending {
		if p.interest.Nonce == interest.Nonce && p.interest.Name.Equal(interest.Name) {
			hit = p
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	if hit != nil && hit.onNack != nil {
		hit.onNack(hit.interest, reason)
	}
}

func (f *Face) handleInterest(wire []byte) {
	interest, err := DecodeInterest(wire)
	if err != nil {
		f.log.Warn().Err(err).Msg("Dropping undecodable interest")
		return
	}
	f.mu.Lock()
	var best *interestFilter
	for i := range f.filters {
		flt := &f.filters[i]
		if flt.prefix.IsPrefixOf(interest.Name) && (best == nil || len(flt.prefix) > len(best.prefix)) {
			best = flt
		}
	}
	var (
		prefix  Name
		handler InterestHandler
	)
	if best != nil {
		prefix, handler = best.prefix, best.handler
	}
	f.mu.Unlock()
	if handler == nil {
		f.log.Debug().Msgf("No filter for interest %s", interest.Name)
		return
	}
	handler(prefix, interest, f)
}

func satisfies(d *Data, i *Interest) bool {
	if !i.Name.IsPrefixOf(d.Name) {
		return false
	}
	return i.CanBePrefix || len(i.Name) == len(d.Name)
}

func (f *Face) handleData(wire []byte) {
	data, err := DecodeData(wire)
	if err != nil {
		f.log.Warn().Err(err).Msg("Dropping undecodable data")
		return
	}
	f.mu.Lock()
	var matched []*pendingInterest
	kept := f.pending[:0]
	for _, p := range f.pending {
		if satisfies(data, p.interest) {
			matched = append(matched, p)
		} else {
			kept = append(kept, p)
		}
	}
	f.pending = kept
	f.mu.Unlock()
	for _, p := range matched {
		if p.onData != nil {
			p.onData(p.interest, data)
		}
	}
}

func (f *Face) expire(now time.Time) {
	f.mu.Lock()
	var expired []*pendingInterest
	kept := f.pending[:0]
	for _, p := range f.pending {
		if now.After(p.deadline) {
			expired = append(expired, p)
		} else {
			kept = append(kept, p)
		}
	}
	f.pending = kept
	f.mu.Unlock()
	for _, p := range expired {
		if p.onTimeout != nil {
			p.onTimeout(p.interest)
		}
	}
}

func (f *Face) send(wire []byte) error {
	if f.closed.Load() {
		return ErrFaceClosed
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = f.conn.SetWriteDeadline(f.now().Add(writeTimeout))
	if _, err := f.conn.Write(wire); err != nil {
		return fmt.Errorf("ndn: write: %w", err)
	}
	return nil
}

// ExpressInterest sends an interest. Exactly one of the callbacks is
// invoked later from ProcessEvents.
func (f *Face) ExpressInterest(i *Interest, onData func(*Interest, *Data), onTimeout func(*Interest), onNack func(*Interest, NackReason)) error {
	if i.Nonce == 0 {
		i.Nonce = NewNonce()
	}
	lifetime := i.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultInterestLifetime
	}
	p := &pendingInterest{
		interest:  i,
		deadline:  f.now().Add(lifetime),
		onData:    onData,
		onTimeout: onTimeout,
		onNack:    onNack,
	}
	f.mu.Lock()
	f.pending = append(f.pending, p)
	f.mu.Unlock()
	if err := f.send(i.Encode()); err != nil {
		f.mu.Lock()
		for idx, q := range f.pending {
			if q == p {
				f.pending = append(f.pending[:idx], f.pending[idx+1:]...)
				break
			}
		}
		f.mu.Unlock()
		return err
	}
	return nil
}

// PutData signs and sends a data packet.
func (f *Face) PutData(d *Data) error {
	wire, err := d.Encode(f.opts.DataSigner)
	if err != nil {
		return err
	}
	return f.send(wire)
}

func (f *Face) managementPrefix() Name {
	if f.local {
		return MustParseName("/localhost/nfd")
	}
	return MustParseName("/localhop/nfd")
}

// RegisterPrefix asks the forwarder to route interests under prefix to
// this face and installs onInterest for them once the forwarder accepts.
// A rejected, nacked or timed out command calls onFailed with an error
// wrapping ErrRegistrationFailed.
func (f *Face) RegisterPrefix(prefix Name, onInterest InterestHandler, onFailed func(Name, error), onSuccess func(Name, uint64)) (uint64, error) {
	params := ControlParameters{
		Name:   prefix,
		Origin: uint64Ptr(0),
		Flags:  uint64Ptr(RouteFlagChildInherit),
	}
	cmd, err := commandInterest(f.managementPrefix(), "rib", "register", params, f.opts.CommandSigner, f.now(), f.opts.RegisterTimeout)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	fail := func(cause error) {
		if onFailed != nil {
			onFailed(prefix, fmt.Errorf("%w: %s: %w", ErrRegistrationFailed, prefix, cause))
		}
	}
	onData := func(_ *Interest, d *Data) {
		resp, err := DecodeControlResponse(d.Content)
		if err != nil {
			fail(err)
			return
		}
		if !resp.OK() {
			fail(fmt.Errorf("forwarder replied %d %s", resp.StatusCode, resp.StatusText))
			return
		}
		f.mu.Lock()
		f.filters = append(f.filters, interestFilter{id: id, prefix: prefix, handler: onInterest})
		f.mu.Unlock()
		if onSuccess != nil {
			onSuccess(prefix, id)
		}
	}
	onTimeout := func(*Interest) {
		fail(errors.New("command timed out"))
	}
	onNack := func(_ *Interest, reason NackReason) {
		fail(fmt.Errorf("command nacked: %s", reason))
	}
	if err := f.ExpressInterest(cmd, onData, onTimeout, onNack); err != nil {
		return 0, err
	}
	f.log.Debug().Msgf("Sent registration command for %s", prefix)
	return id, nil
}

// Shutdown closes the connection. Pending callbacks are discarded.
func (f *Face) Shutdown() error {
	var err error
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		close(f.stop)
		f.mu.Lock()
		f.pending = nil
		f.filters = nil
		f.mu.Unlock()
		err = f.conn.Close()
	})
	return err
}
