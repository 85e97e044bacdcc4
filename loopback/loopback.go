// Package loopback provides an in-process ndi.Backend.
//
// Senders created on a Network become sources that its finders see, and
// receivers connected to them get their frames. Nothing leaves the
// process. Tests use it to drive the handle wrappers and the example
// programs without the NDI runtime; it also counts live instances and
// outstanding frames so release bugs show up.
package loopback

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Satya110584/ndi"
)

// Kind names a handle type for failure injection and stats.
type Kind int

const (
	KindFind Kind = iota
	KindRecv
	KindFrameSync
	KindSend
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindFind:
		return "find"
	case KindRecv:
		return "receive"
	case KindFrameSync:
		return "frame sync"
	case KindSend:
		return "send"
	default:
		return "unknown"
	}
}

// HostName prefixes the names of loopback sources.
const HostName = "LOOPBACK"

// Queue depth per receiver; the oldest frame is dropped when full.
const receiveQueueDepth = 64

// Stats counts lifecycle events on a Network.
type Stats struct {
	Initialized int
	Destroyed   int
	Created     [kindCount]int
	Released    [kindCount]int
	Outstanding int // Captured frames not yet freed
}

// Live returns the number of handles of kind k not yet destroyed.
func (s Stats) Live(k Kind) int {
	return s.Created[k] - s.Released[k]
}

// Network is an in-process NDI network. The zero value is not usable;
// call New.
type Network struct {
	// ClockAudio makes clocked senders sleep for each frame's duration.
	ClockAudio bool

	mu       sync.Mutex
	feeds    map[string]*Feed // by URL
	changed  chan struct{}    // closed and replaced on every source change
	version  uint64
	failInit bool
	failKind [kindCount]bool
	stats    Stats
}

// New creates an empty network.
func New() *Network {
	return &Network{
		feeds:   make(map[string]*Feed),
		changed: make(chan struct{}),
	}
}

// FailInitialize makes the next Initialize calls fail.
func (n *Network) FailInitialize(fail bool) {
	n.mu.Lock()
	n.failInit = fail
	n.mu.Unlock()
}

// FailCreate makes create calls of kind k fail as if the library had
// returned a null handle.
func (n *Network) FailCreate(k Kind, fail bool) {
	n.mu.Lock()
	n.failKind[k] = fail
	n.mu.Unlock()
}

// Stats returns a snapshot of the lifecycle counters.
func (n *Network) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Initialize implements ndi.Backend.
func (n *Network) Initialize() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failInit {
		return fmt.Errorf("loopback: initialize refused")
	}
	n.stats.Initialized++
	return nil
}

// Destroy implements ndi.Backend.
func (n *Network) Destroy() {
	n.mu.Lock()
	n.stats.Destroyed++
	n.mu.Unlock()
}

// Version implements ndi.Backend.
func (n *Network) Version() string { return "loopback 1.0" }

func (n *Network) create(k Kind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failKind[k] {
		return fmt.Errorf("%w: %s", ndi.ErrCreateFailed, k)
	}
	n.stats.Created[k]++
	return nil
}

func (n *Network) release(k Kind) {
	n.mu.Lock()
	n.stats.Released[k]++
	n.mu.Unlock()
}

func (n *Network) frameOut(delta int) {
	n.mu.Lock()
	n.stats.Outstanding += delta
	n.mu.Unlock()
}

// notifyLocked wakes every finder waiting for a source change.
func (n *Network) notifyLocked() {
	n.version++
	close(n.changed)
	n.changed = make(chan struct{})
}

// AddSource publishes a source named name and returns the feed used to
// push frames into it.
func (n *Network) AddSource(name string) *Feed {
	f := &Feed{
		net:  n,
		src:  ndi.Source{Name: fmt.Sprintf("%s (%s)", HostName, name), URL: "loopback://" + uuid.NewString()},
		subs: make(map[*receiver]struct{}),
	}
	n.mu.Lock()
	n.feeds[f.src.URL] = f
	n.notifyLocked()
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "AddSource",
		"source":   f.src.Name,
		"url":      f.src.URL,
	}).Debug("loopback source published")
	return f
}

func (n *Network) sources() ([]ndi.Source, uint64, chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ndi.Source, 0, len(n.feeds))
	for _, f := range n.feeds {
		out = append(out, f.src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, n.version, n.changed
}

func (n *Network) lookup(src *ndi.Source) *Feed {
	n.mu.Lock()
	defer n.mu.Unlock()
	if f, ok := n.feeds[src.URL]; ok {
		return f
	}
	for _, f := range n.feeds {
		if f.src.Name == src.Name {
			return f
		}
	}
	return nil
}

// Feed is a published source.
type Feed struct {
	net *Network
	src ndi.Source

	mu      sync.Mutex
	subs    map[*receiver]struct{}
	removed bool
}

// Source returns the source as finders report it.
func (f *Feed) Source() ndi.Source { return f.src }

// Video pushes a copy of frame to every connected receiver.
func (f *Feed) Video(frame *ndi.VideoFrame) { f.deliver(frame.Clone()) }

// Audio pushes a copy of frame to every connected receiver.
func (f *Feed) Audio(frame *ndi.AudioFrame) { f.deliver(frame.Clone()) }

// Metadata pushes an XML metadata string to every connected receiver.
func (f *Feed) Metadata(xml string) { f.deliver(&ndi.MetadataFrame{Data: xml}) }

// StatusChange signals every connected receiver.
func (f *Feed) StatusChange() { f.deliver(ndi.StatusChange{}) }

func (f *Feed) deliver(frame ndi.Frame) {
	f.mu.Lock()
	subs := make([]*receiver, 0, len(f.subs))
	for r := range f.subs {
		subs = append(subs, r)
	}
	f.mu.Unlock()

	for _, r := range subs {
		r.push(frame)
	}
}

// Connections returns the number of receivers connected to the feed.
func (f *Feed) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Remove withdraws the source. Connected receivers stop getting frames.
func (f *Feed) Remove() {
	f.mu.Lock()
	if f.removed {
		f.mu.Unlock()
		return
	}
	f.removed = true
	subs := f.subs
	f.subs = make(map[*receiver]struct{})
	f.mu.Unlock()

	for r := range subs {
		r.detach(f)
	}

	n := f.net
	n.mu.Lock()
	delete(n.feeds, f.src.URL)
	n.notifyLocked()
	n.mu.Unlock()
}

func (f *Feed) subscribe(r *receiver) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removed {
		return false
	}
	f.subs[r] = struct{}{}
	return true
}

func (f *Feed) unsubscribe(r *receiver) {
	f.mu.Lock()
	delete(f.subs, r)
	f.mu.Unlock()
}

// FindCreate implements ndi.Backend.
func (n *Network) FindCreate(cfg ndi.FinderConfig) (ndi.FindInstance, error) {
	if err := n.create(KindFind); err != nil {
		return nil, err
	}
	return &finder{net: n}, nil
}

type finder struct {
	net  *Network
	seen uint64
}

func (f *finder) WaitForSources(timeout time.Duration) bool {
	_, version, changed := f.net.sources()
	if version != f.seen {
		f.seen = version
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-changed:
		_, f.seen, _ = f.net.sources()
		return true
	case <-timer.C:
		return false
	}
}

func (f *finder) CurrentSources() []ndi.Source {
	src, _, _ := f.net.sources()
	return src
}

func (f *finder) Destroy() { f.net.release(KindFind) }

// RecvCreate implements ndi.Backend.
func (n *Network) RecvCreate(cfg ndi.ReceiverConfig) (ndi.RecvInstance, error) {
	if err := n.create(KindRecv); err != nil {
		return nil, err
	}
	r := &receiver{
		net:   n,
		name:  cfg.Name,
		queue: make(chan ndi.Frame, receiveQueueDepth),
	}
	if cfg.Source != nil {
		r.Connect(cfg.Source)
	}
	return r, nil
}

type receiver struct {
	net   *Network
	name  string
	queue chan ndi.Frame

	mu   sync.Mutex
	feed *Feed
}

func (r *receiver) push(frame ndi.Frame) {
	for {
		select {
		case r.queue <- frame:
			return
		default:
		}
		// Full: drop the oldest frame and retry.
		select {
		case <-r.queue:
		default:
		}
	}
}

func (r *receiver) Connect(src *ndi.Source) {
	r.mu.Lock()
	old := r.feed
	r.feed = nil
	r.mu.Unlock()
	if old != nil {
		old.unsubscribe(r)
	}
	if src == nil {
		return
	}
	if f := r.net.lookup(src); f != nil && f.subscribe(r) {
		r.mu.Lock()
		r.feed = f
		r.mu.Unlock()
	}
}

func (r *receiver) detach(f *Feed) {
	r.mu.Lock()
	if r.feed == f {
		r.feed = nil
	}
	r.mu.Unlock()
	r.push(ndi.ConnectionLost{})
}

func (r *receiver) Capture(timeout time.Duration) (ndi.Frame, func()) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-r.queue:
		return r.hold(frame)
	case <-timer.C:
		return ndi.NoFrame{}, nil
	}
}

// hold counts payload frames as outstanding until their release runs.
func (r *receiver) hold(frame ndi.Frame) (ndi.Frame, func()) {
	switch frame.(type) {
	case *ndi.VideoFrame, *ndi.AudioFrame, *ndi.MetadataFrame:
	default:
		return frame, nil
	}
	r.net.frameOut(1)
	var once sync.Once
	return frame, func() {
		once.Do(func() { r.net.frameOut(-1) })
	}
}

func (r *receiver) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.feed == nil {
		return 0
	}
	return 1
}

func (r *receiver) Destroy() {
	r.Connect(nil)
	r.net.release(KindRecv)
}

// SendCreate implements ndi.Backend.
func (n *Network) SendCreate(cfg ndi.SenderConfig) (ndi.SendInstance, error) {
	if err := n.create(KindSend); err != nil {
		return nil, err
	}
	return &sender{net: n, feed: n.AddSource(cfg.Name), clock: cfg.ClockAudio}, nil
}

type sender struct {
	net   *Network
	feed  *Feed
	clock bool
}

func (s *sender) SendAudio(frame *ndi.AudioFrame) {
	s.feed.Audio(frame)
	if s.clock && s.net.ClockAudio {
		time.Sleep(frame.Duration())
	}
}

func (s *sender) Connections(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		if c := s.feed.Connections(); c > 0 || !time.Now().Before(deadline) {
			return c
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *sender) Destroy() {
	s.feed.Remove()
	s.net.release(KindSend)
}
