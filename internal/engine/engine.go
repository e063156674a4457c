package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/clock"
	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/pool"
	"github.com/roach88/trigsync/internal/registry"
	"github.com/roach88/trigsync/internal/source"
)

// DefaultIdleWait is how long Run sleeps after a cycle that changed nothing.
const DefaultIdleWait = 10 * time.Millisecond

// Engine is the synchronization driver.
//
// It pulls packets from registered sources into the event pool and clock
// tracker, resolves the oldest complete event number, checks clock
// alignment and hands the packet set to the builder.
//
// CRITICAL: Engine is single-threaded. RunCycle and every control method
// must be called from one goroutine, one at a time. No locking is done.
//
// INVARIANTS:
//   - Emitted event numbers are strictly increasing within a run
//   - An event number that left the pool never comes back
//   - Pool slots are erased only after a successful build and handoff
type Engine struct {
	settings Settings
	logger   *slog.Logger

	reg     *registry.Registry
	tracker *clock.Tracker
	pool    *pool.Pool
	builder *builder.Builder
	sink    builder.Sink
	seq     *Clock
	tokens  TokenGenerator
	streak  *FailureStreak
	obs     []Observer

	runToken string
	state    State

	// pending[h] is a packet pulled from source h that could not be
	// admitted without growing a full category.
	pending []*daq.Packet

	stats    Stats
	fatal    error
	stopped  bool
	idleWait time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTokens sets the run token generator. Default: UUIDv7Generator.
func WithTokens(g TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithBuilder replaces the event builder.
func WithBuilder(b *builder.Builder) Option {
	return func(e *Engine) {
		e.builder = b
	}
}

// WithClock sets the emission sequence clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.seq = c
	}
}

// WithObserver adds an observer for ditches and resynchronizations.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.obs = append(e.obs, o)
	}
}

// WithIdleWait sets how long Run waits after a cycle without progress.
func WithIdleWait(d time.Duration) Option {
	return func(e *Engine) {
		e.idleWait = d
	}
}

// New creates an engine that publishes to sink.
func New(settings Settings, sink builder.Sink, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if sink == nil {
		sink = builder.Discard
	}

	tracker, err := clock.NewTracker(settings.ClockBits)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(settings.InitialPoolDepth)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		settings: settings,
		logger:   slog.Default(),
		reg:      registry.New(),
		tracker:  tracker,
		pool:     p,
		sink:     sink,
		tokens:   UUIDv7Generator{},
		streak:   NewFailureStreak(settings.FailureThreshold),
		state:    StateCalibrating,
		stats:    newStats(),
		idleWait: DefaultIdleWait,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.builder == nil {
		e.builder = builder.New()
	}
	if e.seq == nil {
		e.seq = NewClock()
	}

	e.runToken = e.tokens.Generate()
	e.builder.SetRun(e.runToken, settings.RunNumber)
	return e, nil
}

// Register adds a source in cat and returns its handle.
func (e *Engine) Register(src source.Source, cat daq.Category) (daq.Handle, error) {
	h, err := e.reg.Register(src, cat)
	if err != nil {
		return daq.NoHandle, err
	}
	e.pending = append(e.pending, nil)
	e.logger.Debug("source registered", "source", src.Name(), "handle", h, "category", cat)
	return h, nil
}

// SetReference designates the timing reference. Replacing a reference
// after offsets were frozen invalidates them and resynchronizes.
func (e *Engine) SetReference(h daq.Handle) error {
	prev, err := e.reg.SetReference(h)
	if err != nil {
		return err
	}
	e.tracker.SetReference(h)
	if prev == h {
		return nil
	}
	e.logger.Info("reference set", "handle", h, "previous", prev)
	if e.tracker.Frozen() {
		e.resynchronize(context.Background(), "reference changed")
	}
	return nil
}

// RunToken returns the current run token.
func (e *Engine) RunToken() string { return e.runToken }

// RunNumber returns the configured run number.
func (e *Engine) RunNumber() int { return e.settings.RunNumber }

// State returns the synchronization state.
func (e *Engine) State() State { return e.state }

// Registry exposes the input registry for inspection.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Offsets returns the frozen clock offsets, or nil while calibrating.
func (e *Engine) Offsets() []clock.Offset { return e.tracker.Offsets() }

// Pool exposes the event pool for inspection.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Settings returns the active settings.
func (e *Engine) Settings() Settings { return e.settings }

// Stats returns a snapshot of the run counters.
func (e *Engine) Stats() Stats {
	s := e.stats.clone()
	s.DroppedPackets = e.pool.DroppedTotal()
	return s
}

// Dropped returns dropped-packet counts per source.
func (e *Engine) Dropped() map[daq.Handle]int { return e.pool.DroppedBySource() }

// DroppedPackets returns dropped-packet counts per packet identifier.
func (e *Engine) DroppedPackets() map[int]int { return e.pool.Dropped() }

// RunCycle performs one synchronization cycle.
//
// Per-event failures never surface as errors; they are reported in the
// Result and in Stats. A non-nil error comes with StatusFatal.
func (e *Engine) RunCycle(ctx context.Context) (Result, error) {
	if e.fatal != nil {
		return Result{Status: StatusFatal}, e.fatal
	}
	if e.stopped {
		return Result{Status: StatusFatal}, &RuntimeError{Code: ErrCodeStopped, Message: "engine stopped", RunToken: e.runToken}
	}
	e.stats.Cycles++

	if _, ok := e.reg.Reference(); !ok {
		return e.fail(newFatal(ErrCodeNoReference, e.runToken, &clock.NoReferenceError{}))
	}

	var res Result
	for _, cat := range e.required() {
		if len(e.reg.InCategory(cat)) == 0 {
			e.logger.Debug("required category has no sources", "category", cat)
			res.Status = StatusNoEventReady
			return res, nil
		}
	}

	res.Pulled = e.pull()

	if e.state == StateCalibrating {
		done, err := e.calibrate(ctx, &res)
		if err != nil {
			return e.fail(err)
		}
		if !done {
			res.Status = StatusNoEventReady
			return res, nil
		}
	}

	e.resolve(ctx, &res)
	return res, nil
}

func (e *Engine) fail(err *RuntimeError) (Result, error) {
	e.fatal = err
	e.logger.Error("fatal synchronization error", "code", err.Code, "error", err.Err, "run", e.runToken)
	return Result{Status: StatusFatal}, err
}

// required returns the categories an event number must cover.
func (e *Engine) required() []daq.Category {
	var need [daq.NumCategories]bool
	for _, c := range e.settings.Require {
		need[c] = true
	}
	var out []daq.Category
	for _, c := range daq.Categories() {
		if need[c] || e.reg.Expected(c) {
			out = append(out, c)
		}
	}
	return out
}

// pull takes up to BatchSize packets from each live source.
func (e *Engine) pull() int {
	pulled := 0
	for _, ent := range e.reg.Entries() {
		if !ent.Live {
			continue
		}
		h := ent.Handle
		for taken := 0; taken < e.settings.BatchSize; taken++ {
			pkt, ok := e.take(h, ent.Source)
			if !ok {
				break
			}
			if !e.admit(ent, pkt) {
				e.pending[h] = &pkt
				break
			}
			pulled++
			e.stats.Pulled[ent.Name]++
		}
		if e.pending[h] == nil && source.IsDrained(ent.Source) {
			e.reg.MarkDead(h)
			e.logger.Info("source drained", "source", ent.Name, "handle", h)
		}
	}
	return pulled
}

func (e *Engine) take(h daq.Handle, src source.Source) (daq.Packet, bool) {
	if p := e.pending[h]; p != nil {
		e.pending[h] = nil
		return *p, true
	}
	if !src.HasMore() {
		return daq.Packet{}, false
	}
	return src.Next()
}

// admit stores pkt in the pool and its clock in the tracker. Returns false
// if the packet must wait because its category is full.
func (e *Engine) admit(ent *registry.Entry, pkt daq.Packet) bool {
	pkt.Source = ent.Handle
	pkt.Clock &= clock.Mask(e.settings.ClockBits)
	n := pkt.EventNumber

	if e.pool.Retired(n) {
		e.pool.RecordDrop(pkt)
		e.stats.Late++
		e.logger.Debug("late packet dropped", "source", ent.Name, "event", n, "packet", pkt.ID)
		return true
	}
	if e.pool.WouldGrow(n, ent.Category) {
		return false
	}

	e.pool.AddPacket(n, ent.Category, pkt)
	e.tracker.AddSample(n, ent.Handle, pkt.Clock)
	e.logger.Debug("packet pooled", "source", ent.Name, "event", n, "packet", pkt.ID, "clock", pkt.Clock)
	return true
}

// blocked reports whether the pool cannot take more data: some source is
// held by backpressure or a category sits at depth.
func (e *Engine) blocked() bool {
	for _, p := range e.pending {
		if p != nil {
			return true
		}
	}
	for _, c := range daq.Categories() {
		if e.pool.Full(c) {
			return true
		}
	}
	return false
}

// calibrate freezes offsets once enough reference samples are in, or once
// the reference can deliver no more. Returns true when the engine is
// synchronized.
func (e *Engine) calibrate(ctx context.Context, res *Result) (bool, *RuntimeError) {
	refSamples := e.tracker.ReferenceSamples()
	final := !e.reg.AnyLive() || !e.referenceLive()

	if refSamples < e.settings.CalibrationWindow && !final {
		if e.blocked() {
			if n, ok := e.pool.Oldest(); ok {
				d := e.ditch(ctx, n, ReasonCalibration)
				res.Ditched = append(res.Ditched, d)
				// Samples carrying a reference clock still feed the vote.
				if !e.tracker.HasReferenceSample(n) {
					e.tracker.Forget(n)
				}
			}
		}
		return false, nil
	}

	offsets, err := e.tracker.ComputeOffsets(e.reg.Len(), e.settings.CalibrationWindow)
	if err != nil {
		code := ErrCodeNoReferenceData
		if clock.IsNoReference(err) {
			code = ErrCodeNoReference
		}
		return false, newFatal(code, e.runToken, err)
	}

	for _, o := range offsets {
		ent, _ := e.reg.Lookup(o.Source)
		if !o.Calibrated {
			e.logger.Warn("source uncalibrated", "source", ent.Name, "handle", o.Source)
			continue
		}
		e.logger.Debug("offset frozen", "source", ent.Name, "offset", o.Value, "votes", o.Votes, "samples", o.Samples)
	}

	e.tracker.Prune(e.pool.Contains)
	e.setState(StateSynchronized)
	e.applyDepth(ctx, res)
	return true, nil
}

func (e *Engine) referenceLive() bool {
	h, ok := e.reg.Reference()
	if !ok {
		return false
	}
	ent, ok := e.reg.Lookup(h)
	return ok && ent.Live
}

// resolve emits the oldest complete event number, or ditches what blocks.
func (e *Engine) resolve(ctx context.Context, res *Result) {
	required := e.required()
	n, ok := e.candidate(required)
	if !ok {
		switch {
		case e.blocked():
			oldest, _ := e.pool.Oldest()
			if e.failEvent(ctx, res, oldest, ReasonMissing) {
				return
			}
			res.Status = StatusNoEventReady
		case !e.reg.AnyLive():
			res.Status = StatusExhausted
		default:
			res.Status = StatusNoEventReady
		}
		return
	}

	for _, older := range e.pool.Numbers() {
		if older >= n {
			break
		}
		if e.failEvent(ctx, res, older, ReasonSuperseded) {
			return
		}
	}

	slots := e.pool.Slots(n)
	contributors := contributorsOf(slots)
	align := e.tracker.Check(n, contributors, e.settings.Tolerance)
	if !align.Aligned {
		ent, _ := e.reg.Lookup(align.Offender)
		e.logger.Warn("clock misaligned",
			"event", n,
			"source", ent.Name,
			"distance", align.Worst,
			"tolerance", e.settings.Tolerance,
		)
		e.failEvent(ctx, res, n, ReasonMisaligned)
		res.Status = StatusNoEventReady
		return
	}

	ev, err := e.builder.Build(builder.Input{
		EventNumber: n,
		Seq:         e.seq.Peek(),
		ClockBase:   align.Base,
		Slots:       slots,
	})
	if err != nil {
		e.logger.Warn("event build failed", "event", n, "error", err)
		reason := ReasonSink
		switch {
		case builder.IsEncodingOverflow(err):
			reason = ReasonOverflow
		case builder.IsWordRange(err):
			reason = ReasonUnencodable
		}
		e.failEvent(ctx, res, n, reason)
		res.Status = StatusNoEventReady
		return
	}

	if err := e.sink.Publish(ctx, ev); err != nil {
		e.logger.Error("event handoff failed", "event", n, "error", err)
		e.failEvent(ctx, res, n, ReasonSink)
		res.Status = StatusNoEventReady
		return
	}

	e.pool.Resolve(n)
	e.tracker.Forget(n)
	e.seq.Next()
	e.streak.Reset()
	e.stats.Emitted++
	e.stats.LastEmitted = n

	e.logger.Debug("event emitted", "event", n, "seq", ev.Seq, "packets", len(ev.Records), "words", ev.Words())
	res.Status = StatusEventProduced
	res.Event = ev
}

// candidate returns the oldest event number every required category has
// fully reported.
func (e *Engine) candidate(required []daq.Category) (int, bool) {
	for _, n := range e.pool.Numbers() {
		if e.complete(n, required) {
			return n, true
		}
	}
	return 0, false
}

// complete reports whether every live source of every required category
// contributed to n.
func (e *Engine) complete(n int, required []daq.Category) bool {
	if len(required) == 0 {
		return false
	}
	for _, cat := range required {
		s := e.pool.Slot(n, cat)
		if s == nil || s.Found() == 0 {
			return false
		}
		for _, h := range e.reg.InCategory(cat) {
			ent, _ := e.reg.Lookup(h)
			if ent.Live && !s.Has(h) {
				return false
			}
		}
	}
	return true
}

func contributorsOf(slots [daq.NumCategories]*pool.Slot) []daq.Handle {
	seen := make(map[daq.Handle]struct{})
	var out []daq.Handle
	for _, s := range slots {
		if s == nil {
			continue
		}
		for _, h := range s.Contributors() {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// failEvent ditches n as a per-event failure and advances the streak.
// Returns true if the streak forced a resynchronization.
func (e *Engine) failEvent(ctx context.Context, res *Result, n int, reason DitchReason) bool {
	res.Ditched = append(res.Ditched, e.ditch(ctx, n, reason))
	e.tracker.Forget(n)
	if !e.streak.Record() {
		return false
	}
	e.resynchronize(ctx, fmt.Sprintf("%d consecutive failures", e.streak.Current()))
	res.Resynced = true
	res.Status = StatusNoEventReady
	return true
}

func (e *Engine) ditch(ctx context.Context, n int, reason DitchReason) Ditch {
	ev := e.pool.Ditch(n)
	d := Ditch{RunToken: e.runToken, EventNumber: n, Packets: ev.Packets, Reason: reason}

	e.stats.Ditched++
	e.stats.ByReason[reason]++
	e.logger.Warn("event ditched", "event", n, "packets", ev.Packets, "reason", reason)
	for _, o := range e.obs {
		o.OnDitch(ctx, d)
	}
	return d
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.logger.Info("state transition", "from", e.state, "to", s, "run", e.runToken)
	e.state = s
}

// applyDepth sets the pool bound for the current state.
func (e *Engine) applyDepth(ctx context.Context, res *Result) {
	depth := e.settings.InitialPoolDepth
	if e.state == StateSynchronized {
		depth = e.settings.PoolDepth
	}
	evicted, err := e.pool.SetDepth(depth)
	if err != nil {
		e.logger.Error("pool depth rejected", "depth", depth, "error", err)
		return
	}
	for _, ev := range evicted {
		d := Ditch{RunToken: e.runToken, EventNumber: ev.EventNumber, Packets: ev.Packets, Reason: ReasonDepth}
		e.stats.Ditched++
		e.stats.ByReason[ReasonDepth]++
		e.tracker.Forget(ev.EventNumber)
		for _, o := range e.obs {
			o.OnDitch(ctx, d)
		}
		if res != nil {
			res.Ditched = append(res.Ditched, d)
		}
	}
}

func (e *Engine) resynchronize(ctx context.Context, reason string) {
	e.setState(StateResynchronizing)

	r := Resync{RunToken: e.runToken, Cycle: e.stats.Cycles, Reason: reason}
	for _, n := range e.pool.Numbers() {
		d := e.ditch(ctx, n, ReasonResync)
		r.Ditched++
		r.Packets += d.Packets
	}
	e.tracker.Clear()
	e.streak.Reset()
	e.stats.Resyncs++

	e.logger.Info("resynchronized", "reason", reason, "ditched", r.Ditched, "packets", r.Packets)
	for _, o := range e.obs {
		o.OnResync(ctx, r)
	}

	e.setState(StateCalibrating)
	e.applyDepth(ctx, nil)
}

// SetPoolDepth changes the steady-state pool depth.
// Takes effect immediately when synchronized.
func (e *Engine) SetPoolDepth(n int) error {
	if n < 1 {
		return fmt.Errorf("pool depth must be at least 1, got %d", n)
	}
	e.settings.PoolDepth = n
	if e.state == StateSynchronized {
		e.applyDepth(context.Background(), nil)
	}
	return nil
}

// ResetAll discards every buffered event, all clock samples and counters
// and starts a new run. Registered sources stay registered and are
// considered live again.
func (e *Engine) ResetAll() {
	e.pool.ClearAll()
	e.pool.ResetDropped()
	e.tracker.Clear()
	e.reg.Revive()
	e.streak.Reset()
	e.seq.Reset()
	for i := range e.pending {
		e.pending[i] = nil
	}
	e.stats = newStats()
	e.fatal = nil
	e.stopped = false

	e.runToken = e.tokens.Generate()
	e.builder.SetRun(e.runToken, e.settings.RunNumber)

	e.setState(StateCalibrating)
	e.applyDepth(context.Background(), nil)
	e.logger.Info("engine reset", "run", e.runToken)
}

// DitchEvent removes event number n at the host's request.
// Does not count toward the failure streak.
func (e *Engine) DitchEvent(n int) Ditch {
	d := e.ditch(context.Background(), n, ReasonHost)
	e.tracker.Forget(n)
	return d
}

// Resynchronize forces a resynchronization.
func (e *Engine) Resynchronize() {
	e.resynchronize(context.Background(), "host request")
}

// Stop discards every buffered slot without resolving partial ones.
// RunCycle fails with ErrCodeStopped afterwards until ResetAll.
func (e *Engine) Stop() {
	if e.stopped {
		return
	}
	e.pool.ClearAll()
	e.tracker.Clear()
	e.stopped = true
	e.logger.Info("engine stopped", "run", e.runToken, "emitted", e.stats.Emitted)
}

// Run drives cycles until every source is exhausted, the context is
// cancelled or a fatal error occurs. The engine is stopped on return.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "run", e.runToken, "sources", e.reg.Len())
	defer e.Stop()

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("engine stopping: context cancelled")
			return err
		}

		res, err := e.RunCycle(ctx)
		if err != nil {
			return err
		}
		if res.Status == StatusExhausted {
			e.logger.Info("engine stopping: sources exhausted", "emitted", e.stats.Emitted)
			return nil
		}
		if res.Progressed() {
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()
		case <-time.After(e.idleWait):
		}
	}
}
