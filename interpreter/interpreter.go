package interpreter

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/machinestore/chart"
)

const (
	defaultQueueSize = 1000
	maxMicrosteps    = 10000
)

// Interpreter is a running instance of a Machine.
//
// Send, Subscribe, GetSnapshot and Stop are safe for concurrent use.
// Events are processed sequentially on the interpreter's goroutine and
// subscribers are notified from it. Actions run while the interpreter
// holds its step lock: they may call Send but must not call Start or Stop.
type Interpreter struct {
	id        string
	machine   *Machine
	logger    *zap.Logger
	queueSize int

	// Pluggable components
	actionRunner ActionRunner
	guardEval    GuardEvaluator
	eventSource  EventSource
	persister    Persister
	publisher    Publisher

	status atomic.Int32

	mu       sync.Mutex // serializes Start, Stop and event steps
	ctx      *chart.Context
	active   map[string]bool
	history  map[string][]string
	timers   map[string][]*time.Timer
	actors   map[string][]context.CancelFunc
	entries  map[string]uint64 // entry count per state path
	runCtx   context.Context
	cancel   context.CancelFunc
	queue    chan queued
	done     chan struct{}
	haltOnce sync.Once

	snapMu   sync.RWMutex
	snapshot Snapshot

	obsMu     sync.Mutex
	observers map[uint64]func(Snapshot)
	nextObs   uint64
}

// New creates an interpreter for machine. It does nothing until Start.
func New(machine *Machine, opts ...Option) *Interpreter {
	i := &Interpreter{
		machine:      machine,
		logger:       zap.NewNop(),
		queueSize:    defaultQueueSize,
		actionRunner: &DefaultActionRunner{},
		guardEval:    &DefaultGuardEvaluator{},
		done:         make(chan struct{}),
		observers:    make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.id == "" {
		i.id = uuid.NewString()
	}
	i.queue = make(chan queued, i.queueSize)
	i.logger = i.logger.With(zap.String("machine", machine.ID()), zap.String("interpreter", i.id))
	i.snapshot = Snapshot{
		MachineID: machine.ID(),
		Value:     machine.InitialValue(),
		Context:   machine.Context(),
		Event:     chart.NewEvent(InitEvent, nil),
	}
	return i
}

// ID returns the interpreter ID.
func (i *Interpreter) ID() string { return i.id }

// Machine returns the machine definition being interpreted.
func (i *Interpreter) Machine() *Machine { return i.machine }

// Logger returns the interpreter's logger.
func (i *Interpreter) Logger() *zap.Logger { return i.logger }

// Status returns the current lifecycle status.
func (i *Interpreter) Status() Status { return Status(i.status.Load()) }

// Done is closed once the interpreter stops or reaches a top-level final state.
func (i *Interpreter) Done() <-chan struct{} { return i.done }

// GetSnapshot returns the latest snapshot. Before Start it describes the
// machine's initial state without any entry actions applied.
func (i *Interpreter) GetSnapshot() Snapshot {
	i.snapMu.RLock()
	defer i.snapMu.RUnlock()
	return i.snapshot
}

func (i *Interpreter) setSnapshot(s Snapshot) {
	i.snapMu.Lock()
	defer i.snapMu.Unlock()
	i.snapshot = s
}

// Start enters the machine's initial state, or resumes from the state
// described by from when it is non-nil, and launches the event loop.
//
// Resuming restores the snapshot's value and context without running entry
// actions; invoked actors and delayed transitions of the active states are
// started in both cases. Start is a no-op on a running interpreter and
// returns ErrStopped after Stop.
func (i *Interpreter) Start(from *Snapshot) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.Status() {
	case Running, Done:
		return nil
	case Stopped:
		return ErrStopped
	}

	var restored *Snapshot
	if from != nil {
		s, err := i.machine.CreateState(*from)
		if err != nil {
			return fmt.Errorf("rehydrate machine %q: %w", i.machine.ID(), err)
		}
		restored = &s
	}

	i.runCtx, i.cancel = context.WithCancel(context.Background())
	i.active = make(map[string]bool)
	i.history = make(map[string][]string)
	i.timers = make(map[string][]*time.Timer)
	i.actors = make(map[string][]context.CancelFunc)
	i.entries = make(map[string]uint64)
	i.status.Store(int32(Running))

	var snap Snapshot
	if restored != nil {
		active, err := i.machine.configuration(restored.Value)
		if err != nil {
			i.status.Store(int32(NotStarted))
			i.cancel()
			return fmt.Errorf("rehydrate machine %q: %w", i.machine.ID(), err)
		}
		i.ctx = chart.NewContext(restored.Context)
		i.active = active
		for _, p := range i.machine.sortEntry(active) {
			i.startActivities(p, restored.Event)
		}
		snap = *restored
		if snap.Done {
			i.finish()
		}
		i.logger.Info("interpreter resumed", zap.Strings("value", snap.Value))
	} else {
		i.ctx = chart.NewContext(i.machine.context)
		evt := chart.NewEvent(InitEvent, nil)
		var rec stepRecord
		raised := i.enterStates(i.machine.entrySet("", i.machine.config.Initial, nil), evt, &rec)
		i.drain(raised, &rec)
		snap = i.buildSnapshot(evt)
		i.logger.Info("interpreter started", zap.Strings("value", snap.Value))
	}
	snap.Changed = false
	i.setSnapshot(snap)

	if i.Status() == Running {
		go i.loop()
		if i.eventSource != nil {
			go i.pump(i.eventSource.Events())
		}
	}
	return nil
}

// Send enqueues an event for asynchronous processing.
// Returns ErrNotRunning unless the interpreter is running and ErrQueueFull
// on backpressure.
func (i *Interpreter) Send(evt chart.Event) error {
	if s := i.Status(); s != Running {
		return fmt.Errorf("send %q: %w (%s)", evt.Type, ErrNotRunning, s)
	}
	select {
	case i.queue <- queued{evt: evt}:
		return nil
	default:
		return fmt.Errorf("send %q: %w", evt.Type, ErrQueueFull)
	}
}

// Stop halts the interpreter: actors are cancelled, timers stopped and the
// event loop exits after the current step. Stopping a stopped interpreter
// is a no-op.
func (i *Interpreter) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.Status() == Stopped {
		i.logger.Debug("stop ignored, interpreter not running")
		return nil
	}
	i.halt()
	i.status.Store(int32(Stopped))
	i.logger.Info("interpreter stopped")
	return nil
}

// Subscription detaches an observer registered with Subscribe.
type Subscription struct {
	once        sync.Once
	unsubscribe func()
}

// Unsubscribe detaches the observer. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

// Subscribe registers fn to receive the snapshot of every processed event,
// changed or not. fn runs on the interpreter goroutine and must not block
// for long.
func (i *Interpreter) Subscribe(fn func(Snapshot)) *Subscription {
	i.obsMu.Lock()
	defer i.obsMu.Unlock()
	return i.addObserver(fn)
}

// SubscribeWithSnapshot registers fn like Subscribe and returns the
// snapshot current at registration. fn receives exactly the snapshots
// committed after that one.
func (i *Interpreter) SubscribeWithSnapshot(fn func(Snapshot)) (Snapshot, *Subscription) {
	i.obsMu.Lock()
	defer i.obsMu.Unlock()
	return i.GetSnapshot(), i.addObserver(fn)
}

// addObserver must be called with obsMu held.
func (i *Interpreter) addObserver(fn func(Snapshot)) *Subscription {
	id := i.nextObs
	i.nextObs++
	i.observers[id] = fn
	return &Subscription{unsubscribe: func() {
		i.obsMu.Lock()
		delete(i.observers, id)
		i.obsMu.Unlock()
	}}
}

// SubscriberCount returns the number of attached observers.
func (i *Interpreter) SubscriberCount() int {
	i.obsMu.Lock()
	defer i.obsMu.Unlock()
	return len(i.observers)
}

// commit stores s as the current snapshot and returns the observers that
// must be notified of it.
func (i *Interpreter) commit(s Snapshot) []uint64 {
	i.obsMu.Lock()
	defer i.obsMu.Unlock()
	i.setSnapshot(s)
	ids := make([]uint64, 0, len(i.observers))
	for id := range i.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// notify calls the observers in ids that are still subscribed.
func (i *Interpreter) notify(s Snapshot, ids []uint64) {
	for _, id := range ids {
		i.obsMu.Lock()
		fn, ok := i.observers[id]
		i.obsMu.Unlock()
		if ok {
			fn(s)
		}
	}
}

// loop is the event processing goroutine.
func (i *Interpreter) loop() {
	for {
		select {
		case <-i.done:
			return
		case q := <-i.queue:
			i.process(q)
		}
	}
}

func (i *Interpreter) pump(events <-chan chart.Event) {
	for {
		select {
		case <-i.done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := i.Send(evt); err != nil {
				i.logger.Warn("event source dropped event", zap.String("event", evt.Type), zap.Error(err))
			}
		}
	}
}

type stepRecord struct {
	actions     int
	transitions []string
}

// process runs one macrostep for an external event, persists and publishes
// its outcome, then notifies observers.
func (i *Interpreter) process(q queued) {
	i.mu.Lock()
	if i.Status() != Running {
		i.mu.Unlock()
		return
	}
	evt := q.evt
	if i.stale(q) {
		i.mu.Unlock()
		i.logger.Debug("dropped event from exited state", zap.String("event", evt.Type), zap.String("state", q.origin))
		return
	}
	prev := i.GetSnapshot()
	var rec stepRecord
	i.drain([]chart.Event{evt}, &rec)
	next := i.buildSnapshot(evt)
	next.Changed = !sameValue(prev.Value, next.Value) ||
		rec.actions > 0 ||
		!reflect.DeepEqual(prev.Context, next.Context)
	ids := i.commit(next)
	i.mu.Unlock()

	i.logger.Debug("event processed",
		zap.String("event", evt.Type),
		zap.Strings("value", next.Value),
		zap.Bool("changed", next.Changed),
	)

	if next.Changed && i.persister != nil {
		if err := i.persister.Save(context.Background(), next); err != nil {
			i.logger.Error("persist snapshot", zap.Error(err))
		}
	}
	if i.publisher != nil {
		for _, tr := range rec.transitions {
			md := TransitionMetadata{
				MachineID:     i.machine.ID(),
				InterpreterID: i.id,
				Transition:    tr,
				Timestamp:     next.Timestamp,
			}
			if err := i.publisher.Publish(context.Background(), evt, md); err != nil {
				i.logger.Error("publish transition", zap.String("transition", tr), zap.Error(err))
			}
		}
	}

	i.notify(next, ids)
}

// drain processes events and the events they raise until the internal
// queue is empty or the machine is no longer running.
func (i *Interpreter) drain(queue []chart.Event, rec *stepRecord) {
	for steps := 0; len(queue) > 0 && i.Status() == Running; steps++ {
		if steps >= maxMicrosteps {
			i.logger.Error("microstep limit reached, dropping raised events", zap.Int("dropped", len(queue)))
			return
		}
		evt := queue[0]
		queue = queue[1:]
		queue = append(queue, i.microstep(evt, rec)...)
	}
}

type selection struct {
	source string
	trans  chart.TransitionConfig
}

func (i *Interpreter) microstep(evt chart.Event, rec *stepRecord) []chart.Event {
	var raised []chart.Event
	for _, sel := range i.selectTransitions(evt) {
		if i.Status() != Running {
			break
		}
		if !i.active[sel.source] {
			// Exited by an earlier transition in this step.
			continue
		}
		raised = append(raised, i.takeTransition(sel, evt, rec)...)
	}
	return raised
}

// selectTransitions picks, for each active leaf, the first enabled
// transition of the deepest state handling evt.
func (i *Interpreter) selectTransitions(evt chart.Event) []selection {
	leaves := i.machine.leaves(i.active)
	sort.Slice(leaves, func(a, b int) bool { return i.machine.order[leaves[a]] < i.machine.order[leaves[b]] })

	var out []selection
	seen := make(map[string]bool)
	for _, leaf := range leaves {
		ancestors := getAncestors(leaf)
	search:
		for k := len(ancestors) - 1; k >= 0; k-- {
			src := ancestors[k]
			for idx, t := range i.machine.transitions[src][evt.Type] {
				if !i.guardEval.Eval(i.ctx, i.machine.resolveGuard(t.Guard), evt) {
					continue
				}
				key := fmt.Sprintf("%s#%d", src, idx)
				if !seen[key] {
					seen[key] = true
					out = append(out, selection{source: src, trans: t})
				}
				break search
			}
		}
	}
	return out
}

func (i *Interpreter) takeTransition(sel selection, evt chart.Event, rec *stepRecord) []chart.Event {
	t := sel.trans
	if t.Target == "" {
		for _, a := range t.Actions {
			i.runAction(a, evt, rec)
		}
		return nil
	}

	domain := i.machine.transitionDomain(sel.source, t.Target)
	i.exitStates(i.exitSet(domain), evt, rec)
	for _, a := range t.Actions {
		i.runAction(a, evt, rec)
	}
	rec.transitions = append(rec.transitions, fmt.Sprintf("%s -> %s", sel.source, t.Target))
	return i.enterStates(i.machine.entrySet(domain, t.Target, i.history), evt, rec)
}

func (i *Interpreter) exitSet(domain string) []string {
	var out []string
	for p := range i.active {
		if isDescendant(p, domain) {
			out = append(out, p)
		}
	}
	i.machine.sortExit(out)
	return out
}

func (i *Interpreter) exitStates(exits []string, evt chart.Event, rec *stepRecord) {
	// Record history before anything leaves the configuration.
	for _, p := range exits {
		for _, c := range i.machine.states[p].Children {
			switch c.Type {
			case chart.ShallowHistory:
				i.history[p+"."+c.ID] = i.activeChildren(p)
			case chart.DeepHistory:
				i.history[p+"."+c.ID] = i.activeLeavesUnder(p)
			}
		}
	}

	for _, p := range exits {
		i.stopActivities(p)
		for _, a := range i.machine.states[p].Exit {
			i.runAction(a, evt, rec)
		}
		delete(i.active, p)
	}
}

func (i *Interpreter) enterStates(entries []string, evt chart.Event, rec *stepRecord) []chart.Event {
	var finals []string
	for _, p := range entries {
		state := i.machine.states[p]
		i.active[p] = true
		for _, a := range state.Entry {
			i.runAction(a, evt, rec)
		}
		i.startActivities(p, evt)
		if state.Type == chart.Final {
			finals = append(finals, p)
		}
	}

	var raised []chart.Event
	seen := make(map[string]bool)
	raise := func(path string) {
		if !seen[path] {
			seen[path] = true
			raised = append(raised, chart.NewEvent(DoneStateEvent(path), nil))
		}
	}
	for _, p := range finals {
		parent := parentPath(p)
		if parent == "" {
			i.finish()
			return nil
		}
		raise(parent)
		if gp := parentPath(parent); gp != "" && i.machine.states[gp].Type == chart.Parallel && i.inFinal(gp) {
			raise(gp)
		}
	}
	return raised
}

// inFinal reports whether a compound state's active child is final, or
// every region of a parallel state is in a final state.
func (i *Interpreter) inFinal(path string) bool {
	state := i.machine.states[path]
	switch state.Type {
	case chart.Compound:
		for _, c := range state.Children {
			if c.Type == chart.Final && i.active[path+"."+c.ID] {
				return true
			}
		}
	case chart.Parallel:
		for _, c := range state.Children {
			if !c.Type.IsHistory() && !i.inFinal(path+"."+c.ID) {
				return false
			}
		}
		return true
	}
	return false
}

func (i *Interpreter) activeChildren(path string) []string {
	var out []string
	for _, c := range i.machine.states[path].Children {
		if cp := path + "." + c.ID; i.active[cp] {
			out = append(out, cp)
		}
	}
	return out
}

func (i *Interpreter) activeLeavesUnder(path string) []string {
	var out []string
	for _, leaf := range i.machine.leaves(i.active) {
		if isDescendant(leaf, path) {
			out = append(out, leaf)
		}
	}
	return out
}

func (i *Interpreter) runAction(ref chart.ActionRef, evt chart.Event, rec *stepRecord) {
	rec.actions++
	if err := i.actionRunner.Run(i.ctx, i.machine.resolveAction(ref), evt); err != nil {
		i.logger.Error("action failed",
			zap.String("action", describeRef(ref)),
			zap.String("event", evt.Type),
			zap.Error(err),
		)
	}
}

// startActivities begins a new entry of path: its actors and delayed
// transitions are tagged with the entry so they cannot outlive it.
func (i *Interpreter) startActivities(path string, evt chart.Event) {
	i.entries[path]++
	epoch := i.entries[path]
	state := i.machine.states[path]
	for _, inv := range state.Invoke {
		i.spawn(path, epoch, inv)
	}
	for delay := range state.After {
		d, err := i.machine.delayFor(delay, i.ctx, evt)
		if err != nil {
			i.logger.Error("cannot schedule delayed transition", zap.String("state", path), zap.Error(err))
			continue
		}
		name := AfterEvent(delay, path)
		timer := time.AfterFunc(d, func() {
			i.sendFrom(path, epoch, chart.NewEvent(name, nil))
		})
		i.timers[path] = append(i.timers[path], timer)
	}
}

func (i *Interpreter) spawn(path string, epoch uint64, inv chart.InvokeConfig) {
	id := inv.InvokeID()
	actor, ok := i.machine.lookupActor(inv.Src)
	if !ok {
		err := fmt.Errorf("actor %q not implemented", inv.Src)
		i.logger.Error("invoke failed", zap.String("state", path), zap.String("invoke", id), zap.Error(err))
		i.sendFrom(path, epoch, chart.NewEvent(ErrorEvent(id), err))
		return
	}

	ctx, cancel := context.WithCancel(i.runCtx)
	i.actors[path] = append(i.actors[path], cancel)
	go func() {
		out, err := actor(ctx, i.Send)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			i.sendFrom(path, epoch, chart.NewEvent(ErrorEvent(id), err))
			return
		}
		i.sendFrom(path, epoch, chart.NewEvent(DoneInvokeEvent(id), out))
	}()
}

func (i *Interpreter) stopActivities(path string) {
	for _, cancel := range i.actors[path] {
		cancel()
	}
	delete(i.actors, path)
	for _, t := range i.timers[path] {
		t.Stop()
	}
	delete(i.timers, path)
}

// queued is an event waiting for the loop. Events raised by an activity
// carry the state entry that started it.
type queued struct {
	evt    chart.Event
	origin string
	epoch  uint64
}

// sendFrom queues an event raised by an activity of the given entry of
// path, logging failures other than the interpreter having stopped.
func (i *Interpreter) sendFrom(path string, epoch uint64, evt chart.Event) {
	if s := i.Status(); s != Running {
		return
	}
	select {
	case i.queue <- queued{evt: evt, origin: path, epoch: epoch}:
	default:
		i.logger.Warn("dropped internal event", zap.String("event", evt.Type), zap.Error(ErrQueueFull))
	}
}

// stale reports whether q was raised by an activity whose state entry has
// since ended.
func (i *Interpreter) stale(q queued) bool {
	return q.origin != "" && (!i.active[q.origin] || i.entries[q.origin] != q.epoch)
}

// finish marks the machine done after a top-level final state.
func (i *Interpreter) finish() {
	i.status.Store(int32(Done))
	i.halt()
	i.logger.Info("machine reached final state")
}

// halt cancels all activities and ends the event loop.
func (i *Interpreter) halt() {
	if i.cancel != nil {
		i.cancel()
	}
	for p, ts := range i.timers {
		for _, t := range ts {
			t.Stop()
		}
		delete(i.timers, p)
	}
	for p := range i.actors {
		delete(i.actors, p)
	}
	i.haltOnce.Do(func() { close(i.done) })
}

func (i *Interpreter) buildSnapshot(evt chart.Event) Snapshot {
	return Snapshot{
		MachineID: i.machine.ID(),
		Value:     i.machine.leaves(i.active),
		Context:   i.ctx.Snapshot(),
		Event:     evt,
		Done:      i.Status() == Done,
		Timestamp: time.Now(),
	}
}

func describeRef(ref any) string {
	if s, ok := ref.(string); ok {
		return s
	}
	return fmt.Sprintf("%T", ref)
}
