// Package state holds the single-writer playground store.
//
// Every change goes through one FIFO queue drained by a single goroutine: the updater receives a
// clone of the last committed state, commit hooks derive bookkeeping (dirty flags), and the result
// is published atomically. Readers only ever see committed snapshots.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/transform"
)

// Updater returns the next state. It may modify s in place and return it; returning nil keeps s.
type Updater func(ctx context.Context, s *models.State) (*models.State, error)

// CommitHook runs on the writer goroutine after the updater and before publication. It may
// adjust next; prev is read-only.
type CommitHook interface {
	OnCommit(prev, next *models.State)
}

type CommitHookFunc func(prev, next *models.State)

func (f CommitHookFunc) OnCommit(prev, next *models.State) {
	f(prev, next)
}

// Listener receives committed transitions in commit order.
type Listener func(prev, next *models.State)

// Compare reports whether a transition is irrelevant to a listener.
type Compare func(prev, next *models.State) bool

type MutateOptions struct {
	// Op names the mutation in logs and errors.
	Op string
	// Revalidate refetches variants and specs after the commit.
	Revalidate bool
}

type Option func(*Store)

func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		s.hooks = append(s.hooks, hook)
	}
}

func WithFetcher(fetcher Fetcher) Option {
	return func(s *Store) {
		s.fetcher = fetcher
	}
}

func WithInitialState(st *models.State) Option {
	return func(s *Store) {
		s.initial = st
	}
}

type snapshot struct {
	state   *models.State
	version uint64
}

const (
	jobQueued int32 = iota
	jobStarted
	jobAbandoned
)

type job struct {
	ctx     context.Context
	updater Updater
	opts    MutateOptions
	done    chan jobResult
	barrier chan struct{}
	status  atomic.Int32
}

// start claims the job for the writer. It fails once the caller gave up waiting.
func (j *job) start() bool {
	return j.status.CompareAndSwap(jobQueued, jobStarted)
}

// abandon withdraws a job the writer has not picked up yet.
func (j *job) abandon() bool {
	return j.status.CompareAndSwap(jobQueued, jobAbandoned)
}

type jobResult struct {
	state *models.State
	err   error
}

type transition struct {
	prev, next *models.State
	barrier    chan struct{}
}

type subscription struct {
	compare Compare
	fn      Listener
}

type mutatingKey struct{}

type Store struct {
	logger      *slog.Logger
	content     *content.Store
	transformer *transform.Transformer
	fetcher     Fetcher
	hooks       []CommitHook
	initial     *models.State

	current atomic.Pointer[snapshot]
	jobs    *fifo[*job]
	events  *fifo[transition]

	subsMu sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
}

func NewStore(contentStore *content.Store, transformer *transform.Transformer, logger *slog.Logger, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		logger:      logger.With("module", "state"),
		content:     contentStore,
		transformer: transformer,
		jobs:        newFIFO[*job](),
		events:      newFIFO[transition](),
		subs:        map[uint64]*subscription{},
		baseCtx:     ctx,
		cancel:      cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	initial := s.initial
	if initial == nil {
		initial = models.NewState()
	}

	s.current.Store(&snapshot{state: initial})

	s.wg.Add(2)

	go s.writeLoop()
	go s.notifyLoop()

	return s
}

func (s *Store) Content() *content.Store {
	return s.content
}

func (s *Store) Transformer() *transform.Transformer {
	return s.transformer
}

// Snapshot returns the last committed state. It must be treated as read-only.
func (s *Store) Snapshot() *models.State {
	return s.current.Load().state
}

// Version counts commits since the store was created.
func (s *Store) Version() uint64 {
	return s.current.Load().version
}

// Mutate queues updater and waits for its commit. Cancelling ctx only withdraws a mutation that is
// still queued: once the writer has picked it up, Mutate reports its real outcome. Calling it with
// the context an updater received fails with ErrReentrantMutation.
func (s *Store) Mutate(ctx context.Context, updater Updater, opts MutateOptions) (*models.State, error) {
	if owner, ok := ctx.Value(mutatingKey{}).(*Store); ok && owner == s {
		return nil, ErrReentrantMutation
	}

	j := &job{ctx: ctx, updater: updater, opts: opts, done: make(chan jobResult, 1)}
	if s.closed.Load() || !s.jobs.push(j) {
		return nil, ErrClosed
	}

	select {
	case res := <-j.done:
		return res.state, res.err
	case <-ctx.Done():
		if j.abandon() {
			return nil, ctx.Err()
		}

		res := <-j.done

		return res.state, res.err
	}
}

// Schedule queues updater without waiting. Updaters use it to request follow-up mutations.
func (s *Store) Schedule(ctx context.Context, updater Updater, opts MutateOptions) error {
	if s.closed.Load() {
		return ErrClosed
	}

	j := &job{ctx: context.WithoutCancel(ctx), updater: updater, opts: opts, done: make(chan jobResult, 1)}
	if !s.jobs.push(j) {
		return ErrClosed
	}

	return nil
}

// Subscribe registers fn for every commit compare does not declare irrelevant. A nil compare
// receives every commit.
func (s *Store) Subscribe(compare Compare, fn Listener) func() {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = &subscription{compare: compare, fn: fn}
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Flush waits until every mutation queued before the call is committed and its listeners ran.
func (s *Store) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	j := &job{ctx: ctx, opts: MutateOptions{Op: "flush"}, done: make(chan jobResult, 1), barrier: barrier}
	if s.closed.Load() || !s.jobs.push(j) {
		return ErrClosed
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting mutations, drains the queues and waits for the loops to exit.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()
	s.jobs.close()
	s.wg.Wait()

	return nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	defer s.events.close()

	for {
		j, ok := s.jobs.pop()
		if !ok {
			return
		}

		s.apply(j)
	}
}

func (s *Store) apply(j *job) {
	if j.barrier != nil {
		s.events.push(transition{barrier: j.barrier})
		j.done <- jobResult{state: s.Snapshot()}

		return
	}

	if !j.start() {
		j.done <- jobResult{err: context.Canceled}

		return
	}

	if err := j.ctx.Err(); err != nil {
		j.done <- jobResult{err: err}

		return
	}

	prev := s.current.Load()
	next := prev.state.Clone()

	out, err := s.runUpdater(j, next)
	if err != nil {
		s.logger.WarnContext(j.ctx, "Mutation rejected", "op", j.opts.Op, "error", err)
		j.done <- jobResult{err: err}

		return
	}

	if out == nil {
		out = next
	}

	s.shareUnchanged(prev.state, out)

	for _, hook := range s.hooks {
		hook.OnCommit(prev.state, out)
	}

	s.current.Store(&snapshot{state: out, version: prev.version + 1})
	s.events.push(transition{prev: prev.state, next: out})

	s.logger.Debug("Committed mutation", "op", j.opts.Op, "version", prev.version+1)

	j.done <- jobResult{state: out}

	if j.opts.Revalidate && s.fetcher != nil {
		go func() {
			if err := s.Revalidate(s.baseCtx); err != nil {
				s.logger.Warn("Revalidation after mutation failed", "op", j.opts.Op, "error", err)
			}
		}()
	}
}

func (s *Store) runUpdater(j *job, next *models.State) (out *models.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UpdaterError{Op: j.opts.Op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ctx := context.WithValue(j.ctx, mutatingKey{}, s)

	out, err = j.updater(ctx, next)
	if err != nil {
		return nil, &UpdaterError{Op: j.opts.Op, Err: err}
	}

	return out, nil
}

// shareUnchanged swaps structurally unchanged parts of next for their previous instances so
// identity comparisons stay cheap for readers.
func (s *Store) shareUnchanged(prev, next *models.State) {
	hasher := s.content.Hasher()

	for i, v := range next.Variants {
		old := prev.FindVariantByID(v.ID)
		if old == nil || old == v {
			continue
		}

		if hasher.Hash(old) == hasher.Hash(v) {
			next.Variants[i] = old
		}
	}

	if sameNode(hasher, prev.GenerationData.Inputs, next.GenerationData.Inputs) {
		next.GenerationData.Inputs = prev.GenerationData.Inputs
	}

	if sameNode(hasher, prev.GenerationData.Messages, next.GenerationData.Messages) {
		next.GenerationData.Messages = prev.GenerationData.Messages
	}
}

func sameNode(hasher *content.Hasher, a, b any) bool {
	return hasher.Hash(a) == hasher.Hash(b)
}

func (s *Store) notifyLoop() {
	defer s.wg.Done()

	for {
		t, ok := s.events.pop()
		if !ok {
			return
		}

		if t.barrier != nil {
			close(t.barrier)

			continue
		}

		s.subsMu.RLock()
		subs := make([]*subscription, 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
		s.subsMu.RUnlock()

		for _, sub := range subs {
			if sub.compare != nil && sub.compare(t.prev, t.next) {
				continue
			}

			s.deliver(sub, t)
		}
	}
}

func (s *Store) deliver(sub *subscription, t transition) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("State listener panicked", "panic", r)
		}
	}()

	sub.fn(t.prev, t.next)
}
