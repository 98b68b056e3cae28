// Package coordinator partitions the candidate space across workers, runs
// one attempt driver per shard, and stops every worker once one of them
// logs in.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autopass/internal/attempt"
	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/keyspace"
	"github.com/xkilldash9x/autopass/internal/resume"
)

const (
	defaultCheckpointInterval = 2 * time.Second
	closeTimeout              = 5 * time.Second
)

// Config is everything a run needs besides its collaborators.
type Config struct {
	Workers int
	// Username is the explicit username, nil when none was given.
	Username *string
	// PasswordOnly targets forms without a username field.
	PasswordOnly      bool
	Passwords         []string
	PriorityPasswords []string
	PriorityUsernames []string
	Charset           keyspace.Charset
	MaxLength         int
	// RateLimit caps attempts per second across all workers. Zero disables it.
	RateLimit float64
	// Resume applies a stored progress record at startup.
	Resume             bool
	CheckpointInterval time.Duration
	Attempt            attempt.Options
	Policy             detector.Policy
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Mode     Mode
	State    State
	Winner   *attempt.Candidate
	Attempts int64
	// FormMissing is set when a worker gave up on its shard because the
	// login page showed no password field. The run then ends Cancelled.
	FormMissing bool
}

// Coordinator runs one credential sweep. It is single use.
type Coordinator struct {
	cfg     Config
	mode    Mode
	phases  []phase
	factory browser.Factory
	store   *resume.Store
	logger  *zap.Logger
	limiter *rate.Limiter
	runID   string

	state    atomic.Int32
	attempts atomic.Int64
	// abandoned is set by any worker that left candidates of its shard
	// untried.
	abandoned atomic.Bool
	notify    chan struct{}
}

// New validates the configuration and lays out the run. A nil store
// disables progress persistence.
func New(cfg Config, factory browser.Factory, store *resume.Store, logger *zap.Logger) (*Coordinator, error) {
	if factory == nil {
		return nil, errors.New("agent factory cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", keyspace.ErrInvalidWorkers, cfg.Workers)
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = defaultCheckpointInterval
	}

	mode := SelectMode(cfg.Username, cfg.Passwords, cfg.PasswordOnly)
	if mode != ModeList && cfg.Charset.Len() == 0 {
		return nil, keyspace.ErrEmptyCharset
	}
	if cfg.PasswordOnly {
		cfg.Username = nil
	}
	phases, err := plan(mode, cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	c := &Coordinator{
		cfg:     cfg,
		mode:    mode,
		phases:  phases,
		factory: factory,
		store:   store,
		logger:  logger.With(zap.String("component", "coordinator"), zap.String("run_id", runID)),
		runID:   runID,
		notify:  make(chan struct{}, 1),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// Mode is the candidate production mode chosen for this run.
func (c *Coordinator) Mode() Mode { return c.mode }

// State is the current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

func (c *Coordinator) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	if from != to {
		c.logger.Debug("Coordinator state changed.", zap.Stringer("from", from), zap.Stringer("to", to))
	}
}

// Run executes every phase until a candidate succeeds, the space is
// exhausted, or ctx is cancelled. Only startup failures of the browser
// sessions are returned as errors; per-attempt problems are logged and
// skipped.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StatePartitioning)) {
		return Result{}, errors.New("coordinator has already run")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	found := NewFoundSignal(cancel)

	c.logger.Info("Starting credential sweep.",
		zap.String("mode", string(c.mode)),
		zap.Int("workers", c.cfg.Workers),
		zap.Int("phases", len(c.phases)),
	)

	start, rec := c.resumePoint()
	var runErr error
	for i := start; i < len(c.phases); i++ {
		var phaseRec *resume.Record
		if i == start {
			phaseRec = rec
		}
		if runErr = c.runPhase(runCtx, found, c.phases[i], phaseRec); runErr != nil {
			break
		}
		if found.Found() || ctx.Err() != nil || c.abandoned.Load() {
			break
		}
	}

	res := Result{RunID: c.runID, Mode: c.mode, Attempts: c.attempts.Load(), FormMissing: c.abandoned.Load()}
	switch winner, ok := found.Winner(); {
	case ok:
		c.transition(StateSucceeded)
		res.Winner = &winner
		res.FormMissing = false
		c.clearProgress()
		c.logger.Info("Credential sweep succeeded.", zap.String("username", winner.UsernameOr("")), zap.Int64("attempts", res.Attempts))
	case res.FormMissing:
		c.transition(StateCancelled)
		c.logger.Warn("Credential sweep stopped: the login form could not be found; progress kept.", zap.Int64("attempts", res.Attempts))
	case runErr != nil || ctx.Err() != nil:
		c.transition(StateCancelled)
		c.logger.Warn("Credential sweep stopped before completion; progress kept.", zap.Int64("attempts", res.Attempts), zap.Error(runErr))
	default:
		c.transition(StateExhausted)
		c.clearProgress()
		c.logger.Info("Credential sweep exhausted without success.", zap.Int64("attempts", res.Attempts))
	}
	res.State = c.State()
	return res, runErr
}

// runPhase partitions one phase, fans out one worker per shard, and
// checkpoints from this goroutine until every worker has returned.
func (c *Coordinator) runPhase(ctx context.Context, found *FoundSignal, ph phase, rec *resume.Record) error {
	c.transition(StatePartitioning)

	tr, err := c.prepare(ph, rec)
	if err != nil {
		return err
	}
	c.logger.Info("Dispatching phase.", zap.Stringer("phase", ph), zap.Stringer("size", tr.src.Size()), zap.Int("shards", len(tr.shards)))
	c.checkpoint(tr)

	c.transition(StateRunning)
	g, gctx := errgroup.WithContext(ctx)
	for i, sh := range tr.shards {
		sh := sh.Advance(tr.base[i])
		if sh.Size().Sign() == 0 {
			continue
		}
		counter := &tr.done[i]
		g.Go(func() error {
			return c.work(gctx, found, tr.src, sh, counter)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	ticker := time.NewTicker(c.cfg.CheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if found.Found() {
				return nil
			}
			if err != nil || ctx.Err() != nil || c.abandoned.Load() {
				c.checkpoint(tr)
			}
			return err
		case <-c.notify:
			if tr.perAttempt() {
				c.checkpoint(tr)
			}
		case <-ticker.C:
			c.checkpoint(tr)
		}
	}
}

// work drives one shard on its own browser session.
func (c *Coordinator) work(ctx context.Context, found *FoundSignal, src source, sh keyspace.Shard, done *atomic.Int64) error {
	logger := c.logger.With(zap.Int("worker", sh.Worker))

	seq, err := src.Candidates(sh.Start, sh.End)
	if err != nil {
		return fmt.Errorf("worker %d: %w", sh.Worker, err)
	}

	agent, err := c.factory.NewAgent(ctx, sh.Worker)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("starting browser session for worker %d: %w", sh.Worker, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := agent.Close(closeCtx); err != nil {
			logger.Debug("Closing browser session failed.", zap.Error(err))
		}
	}()

	logger.Debug("Worker started.", zap.Stringer("shard", sh))
	driver := attempt.NewDriver(agent, c.cfg.Policy, c.cfg.Attempt, logger)

	for cand := range seq {
		if found.Found() || ctx.Err() != nil {
			return nil
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		out := driver.Attempt(ctx, cand)
		switch out.Status {
		case attempt.StatusSuccess:
			c.attempts.Add(1)
			if found.Set(cand) {
				logger.Info("Login succeeded.", zap.String("username", cand.UsernameOr("")), zap.String("method", string(out.Method)))
			}
			return nil
		case attempt.StatusNoFieldFound:
			logger.Warn("No password field found on the login page; abandoning shard.", zap.Stringer("shard", sh))
			c.abandoned.Store(true)
			return nil
		case attempt.StatusTransientError:
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Attempt failed, skipping candidate.", zap.Error(out.Err))
			logger.Debug("Skipped candidate.", zap.String("username", cand.UsernameOr("")), zap.String("password", cand.Password))
		default:
			logger.Debug("Login failed.", zap.String("username", cand.UsernameOr("")), zap.String("password", cand.Password))
		}

		c.attempts.Add(1)
		done.Add(1)
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

// -- Progress and Resume --

// tracker holds the per-shard progress of the running phase. Workers only
// touch done; everything else is owned by the coordinator goroutine.
type tracker struct {
	ph     phase
	src    source
	shards []keyspace.Shard
	// base is the resumed offset of each shard, done the attempts since.
	base []*big.Int
	done []atomic.Int64
	// priorTried lists the keys a resumed list phase had already covered.
	priorTried []string
}

func (t *tracker) perAttempt() bool { return t.ph.isList() && len(t.shards) == 1 }

func (c *Coordinator) prepare(ph phase, rec *resume.Record) (*tracker, error) {
	tr := &tracker{ph: ph, src: ph.src}

	if ls, ok := ph.src.(*listSource); ok {
		if rec != nil {
			tr.priorTried = triedKeys(*rec)
			if len(tr.priorTried) > 0 {
				ls = ls.without(tr.priorTried)
				c.logger.Info("Resuming list.", zap.Int("already_tried", len(tr.priorTried)), zap.Int("remaining", len(ls.keys)))
			}
		}
		tr.src = ls
		listShards, err := keyspace.PartitionList(len(ls.cands), c.cfg.Workers)
		if err != nil {
			return nil, err
		}
		for _, s := range listShards {
			tr.shards = append(tr.shards, keyspace.Shard{Worker: s.Worker, Start: big.NewInt(int64(s.Start)), End: big.NewInt(int64(s.End))})
		}
	} else {
		shards, err := keyspace.Partition(ph.src.Size(), c.cfg.Workers)
		if err != nil {
			return nil, err
		}
		tr.shards = shards
	}

	tr.base = make([]*big.Int, len(tr.shards))
	tr.done = make([]atomic.Int64, len(tr.shards))
	for i := range tr.base {
		tr.base[i] = new(big.Int)
	}
	if rec != nil && !ph.isList() {
		c.applyOffsets(tr, *rec)
	}
	return tr, nil
}

func triedKeys(rec resume.Record) []string {
	switch rec.Mode {
	case resume.ModeList:
		p, err := rec.List()
		if err != nil {
			return nil
		}
		return p.Passwords[:min(max(p.Index, 0), len(p.Passwords))]
	case resume.ModeTried:
		p, err := rec.Tried()
		if err != nil {
			return nil
		}
		return p.Tried
	}
	return nil
}

func (c *Coordinator) applyOffsets(tr *tracker, rec resume.Record) {
	p, err := rec.Generation()
	if err != nil {
		return
	}
	if len(p.Offsets) != len(tr.shards) {
		c.logger.Warn("Stored offsets do not match the worker count; restarting this length from the beginning.",
			zap.Int("stored", len(p.Offsets)), zap.Int("shards", len(tr.shards)))
		return
	}
	for i, s := range p.Offsets {
		off, ok := new(big.Int).SetString(s, 10)
		if !ok || off.Sign() < 0 {
			c.logger.Warn("Ignoring malformed stored offset.", zap.String("offset", s))
			continue
		}
		if size := tr.shards[i].Size(); off.Cmp(size) > 0 {
			off.Set(size)
		}
		tr.base[i] = off
	}
	c.logger.Info("Resuming generation.", zap.Stringer("phase", tr.ph), zap.Strings("offsets", p.Offsets))
}

// record snapshots the running phase.
func (t *tracker) record(run, charset string) (resume.Record, error) {
	if ls, ok := t.src.(*listSource); ok {
		if t.perAttempt() || len(t.shards) == 0 {
			var done int
			if len(t.shards) == 1 {
				done = int(t.done[0].Load())
			}
			keys := append(append([]string(nil), t.priorTried...), ls.keys...)
			return resume.NewRecord(run, resume.ListProgress{
				Index:     len(t.priorTried) + done,
				Total:     len(keys),
				Passwords: keys,
			})
		}
		tried := append([]string(nil), t.priorTried...)
		for i, sh := range t.shards {
			start := int(sh.Start.Int64())
			tried = append(tried, ls.keys[start:start+int(t.done[i].Load())]...)
		}
		return resume.NewRecord(run, resume.TriedProgress{Tried: tried})
	}

	offsets := make([]string, len(t.shards))
	for i := range t.shards {
		off := new(big.Int).Add(t.base[i], big.NewInt(t.done[i].Load()))
		offsets[i] = off.String()
	}
	return resume.NewRecord(run, resume.GenerationProgress{
		UsernameLength: t.ph.usernameLen,
		PasswordLength: t.ph.passwordLen,
		Charset:        charset,
		Offsets:        offsets,
	})
}

func (c *Coordinator) runKey(pass string) string { return string(c.mode) + ":" + pass }

func (c *Coordinator) checkpoint(tr *tracker) {
	if c.store == nil {
		return
	}
	rec, err := tr.record(c.runKey(tr.ph.pass), c.cfg.Charset.String())
	if err != nil {
		c.logger.Warn("Failed to build resume state.", zap.Error(err))
		return
	}
	if err := c.store.Save(rec); err != nil {
		c.logger.Warn("Failed to save resume state.", zap.Error(err))
	}
}

func (c *Coordinator) clearProgress() {
	if c.store == nil {
		return
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("Failed to clear resume state.", zap.Error(err))
	}
}

// resumePoint finds the phase a stored record belongs to. Records written
// by another mode, or that match no phase of this run, are ignored.
func (c *Coordinator) resumePoint() (int, *resume.Record) {
	if !c.cfg.Resume || c.store == nil {
		return 0, nil
	}
	rec, ok, err := c.store.Load()
	if err != nil {
		c.logger.Warn("Could not read resume state; starting from the beginning.", zap.Error(err))
		return 0, nil
	}
	if !ok {
		c.logger.Info("No resume state found; starting from the beginning.", zap.String("path", c.store.Path()))
		return 0, nil
	}

	mode, pass, _ := strings.Cut(rec.Run, ":")
	if Mode(mode) != c.mode {
		c.logger.Warn("Ignoring resume state written by a different mode.", zap.String("stored", mode), zap.String("current", string(c.mode)))
		return 0, nil
	}

	for i, ph := range c.phases {
		if ph.pass != pass {
			continue
		}
		if ph.isList() {
			if rec.Mode == resume.ModeList || rec.Mode == resume.ModeTried {
				return i, &rec
			}
			continue
		}
		g, err := rec.Generation()
		if err != nil {
			continue
		}
		if g.UsernameLength != ph.usernameLen || g.PasswordLength != ph.passwordLen {
			continue
		}
		if g.Charset != c.cfg.Charset.String() {
			c.logger.Warn("Ignoring resume state generated over a different charset.")
			return 0, nil
		}
		c.logger.Info("Resuming run.", zap.Stringer("phase", ph))
		return i, &rec
	}

	c.logger.Warn("Resume state matches no phase of this run; starting from the beginning.", zap.String("run", rec.Run))
	return 0, nil
}
