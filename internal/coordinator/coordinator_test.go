package coordinator

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autopass/internal/attempt"
	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/keyspace"
	"github.com/xkilldash9x/autopass/internal/resume"
)

func ptr(s string) *string { return &s }

func baseConfig(workers int) Config {
	return Config{
		Workers:   workers,
		Charset:   keyspace.MustCharset("ab"),
		MaxLength: 2,
		Attempt:   attempt.Options{LoginURL: siteLogin},
		Policy:    detector.NewPolicy(siteLogin, "", ""),
	}
}

func newStore(t *testing.T) *resume.Store {
	t.Helper()
	s, err := resume.NewStore(filepath.Join(t.TempDir(), "resume.json"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func runCoordinator(t *testing.T, ctx context.Context, cfg Config, site *fakeSite, store *resume.Store) (Result, error) {
	t.Helper()
	c, err := New(cfg, site.factory(), store, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c.Run(ctx)
}

func storedRecord(t *testing.T, store *resume.Store) (resume.Record, bool) {
	t.Helper()
	rec, ok, err := store.Load()
	require.NoError(t, err)
	return rec, ok
}

// -- FoundSignal Tests --

func TestFoundSignal_FirstWriteWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	var cancels atomic.Int32
	sig := NewFoundSignal(func() { cancels.Add(1) })
	assert.False(t, sig.Found())

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sig.Set(attempt.PasswordOnly(string(rune('a' + i)))) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), cancels.Load())
	assert.True(t, sig.Found())
	_, ok := sig.Winner()
	assert.True(t, ok)
}

// -- Mode and Plan Tests --

func TestSelectMode(t *testing.T) {
	assert.Equal(t, ModeList, SelectMode(ptr("admin"), []string{"x"}, false))
	assert.Equal(t, ModeGenPassword, SelectMode(ptr("admin"), nil, false))
	assert.Equal(t, ModeGenUsername, SelectMode(nil, []string{"x"}, false))
	assert.Equal(t, ModeGenBoth, SelectMode(nil, nil, false))
	assert.Equal(t, ModeList, SelectMode(nil, []string{"x"}, true))
	assert.Equal(t, ModeGenPassword, SelectMode(nil, nil, true))
}

func TestPlan_PhaseOrder(t *testing.T) {
	cfg := baseConfig(1)

	phases, err := plan(ModeGenBoth, cfg)
	require.NoError(t, err)
	var got [][2]int
	for _, ph := range phases {
		got = append(got, [2]int{ph.usernameLen, ph.passwordLen})
	}
	assert.Equal(t, [][2]int{{2, 2}, {2, 1}, {1, 2}, {1, 1}}, got)

	cfg.Username = ptr("admin")
	cfg.PriorityPasswords = []string{"123456"}
	phases, err = plan(ModeGenPassword, cfg)
	require.NoError(t, err)
	require.Len(t, phases, 3)
	assert.Equal(t, passPriority, phases[0].pass)
	assert.True(t, phases[0].isList())
	assert.Equal(t, 2, phases[1].passwordLen)
	assert.Equal(t, 1, phases[2].passwordLen)

	t.Run("invalid max length", func(t *testing.T) {
		cfg := baseConfig(1)
		cfg.MaxLength = keyspace.MaxLength + 1
		_, err := plan(ModeGenBoth, cfg)
		assert.ErrorIs(t, err, keyspace.ErrInvalidLength)
	})
}

func TestPriorityPhase(t *testing.T) {
	cfg := baseConfig(1)
	_, ok := priorityPhase(ModeGenBoth, cfg)
	assert.False(t, ok, "no priority lists")

	cfg.PriorityPasswords = []string{"123456"}
	_, ok = priorityPhase(ModeGenBoth, cfg)
	assert.False(t, ok, "no username source for generated usernames")

	cfg.PriorityUsernames = []string{"root", "admin"}
	ph, ok := priorityPhase(ModeGenBoth, cfg)
	require.True(t, ok)
	ls := ph.src.(*listSource)
	assert.Equal(t, []string{"root\x00123456", "admin\x00123456"}, ls.keys)
}

// -- Source Tests --

func TestUsernameSource_ShardsConcatenate(t *testing.T) {
	src := &usernameSource{passwords: []string{"p1", "p2", "p3"}, charset: keyspace.MustCharset("ab"), length: 2}
	require.Equal(t, int64(12), src.Size().Int64())

	full, err := src.Candidates(big.NewInt(0), src.Size())
	require.NoError(t, err)
	want := slices.Collect(full)
	require.Len(t, want, 12)
	assert.Equal(t, "aa", *want[0].Username)
	assert.Equal(t, "p1", want[0].Password)
	assert.Equal(t, "ab", *want[4].Username)
	assert.Equal(t, "p2", want[4].Password)

	shards, err := keyspace.Partition(src.Size(), 5)
	require.NoError(t, err)
	var got []attempt.Candidate
	for _, sh := range shards {
		seq, err := src.Candidates(sh.Start, sh.End)
		require.NoError(t, err)
		got = append(got, slices.Collect(seq)...)
	}
	assert.Equal(t, want, got)
}

func TestListSource_Without(t *testing.T) {
	src := newListSource([]*string{nil}, []string{"a", "b", "c", "b"})
	rest := src.without([]string{"b"})
	assert.Equal(t, []string{"a", "c"}, rest.keys)
	require.Len(t, rest.cands, 2)
	assert.Equal(t, "c", rest.cands[1].Password)
}

// -- Run Tests --

func TestRun_SuccessStopsOtherWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "bb")
	site.gate(0)
	store := newStore(t)

	cfg := baseConfig(2)
	cfg.Username = ptr("admin")

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, ModeGenPassword, res.Mode)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "bb", res.Winner.Password)
	assert.Equal(t, "admin", res.Winner.UsernameOr(""))

	assert.Equal(t, []string{"admin/ba", "admin/bb"}, site.triedBy(1))
	assert.LessOrEqual(t, len(site.triedBy(0)), 1, "the other shard does at most one further attempt")
	assert.Equal(t, site.opened.Load(), site.closed.Load(), "every session is closed")

	_, ok := storedRecord(t, store)
	assert.False(t, ok, "resume state cleared on success")
}

func TestRun_SuccessWithBothShardsLive(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "bb")
	cfg := baseConfig(2)
	cfg.Username = ptr("admin")

	res, err := runCoordinator(t, context.Background(), cfg, site, nil)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "bb", res.Winner.Password)

	assert.Equal(t, []string{"admin/ba", "admin/bb"}, site.triedBy(1))
	first := site.triedBy(0)
	require.LessOrEqual(t, len(first), 2)
	assert.Equal(t, []string{"admin/aa", "admin/ab"}[:len(first)], first, "worker 0 stops within its own shard")

	seen := map[string]bool{}
	for _, entry := range site.allTried() {
		assert.False(t, seen[entry], "%s tried twice", entry)
		seen[entry] = true
	}
}

func TestRun_ExhaustedClearsProgress(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "nope")
	store := newStore(t)
	cfg := baseConfig(2)
	cfg.Username = ptr("admin")
	cfg.Passwords = []string{"x", "y", "z"}

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.Nil(t, res.Winner)
	assert.Equal(t, int64(3), res.Attempts)
	assert.ElementsMatch(t, []string{"admin/x", "admin/y", "admin/z"}, site.allTried())

	_, ok := storedRecord(t, store)
	assert.False(t, ok)
}

func TestRun_GenerationModes(t *testing.T) {
	t.Run("generated usernames against a list", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		site := newFakeSite("b", "p2")
		cfg := baseConfig(1)
		cfg.MaxLength = 1
		cfg.Passwords = []string{"p1", "p2"}

		res, err := runCoordinator(t, context.Background(), cfg, site, nil)
		require.NoError(t, err)
		assert.Equal(t, ModeGenUsername, res.Mode)
		assert.Equal(t, StateSucceeded, res.State)
		assert.Equal(t, []string{"a/p1", "a/p2", "b/p1", "b/p2"}, site.triedBy(0))
	})

	t.Run("generated pairs", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		site := newFakeSite("b", "a")
		cfg := baseConfig(1)
		cfg.MaxLength = 1

		res, err := runCoordinator(t, context.Background(), cfg, site, nil)
		require.NoError(t, err)
		assert.Equal(t, ModeGenBoth, res.Mode)
		assert.Equal(t, StateSucceeded, res.State)
		assert.Equal(t, []string{"a/a", "a/b", "b/a"}, site.triedBy(0))
	})

	t.Run("password only forms", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		site := newFakeSite("", "ab")
		cfg := baseConfig(1)
		cfg.PasswordOnly = true
		cfg.Username = ptr("ignored")

		res, err := runCoordinator(t, context.Background(), cfg, site, nil)
		require.NoError(t, err)
		assert.Equal(t, StateSucceeded, res.State)
		assert.Equal(t, []string{"aa", "ab"}, site.triedBy(0))
	})
}

func TestRun_PriorityListFirst(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "secret")
	cfg := baseConfig(1)
	cfg.Username = ptr("admin")
	cfg.PriorityPasswords = []string{"123456", "secret"}

	res, err := runCoordinator(t, context.Background(), cfg, site, nil)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, []string{"admin/123456", "admin/secret"}, site.triedBy(0))
}

func TestRun_NoFieldFoundAbandonsShard(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "x")
	site.noForm = true
	store := newStore(t)
	cfg := baseConfig(2)
	cfg.Username = ptr("admin")
	cfg.Passwords = []string{"a", "b", "c", "d"}

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State, "a missing form is not exhaustion")
	assert.True(t, res.FormMissing)
	assert.Zero(t, res.Attempts)
	assert.Empty(t, site.allTried())

	rec, ok := storedRecord(t, store)
	require.True(t, ok, "progress is kept when shards are abandoned")
	p, err := rec.Tried()
	require.NoError(t, err)
	assert.Empty(t, p.Tried)
}

func TestRun_NoFieldFoundKeepsResumedProgress(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "x")
	site.noForm = true
	store := newStore(t)
	saveRecord(t, store, "list:main", resume.TriedProgress{Tried: []string{"a", "b"}})

	cfg := baseConfig(2)
	cfg.Username = ptr("admin")
	cfg.Passwords = []string{"a", "b", "c", "d", "e", "f"}
	cfg.Resume = true

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.True(t, res.FormMissing)

	rec, ok := storedRecord(t, store)
	require.True(t, ok)
	assert.Equal(t, "list:main", rec.Run)
	p, err := rec.Tried()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Tried, "earlier progress survives and nothing new is marked tried")
}

func TestRun_AgentStartupFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("chrome not found")
	factory := browser.FactoryFunc(func(context.Context, int) (browser.Agent, error) { return nil, boom })
	cfg := baseConfig(2)
	cfg.Username = ptr("admin")

	c, err := New(cfg, factory, nil, zap.NewNop())
	require.NoError(t, err)
	res, err := c.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, StateCancelled, c.State())
}

func TestRun_CancelKeepsProgress(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "nope")
	site.gate(0)
	site.gate(1)
	store := newStore(t)
	cfg := baseConfig(2)
	cfg.Username = ptr("admin")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := runCoordinator(t, ctx, cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)

	rec, ok := storedRecord(t, store)
	require.True(t, ok, "progress kept on interruption")
	assert.Equal(t, resume.ModeGeneration, rec.Mode)
	assert.Equal(t, "gen-password:main", rec.Run)
	p, err := rec.Generation()
	require.NoError(t, err)
	assert.Equal(t, 2, p.PasswordLength)
	assert.Equal(t, []string{"0", "0"}, p.Offsets)
}

func TestRun_RunsOnce(t *testing.T) {
	site := newFakeSite("admin", "aa")
	cfg := baseConfig(1)
	cfg.Username = ptr("admin")
	c, err := New(cfg, site.factory(), nil, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	site := newFakeSite("", "")
	_, err := New(baseConfig(0), site.factory(), nil, zap.NewNop())
	assert.ErrorIs(t, err, keyspace.ErrInvalidWorkers)

	_, err = New(baseConfig(1), nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg := baseConfig(1)
	cfg.Charset = keyspace.Charset{}
	_, err = New(cfg, site.factory(), nil, zap.NewNop())
	assert.ErrorIs(t, err, keyspace.ErrEmptyCharset)
}

// -- Resume Tests --

func saveRecord(t *testing.T, store *resume.Store, run string, p resume.Payload) {
	t.Helper()
	rec, err := resume.NewRecord(run, p)
	require.NoError(t, err)
	require.NoError(t, store.Save(rec))
}

func TestRun_ResumeTriedSet(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "nope")
	store := newStore(t)
	saveRecord(t, store, "list:main", resume.TriedProgress{Tried: []string{"p1", "p3"}})

	cfg := baseConfig(2)
	cfg.Username = ptr("admin")
	cfg.Passwords = []string{"p1", "p2", "p3", "p4"}
	cfg.Resume = true

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.ElementsMatch(t, []string{"admin/p2", "admin/p4"}, site.allTried())
}

func TestRun_ResumeListIndex(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "d")
	store := newStore(t)
	saveRecord(t, store, "list:main", resume.ListProgress{Index: 2, Total: 4, Passwords: []string{"a", "b", "c", "d"}})

	cfg := baseConfig(1)
	cfg.Username = ptr("admin")
	cfg.Passwords = []string{"a", "b", "c", "d"}
	cfg.Resume = true

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, []string{"admin/c", "admin/d"}, site.triedBy(0))
}

func TestRun_ResumeGeneration(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "nope")
	store := newStore(t)
	saveRecord(t, store, "gen-password:main", resume.GenerationProgress{PasswordLength: 1, Charset: "ab", Offsets: []string{"1"}})

	cfg := baseConfig(1)
	cfg.Username = ptr("admin")
	cfg.Resume = true

	res, err := runCoordinator(t, context.Background(), cfg, site, store)
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, []string{"admin/b"}, site.triedBy(0), "exhausted lengths and tried offsets are skipped")
}

func TestRun_ResumeIgnoresForeignRecords(t *testing.T) {
	tests := []struct {
		name    string
		run     string
		payload resume.Payload
	}{
		{"different mode", "gen-both:main", resume.GenerationProgress{UsernameLength: 1, PasswordLength: 1, Charset: "ab", Offsets: []string{"3"}}},
		{"different charset", "gen-password:main", resume.GenerationProgress{PasswordLength: 1, Charset: "xyz", Offsets: []string{"1"}}},
		{"unknown length", "gen-password:main", resume.GenerationProgress{PasswordLength: 7, Charset: "ab", Offsets: []string{"1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			site := newFakeSite("admin", "nope")
			store := newStore(t)
			saveRecord(t, store, tt.run, tt.payload)

			cfg := baseConfig(1)
			cfg.MaxLength = 1
			cfg.Username = ptr("admin")
			cfg.Resume = true

			_, err := runCoordinator(t, context.Background(), cfg, site, store)
			require.NoError(t, err)
			assert.Equal(t, []string{"admin/a", "admin/b"}, site.triedBy(0))
		})
	}
}

func TestRun_RateLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite("admin", "nope")
	cfg := baseConfig(1)
	cfg.Username = ptr("admin")
	cfg.Passwords = []string{"a", "b", "c"}
	cfg.RateLimit = 20

	start := time.Now()
	res, err := runCoordinator(t, context.Background(), cfg, site, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "three attempts at 20/s with burst 1 take at least two intervals")
}
