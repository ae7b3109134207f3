package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pearlgen/internal/accounts"
	"pearlgen/internal/identity"
	"pearlgen/internal/proxypool"
	"pearlgen/internal/signup"
)

// fakeRunner decides each attempt's outcome and tracks per-email attempt
// counts plus the peak number of simultaneously leased proxies.
type fakeRunner struct {
	pool    *proxypool.Pool
	outcome func(id identity.Identity, attempt int) signup.Result
	delay   time.Duration

	mu        sync.Mutex
	attempts  map[string]int
	maxLeased int
}

func newFakeRunner(pool *proxypool.Pool, outcome func(id identity.Identity, attempt int) signup.Result) *fakeRunner {
	return &fakeRunner{
		pool:     pool,
		outcome:  outcome,
		delay:    5 * time.Millisecond,
		attempts: make(map[string]int),
	}
}

func (r *fakeRunner) Run(ctx context.Context, id identity.Identity, proxy proxypool.Proxy) signup.Result {
	r.mu.Lock()
	attempt := r.attempts[id.Email]
	r.attempts[id.Email]++
	if leased := r.pool.LeasedCount(); leased > r.maxLeased {
		r.maxLeased = leased
	}
	r.mu.Unlock()

	time.Sleep(r.delay)
	return r.outcome(id, attempt)
}

func (r *fakeRunner) attemptCount(email string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[email]
}

func (r *fakeRunner) peakLeased() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxLeased
}

func succeed(identity.Identity, int) signup.Result {
	return signup.Result{State: signup.StateSessionEstablished, Artifact: json.RawMessage(`{"cookies":[]}`)}
}

func alwaysReject(identity.Identity, int) signup.Result {
	return signup.Result{State: signup.StateFailed, Reason: signup.ReasonFormRejected}
}

func testIdentities(n int) []identity.Identity {
	ids := make([]identity.Identity, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, identity.Identity{Email: fmt.Sprintf("u%d@x.com", i), Password: "pw"})
	}
	return ids
}

func testPool(n, threshold int) *proxypool.Pool {
	proxies := make([]proxypool.Proxy, 0, n)
	for i := 0; i < n; i++ {
		proxies = append(proxies, proxypool.Proxy{Host: fmt.Sprintf("10.0.0.%d", i+1), Port: 8080, Username: "u", Password: "p"})
	}
	return proxypool.NewPool(proxies, threshold)
}

func newTestStore(t *testing.T) *accounts.FileStore {
	t.Helper()
	store, err := accounts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// Three identities over two proxies with two workers: everything succeeds,
// every account is recorded, and no more than two proxies are ever leased
// at once.
func TestOrchestrator_AllSucceed(t *testing.T) {
	feed := identity.NewFeed(testIdentities(3))
	pool := testPool(2, 3)
	store := newTestStore(t)
	runner := newFakeRunner(pool, succeed)

	orch := New(feed, pool, runner, store, Options{Workers: 2, RetryBound: 1, LeaseWait: time.Second})
	report := orch.Run(context.Background())

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.PermanentlyFailed)
	assert.Equal(t, 0, report.InProgressAtShutdown)
	assert.LessOrEqual(t, runner.peakLeased(), 2)

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, account := range all {
		assert.Equal(t, accounts.StatusActive, account.Status)
		assert.NotEmpty(t, account.Proxy)
		assert.NotEmpty(t, account.Session)
	}
	assert.Equal(t, 0, pool.LeasedCount())
}

// An identity whose signup always fails gets exactly retryBound+1 attempts
// and is then reported as a permanent failure with its last reason.
func TestOrchestrator_RetryBoundThenPermanentFailure(t *testing.T) {
	feed := identity.NewFeed(testIdentities(1))
	pool := testPool(1, 10)
	store := newTestStore(t)
	runner := newFakeRunner(pool, alwaysReject)

	orch := New(feed, pool, runner, store, Options{Workers: 1, RetryBound: 1, LeaseWait: time.Second})
	report := orch.Run(context.Background())

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 1, report.PermanentlyFailed)
	assert.Equal(t, 1, report.FailureReasons[signup.ReasonFormRejected])
	assert.Equal(t, 2, runner.attemptCount("u0@x.com"))

	all, err := store.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

// Attempt counts never exceed retryBound+1 even with a mixed population of
// flaky and healthy identities.
func TestOrchestrator_AttemptBoundHolds(t *testing.T) {
	const retryBound = 2
	feed := identity.NewFeed(testIdentities(6))
	pool := testPool(3, 100)
	store := newTestStore(t)

	// Even-numbered identities succeed on their second attempt; odd ones
	// never succeed.
	runner := newFakeRunner(pool, func(id identity.Identity, attempt int) signup.Result {
		if id.Email[1]%2 == 0 && attempt >= 1 {
			return succeed(id, attempt)
		}
		return alwaysReject(id, attempt)
	})

	orch := New(feed, pool, runner, store, Options{Workers: 3, RetryBound: retryBound, LeaseWait: time.Second})
	report := orch.Run(context.Background())

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 3, report.PermanentlyFailed)
	for i := 0; i < 6; i++ {
		email := fmt.Sprintf("u%d@x.com", i)
		assert.LessOrEqual(t, runner.attemptCount(email), retryBound+1, "identity %s over-attempted", email)
	}
}

// A pool that is momentarily empty because its one proxy is leased out
// must make waiting workers back off and retry, never fail identities as
// proxy errors while the proxy keeps coming back.
func TestOrchestrator_WaitersBackOffWhenPoolBusy(t *testing.T) {
	feed := identity.NewFeed(testIdentities(4))
	pool := testPool(1, 100)
	store := newTestStore(t)
	runner := newFakeRunner(pool, succeed)
	runner.delay = 10 * time.Millisecond

	orch := New(feed, pool, runner, store, Options{Workers: 4, RetryBound: 0, LeaseWait: time.Second})
	report := orch.Run(context.Background())

	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 0, report.PermanentlyFailed)
	assert.Equal(t, 0, report.FailureReasons[signup.ReasonProxyError])
}

// Once every proxy is quarantined and none is leased, waiting identities
// must fail fast as proxy errors instead of blocking forever.
func TestOrchestrator_PoolStarvation(t *testing.T) {
	feed := identity.NewFeed(testIdentities(3))
	// One proxy, quarantined after a single failure.
	pool := testPool(1, 1)
	store := newTestStore(t)
	runner := newFakeRunner(pool, alwaysReject)

	orch := New(feed, pool, runner, store, Options{Workers: 2, RetryBound: 0, LeaseWait: 200 * time.Millisecond})

	done := make(chan Report, 1)
	go func() { done <- orch.Run(context.Background()) }()

	select {
	case report := <-done:
		assert.Equal(t, 3, report.PermanentlyFailed)
		assert.Equal(t, 3, report.FailureReasons[signup.ReasonFormRejected]+report.FailureReasons[signup.ReasonProxyError])
		assert.GreaterOrEqual(t, report.FailureReasons[signup.ReasonProxyError], 2)
	case <-time.After(10 * time.Second):
		t.Fatal("orchestrator did not terminate after pool starvation")
	}
}

// Cancelling the run context stops new tasks; queued identities surface as
// interrupted, not failed.
func TestOrchestrator_Shutdown(t *testing.T) {
	feed := identity.NewFeed(testIdentities(6))
	pool := testPool(1, 100)
	store := newTestStore(t)
	runner := newFakeRunner(pool, succeed)
	runner.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	orch := New(feed, pool, runner, store, Options{Workers: 1, RetryBound: 1, LeaseWait: time.Second})
	report := orch.Run(ctx)

	assert.Greater(t, report.Succeeded, 0)
	assert.Greater(t, report.InProgressAtShutdown, 0)
	assert.Equal(t, 6, report.Succeeded+report.PermanentlyFailed+report.InProgressAtShutdown)
}

func TestOrchestrator_EmptyFeed(t *testing.T) {
	feed := identity.NewFeed(nil)
	pool := testPool(1, 3)
	store := newTestStore(t)
	runner := newFakeRunner(pool, succeed)

	orch := New(feed, pool, runner, store, Options{Workers: 2, RetryBound: 1})
	report := orch.Run(context.Background())

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.PermanentlyFailed)
}

// A dead proxy detected by the pre-lease probe is retired and the next
// proxy is tried; the task itself still succeeds.
func TestOrchestrator_CheckerRetiresDeadProxy(t *testing.T) {
	feed := identity.NewFeed(testIdentities(1))
	pool := testPool(2, 1)
	store := newTestStore(t)
	runner := newFakeRunner(pool, succeed)

	var mu sync.Mutex
	dead := map[string]bool{"10.0.0.1:8080": true}
	checker := checkerFunc(func(p proxypool.Proxy) error {
		mu.Lock()
		defer mu.Unlock()
		if dead[p.ID()] {
			return fmt.Errorf("proxy %s unreachable", p.ID())
		}
		return nil
	})

	orch := New(feed, pool, runner, store, Options{Workers: 1, RetryBound: 0, LeaseWait: time.Second, Checker: checker})
	report := orch.Run(context.Background())

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, pool.QuarantinedCount())
}

type checkerFunc func(p proxypool.Proxy) error

func (f checkerFunc) Check(p proxypool.Proxy) error { return f(p) }
