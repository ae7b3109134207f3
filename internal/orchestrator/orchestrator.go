package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pearlgen/internal/accounts"
	"pearlgen/internal/identity"
	"pearlgen/internal/proxypool"
	"pearlgen/internal/shared/logger"
	"pearlgen/internal/signup"
)

// SignupRunner runs one signup attempt to a terminal state.
type SignupRunner interface {
	Run(ctx context.Context, id identity.Identity, proxy proxypool.Proxy) signup.Result
}

// ProxyChecker probes a leased proxy before it is trusted with a signup.
type ProxyChecker interface {
	Check(p proxypool.Proxy) error
}

// Orchestrator drains the identity feed through a fixed pool of workers
// into account records or permanent failures.
type Orchestrator struct {
	feed       *identity.Feed
	pool       *proxypool.Pool
	checker    ProxyChecker
	runner     SignupRunner
	store      accounts.Store
	workers    int
	retryBound int
	leaseWait  time.Duration

	mu     sync.Mutex
	report Report
}

// Options configures a provisioning run.
type Options struct {
	Workers    int
	RetryBound int
	LeaseWait  time.Duration
	// Checker is optional; when nil, leased proxies are not pre-probed.
	Checker ProxyChecker
}

// New builds an orchestrator over its collaborators.
func New(feed *identity.Feed, pool *proxypool.Pool, runner SignupRunner, store accounts.Store, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.LeaseWait <= 0 {
		opts.LeaseWait = 5 * time.Second
	}
	return &Orchestrator{
		feed:       feed,
		pool:       pool,
		checker:    opts.Checker,
		runner:     runner,
		store:      store,
		workers:    opts.Workers,
		retryBound: opts.RetryBound,
		leaseWait:  opts.LeaseWait,
	}
}

// Run executes the pool until the feed is drained and every in-flight task,
// including retries, has reached a terminal state. Cancelling ctx stops new
// tasks from starting; tasks already running finish their current step.
func (o *Orchestrator) Run(ctx context.Context) Report {
	l := logger.WithComponent("Orchestrator")
	o.mu.Lock()
	o.report = newReport()
	o.mu.Unlock()

	// Total task count is bounded by backlog * (retryBound + 1), so a
	// buffer of that size lets workers re-queue retries without blocking.
	capacity := o.feed.Size() * (o.retryBound + 1)
	if capacity == 0 {
		l.Warn().Msg("Identity feed is empty, nothing to do.")
		return o.snapshot()
	}
	tasks := make(chan Task, capacity)

	var inflight sync.WaitGroup
	for {
		id, err := o.feed.Next()
		if err != nil {
			break
		}
		inflight.Add(1)
		tasks <- newTask(id)
	}

	// Close the queue once every task, retries included, is terminal.
	go func() {
		inflight.Wait()
		close(tasks)
	}()

	l.Info().Int("workers", o.workers).Int("backlog", cap(tasks)/(o.retryBound+1)).Msg("Provisioning run started.")

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					// Shutdown: drain the queue without running anything.
					o.recordShutdown(task)
					inflight.Done()
					continue
				}
				o.runTask(ctx, task, tasks, &inflight)
			}
		}()
	}
	wg.Wait()

	report := o.snapshot()
	l.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.PermanentlyFailed).
		Int("interrupted", report.InProgressAtShutdown).
		Msg("Provisioning run finished.")
	return report
}

// runTask takes one task to a terminal state and owns its inflight slot.
func (o *Orchestrator) runTask(ctx context.Context, task Task, tasks chan<- Task, inflight *sync.WaitGroup) {
	defer inflight.Done()
	l := logger.WithComponent("Orchestrator").With().
		Str("task", task.ID).
		Str("email", task.Identity.Email).
		Int("attempt", task.Attempt).
		Logger()

	proxy, err := o.leaseWorking(ctx)
	if err != nil {
		if errors.Is(err, proxypool.ErrStarved) {
			l.Error().Msg("No usable proxy will ever be available; failing identity.")
			o.recordFailure(task, signup.ReasonProxyError)
			return
		}
		// Shutdown while waiting on a lease.
		o.recordShutdown(task)
		return
	}

	// The signup itself must not be torn down mid-step by a pool-wide
	// cancel; every external call inside carries its own timeout.
	result := o.runner.Run(context.WithoutCancel(ctx), task.Identity, proxy)

	if result.State == signup.StateSessionEstablished {
		account := &accounts.Account{
			Email:     task.Identity.Email,
			Password:  task.Identity.Password,
			Proxy:     proxy.Line(),
			Session:   result.Artifact,
			Status:    accounts.StatusActive,
			CreatedAt: time.Now().UTC(),
		}
		if err := o.store.Save(account); err != nil {
			// The session exists but is unrecorded; surface loudly.
			l.Error().Err(err).Msg("Failed to persist provisioned account.")
			o.pool.Release(proxy, false)
			o.recordFailure(task, signup.ReasonUnexpectedResponse)
			return
		}
		o.pool.Release(proxy, true)
		o.recordSuccess()
		return
	}

	o.pool.Release(proxy, false)

	if ctx.Err() != nil {
		// Do not schedule retries into a shutdown.
		o.recordShutdown(task)
		return
	}
	if task.Attempt < o.retryBound {
		l.Info().Str("reason", string(result.Reason)).Msg("Attempt failed, re-queuing identity.")
		inflight.Add(1)
		tasks <- retryOf(task)
		return
	}

	l.Warn().Str("reason", string(result.Reason)).Msg("Retry bound exhausted, identity permanently failed.")
	o.recordFailure(task, result.Reason)
}

// leaseWorking leases a proxy and, when a checker is configured, probes it
// before handing it to the signup driver. Dead proxies are released as
// failures and the lease is retried, not the task.
func (o *Orchestrator) leaseWorking(ctx context.Context) (proxypool.Proxy, error) {
	l := logger.WithComponent("Orchestrator")
	for {
		var proxy proxypool.Proxy

		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = 250 * time.Millisecond
		expo.MaxInterval = o.leaseWait
		expo.MaxElapsedTime = 0

		err := backoff.Retry(func() error {
			p, err := o.pool.Lease()
			if err != nil {
				if errors.Is(err, proxypool.ErrStarved) {
					// Nothing free and nothing coming back.
					return backoff.Permanent(err)
				}
				return err
			}
			proxy = p
			return nil
		}, backoff.WithContext(expo, ctx))
		if err != nil {
			return proxypool.Proxy{}, err
		}

		if o.checker == nil {
			return proxy, nil
		}
		if err := o.checker.Check(proxy); err != nil {
			l.Debug().Str("proxy", proxy.ID()).Err(err).Msg("Leased proxy failed liveness probe, trying another.")
			o.pool.Release(proxy, false)
			continue
		}
		return proxy, nil
	}
}

func (o *Orchestrator) recordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.Succeeded++
}

func (o *Orchestrator) recordFailure(task Task, reason signup.FailureReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.PermanentlyFailed++
	o.report.FailureReasons[reason]++
}

func (o *Orchestrator) recordShutdown(task Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.report.InProgressAtShutdown++
}

func (o *Orchestrator) snapshot() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	copied := Report{
		Succeeded:            o.report.Succeeded,
		PermanentlyFailed:    o.report.PermanentlyFailed,
		InProgressAtShutdown: o.report.InProgressAtShutdown,
		FailureReasons:       make(map[signup.FailureReason]int, len(o.report.FailureReasons)),
	}
	for reason, count := range o.report.FailureReasons {
		copied.FailureReasons[reason] = count
	}
	return copied
}
