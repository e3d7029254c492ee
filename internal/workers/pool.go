package workers

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/registry"
)

// Pool runs one worker per registered user. Workers are launched for all
// known users at startup and lazily when a user registers at runtime.
type Pool struct {
	store     interfaces.StateStore
	jobs      interfaces.JobService
	users     interfaces.UserService
	registry  *registry.Registry
	idleSleep time.Duration
	logger    arbor.ILogger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates the worker pool
func NewPool(store interfaces.StateStore, jobs interfaces.JobService, users interfaces.UserService, reg *registry.Registry, idleSleep time.Duration, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		store:     store,
		jobs:      jobs,
		users:     users,
		registry:  reg,
		idleSleep: idleSleep,
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches a worker for every registered user
func (p *Pool) Start(ctx context.Context) error {
	userIDs, err := p.users.List(ctx)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		p.Ensure(userID)
	}
	p.logger.Info().Int("workers", len(userIDs)).Msg("Worker pool started")
	return nil
}

// Ensure launches the user's worker if it is not already running
func (p *Pool) Ensure(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.running[userID]; exists {
		return
	}

	workerCtx, cancel := context.WithCancel(p.ctx)
	p.running[userID] = cancel

	worker := newWorker(userID, p.store, p.jobs, p.registry, p.idleSleep, p.logger)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		worker.run(workerCtx)
	}()
}

// Remove stops the user's worker, if running
func (p *Pool) Remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, exists := p.running[userID]; exists {
		cancel()
		delete(p.running, userID)
	}
}

// Stop cancels all workers and waits for them to exit
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}
