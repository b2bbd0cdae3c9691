// Package jobqueue runs the periodic background work of the service.
package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pmuprofit/coursegate/internal/pkg/billing"
)

const defaultRetryInterval = 5 * time.Minute

// WebhookRetrier re-applies stored webhook events that failed. billing.Service implements it.
type WebhookRetrier interface {
	RetryFailedWebhooks(ctx context.Context, policy billing.RetryPolicy) (attempted, fixed int, err error)
}

// Locker makes sure only one instance runs a sweep at a time. A nil Locker
// runs every sweep locally.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Config struct {
	RetryInterval time.Duration
	RetryPolicy   billing.RetryPolicy
	Locker        Locker
}

// Manager manages the background workers
type Manager struct {
	retrier     WebhookRetrier
	cfg         Config
	retryTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewManager(retrier WebhookRetrier, cfg Config) *Manager {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	cfg.RetryPolicy = withPolicyDefaults(cfg.RetryPolicy)
	return &Manager{
		retrier: retrier,
		cfg:     cfg,
	}
}

// withPolicyDefaults fills the unset fields of p. A zero policy becomes the
// default one; a zero MinAge is kept otherwise since it means retry on every sweep.
func withPolicyDefaults(p billing.RetryPolicy) billing.RetryPolicy {
	def := billing.DefaultRetryPolicy()
	if p == (billing.RetryPolicy{}) {
		return def
	}
	if p.BatchSize <= 0 {
		p.BatchSize = def.BatchSize
	}
	if p.MaxAge <= 0 {
		p.MaxAge = def.MaxAge
	}
	return p
}

// Start starts the background workers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true

	m.retryTicker = time.NewTicker(m.cfg.RetryInterval)
	m.wg.Add(1)
	go m.retryWorker(m.stopCh)

	log.Infof("[JobQueue Manager] Started webhook retry worker (interval: %v)", m.cfg.RetryInterval)
}

// Stop stops the background workers and waits for a running sweep to end
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background workers...")
	if m.retryTicker != nil {
		m.retryTicker.Stop()
	}
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) retryWorker(stopCh <-chan struct{}) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Retry worker stopping")
			return
		case <-m.retryTicker.C:
			m.RunRetryOnce(ctx)
		}
	}
}

// RunRetryOnce runs a single retry sweep unless another instance holds the lock.
func (m *Manager) RunRetryOnce(ctx context.Context) {
	if m.cfg.Locker != nil {
		ok, err := m.cfg.Locker.TryLock(ctx, "jobqueue:webhook-retry", m.cfg.RetryInterval)
		if err != nil {
			log.Warnf("[JobQueue Manager] Retry lock unavailable, running locally: %v", err)
		} else if !ok {
			log.Debug("[JobQueue Manager] Retry sweep running elsewhere")
			return
		}
	}

	attempted, fixed, err := m.retrier.RetryFailedWebhooks(ctx, m.cfg.RetryPolicy)
	if err != nil {
		log.Errorf("[JobQueue Manager] Error retrying failed webhook events: %v", err)
		return
	}
	if attempted > 0 {
		log.Infof("[JobQueue Manager] Retried %d webhook event(s), %d recovered", attempted, fixed)
	}
}
