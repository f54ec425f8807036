// Package poller runs the recurring price fetch that feeds the widget.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"pricecomparator/internal/logger"
	"pricecomparator/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_ticks_total",
			Help: "Total number of poll ticks issued",
		},
	)
	discardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_discarded_results_total",
			Help: "Fetch results dropped because the poller was stopped while they were in flight",
		},
	)
	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_fetches_in_flight",
			Help: "Number of price fetches currently in flight",
		},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(discardedTotal)
	prometheus.MustRegister(inFlight)
}

// Fetcher retrieves one quote.
type Fetcher interface {
	FetchPrice(ctx context.Context) (models.Quote, error)
}

// Sink receives fetch outcomes.
type Sink interface {
	SetCurrentPrice(q models.Quote) models.Snapshot
	RecordFetchError(err error)
}

// Poller fetches immediately on Start and then once per interval until
// stopped. Every tick fetches on its own goroutine, so a slow response may
// overlap the next tick; results are applied in arrival order and a late,
// older response can overwrite a newer one.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup

	// active gates every write into the sink. Each run gets its own flag so a
	// restart cannot revive results from the previous run. Writes hold applyMu
	// for reading across the check and the write; Stop flips the flag under
	// the write lock, so no write lands after Stop returns.
	active  *atomic.Bool
	applyMu sync.RWMutex
	fetchWG sync.WaitGroup
}

func New(fetcher Fetcher, sink Sink, interval time.Duration) *Poller {
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
	}
}

// Start begins polling. It returns an error if the poller is already running.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("poller already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.active = &atomic.Bool{}
	p.active.Store(true)

	logger.Log.Info("Starting price poller", zap.Duration("interval", p.interval))

	p.loopWG.Add(1)
	go p.pollLoop(loopCtx, p.active)
	return nil
}

// Stop cancels the timer and marks the poller inactive so that fetches still
// in flight are discarded when they complete. A write already under way
// finishes before Stop returns. Stop is safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	active := p.active
	p.cancel()
	p.mu.Unlock()

	p.applyMu.Lock()
	active.Store(false)
	p.applyMu.Unlock()

	p.loopWG.Wait()
	logger.Log.Info("Price poller stopped")
}

// IsRunning reports whether the poller is between Start and Stop.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until every fetch issued so far has finished.
func (p *Poller) Wait() {
	p.fetchWG.Wait()
}

func (p *Poller) pollLoop(ctx context.Context, active *atomic.Bool) {
	defer p.loopWG.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx, active)
	for {
		select {
		case <-ctx.Done():
			// Parent cancellation without Stop still deactivates the poller.
			active.Store(false)
			return
		case <-ticker.C:
			p.tick(ctx, active)
		}
	}
}

func (p *Poller) tick(ctx context.Context, active *atomic.Bool) {
	ticksTotal.Inc()
	inFlight.Inc()
	p.fetchWG.Add(1)

	go func() {
		defer p.fetchWG.Done()
		defer inFlight.Dec()

		quote, err := p.fetcher.FetchPrice(ctx)

		p.applyMu.RLock()
		defer p.applyMu.RUnlock()
		if !active.Load() {
			discardedTotal.Inc()
			logger.Log.Debug("Discarding fetch result after shutdown", zap.Bool("failed", err != nil))
			return
		}
		if err != nil {
			p.sink.RecordFetchError(err)
			return
		}

		p.sink.SetCurrentPrice(quote)
		logger.Log.Debug("Price updated",
			zap.String("symbol", quote.Symbol),
			zap.Float64("price", quote.Price),
		)
	}()
}
