// Package widget owns the comparator state: the current price written by the
// poller, the target price typed by the user, and the comparison derived from
// both. All mutation goes through the Controller setters, which recompute the
// comparison synchronously and then notify observers in mutation order.
package widget

import (
	"sync"
	"time"

	"pricecomparator/internal/comparator"
	"pricecomparator/internal/logger"
	"pricecomparator/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	currentPriceGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "comparator_current_price_usd",
			Help: "Last successfully fetched price in USD",
		},
	)
	targetUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparator_target_updates_total",
			Help: "Total number of target price inputs by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(currentPriceGauge)
	prometheus.MustRegister(targetUpdatesTotal)
}

// Observer receives a snapshot after every state mutation. Observers run on
// the mutating goroutine and must not block or call back into setters.
type Observer func(models.Snapshot)

type Controller struct {
	// notifyMu serialises mutate+notify so observers see snapshots in order.
	notifyMu sync.Mutex
	mu       sync.RWMutex

	currentPrice *float64
	targetPrice  *float64
	targetInput  string
	comparison   *models.Comparison
	symbol       string
	source       string
	updatedAt    *time.Time
	lastError    string
	version      uint64

	observers []Observer
}

func NewController() *Controller {
	return &Controller{}
}

// Subscribe registers an observer. Register observers before the poller starts.
func (c *Controller) Subscribe(o Observer) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observers = append(c.observers, o)
}

// SetCurrentPrice records a successful quote.
func (c *Controller) SetCurrentPrice(q models.Quote) models.Snapshot {
	return c.mutate(models.TriggerPrice, func() {
		price := q.Price
		fetchedAt := q.FetchedAt
		c.currentPrice = &price
		c.updatedAt = &fetchedAt
		c.symbol = q.Symbol
		c.source = q.Source
		c.lastError = ""
		currentPriceGauge.Set(price)
	})
}

// SetTargetInput takes the raw text of the target field. Text that does not
// parse clears the target price while the raw text is kept for echoing.
func (c *Controller) SetTargetInput(raw string) models.Snapshot {
	target := comparator.ParseTarget(raw)
	if target == nil {
		targetUpdatesTotal.WithLabelValues("cleared").Inc()
	} else {
		targetUpdatesTotal.WithLabelValues("set").Inc()
	}

	return c.mutate(models.TriggerTarget, func() {
		c.targetInput = raw
		c.targetPrice = target
	})
}

// RecordFetchError keeps the last fetch failure for diagnostics. The visible
// state is untouched, so observers are not notified.
func (c *Controller) RecordFetchError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()

	logger.Log.Warn("Price fetch failed, keeping previous price", zap.Error(err))
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked("")
}

func (c *Controller) mutate(trigger models.Trigger, apply func()) models.Snapshot {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	apply()
	c.comparison = comparator.Compare(c.currentPrice, c.targetPrice)
	c.version++
	snap := c.snapshotLocked(trigger)
	c.mu.Unlock()

	if snap.Comparison != nil && !snap.Comparison.PercentageDefined {
		logger.Log.Debug("Percentage difference undefined",
			zap.Error(comparator.ErrZeroCurrentPrice),
			zap.Uint64("version", snap.Version),
		)
	}

	for _, o := range c.observers {
		o(snap)
	}
	return snap
}

func (c *Controller) snapshotLocked(trigger models.Trigger) models.Snapshot {
	snap := models.Snapshot{
		Version:     c.version,
		Trigger:     trigger,
		TargetInput: c.targetInput,
		Symbol:      c.symbol,
		Source:      c.source,
		LastError:   c.lastError,
	}
	if c.currentPrice != nil {
		v := *c.currentPrice
		snap.CurrentPrice = &v
	}
	if c.targetPrice != nil {
		v := *c.targetPrice
		snap.TargetPrice = &v
	}
	if c.comparison != nil {
		cmp := *c.comparison
		snap.Comparison = &cmp
	}
	if c.updatedAt != nil {
		t := *c.updatedAt
		snap.UpdatedAt = &t
	}
	return snap
}
