// internal/cache/pubsub.go
package cache

import (
	"context"
	"encoding/json"
	"time"

	"pricecomparator/internal/logger"
	"pricecomparator/internal/models"

	"go.uber.org/zap"
)

// SnapshotChannel carries every widget snapshot as JSON.
const SnapshotChannel = "price_comparisons"

const (
	publishTimeout   = 2 * time.Second
	publishQueueSize = 64
)

type publishJob struct {
	version uint64
	payload []byte
}

// SnapshotMessage is the payload published for each state change.
type SnapshotMessage struct {
	Instance string          `json:"instance"`
	Snapshot models.Snapshot `json:"snapshot"`
}

func encodeSnapshot(instance string, snap models.Snapshot) ([]byte, error) {
	return json.Marshal(SnapshotMessage{Instance: instance, Snapshot: snap})
}

// PublishSnapshot is a widget observer that queues snap for publishing to
// Redis. It never blocks: when the queue is full the snapshot is dropped.
func (c *Client) PublishSnapshot(snap models.Snapshot) {
	if c.ctx.Err() != nil {
		return
	}

	payload, err := encodeSnapshot(c.instance, snap)
	if err != nil {
		logger.Log.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}

	select {
	case c.queue <- publishJob{version: snap.Version, payload: payload}:
	default:
		publishTotal.WithLabelValues("dropped", c.instance).Inc()
		logger.Log.Debug("Snapshot publish queue full, dropping",
			zap.Uint64("version", snap.Version),
		)
	}
}

func (c *Client) runPublisher() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case job := <-c.queue:
			c.publish(job)
		}
	}
}

func (c *Client) publish(job publishJob) {
	ctx, cancel := context.WithTimeout(c.ctx, publishTimeout)
	defer cancel()

	if err := c.rdb.Publish(ctx, c.channel, job.payload).Err(); err != nil {
		publishTotal.WithLabelValues("error", c.instance).Inc()
		logger.Log.Warn("Failed to publish snapshot to Redis",
			zap.String("channel", c.channel),
			zap.Uint64("version", job.version),
			zap.Error(err),
		)
		return
	}
	publishTotal.WithLabelValues("ok", c.instance).Inc()
}
