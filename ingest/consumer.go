// Package ingest moves AIS position traffic between a Kafka topic and the
// track store: the Consumer drains a feed into trackdb, the Replayer feeds
// recorded CSV tracks back onto a topic.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/tidegrid/trajbatch/internal/diag"
	"github.com/tidegrid/trajbatch/trackdb"
	"github.com/tidegrid/trajbatch/traj"
)

// flushInterval bounds how long a buffered position waits before it becomes
// visible in the store.
const flushInterval = 5 * time.Second

// accumulator groups parsed positions per vessel between store flushes. It
// is confined to the consumer's polling goroutine.
type accumulator struct {
	db  *trackdb.DB
	buf map[traj.ID][]trackdb.Sample
	n   int
}

func newAccumulator(db *trackdb.DB) *accumulator {
	return &accumulator{db: db, buf: make(map[traj.ID][]trackdb.Sample)}
}

func (a *accumulator) add(p *Position) {
	id := traj.ID(p.MMSI)
	a.buf[id] = append(a.buf[id], p.Sample())
	a.n++
}

// flush appends every buffered vessel's samples to the store and clears the
// buffer. Sequence numbers continue from where each track left off.
func (a *accumulator) flush() (int, error) {
	flushed := 0
	for id, samples := range a.buf {
		if err := a.db.EnsureTrack(id, "aisfeed"); err != nil {
			return flushed, err
		}
		if err := a.db.AppendSamples(id, samples); err != nil {
			return flushed, err
		}
		flushed += len(samples)
		delete(a.buf, id)
	}
	a.n = 0
	return flushed, nil
}

// Consumer drains an AIS topic into the track store, buffering positions per
// vessel and committing offsets after each flush.
type Consumer struct {
	consumer   *kafka.Consumer
	acc        *accumulator
	flushEvery int

	received  int64
	malformed int64
	stored    int64
}

// NewConsumer connects to the brokers and subscribes to the topic.
func NewConsumer(cfg Config, db *trackdb.DB) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  cfg.AutoOffsetReset,
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	if err := c.Subscribe(cfg.Topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Topic, err)
	}
	flushEvery := cfg.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 64
	}
	return &Consumer{
		consumer:   c,
		acc:        newAccumulator(db),
		flushEvery: flushEvery,
	}, nil
}

// Run polls until the context is canceled, then flushes what is buffered and
// closes the consumer. Returns nil on a clean shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	defer c.consumer.Close()

	for {
		select {
		case <-ctx.Done():
			return c.flush()
		case <-ticker.C:
			if err := c.flush(); err != nil {
				return err
			}
		default:
		}

		ev := c.consumer.Poll(100)
		if ev == nil {
			continue
		}
		switch m := ev.(type) {
		case *kafka.Message:
			c.handle(m.Value)
			if c.acc.n >= c.flushEvery {
				if err := c.flush(); err != nil {
					return err
				}
			}
		case kafka.Error:
			diag.Logf("[aisfeed] consumer error: %v", m)
		}
	}
}

// handle parses one message into the per-vessel buffer.
func (c *Consumer) handle(value []byte) {
	atomic.AddInt64(&c.received, 1)
	p, err := ParsePosition(value)
	if err != nil {
		atomic.AddInt64(&c.malformed, 1)
		diag.Logf("[aisfeed] drop message: %v", err)
		return
	}
	c.acc.add(p)
}

// flush writes the buffered positions and commits the consumed offsets.
func (c *Consumer) flush() error {
	if c.acc.n == 0 {
		return nil
	}
	flushed, err := c.acc.flush()
	atomic.AddInt64(&c.stored, int64(flushed))
	if err != nil {
		return err
	}
	if _, err := c.consumer.Commit(); err != nil {
		// The first flush can precede any stored offsets.
		if kerr, ok := err.(kafka.Error); !ok || kerr.Code() != kafka.ErrNoOffset {
			diag.Logf("[aisfeed] commit: %v", err)
		}
	}
	return nil
}

// LogMetrics prints the running totals.
func (c *Consumer) LogMetrics() {
	diag.Logf("[aisfeed] received=%d stored=%d malformed=%d",
		atomic.LoadInt64(&c.received), atomic.LoadInt64(&c.stored), atomic.LoadInt64(&c.malformed))
}
