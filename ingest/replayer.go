package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/tidegrid/trajbatch/internal/diag"
	"github.com/tidegrid/trajbatch/traj"
)

// Replayer feeds recorded CSV tracks onto a topic, one JSON position per
// row, for exercising the live path end to end.
type Replayer struct {
	producer *kafka.Producer
	topic    string
	schema   traj.Schema

	sent      int64
	delivered int64
	failed    int64
}

// NewReplayer connects a producer and starts draining delivery reports.
func NewReplayer(cfg Config, schema traj.Schema) (*Replayer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(schema.NumericFields) < 2 {
		return nil, &traj.ConfigError{Field: "fields", Reason: "replay needs two coordinate fields"}
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	r := &Replayer{producer: p, topic: cfg.Topic, schema: schema}
	go r.deliveryReports()
	return r, nil
}

// deliveryReports drains the producer event channel, counting acks.
func (r *Replayer) deliveryReports() {
	for ev := range r.producer.Events() {
		m, ok := ev.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			atomic.AddInt64(&r.failed, 1)
			diag.Logf("[aisfeed] delivery failed: %v", m.TopicPartition.Error)
		} else {
			atomic.AddInt64(&r.delivered, 1)
		}
	}
}

// Replay produces every row of every track in the source. Tracks that do not
// map onto positions are skipped and logged, not fatal.
func (r *Replayer) Replay(ctx context.Context, src traj.Source) error {
	for _, id := range src.Tracks() {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := src.Open(id)
		if err != nil {
			diag.Logf("[aisfeed] skip %s: %v", id, err)
			continue
		}
		positions, err := trackPositions(id, raw, r.schema)
		if err != nil {
			diag.Logf("[aisfeed] skip %s: %v", id, err)
			continue
		}
		for i := range positions {
			if err := r.produce(&positions[i]); err != nil {
				return fmt.Errorf("produce %s: %w", id, err)
			}
		}
	}
	return nil
}

// produce enqueues one position, backing off when the local queue is full.
func (r *Replayer) produce(p *Position) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return err
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &r.topic, Partition: kafka.PartitionAny},
		Key:            []byte(p.MMSI),
		Value:          buf,
	}
	for {
		err := r.producer.Produce(msg, nil)
		if err == nil {
			atomic.AddInt64(&r.sent, 1)
			return nil
		}
		if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrQueueFull {
			r.producer.Flush(1000)
			continue
		}
		return err
	}
}

// trackPositions maps a raw track's rows onto feed positions. The vessel key
// is the identity without its file extension; rows whose coordinates do not
// parse are dropped.
func trackPositions(id traj.ID, raw *traj.RawTrack, schema traj.Schema) ([]Position, error) {
	cols := make(map[string]int, len(raw.Fields))
	for i, f := range raw.Fields {
		cols[f] = i
	}
	timeIdx, ok := cols[schema.TimeField]
	if !ok {
		return nil, &traj.MalformedTrackError{Field: schema.TimeField, Reason: "field not present"}
	}
	idx := make([]int, len(schema.NumericFields))
	for i, name := range schema.NumericFields {
		j, ok := cols[name]
		if !ok {
			return nil, &traj.MalformedTrackError{Field: name, Reason: "field not present"}
		}
		idx[i] = j
	}

	mmsi := strings.TrimSuffix(string(id), filepath.Ext(string(id)))
	positions := make([]Position, 0, len(raw.Rows))
	dropped := 0
	for _, row := range raw.Rows {
		if timeIdx >= len(row) {
			dropped++
			continue
		}
		read := func(i int) (float64, bool) {
			if i >= len(idx) || idx[i] >= len(row) {
				return 0, false
			}
			v, ok := traj.ParseNumeric(row[idx[i]])
			return float64(v), ok
		}
		lat, okLat := read(0)
		lon, okLon := read(1)
		if !okLat || !okLon {
			dropped++
			continue
		}
		sog, _ := read(2)
		cog, _ := read(3)
		positions = append(positions, Position{
			MMSI:      mmsi,
			Timestamp: strings.TrimSpace(row[timeIdx]),
			Lat:       lat,
			Lon:       lon,
			Sog:       sog,
			Cog:       cog,
		})
	}
	if dropped > 0 {
		diag.Logf("[aisfeed] %s: dropped %d rows without coordinates", id, dropped)
	}
	return positions, nil
}

// Close flushes outstanding deliveries and logs the totals.
func (r *Replayer) Close() {
	r.producer.Flush(int((15 * time.Second).Milliseconds()))
	r.producer.Close()
	diag.Logf("[aisfeed] replay sent=%d delivered=%d failed=%d",
		atomic.LoadInt64(&r.sent), atomic.LoadInt64(&r.delivered), atomic.LoadInt64(&r.failed))
}
