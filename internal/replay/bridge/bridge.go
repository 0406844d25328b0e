// Package bridge republishes recorder/replayer lifecycle events onto a
// NATS JetStream so external consumers (dashboards, archivers) can react to
// flushed segments without polling the recording directory.
package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/replaycore/internal/replaylog"
)

// SegmentFlushed is published to subject "replay.segment.flushed" every time
// the recorder persists a segment to disk.
type SegmentFlushed struct {
	Dir       string    `json:"dir"`
	FirstTick int64     `json:"firstTick"`
	LastTick  int64     `json:"lastTick"`
	At        time.Time `json:"at"`
}

// Bus publishes replay lifecycle events to a JetStream stream.
type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string
	log    *replaylog.Logger

	published uint64
	dropped   uint64
}

// Connect dials url and ensures the stream exists, with subjects
// "replay.*". Pass retention<=0 for the JetStream default (unlimited).
func Connect(url, stream string, retention time.Duration) (*Bus, error) {
	if stream == "" {
		stream = "REPLAY"
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		cfg := &nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{"replay.*"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
		}
		if retention > 0 {
			cfg.MaxAge = retention
		}
		if _, err := js.AddStream(cfg); err != nil {
			nc.Drain()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	return &Bus{nc: nc, js: js, stream: stream, log: replaylog.GetLogger("bridge")}, nil
}

// PublishSegmentFlushed publishes a SegmentFlushed event. Intended to be
// wired as a recorder.Options.OnFlush hook (via a small closure that fills
// in Dir/At).
func (b *Bus) PublishSegmentFlushed(ev SegmentFlushed) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Warn("не удалось сериализовать событие флаша сегмента: %v", err)
		atomic.AddUint64(&b.dropped, 1)
		return
	}

	if _, err := b.js.Publish("replay.segment.flushed", data); err != nil {
		b.log.Warn("не удалось опубликовать событие флаша сегмента: %v", err)
		atomic.AddUint64(&b.dropped, 1)
		return
	}
	atomic.AddUint64(&b.published, 1)
}

// OnFlush returns a recorder.Options.OnFlush-compatible closure bound to dir.
func (b *Bus) OnFlush(dir string, now func() time.Time) func(firstTick, lastTick int64) {
	return func(firstTick, lastTick int64) {
		b.PublishSegmentFlushed(SegmentFlushed{
			Dir:       dir,
			FirstTick: firstTick,
			LastTick:  lastTick,
			At:        now(),
		})
	}
}

// Stats reports lifetime publish counters.
type Stats struct {
	Published uint64
	Dropped   uint64
}

// Metrics returns the current publish counters.
func (b *Bus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&b.published),
		Dropped:   atomic.LoadUint64(&b.dropped),
	}
}

// Close drains the underlying NATS connection.
func (b *Bus) Close() {
	b.nc.Drain()
}
