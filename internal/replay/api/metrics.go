package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/replaycore/internal/replay/recorder"
	"github.com/annel0/replaycore/internal/replay/replayer"
)

// domainMetrics holds the Prometheus series fed by recorder/replayer Stats
// snapshots. Counters are updated by delta against the previous poll since
// Stats itself is a cumulative lifetime snapshot, not an event stream.
type domainMetrics[T any] struct {
	rec *recorder.Recorder[T]
	ply *replayer.Replayer[T]

	quit chan struct{}
	done chan struct{}

	ticksRecorded   prometheus.Counter
	segmentsFlushed prometheus.Counter
	ticksReplayed   prometheus.Counter
	catchupSeeks    prometheus.Counter
	cachedSegments  *prometheus.GaugeVec
}

func newDomainMetrics[T any](rec *recorder.Recorder[T], ply *replayer.Replayer[T]) *domainMetrics[T] {
	m := &domainMetrics[T]{
		rec:  rec,
		ply:  ply,
		quit: make(chan struct{}),
		done: make(chan struct{}),
		ticksRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "ticks_recorded_total",
			Help:      "Total ticks accepted by the recorder.",
		}),
		segmentsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "segments_flushed_total",
			Help:      "Total segments persisted by the recorder.",
		}),
		ticksReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "ticks_replayed_total",
			Help:      "Total ticks emitted to OnTick by the replayer.",
		}),
		catchupSeeks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "catchup_seeks_total",
			Help:      "Total drift-correction seeks performed by the replayer scheduler.",
		}),
		cachedSegments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replay",
			Name:      "cached_segments",
			Help:      "Segments currently held in the component's soft cache.",
		}, []string{"component"}),
	}

	prometheus.MustRegister(m.ticksRecorded, m.segmentsFlushed, m.ticksReplayed, m.catchupSeeks, m.cachedSegments)
	return m
}

// start launches the poll-and-delta loop in its own goroutine. Safe to call
// with a nil rec or ply (the corresponding deltas simply stay at zero).
func (m *domainMetrics[T]) start() {
	go m.loop()
}

func (m *domainMetrics[T]) stop() {
	close(m.quit)
	<-m.done
}

func (m *domainMetrics[T]) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer close(m.done)

	var prevRec recorder.Stats
	var prevPly replayer.Stats

	for {
		select {
		case <-ticker.C:
			if m.rec != nil {
				s := m.rec.GetStats()
				if d := s.RecordedCount - prevRec.RecordedCount; d > 0 {
					m.ticksRecorded.Add(float64(d))
				}
				if d := s.FlushCount - prevRec.FlushCount; d > 0 {
					m.segmentsFlushed.Add(float64(d))
				}
				m.cachedSegments.WithLabelValues("recorder").Set(float64(s.CachedSegments))
				prevRec = s
			}

			if m.ply != nil {
				s := m.ply.GetStats()
				if d := s.PlayedCount - prevPly.PlayedCount; d > 0 {
					m.ticksReplayed.Add(float64(d))
				}
				if d := s.CatchupCount - prevPly.CatchupCount; d > 0 {
					m.catchupSeeks.Add(float64(d))
				}
				m.cachedSegments.WithLabelValues("replayer").Set(float64(s.CachedSegments))
				prevPly = s
			}
		case <-m.quit:
			return
		}
	}
}
