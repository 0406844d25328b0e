// Package recorder реализует §4.D исходной спецификации: приём потока
// payload и их персистирование в сегменты, управляемое конечным автоматом
// {Idle, Recording, Paused}.
package recorder

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/header"
	"github.com/annel0/replaycore/internal/replay/segment"
	"github.com/annel0/replaycore/internal/replay/telemetry"
	"github.com/annel0/replaycore/internal/replaylog"
)

// State — состояние конечного автомата рекордера.
type State int

const (
	Idle State = iota
	Recording
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Options настраивает рекордер. TickRate и SegmentSize по умолчанию берутся
// из §6 (30 и 1000 соответственно), если не заданы (<=0).
type Options struct {
	TickRate    int
	SegmentSize int
	CodecName   string // отражается в header.json, см. internal/replay/header

	// Now переопределяет источник времени; по умолчанию time.Now. Нужен
	// тестам для детерминированного продвижения часов.
	Now func() time.Time

	// OnFlush — необязательный наблюдатель за успешными флашами, вызывается
	// синхронно после записи сегмента на диск.
	OnFlush func(firstTick, lastTick int64)
}

func (o *Options) setDefaults() {
	if o.TickRate <= 0 {
		o.TickRate = 30
	}
	if o.SegmentSize <= 0 {
		o.SegmentSize = 1000
	}
	if o.CodecName == "" {
		o.CodecName = "json"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Recorder принимает payload-ы, тик для которых выводится из настенных
// часов (а не доверяется вызывающей стороне — см. обоснование в §4.D),
// и персистирует их сегментами фиксированного размера.
type Recorder[T any] struct {
	dir    string
	opts   Options
	store  *segment.Store[T]
	header *header.Store
	log    *replaylog.Logger

	mu             sync.Mutex
	state          State
	startTime      time.Time
	pausedDuration time.Duration
	pauseStartTime time.Time
	segmentIndex   int64
	lastFlushTick  int64
	pending        map[int64]T
	flushing       bool

	recordedCount int64
	flushCount    int64
}

// Stats reports lifetime counters for metrics exporters (see
// internal/replay/api's domainMetrics).
type Stats struct {
	RecordedCount  int64
	FlushCount     int64
	CachedSegments int
}

// GetStats returns a point-in-time snapshot of the recorder's counters.
func (r *Recorder[T]) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		RecordedCount:  r.recordedCount,
		FlushCount:     r.flushCount,
		CachedSegments: r.store.CachedCount(),
	}
}

// New создаёт рекордер для директории dir с заданным кодеком сегментов.
// Директория не создаётся здесь — это происходит в Start().
func New[T any](dir string, c codec.PayloadCodec[T], opts Options) (*Recorder[T], error) {
	opts.setDefaults()

	store, err := segment.NewStore[T](dir, c)
	if err != nil {
		return nil, err
	}

	return &Recorder[T]{
		dir:     dir,
		opts:    opts,
		store:   store,
		header:  header.NewStore(dir),
		log:     replaylog.GetLogger("recorder"),
		state:   Idle,
		pending: make(map[int64]T),
	}, nil
}

// GetState возвращает текущее состояние конечного автомата.
func (r *Recorder[T]) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// GetCurrentTick возвращает тик, которым Record() пометил бы payload прямо сейчас:
// выведенный из часов во время Recording, замороженный на момент паузы во
// время Paused, 0 в Idle.
func (r *Recorder[T]) GetCurrentTick() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickNow()
}

// tickNow реализует формулу §4.D. Во время Paused используется момент
// начала паузы вместо текущего времени, поэтому тик не продвигается,
// пока запись приостановлена, и при этом остаётся корректным, даже если
// pausedDuration ещё не свёрнут (Stop вызывает это до свёртки — см. Stop).
func (r *Recorder[T]) tickNow() int64 {
	var effective time.Time
	switch r.state {
	case Recording:
		effective = r.opts.Now()
	case Paused:
		effective = r.pauseStartTime
	default:
		return 0
	}

	elapsedMs := effective.Sub(r.startTime).Milliseconds() - r.pausedDuration.Milliseconds()
	t := elapsedMs * int64(r.opts.TickRate) / 1000
	if t < 1 {
		t = 1
	}
	return t
}

// Start переводит Idle -> Recording: инициализирует директорию, пишет
// начальные метаданные и сбрасывает часы рекордера.
func (r *Recorder[T]) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Idle {
		return fmt.Errorf("%w: start requires Idle, got %s", errs.ErrInvalidState, r.state)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create recording dir: %v", errs.ErrIoError, err)
	}

	now := r.opts.Now()
	if err := r.header.WriteMeta(header.Meta{
		CreatedAt:   now,
		TickRate:    r.opts.TickRate,
		SegmentSize: r.opts.SegmentSize,
		TotalTicks:  0,
		Codec:       r.opts.CodecName,
	}); err != nil {
		return err
	}

	r.startTime = now
	r.pausedDuration = 0
	r.segmentIndex = 0
	r.lastFlushTick = 0
	r.pending = make(map[int64]T)
	r.state = Recording

	r.log.Info("запись начата: %s (tickRate=%d, segmentSize=%d)", r.dir, r.opts.TickRate, r.opts.SegmentSize)
	return nil
}

// Record принимает один payload, помечая его текущим (выведенным из часов)
// тиком. Повторная запись в тот же тик перезаписывает предыдущее значение.
func (r *Recorder[T]) Record(data T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return fmt.Errorf("%w: record requires Recording, got %s", errs.ErrInvalidState, r.state)
	}

	t := r.tickNow()
	r.pending[t] = data
	r.recordedCount++

	if t%int64(r.opts.SegmentSize) == 0 || t-r.lastFlushTick >= int64(r.opts.SegmentSize) {
		if !r.flushing {
			r.flushing = true
			err := r.flushSegmentLocked()
			r.flushing = false
			r.lastFlushTick = t
			if err != nil {
				return err
			}
		}
		// Флаш уже выполняется (реентрантный вызов) — новые данные остаются
		// в pending и будут учтены следующим триггером.
	}

	return nil
}

// flushSegmentLocked персистирует pending как сегмент segmentIndex.
// При ошибке I/O pending остаётся нетронутым, чтобы данные не потерялись.
func (r *Recorder[T]) flushSegmentLocked() error {
	if len(r.pending) == 0 {
		return nil
	}

	_, span := telemetry.Tracer("recorder").Start(context.Background(), "recorder.flushSegment")
	span.SetAttributes(attribute.Int64("segment.index", r.segmentIndex))
	defer span.End()

	var first, last int64
	first = -1
	for t := range r.pending {
		if first == -1 || t < first {
			first = t
		}
		if t > last {
			last = t
		}
	}

	if err := r.store.WriteSegment(r.segmentIndex, first, last, r.pending); err != nil {
		span.RecordError(err)
		return err
	}

	flushedFirst, flushedLast := first, last
	r.pending = make(map[int64]T)
	r.segmentIndex++
	r.flushCount++

	r.log.Debug("сегмент %d сброшен на диск (ticks %d..%d)", r.segmentIndex-1, flushedFirst, flushedLast)
	if r.opts.OnFlush != nil {
		r.opts.OnFlush(flushedFirst, flushedLast)
	}
	return nil
}

// Pause переводит Recording -> Paused, сбрасывая накопленный сегмент.
func (r *Recorder[T]) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return fmt.Errorf("%w: pause requires Recording, got %s", errs.ErrInvalidState, r.state)
	}

	if err := r.flushSegmentLocked(); err != nil {
		return err
	}

	r.pauseStartTime = r.opts.Now()
	r.state = Paused
	r.log.Debug("запись приостановлена на тике %d", r.tickNow())
	return nil
}

// Resume переводит Paused -> Recording, сворачивая длительность паузы.
func (r *Recorder[T]) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Paused {
		return fmt.Errorf("%w: resume requires Paused, got %s", errs.ErrInvalidState, r.state)
	}

	r.pausedDuration += r.opts.Now().Sub(r.pauseStartTime)
	r.state = Recording
	r.log.Debug("запись возобновлена, суммарная пауза %s", r.pausedDuration)
	return nil
}

// Stop переводит {Recording, Paused} -> Idle: сворачивает паузу (если
// требуется), сбрасывает оставшийся сегмент и пишет финальные метаданные.
func (r *Recorder[T]) Stop() (header.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording && r.state != Paused {
		return header.Meta{}, fmt.Errorf("%w: stop requires Recording or Paused, got %s", errs.ErrInvalidState, r.state)
	}

	// Тик должен быть вычислен до свёртки pausedDuration: при Paused
	// tickNow() использует pauseStartTime, который теряет смысл после
	// того, как его интервал уже учтён в pausedDuration.
	totalTicks := r.tickNow()

	if r.state == Paused {
		r.pausedDuration += r.opts.Now().Sub(r.pauseStartTime)
	}

	totalDuration := r.opts.Now().Sub(r.startTime).Milliseconds()

	if err := r.flushSegmentLocked(); err != nil {
		return header.Meta{}, err
	}

	meta := header.Meta{
		CreatedAt:     r.startTime,
		TickRate:      r.opts.TickRate,
		SegmentSize:   r.opts.SegmentSize,
		TotalTicks:    totalTicks,
		TotalDuration: totalDuration,
		Codec:         r.opts.CodecName,
	}

	if err := r.header.WriteMeta(meta); err != nil {
		return header.Meta{}, err
	}

	r.state = Idle
	r.log.Info("запись остановлена: totalTicks=%d totalDuration=%dms", meta.TotalTicks, meta.TotalDuration)
	return meta, nil
}
