// Package replayer реализует §4.E исходной спецификации: воспроизведение
// записанных сегментов с VCR-управлением (play/pause/resume/seek/step/speed)
// при синхронизации с настенным временем исходного темпа тиков.
package replayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/header"
	"github.com/annel0/replaycore/internal/replay/rangequery"
	"github.com/annel0/replaycore/internal/replay/segment"
	"github.com/annel0/replaycore/internal/replay/telemetry"
	"github.com/annel0/replaycore/internal/replay/tick"
	"github.com/annel0/replaycore/internal/replaylog"
)

// State — состояние конечного автомата плеера.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// minSchedulableDelay — порог быстрого синхронного пути (§4.E): планировать
// таймер на интервал короче типичного кванта системного таймера дороже, чем
// просто досчитать синхронно.
const minSchedulableDelay = 4 * time.Millisecond

// Options настраивает плеер.
type Options[T any] struct {
	Speed       float64 // по умолчанию 1.0, зажимается в [0.1, 10.0]
	CacheWindow int     // по умолчанию 3

	OnStart func()
	OnTick  func(data T, meta tick.Meta)
	OnEnd   func()

	// Now переопределяет источник времени для тестов.
	Now func() time.Time
}

func (o *Options[T]) setDefaults() {
	if o.Speed <= 0 {
		o.Speed = 1.0
	}
	o.Speed = clampFloat(o.Speed, 0.1, 10.0)
	if o.CacheWindow <= 0 {
		o.CacheWindow = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Replayer воспроизводит тиковые сегменты ранее записанной директории.
type Replayer[T any] struct {
	dir    string
	store  *segment.Store[T]
	header *header.Store
	log    *replaylog.Logger
	opts   Options[T]

	mu   sync.Mutex
	meta header.Meta

	initialized bool
	state       State

	playStartTime  time.Time
	pausedDuration time.Duration
	pauseStartTime time.Time
	speed          float64

	currentTick        int64
	lastPlayedTickMeta  tick.Meta
	timer              *time.Timer

	// currentSegIdx is the segment index EvictFarFrom was last called
	// with; -1 means "no segment loaded yet". Tracked separately from
	// currentTick because eviction must fire on segment transitions
	// during ordinary playback, not just on explicit seeks.
	currentSegIdx int64

	playedCount  int64
	catchupCount int64
}

// Stats reports lifetime counters for metrics exporters (see
// internal/replay/api's domainMetrics).
type Stats struct {
	PlayedCount    int64
	CatchupCount   int64
	CachedSegments int
}

// GetStats returns a point-in-time snapshot of the replayer's counters.
func (r *Replayer[T]) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		PlayedCount:    r.playedCount,
		CatchupCount:   r.catchupCount,
		CachedSegments: r.store.CachedCount(),
	}
}

// New создаёт плеер для директории dir, декодируя сегменты заданным кодеком.
// Init() должен быть вызван перед Play()/Seek().
func New[T any](dir string, c codec.PayloadCodec[T], opts Options[T]) (*Replayer[T], error) {
	opts.setDefaults()

	store, err := segment.NewStore[T](dir, c)
	if err != nil {
		return nil, err
	}

	return &Replayer[T]{
		dir:    dir,
		store:  store,
		header: header.NewStore(dir),
		log:    replaylog.GetLogger("replayer"),
		opts:   opts,
		state:  Idle,
		speed:  opts.Speed,
		currentSegIdx: -1,
	}, nil
}

// Init загружает header.json и готовит плеер к воспроизведению с тика 0.
// Возвращает errs.ErrNotFound, если запись отсутствует.
func (r *Replayer[T]) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := r.header.ReadMeta()
	if err != nil {
		return err
	}

	r.meta = meta
	r.currentTick = 0
	r.currentSegIdx = -1
	r.initialized = true
	return nil
}

// GetState возвращает текущее состояние конечного автомата.
func (r *Replayer[T]) GetState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// GetCurrentTick возвращает тик последнего (или следующего ожидаемого)
// вызова onTick.
func (r *Replayer[T]) GetCurrentTick() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentTick
}

// GetCurrentTime возвращает текущий тик в миллисекундах.
func (r *Replayer[T]) GetCurrentTime() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return tick.TimeMs(r.currentTick, r.meta.TickRate)
}

// GetSpeed возвращает текущую скорость воспроизведения.
func (r *Replayer[T]) GetSpeed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

// Play переводит {Idle, Paused} -> Playing. Из Idle часы плеера
// инициализируются заново; из Paused накопленная пауза сворачивается и
// воспроизведение продолжается с того же currentTick (в том числе после
// seek, выполненного пока плеер был в Idle/Paused — см. Seek).
func (r *Replayer[T]) Play() error {
	r.mu.Lock()

	if !r.initialized {
		r.mu.Unlock()
		return fmt.Errorf("%w: play requires Init() first", errs.ErrInvalidState)
	}
	if r.state == Playing {
		r.mu.Unlock()
		return fmt.Errorf("%w: play requires Idle or Paused, got Playing", errs.ErrInvalidState)
	}

	if r.state == Paused {
		r.pausedDuration += r.opts.Now().Sub(r.pauseStartTime)
	} else {
		r.playStartTime = r.opts.Now()
		r.pausedDuration = 0
	}

	r.state = Playing
	onStart := r.opts.OnStart
	r.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	r.processTickAndScheduleNext()
	return nil
}

// Pause переводит Playing -> Paused, отменяя отложенный таймер.
func (r *Replayer[T]) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Playing {
		return fmt.Errorf("%w: pause requires Playing, got %s", errs.ErrInvalidState, r.state)
	}

	r.stopTimerLocked()
	r.pauseStartTime = r.opts.Now()
	r.state = Paused
	return nil
}

// Resume продолжает воспроизведение после Pause, сворачивая длительность
// паузы и не трогая playStartTime.
func (r *Replayer[T]) Resume() error {
	r.mu.Lock()

	if r.state != Paused {
		r.mu.Unlock()
		return fmt.Errorf("%w: resume requires Paused, got %s", errs.ErrInvalidState, r.state)
	}

	r.pausedDuration += r.opts.Now().Sub(r.pauseStartTime)
	r.state = Playing
	r.mu.Unlock()

	r.processTickAndScheduleNext()
	return nil
}

// Stop переводит {Playing, Paused} -> Idle, отменяя отложенный таймер.
func (r *Replayer[T]) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Idle {
		return fmt.Errorf("%w: stop requires Playing or Paused, got Idle", errs.ErrInvalidState)
	}

	r.stopTimerLocked()
	r.state = Idle
	return nil
}

// Seek перематывает на tick, зажатый в [0, totalTicks-1], не переводя плеер
// в Playing. Один раз вызывает onTick с состоянием на новом тике, поэтому
// вызывающий код может отразить новую позицию. Не сбрасывает playStartTime:
// последующий Play()/Resume() трактует seek как мгновенный.
func (r *Replayer[T]) Seek(t int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seekLocked(t)
}

func (r *Replayer[T]) seekLocked(t int64) error {
	r.stopTimerLocked()

	clamped := t
	if r.meta.TotalTicks <= 0 {
		clamped = 0
	} else {
		clamped = clampInt64(t, 0, r.meta.TotalTicks-1)
	}
	r.currentTick = clamped

	segIdx := tick.SegmentIndex(clamped, r.meta.SegmentSize)
	data, found, err := r.fetchPayloadLocked(clamped)
	if err != nil {
		return err
	}

	meta := tick.MetaFor(clamped, r.meta.TickRate, r.meta.SegmentSize)
	r.lastPlayedTickMeta = meta
	r.evictOnSegmentChangeLocked(segIdx)

	if !found {
		var zero T
		data = zero
	}

	onTick := r.opts.OnTick
	r.mu.Unlock()
	if onTick != nil {
		onTick(data, meta)
	}
	r.mu.Lock()
	return nil
}

// SeekToTime перематывает на тик, ближайший к ms (снизу).
func (r *Replayer[T]) SeekToTime(ms int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := tick.TickFromTimeMs(ms, r.meta.TickRate)
	return r.seekLocked(target)
}

// StepForward перематывает на n тиков вперёд (n=1 по умолчанию у вызывающей
// стороны).
func (r *Replayer[T]) StepForward(n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.currentTick + n
	if target < 0 {
		target = 0
	}
	return r.seekLocked(target)
}

// StepBackward перематывает на n тиков назад, не опускаясь ниже 0.
func (r *Replayer[T]) StepBackward(n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target := r.currentTick - n
	if target < 0 {
		target = 0
	}
	return r.seekLocked(target)
}

// SetSpeed задаёт скорость воспроизведения, зажатую в [0.1, 10.0].
// Требует Playing. Если таймер уже отложен, он перепланируется с новой
// скоростью от lastPlayedTickMeta; если новая задержка меньше 4мс, следующий
// тик обрабатывается синхронно, как в processTickAndScheduleNext.
func (r *Replayer[T]) SetSpeed(x float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Playing {
		return fmt.Errorf("%w: setSpeed requires Playing, got %s", errs.ErrInvalidState, r.state)
	}

	r.speed = clampFloat(x, 0.1, 10.0)

	if r.timer == nil {
		return nil
	}
	r.stopTimerLocked()

	delay := r.delayToNextTickLocked()
	if delay < minSchedulableDelay {
		r.currentTick++
		r.mu.Unlock()
		r.processTickAndScheduleNext()
		r.mu.Lock()
		return nil
	}

	r.scheduleTimerLocked(delay)
	return nil
}

// GetCacheWindow возвращает окно кеша сегментов, настроенное для плеера.
func (r *Replayer[T]) GetCacheWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.CacheWindow
}

// GetRangeData возвращает тики заданного диапазона без перевода плеера в
// Playing, делегируя в rangequery.Get с текущими метаданными записи.
func (r *Replayer[T]) GetRangeData(opts rangequery.Options) ([]rangequery.Entry[T], error) {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: getRangeData requires Init() first", errs.ErrInvalidState)
	}
	meta := r.meta
	r.mu.Unlock()

	return rangequery.Get(r.store, meta, opts)
}

// evictOnSegmentChangeLocked реализует §4.E: evictFarFrom вызывается после
// каждого перехода между сегментами, а не только при явном seek — иначе
// прямое воспроизведение без seek никогда не освобождает декодированные
// сегменты из кеша.
func (r *Replayer[T]) evictOnSegmentChangeLocked(segIdx int64) {
	if segIdx == r.currentSegIdx {
		return
	}
	r.currentSegIdx = segIdx
	r.store.EvictFarFrom(segIdx, r.opts.CacheWindow)
}

func (r *Replayer[T]) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Replayer[T]) scheduleTimerLocked(delay time.Duration) {
	r.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.state != Playing {
			r.mu.Unlock()
			return
		}
		r.currentTick++
		r.mu.Unlock()
		r.processTickAndScheduleNext()
	})
}

// expectedTickLocked реализует дрейф-модель §4.E.
func (r *Replayer[T]) expectedTickLocked() int64 {
	elapsedMs := r.elapsedAdjustedMsLocked()
	return int64(float64(elapsedMs) * float64(r.meta.TickRate) * r.speed / 1000)
}

func (r *Replayer[T]) elapsedAdjustedMsLocked() int64 {
	return r.opts.Now().Sub(r.playStartTime).Milliseconds() - r.pausedDuration.Milliseconds()
}

// delayToNextTickLocked вычисляет задержку до времени следующего тика
// относительно lastPlayedTickMeta, с учётом текущей скорости.
func (r *Replayer[T]) delayToNextTickLocked() time.Duration {
	nextTickTimeMs := r.lastPlayedTickMeta.TimeMs + 1000/int64(r.meta.TickRate)
	elapsed := r.elapsedAdjustedMsLocked()

	delayMs := float64(nextTickTimeMs-elapsed) / r.speed
	if delayMs < 0 {
		delayMs = 0
	}
	return time.Duration(delayMs * float64(time.Millisecond))
}

// fetchPayloadLocked возвращает payload тика t. found=false без ошибки
// означает "конец записи или пробел" (файл сегмента отсутствует, либо тик
// отсутствует внутри существующего сегмента) — терминальное условие для
// цикла воспроизведения, но не ошибка. err != nil означает настоящий сбой
// I/O или декодирования, который проигрывающий цикл трактует как конец
// потока, а явные seek/getRangeData — пробрасывают вызывающей стороне.
func (r *Replayer[T]) fetchPayloadLocked(t int64) (T, bool, error) {
	var zero T

	segIdx := tick.SegmentIndex(t, r.meta.SegmentSize)
	if !r.store.Exists(segIdx) {
		return zero, false, nil
	}

	data, err := r.store.LoadSegment(segIdx)
	if err != nil {
		return zero, false, err
	}

	v, ok := data[t]
	return v, ok, nil
}

// processTickAndScheduleNext реализует шаги 1-5 алгоритма §4.E. Быстрый путь
// (задержка < 4мс) реализован как продолжение цикла вместо рекурсивного
// хвостового вызова — то же поведение, без риска роста стека на высоких
// скоростях.
func (r *Replayer[T]) processTickAndScheduleNext() {
	_, span := telemetry.Tracer("replayer").Start(context.Background(), "replayer.processTickAndScheduleNext")
	defer span.End()

	r.mu.Lock()
	span.SetAttributes(attribute.Int64("tick.start", r.currentTick))

	for {
		if r.state != Playing {
			r.mu.Unlock()
			return
		}

		data, found, err := r.fetchPayloadLocked(r.currentTick)
		if err != nil {
			r.log.Warn("чтение сегмента на тике %d не удалось, завершаем воспроизведение: %v", r.currentTick, err)
			found = false
		}

		if !found {
			r.stopTimerLocked()
			r.state = Idle
			onEnd := r.opts.OnEnd
			r.mu.Unlock()
			if onEnd != nil {
				onEnd()
			}
			return
		}

		meta := tick.MetaFor(r.currentTick, r.meta.TickRate, r.meta.SegmentSize)
		r.lastPlayedTickMeta = meta
		r.evictOnSegmentChangeLocked(meta.SegmentIndex)
		onTick := r.opts.OnTick
		r.playedCount++

		r.mu.Unlock()
		if onTick != nil {
			onTick(data, meta)
		}
		r.mu.Lock()

		if r.state != Playing {
			r.mu.Unlock()
			return
		}

		if e := r.expectedTickLocked(); e > r.currentTick {
			r.catchupCount++
			if err := r.seekLocked(e); err != nil {
				r.log.Warn("догоняющий seek на тик %d не удался: %v", e, err)
			}
			if r.state != Playing {
				r.mu.Unlock()
				return
			}
		}

		delay := r.delayToNextTickLocked()
		if delay < minSchedulableDelay {
			r.currentTick++
			continue
		}

		r.scheduleTimerLocked(delay)
		r.mu.Unlock()
		return
	}
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
