// Package rangequery реализует §4.F исходной спецификации: возврат диапазона
// тиковых данных по временному или тиковому диапазону, с опциональным
// наполнением пропусков при includePartialTicks.
package rangequery

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/header"
	"github.com/annel0/replaycore/internal/replay/segment"
	"github.com/annel0/replaycore/internal/replay/tick"
)

// Options задаёт ровно один из TimeRangeMs/TickRange.
type Options struct {
	// TimeRangeMs — [startMs, endMs], включительно.
	TimeRangeMs *[2]int64
	// TickRange — [startTick, endTick], включительно.
	TickRange *[2]int64

	// IncludePartialTicks добавляет нулевые записи (HasData=false) для
	// тиков, для которых нет payload, вместо того чтобы их пропускать.
	IncludePartialTicks bool

	// ChunkSize — рекомендация по размеру пачки при потоковой выдаче.
	// Get её не использует: весь диапазон возвращается одним срезом, а все
	// затронутые сегменты предзагружаются сразу.
	ChunkSize int
}

// Entry — один тик диапазона. HasData=false означает, что для этого тика не
// нашлось записи (пробел), а Data — нулевое значение T.
type Entry[T any] struct {
	Tick    int64
	Meta    tick.Meta
	Data    T
	HasData bool
}

// Get возвращает тики диапазона, заданного opts, предзагружая затрагиваемые
// сегменты параллельно через errgroup.
func Get[T any](store *segment.Store[T], meta header.Meta, opts Options) ([]Entry[T], error) {
	start, end, err := normalizeRange(meta, opts)
	if err != nil {
		return nil, err
	}
	if start > end {
		return nil, nil
	}

	firstSeg := tick.SegmentIndex(start, meta.SegmentSize)
	lastSeg := tick.SegmentIndex(end, meta.SegmentSize)

	segments := make(map[int64]map[int64]T, lastSeg-firstSeg+1)
	var mu sync.Mutex

	g := new(errgroup.Group)
	// ChunkSize только документирует намерение вызывающей стороны по
	// размеру пачки потоковой выдачи; предзагрузка всегда покрывает весь
	// диапазон сегментов сразу — errgroup сам ограничивает параллелизм
	// количеством затронутых сегментов.
	_ = opts.ChunkSize

	for segIdx := firstSeg; segIdx <= lastSeg; segIdx++ {
		segIdx := segIdx
		if !store.Exists(segIdx) {
			continue
		}
		g.Go(func() error {
			data, err := store.LoadSegment(segIdx)
			if err != nil {
				return err
			}
			mu.Lock()
			segments[segIdx] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]Entry[T], 0, end-start+1)
	for t := start; t <= end; t++ {
		segIdx := tick.SegmentIndex(t, meta.SegmentSize)
		m := tick.MetaFor(t, meta.TickRate, meta.SegmentSize)

		data, ok := segments[segIdx]
		var v T
		found := false
		if ok {
			v, found = data[t]
		}

		if !found && !opts.IncludePartialTicks {
			continue
		}

		entries = append(entries, Entry[T]{Tick: t, Meta: m, Data: v, HasData: found})
	}

	return entries, nil
}

// normalizeRange проверяет, что ровно один из TimeRangeMs/TickRange задан,
// переводит его в тиковый диапазон и зажимает в [0, totalTicks-1].
func normalizeRange(meta header.Meta, opts Options) (int64, int64, error) {
	if (opts.TimeRangeMs == nil) == (opts.TickRange == nil) {
		return 0, 0, fmt.Errorf("%w: exactly one of TimeRangeMs or TickRange must be set", errs.ErrInvalidArgs)
	}

	var start, end int64
	if opts.TickRange != nil {
		start, end = opts.TickRange[0], opts.TickRange[1]
	} else {
		start = tick.TickFromTimeMs(opts.TimeRangeMs[0], meta.TickRate)
		end = tick.TickFromTimeMs(opts.TimeRangeMs[1], meta.TickRate)
	}

	if start > end {
		start, end = end, start
	}

	if meta.TotalTicks <= 0 {
		return 0, -1, nil
	}

	maxTick := meta.TotalTicks - 1
	if start < 0 {
		start = 0
	}
	if end > maxTick {
		end = maxTick
	}
	if start > maxTick {
		return 0, -1, nil
	}
	return start, end, nil
}
