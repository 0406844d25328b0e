// Package tick содержит чистые функции преобразования между тиками,
// временем и индексами сегментов. Ничего не хранит и не знает о состоянии —
// и рекордер, и плеер используют одни и те же формулы, чтобы не разойтись
// в выборе сегмента для одного и того же тика (см. REDESIGN FLAGS в
// исходной спецификации: было два расходящихся варианта этой формулы).
package tick

// Meta описывает вычисляемые (не хранимые) метаданные одного тика.
type Meta struct {
	Tick         int64
	TimeMs       int64
	SegmentIndex int64
}

// TimeMs переводит тик в миллисекунды относительно начала записи.
func TimeMs(t int64, tickRate int) int64 {
	return t * 1000 / int64(tickRate)
}

// TickFromTimeMs переводит миллисекунды в тик (округление вниз).
func TickFromTimeMs(ms int64, tickRate int) int64 {
	return ms * int64(tickRate) / 1000
}

// SegmentIndex возвращает индекс сегмента, которому принадлежит тик.
//
// Выбрана time-bucketed формула tick / segmentSize, как зафиксировано
// итоговой спецификацией; вторая формула источника (tick / tickRate *
// fileSeconds) сюда не попала, чтобы рекордер и плеер не разошлись.
func SegmentIndex(t int64, segmentSize int) int64 {
	return t / int64(segmentSize)
}

// MetaFor строит Meta для тика при данных tickRate/segmentSize.
func MetaFor(t int64, tickRate, segmentSize int) Meta {
	return Meta{
		Tick:         t,
		TimeMs:       TimeMs(t, tickRate),
		SegmentIndex: SegmentIndex(t, segmentSize),
	}
}
