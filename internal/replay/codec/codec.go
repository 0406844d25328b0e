// Package codec реализует пары Encode/Decode для сегментов реплея (§4.A
// исходной спецификации). Ядро движка знает только интерфейс PayloadCodec;
// эта конкретная реализация хранит знание о формате на диске и остаётся
// заменяемой — все сегменты одной директории используют один и тот же кодек
// (записанный в header.json полем Codec, см. internal/replay/header).
package codec

// Segment — единица хранения: отображение tick -> payload плюс границы
// диапазона. Инварианты (должны соблюдаться вызывающей стороной до Encode):
// каждый ключ внутри [FirstTick, LastTick], ключи уникальны (гарантируется
// типом map), сегмент неизменяем после флаша.
type Segment[T any] struct {
	FirstTick int64
	LastTick  int64
	Data      map[int64]T
}

// PayloadCodec — чистая пара функций encode/decode. decode(encode(s)) == s
// для любого корректного сегмента; реализация не должна переупорядочивать
// логическое отображение и обязана точно сохранять целочисленные ключи тика.
type PayloadCodec[T any] interface {
	Encode(seg Segment[T]) ([]byte, error)
	Decode(data []byte) (Segment[T], error)
}

// PayloadMarshaler превращает отдельный payload в байты и обратно. Кодеки,
// которым нужно кадрировать payload отдельно от контейнера (binary, proto),
// принимают PayloadMarshaler вместо того, чтобы заглядывать внутрь T —
// ядро и кодек остаются безразличны к содержимому T, как того требует
// спецификация (payload — непрозрачный тип, инспектируемый только
// вызывающим кодом через onTick).
type PayloadMarshaler[T any] interface {
	MarshalPayload(v T) ([]byte, error)
	UnmarshalPayload(b []byte) (T, error)
}

// PayloadMarshalerFunc адаптирует пару функций к PayloadMarshaler,
// по аналогии с http.HandlerFunc.
type PayloadMarshalerFunc[T any] struct {
	MarshalFunc   func(T) ([]byte, error)
	UnmarshalFunc func([]byte) (T, error)
}

func (f PayloadMarshalerFunc[T]) MarshalPayload(v T) ([]byte, error) {
	return f.MarshalFunc(v)
}

func (f PayloadMarshalerFunc[T]) UnmarshalPayload(b []byte) (T, error) {
	return f.UnmarshalFunc(b)
}
