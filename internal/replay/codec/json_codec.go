package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/annel0/replaycore/internal/replay/errs"
)

// jsonSegment отражает на диске ровно то, что требует §6 спецификации:
// firstTick, lastTick и data, где ключи data — десятичные строки тика.
// encoding/json сам кодирует map[int64]T с квотированными int-ключами и
// умеет декодировать их обратно, но мы держим промежуточный тип, чтобы
// явно контролировать порядок полей и принять как строковые, так и
// (на всякий случай) числовые ключи на decode, как того требует §6.
type jsonSegment struct {
	FirstTick int64                      `json:"firstTick"`
	LastTick  int64                      `json:"lastTick"`
	Data      map[string]json.RawMessage `json:"data"`
}

// JSONCodec — кодек по умолчанию: тот же формат, что и header.json,
// применённый к сегментам. Подходит для любого T, сериализуемого в JSON.
type JSONCodec[T any] struct{}

// NewJSONCodec создаёт JSON-кодек для payload-типа T.
func NewJSONCodec[T any]() JSONCodec[T] {
	return JSONCodec[T]{}
}

func (JSONCodec[T]) Encode(seg Segment[T]) ([]byte, error) {
	data := make(map[string]json.RawMessage, len(seg.Data))
	for tick, payload := range seg.Data {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal payload at tick %d: %v", errs.ErrIoError, tick, err)
		}
		data[strconv.FormatInt(tick, 10)] = raw
	}

	out, err := json.Marshal(jsonSegment{
		FirstTick: seg.FirstTick,
		LastTick:  seg.LastTick,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal segment: %v", errs.ErrIoError, err)
	}
	return out, nil
}

func (JSONCodec[T]) Decode(raw []byte) (Segment[T], error) {
	var js jsonSegment
	if err := json.Unmarshal(raw, &js); err != nil {
		return Segment[T]{}, fmt.Errorf("%w: %v", errs.ErrCorrupt, err)
	}

	data := make(map[int64]T, len(js.Data))
	for key, rawPayload := range js.Data {
		tick, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return Segment[T]{}, fmt.Errorf("%w: tick key %q is not numeric: %v", errs.ErrCorrupt, key, err)
		}

		var payload T
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return Segment[T]{}, fmt.Errorf("%w: decode payload at tick %d: %v", errs.ErrCorrupt, tick, err)
		}
		data[tick] = payload
	}

	return Segment[T]{
		FirstTick: js.FirstTick,
		LastTick:  js.LastTick,
		Data:      data,
	}, nil
}
