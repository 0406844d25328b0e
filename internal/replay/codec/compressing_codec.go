package codec

import (
	"fmt"

	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/klauspost/compress/zstd"
)

// CompressingCodec оборачивает любой PayloadCodec zstd-компрессией
// закодированных байт сегмента. Полезен для больших segmentSize, где
// повторяющиеся структуры payload дают заметный выигрыш по месту на диске.
type CompressingCodec[T any] struct {
	inner PayloadCodec[T]
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewCompressingCodec оборачивает inner. Кодер и декодер переиспользуются
// между вызовами (создание zstd.Encoder/Decoder не бесплатно).
func NewCompressingCodec[T any](inner PayloadCodec[T]) (*CompressingCodec[T], error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init zstd encoder: %v", errs.ErrIoError, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init zstd decoder: %v", errs.ErrIoError, err)
	}
	return &CompressingCodec[T]{inner: inner, enc: enc, dec: dec}, nil
}

func (c *CompressingCodec[T]) Encode(seg Segment[T]) ([]byte, error) {
	raw, err := c.inner.Encode(seg)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *CompressingCodec[T]) Decode(data []byte) (Segment[T], error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return Segment[T]{}, fmt.Errorf("%w: zstd decode: %v", errs.ErrCorrupt, err)
	}
	return c.inner.Decode(raw)
}

// Close releases the zstd encoder/decoder's background resources.
func (c *CompressingCodec[T]) Close() {
	c.enc.Close()
	c.dec.Close()
}
