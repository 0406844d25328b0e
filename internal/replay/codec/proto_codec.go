package codec

import (
	"fmt"

	"github.com/annel0/replaycore/internal/replay/errs"
	"google.golang.org/protobuf/proto"
)

// ProtoCodec кадрирует protobuf-сообщения тем же индекс+данные форматом,
// что и BinaryCodec, но кадрирует каждый payload через proto.Marshal —
// для вызывающих, мигрирующих с protobuf-протокола игрового сервера
// (internal/protocol/events), где события уже являются proto.Message.
type ProtoCodec[T proto.Message] struct {
	binary BinaryCodec[T]
}

// NewProtoCodec создаёт protobuf-кодек. newT должна возвращать новый,
// пустой экземпляр T для каждого вызова Decode (proto.Unmarshal пишет в
// уже выделенное сообщение).
func NewProtoCodec[T proto.Message](newT func() T) ProtoCodec[T] {
	return ProtoCodec[T]{
		binary: NewBinaryCodec[T](PayloadMarshalerFunc[T]{
			MarshalFunc: func(v T) ([]byte, error) {
				b, err := proto.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("%w: proto marshal: %v", errs.ErrIoError, err)
				}
				return b, nil
			},
			UnmarshalFunc: func(b []byte) (T, error) {
				msg := newT()
				if err := proto.Unmarshal(b, msg); err != nil {
					var zero T
					return zero, fmt.Errorf("%w: proto unmarshal: %v", errs.ErrCorrupt, err)
				}
				return msg, nil
			},
		}),
	}
}

func (c ProtoCodec[T]) Encode(seg Segment[T]) ([]byte, error) { return c.binary.Encode(seg) }
func (c ProtoCodec[T]) Decode(raw []byte) (Segment[T], error) { return c.binary.Decode(raw) }
