package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/annel0/replaycore/internal/replay/errs"
)

// Формат бинарного сегмента (little-endian), по образцу magic+index+data
// из бинарного кеша тикетов в пакете примеров:
//
//	offset 0:  magic "TRC1" (4 bytes)
//	offset 4:  version uint16
//	offset 6:  entryCount uint32
//	offset 10: firstTick int64
//	offset 18: lastTick int64
//	offset 26: reserved (6 bytes, zero)
//	offset 32: index, entryCount * 16 bytes: {tick int64, offset uint32, length uint32}
//	...:       data section, concatenated payload bytes
const (
	binaryMagic      = "TRC1"
	binaryVersion    = uint16(1)
	binaryHeaderSize = 32
	binaryIndexEntry = 16
)

// BinaryCodec кадрирует каждый payload через PayloadMarshaler и упаковывает
// их в один плотный бинарный файл с индексом по тику для быстрого
// частичного чтения. Используется, когда T не сериализуется в JSON напрямую
// или когда важен компактный размер сегмента на диске.
type BinaryCodec[T any] struct {
	marshaler PayloadMarshaler[T]
}

// NewBinaryCodec создаёт бинарный кодек с заданным маршалером payload.
func NewBinaryCodec[T any](marshaler PayloadMarshaler[T]) BinaryCodec[T] {
	return BinaryCodec[T]{marshaler: marshaler}
}

func (c BinaryCodec[T]) Encode(seg Segment[T]) ([]byte, error) {
	ticks := make([]int64, 0, len(seg.Data))
	for t := range seg.Data {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	var dataBuf bytes.Buffer
	offsets := make([]uint32, len(ticks))
	lengths := make([]uint32, len(ticks))

	for i, t := range ticks {
		payload, err := c.marshaler.MarshalPayload(seg.Data[t])
		if err != nil {
			return nil, fmt.Errorf("%w: marshal payload at tick %d: %v", errs.ErrIoError, t, err)
		}
		offsets[i] = uint32(dataBuf.Len())
		lengths[i] = uint32(len(payload))
		dataBuf.Write(payload)
	}

	indexSize := len(ticks) * binaryIndexEntry
	dataOffset := binaryHeaderSize + indexSize
	out := make([]byte, dataOffset+dataBuf.Len())

	copy(out[0:4], binaryMagic)
	binary.LittleEndian.PutUint16(out[4:6], binaryVersion)
	binary.LittleEndian.PutUint32(out[6:10], uint32(len(ticks)))
	binary.LittleEndian.PutUint64(out[10:18], uint64(seg.FirstTick))
	binary.LittleEndian.PutUint64(out[18:26], uint64(seg.LastTick))

	for i, t := range ticks {
		off := binaryHeaderSize + i*binaryIndexEntry
		binary.LittleEndian.PutUint64(out[off:off+8], uint64(t))
		binary.LittleEndian.PutUint32(out[off+8:off+12], offsets[i]+uint32(dataOffset))
		binary.LittleEndian.PutUint32(out[off+12:off+16], lengths[i])
	}

	copy(out[dataOffset:], dataBuf.Bytes())
	return out, nil
}

func (c BinaryCodec[T]) Decode(raw []byte) (Segment[T], error) {
	if len(raw) < binaryHeaderSize {
		return Segment[T]{}, fmt.Errorf("%w: file too small for header", errs.ErrCorrupt)
	}
	if string(raw[0:4]) != binaryMagic {
		return Segment[T]{}, fmt.Errorf("%w: bad magic", errs.ErrCorrupt)
	}
	if version := binary.LittleEndian.Uint16(raw[4:6]); version != binaryVersion {
		return Segment[T]{}, fmt.Errorf("%w: version mismatch (got %d)", errs.ErrCorrupt, version)
	}

	entryCount := int(binary.LittleEndian.Uint32(raw[6:10]))
	firstTick := int64(binary.LittleEndian.Uint64(raw[10:18]))
	lastTick := int64(binary.LittleEndian.Uint64(raw[18:26]))

	indexEnd := binaryHeaderSize + entryCount*binaryIndexEntry
	if len(raw) < indexEnd {
		return Segment[T]{}, fmt.Errorf("%w: file too small for index", errs.ErrCorrupt)
	}

	data := make(map[int64]T, entryCount)
	for i := 0; i < entryCount; i++ {
		off := binaryHeaderSize + i*binaryIndexEntry
		t := int64(binary.LittleEndian.Uint64(raw[off : off+8]))
		dataOffset := binary.LittleEndian.Uint32(raw[off+8 : off+12])
		length := binary.LittleEndian.Uint32(raw[off+12 : off+16])

		if uint64(dataOffset)+uint64(length) > uint64(len(raw)) {
			return Segment[T]{}, fmt.Errorf("%w: entry %d out of bounds", errs.ErrCorrupt, i)
		}

		payload, err := c.marshaler.UnmarshalPayload(raw[dataOffset : dataOffset+length])
		if err != nil {
			return Segment[T]{}, fmt.Errorf("%w: unmarshal payload at tick %d: %v", errs.ErrCorrupt, t, err)
		}
		data[t] = payload
	}

	return Segment[T]{FirstTick: firstTick, LastTick: lastTick, Data: data}, nil
}
