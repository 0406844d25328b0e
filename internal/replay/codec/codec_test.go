package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/annel0/replaycore/internal/replay/errs"
)

func stringMarshaler() PayloadMarshaler[string] {
	return PayloadMarshalerFunc[string]{
		MarshalFunc:   func(v string) ([]byte, error) { return []byte(v), nil },
		UnmarshalFunc: func(b []byte) (string, error) { return string(b), nil },
	}
}

// TestCodecs_RoundTrip is spec.md §8 Testable Property 2:
// decode(encode(s)) == s for a well-formed segment, for the JSON and binary
// codecs. The proto and compressing codecs have their own round-trip tests.
func TestCodecs_RoundTrip(t *testing.T) {
	seg := Segment[string]{
		FirstTick: 10,
		LastTick:  12,
		Data:      map[int64]string{10: "a", 11: "b", 12: "c"},
	}

	cases := []struct {
		name  string
		codec PayloadCodec[string]
	}{
		{"json", NewJSONCodec[string]()},
		{"binary", NewBinaryCodec[string](stringMarshaler())},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.codec.Encode(seg)
			require.NoError(t, err)

			got, err := tc.codec.Decode(raw)
			require.NoError(t, err)

			assert.Equal(t, seg.FirstTick, got.FirstTick)
			assert.Equal(t, seg.LastTick, got.LastTick)
			assert.Equal(t, seg.Data, got.Data)
		})
	}
}

func TestCodecs_RoundTripEmptySegment(t *testing.T) {
	seg := Segment[string]{FirstTick: 0, LastTick: 0, Data: map[int64]string{}}

	for _, c := range []PayloadCodec[string]{NewJSONCodec[string](), NewBinaryCodec[string](stringMarshaler())} {
		raw, err := c.Encode(seg)
		require.NoError(t, err)

		got, err := c.Decode(raw)
		require.NoError(t, err)
		assert.Empty(t, got.Data)
	}
}

func TestProtoCodec_RoundTrip(t *testing.T) {
	c := NewProtoCodec[*wrapperspb.StringValue](func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })

	seg := Segment[*wrapperspb.StringValue]{
		FirstTick: 0,
		LastTick:  1,
		Data: map[int64]*wrapperspb.StringValue{
			0: wrapperspb.String("a"),
			1: wrapperspb.String("b"),
		},
	}

	raw, err := c.Encode(seg)
	require.NoError(t, err)

	got, err := c.Decode(raw)
	require.NoError(t, err)

	require.Len(t, got.Data, 2)
	assert.Equal(t, "a", got.Data[0].GetValue())
	assert.Equal(t, "b", got.Data[1].GetValue())
}

func TestCompressingCodec_RoundTrip(t *testing.T) {
	c, err := NewCompressingCodec[string](NewJSONCodec[string]())
	require.NoError(t, err)
	defer c.Close()

	seg := Segment[string]{FirstTick: 0, LastTick: 2, Data: map[int64]string{0: "x", 1: "y", 2: "z"}}

	raw, err := c.Encode(seg)
	require.NoError(t, err)

	got, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, seg.Data, got.Data)
}

func TestJSONCodec_CorruptDataIsErrCorrupt(t *testing.T) {
	_, err := NewJSONCodec[string]().Decode([]byte("not json"))
	assert.True(t, errors.Is(err, errs.ErrCorrupt))
}

func TestBinaryCodec_TruncatedDataIsErrCorrupt(t *testing.T) {
	_, err := NewBinaryCodec[string](stringMarshaler()).Decode([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, errs.ErrCorrupt))
}

func TestBinaryCodec_BadMagicIsErrCorrupt(t *testing.T) {
	raw := make([]byte, binaryHeaderSize)
	copy(raw, "XXXX")
	_, err := NewBinaryCodec[string](stringMarshaler()).Decode(raw)
	assert.True(t, errors.Is(err, errs.ErrCorrupt))
}
