package dlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeArgsTinyForm(t *testing.T) {
	args := []Argument{
		{ID: 0x20, Bytes: []byte("Datebook")},
		{ID: 0x21, Bytes: []byte{1, 2, 3}},
	}
	wire := EncodeArgs(args)

	got, err := DecodeArgs(wire, len(args))
	require.NoError(t, err)
	assert.Equal(t, args, got)
}

func TestEncodeDecodeArgsLongForm(t *testing.T) {
	big := make([]byte, 400)
	for i := range big {
		big[i] = byte(i)
	}
	args := []Argument{{ID: 0x20, Bytes: big}}
	wire := EncodeArgs(args)

	// Long form: id|0xC0, u16 size, 2 pad bytes, then body.
	require.True(t, isLongForm(wire[0]))
	got, err := DecodeArgs(wire, 1)
	require.NoError(t, err)
	assert.Equal(t, big, got[0].Bytes)
	assert.Equal(t, byte(0x20), got[0].ID)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	req := Request{
		Opcode: OpOpenDB,
		Args: []Argument{
			{ID: 0x20, Bytes: []byte{0x00, 0x80}},
			{ID: 0x21, Bytes: EncodeName32("Datebook")},
		},
	}
	wire := req.Encode()
	assert.Equal(t, OpOpenDB, wire[0])
	assert.Equal(t, byte(2), wire[1])

	respWire := Response{
		Opcode: OpOpenDB | ResponseOpcodeBit,
		Status: StatusNoErr,
		Args:   []Argument{{ID: 0x20, Bytes: []byte{7}}},
	}.Encode()
	resp, err := DecodeResponse(respWire)
	require.NoError(t, err)
	assert.Equal(t, StatusNoErr, resp.Status)
	a, ok := resp.Arg(0x20)
	require.True(t, ok)
	assert.Equal(t, []byte{7}, a.Bytes)
}

func TestEncodeDecodeDateTime(t *testing.T) {
	want := time.Date(2026, time.July, 29, 10, 30, 0, 0, time.Local)
	wire := EncodeDateTime(want)
	require.Len(t, wire, 8)

	got, err := DecodeDateTime(wire)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestEncodeDecodeDateTimeZero(t *testing.T) {
	wire := EncodeDateTime(time.Time{})
	got, err := DecodeDateTime(wire)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestEncodeDecodeName32(t *testing.T) {
	wire := EncodeName32("Datebook")
	require.Len(t, wire, 32)
	assert.Equal(t, "Datebook", DecodeName32(wire))
}
