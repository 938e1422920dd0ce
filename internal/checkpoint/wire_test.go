package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/moduleimage"
)

func sampleState() State {
	return State{
		Globals: []moduleimage.Value{moduleimage.I32(7), moduleimage.I64(9)},
		Memories: []MemoryState{
			{Pages: 1, Data: append(make([]byte, linearmemory.PageSize-1), 0xAB)},
		},
		Tables: []TableState{
			{ElemType: moduleimage.FuncRef(0).Type, Elements: []moduleimage.Value{moduleimage.FuncRef(3)}},
		},
		Operand: []moduleimage.Value{moduleimage.I32(1), moduleimage.I32(2)},
		Frames: []FrameState{
			{
				FuncIndex: 2,
				PC:        5,
				ValueBase: 0,
				Locals:    []moduleimage.Value{moduleimage.I32(42)},
				Labels:    []moduleimage.Label{{ArityIn: 1, ArityOut: 2, ContinuationPC: 9, IsLoop: true}},
			},
		},
		Fuel: 1234,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := sampleState()
	encoded := Encode(s)

	require.Equal(t, "WRTC", string(encoded[:4]))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, s, decoded)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	encoded := Encode(sampleState())
	encoded[0] = 'X'

	_, err := Decode(encoded)
	require.Error(t, err)
}

func TestDecodeRejectsCorruptedTrailer(t *testing.T) {
	encoded := Encode(sampleState())
	// Flip a byte in the middle of the body; the crc32 trailer no
	// longer matches, so Decode must report integrity failure rather
	// than silently parsing the corrupted state.
	encoded[10] ^= 0xFF

	_, err := Decode(encoded)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	encoded := Encode(sampleState())

	_, err := Decode(encoded[:len(encoded)-20])
	require.Error(t, err)
}

func TestEncodeEmptyState(t *testing.T) {
	encoded := Encode(State{})
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, State{
		Globals:  []moduleimage.Value{},
		Memories: []MemoryState{},
		Tables:   []TableState{},
		Operand:  []moduleimage.Value{},
		Frames:   []FrameState{},
	}, decoded)
}
