package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredSizeType(t *testing.T) {
	tests := []struct {
		value uint64
		want  SizeType
	}{
		{0, SizeU8},
		{255, SizeU8},
		{256, SizeU16},
		{65535, SizeU16},
		{65536, SizeU32},
		{1 << 32, SizeU64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredSizeType(tt.value), "value %d", tt.value)
	}
}

func TestSizedRoundTrip(t *testing.T) {
	for _, st := range []SizeType{SizeU8, SizeU16, SizeU32, SizeU64} {
		w := NewWriter(16)
		w.Sized(st, 200)
		require.Equal(t, st.Bytes(), w.Len())

		r := NewReader(w.Bytes())
		v, err := r.Sized(st)
		require.NoError(t, err)
		assert.Equal(t, uint64(200), v)
	}
}

func TestReaderBounds(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.U32()
	require.Error(t, err)

	// A failed read must not consume anything.
	v, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)

	_, err = r.U8()
	assert.Error(t, err)
}

func TestCRC32CStripCR(t *testing.T) {
	plain := CRC32C([]byte("a\nb\nc"))
	windows := CRC32CStripCR([]byte("a\r\nb\r\nc"))
	assert.Equal(t, plain, windows)

	unix := CRC32CStripCR([]byte("a\nb\nc"))
	assert.Equal(t, plain, unix)
}

func TestFNV1a64(t *testing.T) {
	// Reference vector: fnv1a64("a") = 0xAF63DC4C8601EC8C.
	assert.Equal(t, uint64(0xAF63DC4C8601EC8C), FNV1a64(FNV1a64Offset, []byte("a")))

	// Folding a value twice must differ from folding it once.
	h1 := FNV1a64U64(FNV1a64Offset, 42)
	h2 := FNV1a64U64(h1, 42)
	assert.NotEqual(t, h1, h2)
}

func TestWriterPatch(t *testing.T) {
	w := NewWriter(8)
	w.U32(0)
	w.U32(7)
	w.PatchU32(0, 0xDEADBEEF)

	r := NewReader(w.Bytes())
	v, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}
