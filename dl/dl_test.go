package dl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/wire"
)

func TestFindRegions(t *testing.T) {
	l := New(DataASCII)
	for _, s := range []string{"alpha", "beta", "gamma", "beta2"} {
		_, err := l.AppendString(s)
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(1), l.FindString(0, uint64(l.Len()), "beta"))
	assert.Equal(t, NotFound, l.FindString(2, uint64(l.Len()), "beta"))
	assert.Equal(t, NotFound, l.FindString(0, 1, "beta"))
	assert.Equal(t, NotFound, l.FindString(0, uint64(l.Len()), "Beta"))
}

func TestFindOrAppend(t *testing.T) {
	l := New(DataASCII)
	i, err := l.FindOrAppend(0, []byte("x"))
	require.NoError(t, err)
	j, err := l.FindOrAppend(0, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, i, j)
	assert.Equal(t, 1, l.Len())

	// A region start past the entry forces a fresh append.
	k, err := l.FindOrAppend(1, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, k)
	assert.Equal(t, 2, l.Len())
}

func TestASCIIRejectsUTF8(t *testing.T) {
	l := New(DataASCII)
	_, err := l.AppendString("héllo")
	assert.Error(t, err)

	u := New(DataUTF8)
	_, err = u.AppendString("héllo")
	assert.NoError(t, err)
}

func TestEntryLengthLimit(t *testing.T) {
	l := New(DataASCII)
	_, err := l.AppendString(strings.Repeat("a", MaxEntryLen))
	require.NoError(t, err)
	_, err = l.AppendString(strings.Repeat("a", MaxEntryLen+1))
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		dataType  DataType
		entries   []string
		hideMagic bool
	}{
		{"ascii with magic", DataASCII, []string{"one", "", "three"}, false},
		{"ascii embedded", DataASCII, []string{"main", "TEXCOORD"}, true},
		{"utf8", DataUTF8, []string{"héllo", "wörld"}, true},
		{"empty", DataASCII, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.dataType)
			for _, s := range tt.entries {
				_, err := l.AppendString(s)
				require.NoError(t, err)
			}
			blob := l.Write(WriteOptions{HideMagic: tt.hideMagic})

			r := wire.NewReader(blob)
			got, err := Read(r, tt.hideMagic)
			require.NoError(t, err)
			require.Equal(t, len(tt.entries), got.Len())
			for i, s := range tt.entries {
				assert.Equal(t, s, got.String(i))
			}
			assert.Equal(t, 0, r.Remaining())
		})
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	l := New(DataASCII)
	blob := l.Write(WriteOptions{})
	blob[0] ^= 0xFF
	_, err := Read(wire.NewReader(blob), false)
	assert.Error(t, err)
}

func TestReadRejectsMagicMismatch(t *testing.T) {
	l := New(DataASCII)
	blob := l.Write(WriteOptions{HideMagic: true})
	// Written embedded, read as standalone.
	_, err := Read(wire.NewReader(blob), false)
	assert.Error(t, err)
}
