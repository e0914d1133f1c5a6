package sh

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIncludeKeepsSorted(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	paths := []string{"z.hlsli", "a.hlsli", "m/n.hlsli", "B.hlsli"}
	for i, p := range paths {
		require.NoError(t, f.AddInclude(Include{RelativePath: p, CRC32C: uint32(i + 1)}))
	}

	got := make([]string, len(f.Includes))
	for i, inc := range f.Includes {
		got[i] = inc.RelativePath
	}
	assert.True(t, sort.StringsAreSorted(got), "includes must stay sorted: %v", got)
}

func TestAddIncludeDuplicates(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	require.NoError(t, f.AddInclude(Include{RelativePath: "shared.hlsli", CRC32C: 0xAAAA}))

	// Same CRC: silently ignored.
	require.NoError(t, f.AddInclude(Include{RelativePath: "shared.hlsli", CRC32C: 0xAAAA}))
	assert.Len(t, f.Includes, 1)

	// Conflicting CRC: AlreadyDefined.
	err = f.AddInclude(Include{RelativePath: "shared.hlsli", CRC32C: 0xBBBB})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate), "want AlreadyDefined, got %v", err)
}

func TestAddIncludeValidation(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	assert.Error(t, f.AddInclude(Include{RelativePath: "", CRC32C: 1}))
	assert.Error(t, f.AddInclude(Include{RelativePath: "x.hlsli", CRC32C: 0}))
}

func TestNewRejectsUnknownFlags(t *testing.T) {
	_, err := New(Flags(1<<5), 1, 2)
	assert.Error(t, err)
}

func TestUTF8Detection(t *testing.T) {
	f, err := New(0, 1, 2)
	require.NoError(t, err)

	require.NoError(t, f.AddInclude(Include{RelativePath: "pfad/üben.hlsli", CRC32C: 7}))
	assert.NotZero(t, f.Flags&FlagIsUTF8)
}
