package sh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/sb"
)

func fileWithBinary(t *testing.T) *File {
	t.Helper()
	f, err := New(0, 1, 2)
	require.NoError(t, err)
	info := computeBinary()
	require.NoError(t, f.AddBinary(&info))
	return f
}

func computeEntry() Entry {
	return Entry{
		Name:   "main",
		Stage:  StageCompute,
		GroupX: 8, GroupY: 8, GroupZ: 1,
		BinaryIDs: []uint16{0},
	}
}

func TestAddEntrypoint(t *testing.T) {
	f := fileWithBinary(t)
	entry := computeEntry()
	require.NoError(t, f.AddEntrypoint(&entry))
	assert.Len(t, f.Entries, 1)
	assert.Empty(t, entry.Name, "entry must be consumed")
}

func TestAddEntrypointValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"empty name", func(e *Entry) { e.Name = "" }},
		{"invalid stage", func(e *Entry) { e.Stage = StageCount }},
		{"binary id out of range", func(e *Entry) { e.BinaryIDs = []uint16{7} }},
		{"wave nibble too large", func(e *Entry) { e.WaveSize = MakeWaveSize(10, 0, 0, 0) }},
		{"zero group size", func(e *Entry) { e.GroupX, e.GroupY, e.GroupZ = 0, 0, 0 }},
		{"group product too large", func(e *Entry) { e.GroupX, e.GroupY, e.GroupZ = 512, 2, 1 }},
		{"group z too large", func(e *Entry) { e.GroupX, e.GroupY, e.GroupZ = 1, 1, 65 }},
		{"payload on compute", func(e *Entry) { e.PayloadSize = 8 }},
		{"intersection on compute", func(e *Entry) { e.IntersectionSize = 8 }},
		{"io on compute", func(e *Entry) { e.Inputs[0] = sb.TypeF32x4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fileWithBinary(t)
			entry := computeEntry()
			tt.mutate(&entry)
			want := entry
			err := f.AddEntrypoint(&entry)
			require.Error(t, err)
			assert.Equal(t, want, entry, "entry must survive a failed add")
		})
	}
}

func TestWaveSizeOnlyForCompute(t *testing.T) {
	f := fileWithBinary(t)
	entry := Entry{Name: "vs", Stage: StageVertex, WaveSize: MakeWaveSize(4, 0, 0, 0)}
	assert.Error(t, f.AddEntrypoint(&entry))

	compute := computeEntry()
	compute.WaveSize = MakeWaveSize(4, 2, 6, 5)
	assert.NoError(t, f.AddEntrypoint(&compute))
}

func TestRaytracingSizes(t *testing.T) {
	f := fileWithBinary(t)

	miss := Entry{Name: "miss", Stage: StageMiss}
	assert.Error(t, f.AddEntrypoint(&miss), "payload required")

	miss.PayloadSize = 130
	assert.Error(t, f.AddEntrypoint(&miss), "payload too large")

	miss.PayloadSize = 7
	assert.Error(t, f.AddEntrypoint(&miss), "payload must be 2-byte aligned")

	miss.PayloadSize = 8
	require.NoError(t, f.AddEntrypoint(&miss))

	hit := Entry{Name: "hit", Stage: StageClosestHit, PayloadSize: 8}
	assert.Error(t, f.AddEntrypoint(&hit), "intersection size required")

	hit.IntersectionSize = 34
	assert.Error(t, f.AddEntrypoint(&hit), "intersection too large")

	hit.IntersectionSize = 8
	require.NoError(t, f.AddEntrypoint(&hit))
}

func graphicsEntry() Entry {
	e := Entry{Name: "mainVS", Stage: StageVertex}
	e.Inputs[0] = sb.TypeF32x4
	e.Inputs[1] = sb.TypeF32x2
	e.Outputs[0] = sb.TypeF32x4
	e.UniqueInputSemantics = 1
	e.SemanticNames = []string{"NORMAL"}
	e.InputSemantics[1] = 1 << 4
	return e
}

func TestGraphicsIOValidation(t *testing.T) {
	f := fileWithBinary(t)

	e := graphicsEntry()
	require.NoError(t, f.AddEntrypoint(&e))

	sparse := graphicsEntry()
	sparse.Inputs[1] = 0
	sparse.Inputs[3] = sb.TypeF32
	sparse.InputSemantics[1] = 0
	err := f.AddEntrypoint(&sparse)
	assert.Error(t, err, "slots must form a dense prefix")

	matrix := graphicsEntry()
	matrix.Inputs[0] = sb.MakeType(sb.StrideX32, sb.PrimitiveFloat, sb.VecN4, sb.MatN4)
	assert.Error(t, f.AddEntrypoint(&matrix), "matrices are flattened before entry I/O")

	danglingSemantic := graphicsEntry()
	danglingSemantic.InputSemantics[5] = 1 << 4
	assert.Error(t, f.AddEntrypoint(&danglingSemantic), "semantic on empty slot")

	dupSemantic := graphicsEntry()
	dupSemantic.SemanticNames = []string{"NORMAL", "normal"}
	dupSemantic.UniqueInputSemantics = 2
	assert.Error(t, f.AddEntrypoint(&dupSemantic), "case-insensitive duplicate")

	badRef := graphicsEntry()
	badRef.InputSemantics[1] = 2 << 4
	assert.Error(t, f.AddEntrypoint(&badRef), "semantic id out of bounds")
}

func TestEntryRuntimeCombinations(t *testing.T) {
	r := EntryRuntime{Entry: computeEntry()}
	assert.Equal(t, uint32(1), r.Combinations())

	r.ShaderModels = []ShaderModel{MakeShaderModel(6, 5), MakeShaderModel(6, 6)}
	r.Extensions = []Extension{0, ExtF64, ExtF64 | ExtI64}
	r.UniformsPerPermutation = []uint8{0, 2}
	r.UniformValues = []Uniform{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}
	assert.Equal(t, uint32(12), r.Combinations())
}

func TestIdentifierAtDecomposition(t *testing.T) {
	r := EntryRuntime{Entry: computeEntry()}
	r.ShaderModels = []ShaderModel{MakeShaderModel(6, 5), MakeShaderModel(6, 6)}
	r.Extensions = []Extension{0, ExtF64}
	r.UniformsPerPermutation = []uint8{0, 1}
	r.UniformValues = []Uniform{{Name: "QUALITY", Value: "2"}}

	// Column-major: shader model varies fastest.
	id0, err := r.IdentifierAt(0)
	require.NoError(t, err)
	assert.Equal(t, MakeShaderModel(6, 5), id0.ShaderModel)
	assert.Zero(t, id0.Extensions)
	assert.Empty(t, id0.Uniforms)

	id1, err := r.IdentifierAt(1)
	require.NoError(t, err)
	assert.Equal(t, MakeShaderModel(6, 6), id1.ShaderModel)

	id2, err := r.IdentifierAt(2)
	require.NoError(t, err)
	assert.Equal(t, MakeShaderModel(6, 5), id2.ShaderModel)
	assert.Equal(t, ExtF64, id2.Extensions)

	id7, err := r.IdentifierAt(7)
	require.NoError(t, err)
	assert.Equal(t, []Uniform{{Name: "QUALITY", Value: "2"}}, id7.Uniforms)

	_, err = r.IdentifierAt(8)
	assert.Error(t, err)
}

func TestRaytracingStageCollapses(t *testing.T) {
	for _, stage := range []Stage{StageRaygen, StageCallable, StageMiss, StageClosestHit, StageAnyHit, StageIntersection} {
		r := EntryRuntime{Entry: Entry{Name: "rt", Stage: stage}}
		id, err := r.IdentifierAt(0)
		require.NoError(t, err)
		assert.Equal(t, StageRaygen, id.Stage, "stage %s must collapse", stage)
	}
}

func TestWaveSizeMerge(t *testing.T) {
	a := MakeWaveSize(0, 4, 8, 0)
	b := MakeWaveSize(0, 4, 8, 6)

	merged, ok := a.Merge(b)
	require.True(t, ok)
	assert.Equal(t, MakeWaveSize(0, 4, 8, 6), merged)

	conflicting := MakeWaveSize(0, 5, 8, 0)
	_, ok = a.Merge(conflicting)
	assert.False(t, ok, "min slot differs")
}
