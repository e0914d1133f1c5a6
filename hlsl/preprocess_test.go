package hlsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/oish/compiler"
	"github.com/gogpu/oish/wire"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPreprocessExpandsIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.hlsli", "float4 shared_fn();")
	main := writeFile(t, dir, "main.hlsl", "#include \"common.hlsli\"\nvoid main() {}")

	res := Preprocess(compiler.Settings{
		Source: "#include \"common.hlsli\"\nvoid main() {}",
		Path:   main,
	})
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Contains(t, res.Text, "float4 shared_fn();")
	assert.Contains(t, res.Text, "void main() {}")

	require.Len(t, res.IncludeInfo, 1)
	info := res.IncludeInfo[0]
	assert.Equal(t, "common.hlsli", info.File)
	assert.Equal(t, wire.CRC32CStripCR([]byte("float4 shared_fn();")), info.CRC32C)
	assert.Equal(t, uint64(1), info.Counter)
}

func TestPreprocessCountsRepeatedIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hlsli", "// a")
	source := "#include \"a.hlsli\"\n#include \"a.hlsli\"\n"
	main := writeFile(t, dir, "main.hlsl", source)

	res := Preprocess(compiler.Settings{Source: source, Path: main})
	require.True(t, res.Success)
	require.Len(t, res.IncludeInfo, 1)
	assert.Equal(t, uint64(2), res.IncludeInfo[0].Counter)
}

func TestPreprocessNestedIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inner.hlsli", "int inner;")
	writeFile(t, dir, "outer.hlsli", "#include \"inner.hlsli\"\nint outer;")
	source := "#include \"outer.hlsli\"\nvoid main() {}"
	main := writeFile(t, dir, "main.hlsl", source)

	res := Preprocess(compiler.Settings{Source: source, Path: main})
	require.True(t, res.Success)
	assert.Contains(t, res.Text, "int inner;")
	assert.Contains(t, res.Text, "int outer;")
	assert.Len(t, res.IncludeInfo, 2)
}

func TestPreprocessIncludeDirFallback(t *testing.T) {
	srcDir := t.TempDir()
	incDir := t.TempDir()
	writeFile(t, incDir, "lib.hlsli", "int lib;")
	source := "#include <lib.hlsli>\n"
	main := writeFile(t, srcDir, "main.hlsl", source)

	res := Preprocess(compiler.Settings{Source: source, Path: main, IncludeDir: incDir})
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Contains(t, res.Text, "int lib;")
}

func TestPreprocessMissingInclude(t *testing.T) {
	dir := t.TempDir()
	source := "#include \"nope.hlsli\"\n"
	main := writeFile(t, dir, "main.hlsl", source)

	res := Preprocess(compiler.Settings{Source: source, Path: main})
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, compiler.SeverityError, res.Errors[0].Severity)
	assert.Equal(t, uint32(1), res.Errors[0].Line)
}

func TestPreprocessIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hlsli", "#include \"b.hlsli\"")
	writeFile(t, dir, "b.hlsli", "#include \"a.hlsli\"")
	source := "#include \"a.hlsli\"\n"
	main := writeFile(t, dir, "main.hlsl", source)

	res := Preprocess(compiler.Settings{Source: source, Path: main})
	assert.False(t, res.Success)
}
