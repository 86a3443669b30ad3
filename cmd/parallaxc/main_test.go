package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/parallax/spirv"
)

const scaleIR = `
name: scale
functions:
  - name: scale
    params:
      - {name: p, type: "ptr<buffer, f32>"}
    blocks:
      - name: entry
        instrs:
          - {result: v, op: load, args: ["%p"]}
          - {result: w, op: mul, domain: float, args: ["%v", "f32 2"]}
          - {op: store, args: ["%w", "%p"]}
          - {op: ret}
`

const wideIR = `
name: wide
functions:
  - name: wide
    params:
      - {name: p, type: "ptr<buffer, i24>"}
    blocks:
      - name: entry
        instrs:
          - {op: ret}
`

// badIR returns a value from a kernel, which must return void.
const badIR = `
name: bad
functions:
  - name: bad
    params:
      - {name: p, type: "ptr<buffer, i32>"}
    result: i32
    blocks:
      - name: entry
        instrs:
          - {op: ret, args: ["i32 0"]}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "scale.yaml", scaleIR)
	out := filepath.Join(dir, "scale.spv")

	output, err := run(t, "compile", in, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, output, "compiled "+in+" to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	words, err := spirv.BytesToWords(data)
	require.NoError(t, err)
	require.NoError(t, spirv.Verify(words))

	output, err = run(t, "verify", out)
	require.NoError(t, err)
	assert.Contains(t, output, "bound 37")

	output, err = run(t, "dis", out)
	require.NoError(t, err)
	assert.Contains(t, output, "; SPIR-V")
	assert.Contains(t, output, "OpEntryPoint GLCompute")
	assert.Contains(t, output, "OpFMul")
}

func TestCompileBatchToDirectory(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", scaleIR)
	b := writeFile(t, dir, "b.yaml", strings.ReplaceAll(scaleIR, "f32 2", "f32 3"))
	outDir := filepath.Join(dir, "out")

	_, err := run(t, "compile", "--jobs", "2", "-o", outDir, a, b)
	require.NoError(t, err)
	for _, name := range []string{"a.spv", "b.spv"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestCompileWithCache(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "scale.yaml", scaleIR)
	cacheDir := filepath.Join(dir, "cache")

	for range 2 {
		_, err := run(t, "compile", "--cache-dir", cacheDir, "-o", filepath.Join(dir, "scale.spv"), in)
		require.NoError(t, err)
	}
	entries, err := filepath.Glob(filepath.Join(cacheDir, "kernels", "*.mp"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompileWithCacheKeepsWarnings(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "wide.yaml", wideIR)
	cacheDir := filepath.Join(dir, "cache")

	// The second run is served from the disk cache.
	for range 2 {
		output, err := run(t, "compile", "--cache-dir", cacheDir, "-o", filepath.Join(dir, "wide.spv"), in)
		require.NoError(t, err)
		assert.Contains(t, output, "warning:")
	}
}

func TestCompileStrict(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "wide.yaml", wideIR)

	output, err := run(t, "compile", in, "-o", filepath.Join(dir, "wide.spv"))
	require.NoError(t, err)
	assert.Contains(t, output, "warning:")

	_, err = run(t, "compile", "--strict", in, "-o", filepath.Join(dir, "wide.spv"))
	require.Error(t, err)
	assert.True(t, spirv.IsUnsupported(err))
}

func TestCompileConfigFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "scale.yaml", scaleIR)
	cfg := writeFile(t, dir, "parallax.toml", "[spirv]\nversion = \"1.5\"\n\n[kernel]\nentry_point = \"run\"\n")
	out := filepath.Join(dir, "scale.spv")

	_, err := run(t, "compile", "--config", cfg, in, "-o", out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	h, err := spirv.ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, spirv.Version1_5, h.Version)

	// Flags override the file.
	_, err = run(t, "compile", "--config", cfg, "--spirv", "1.0", in, "-o", out)
	require.NoError(t, err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	h, err = spirv.ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, spirv.Version1_0, h.Version)
}

func TestCompileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", badIR)

	_, err := run(t, "compile", bad, "-o", filepath.Join(dir, "bad.spv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return void")

	_, err = run(t, "compile", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = run(t, "compile", "--spirv", "9.9", bad)
	require.Error(t, err)

	_, err = run(t, "compile")
	require.Error(t, err)
}

func TestFingerprintCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", scaleIR)
	b := writeFile(t, dir, "b.yaml", scaleIR)

	output, err := run(t, "fingerprint", a, b)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	fpA, _, _ := strings.Cut(lines[0], "  ")
	fpB, _, _ := strings.Cut(lines[1], "  ")
	assert.Len(t, fpA, 64)
	assert.Equal(t, fpA, fpB)
}

func TestABICommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "scale.yaml", scaleIR)

	output, err := run(t, "abi", in)
	require.NoError(t, err)
	for _, want := range []string{
		"module: scale",
		"entry_point: main",
		"workgroup_size: [256, 1, 1]",
		"type: f32",
		"stride: 4",
		"size: 4",
	} {
		assert.Contains(t, output, want)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "junk.spv", "not spirv")
	_, err := run(t, "verify", path)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	output, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "parallaxc "+Version)
}

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, []string{"k.spv"}, outputPaths([]string{"k.yaml"}, "k.spv", "."))
	assert.Equal(t, []string{filepath.Join("out", "k.spv")}, outputPaths([]string{"dir/k.yaml"}, "", "out"))
	assert.Equal(t,
		[]string{filepath.Join("o", "a.spv"), filepath.Join("o", "b.spv")},
		outputPaths([]string{"a.yaml", "b.msgpack"}, "o", "."))
}
