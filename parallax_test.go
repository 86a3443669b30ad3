package parallax

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/parallax/ir"
	"github.com/gogpu/parallax/spirv"
)

func scaleModule(name string, k float32) *ir.Module {
	b := ir.NewFunction(name, ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
	p := b.Param(0)
	b.Store(b.Mul(ir.Float, b.Load(p), ir.F32Const(k)), p)
	b.Ret(nil)
	return &ir.Module{Name: name, Functions: []*ir.Function{b.Function()}}
}

// TestCompileScale tests compilation of a buffer-scaling kernel.
func TestCompileScale(t *testing.T) {
	kernel, err := Compile(scaleModule("scale", 2))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// Check SPIR-V magic number (little-endian: 0x07230203)
	if len(kernel.SPIRV) < 20 {
		t.Fatal("SPIR-V output too short (should have at least 5-word header)")
	}
	magic := uint32(kernel.SPIRV[0]) | uint32(kernel.SPIRV[1])<<8 | uint32(kernel.SPIRV[2])<<16 | uint32(kernel.SPIRV[3])<<24
	if magic != spirv.MagicNumber {
		t.Errorf("Invalid SPIR-V magic: got 0x%08x, want 0x%08x", magic, spirv.MagicNumber)
	}

	if kernel.Name != "scale" || kernel.ABI.EntryPoint != "main" {
		t.Errorf("kernel: name %q entry point %q", kernel.Name, kernel.ABI.EntryPoint)
	}
	if len(kernel.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", kernel.Warnings)
	}
}

func TestCompileWithOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.SPIRVVersion = spirv.Version1_5
	opts.EntryPoint = "scale_kernel"
	opts.Debug = true

	kernel, err := CompileWithOptions(scaleModule("scale", 2), opts)
	if err != nil {
		t.Fatalf("CompileWithOptions failed: %v", err)
	}
	h, err := spirv.ReadHeader(kernel.SPIRV)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != spirv.Version1_5 {
		t.Errorf("version: got %s, want 1.5", h.Version)
	}
	if kernel.ABI.EntryPoint != "scale_kernel" {
		t.Errorf("entry point: got %q", kernel.ABI.EntryPoint)
	}
	text, err := spirv.DisassembleBytes(kernel.SPIRV)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `OpName`) {
		t.Error("debug names missing")
	}
}

func TestCompileValidationFailure(t *testing.T) {
	b := ir.NewFunction("bad", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
	b.Store(ir.I32Const(1), b.Param(0))
	b.Ret(nil)
	m := &ir.Module{Name: "bad", Functions: []*ir.Function{b.Function()}}

	_, err := Compile(m)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ir.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("got %T, want a wrapped *ir.ValidationError", err)
	}

	// Without IR validation the generator still rejects the module.
	opts := DefaultOptions()
	opts.Validate = false
	_, err = CompileWithOptions(&ir.Module{Name: "empty"}, opts)
	if !spirv.IsStructural(err) {
		t.Errorf("got %v, want structural error", err)
	}
	if err != nil && !strings.HasPrefix(err.Error(), "SPIR-V generation error: ") {
		t.Errorf("error not wrapped: %v", err)
	}
}

func TestCompileStrict(t *testing.T) {
	b := ir.NewFunction("wide", ir.Void, ir.Ptr(ir.FloatType{Width: 128}, ir.SpaceBuffer))
	b.Ret(nil)
	m := &ir.Module{Name: "wide", Functions: []*ir.Function{b.Function()}}

	kernel, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(kernel.Warnings) != 1 || !spirv.IsUnsupported(kernel.Warnings[0]) {
		t.Errorf("warnings: got %v, want one unsupported report", kernel.Warnings)
	}

	opts := DefaultOptions()
	opts.Strict = true
	if _, err := CompileWithOptions(m, opts); !spirv.IsUnsupported(err) {
		t.Errorf("strict: got %v, want unsupported error", err)
	}
}

func TestCompileAll(t *testing.T) {
	modules := make([]*ir.Module, 8)
	for i := range modules {
		modules[i] = scaleModule("k"+string(rune('a'+i)), float32(i))
	}
	kernels, err := CompileAll(context.Background(), modules, DefaultOptions(), 3)
	if err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	if len(kernels) != len(modules) {
		t.Fatalf("got %d kernels, want %d", len(kernels), len(modules))
	}
	for i, k := range kernels {
		if k.Name != modules[i].Name {
			t.Errorf("kernel %d: got %s, want %s", i, k.Name, modules[i].Name)
		}
		single, err := Compile(modules[i])
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(single.SPIRV, k.SPIRV) {
			t.Errorf("kernel %d differs from a sequential compile", i)
		}
	}
}

func TestCompileAllFailure(t *testing.T) {
	modules := []*ir.Module{scaleModule("ok", 1), {Name: "empty"}, scaleModule("ok2", 2)}
	_, err := CompileAll(context.Background(), modules, DefaultOptions(), 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "module 1 (empty)") {
		t.Errorf("error does not name the module: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CompileAll(ctx, []*ir.Module{scaleModule("a", 1)}, DefaultOptions(), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v", err)
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	if Logger() == nil || spirv.Logger() != Logger() {
		t.Fatal("logger not propagated to spirv")
	}
	if _, err := Compile(scaleModule("logged", 2)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "kernel generated") {
		t.Errorf("no generator debug record in:\n%s", buf.String())
	}

	SetLogger(nil)
	buf.Reset()
	if _, err := Compile(scaleModule("quiet", 2)); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("output after SetLogger(nil): %s", buf.String())
	}
}
