package spirv

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestVerifyCompiledModules(t *testing.T) {
	fn, _ := signOf()
	for _, v := range []Version{Version1_0, Version1_3, Version1_4, Version1_5, Version1_6} {
		opts := DefaultOptions()
		opts.Version = v
		opts.Debug = true
		result := compileWith(t, kernelModule(fn), opts)
		if err := Verify(result.Words); err != nil {
			t.Errorf("%d.%d: %v", v.Major, v.Minor, err)
		}
	}
}

// corrupt returns a copy of the scale kernel's words with fn applied.
func corrupt(t *testing.T, fn func(words []uint32) []uint32) []uint32 {
	t.Helper()
	opts := DefaultOptions()
	opts.Validation = false
	result := compileWith(t, kernelModule(scaleByTwo()), opts)
	words := append([]uint32(nil), result.Words...)
	return fn(words)
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(words []uint32) []uint32
	}{
		{"bad magic", func(w []uint32) []uint32 { w[0] = 0xDEADBEEF; return w }},
		{"bound too small", func(w []uint32) []uint32 { w[3]--; return w }},
		{"bound too large", func(w []uint32) []uint32 { w[3]++; return w }},
		{"schema", func(w []uint32) []uint32 { w[4] = 1; return w }},
		{"truncated", func(w []uint32) []uint32 { return w[:len(w)-1] }},
		{"duplicate id", func(w []uint32) []uint32 {
			_, insts, _ := decodeModule(w)
			var first *decoded
			for i := range insts {
				d := &insts[i]
				if d.op != OpTypeVoid && d.op != OpTypeBool {
					continue
				}
				if first == nil {
					first = d
					continue
				}
				w[d.offset+1] = first.result
				break
			}
			return w
		}},
		{"forward type reference", func(w []uint32) []uint32 {
			_, insts, _ := decodeModule(w)
			for _, d := range insts {
				if d.op == OpTypePointer {
					w[d.offset+3] = w[3] - 1 // a function-body result
					break
				}
			}
			return w
		}},
		{"section order", func(w []uint32) []uint32 {
			// Move the first OpDecorate to the end of the module.
			_, insts, _ := decodeModule(w)
			for _, d := range insts {
				if d.op == OpDecorate {
					n := len(d.words) + 1
					inst := append([]uint32(nil), w[d.offset:d.offset+n]...)
					out := append(append([]uint32(nil), w[:d.offset]...), w[d.offset+n:]...)
					return append(out, inst...)
				}
			}
			return w
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words := corrupt(t, tt.mutate)
			err := Verify(words)
			if !IsInternal(err) {
				t.Fatalf("got %v, want internal error", err)
			}
		})
	}
}

func TestVerifyRejectsSharedMerge(t *testing.T) {
	opts := DefaultOptions()
	opts.Validation = false
	words := append([]uint32(nil), compileWith(t, kernelModule(nestedIfs(true)), opts).Words...)
	if err := Verify(words); err != nil {
		t.Fatalf("distinct merges: %v", err)
	}

	_, insts, err := decodeModule(words)
	if err != nil {
		t.Fatal(err)
	}
	var first uint32
	for _, d := range insts {
		if d.op != OpSelectionMerge {
			continue
		}
		if first == 0 {
			first = d.words[0]
			continue
		}
		words[d.offset+1] = first
		break
	}
	err = Verify(words)
	if !IsInternal(err) || !strings.Contains(err.Error(), "merge block of the constructs") {
		t.Fatalf("got %v, want shared merge rejected", err)
	}
}

func TestDisassembleGolden(t *testing.T) {
	result := compileModule(t, kernelModule(scaleByTwo()))
	text, err := Disassemble(result.Words)
	if err != nil {
		t.Fatal(err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "scale_f32", []byte(text))
}

func TestDisassembleBytes(t *testing.T) {
	result := compileModule(t, kernelModule(countDown()))
	text, err := DisassembleBytes(result.Binary)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"OpLoopMerge", "OpVariable", "Function", "OpSGreaterThan", "OpISub"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly lacks %s", want)
		}
	}
}

func TestReadHeader(t *testing.T) {
	result := compileModule(t, kernelModule(emptyBody()))
	h, err := ReadHeader(result.Binary)
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != Version1_3 || h.Generator != GeneratorID || h.Bound != result.Words[3] {
		t.Errorf("header: %+v", h)
	}
	if _, err := ReadHeader([]byte{1, 2, 3, 4}); err == nil {
		t.Error("expected error for a short file")
	}
}
