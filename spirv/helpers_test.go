package spirv

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/parallax/ir"
)

// spirvInstruction is one instruction of a compiled binary. words
// includes the opcode word.
type spirvInstruction struct {
	offset    int
	opcode    OpCode
	wordCount int
	words     []uint32
}

// decodeSPIRVInstructions parses all instructions from SPIR-V binary (skipping header).
func decodeSPIRVInstructions(data []byte) []spirvInstruction {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	var instrs []spirvInstruction
	offset := 5 // skip header
	for offset < len(words) {
		wc := int(words[offset] >> 16)
		op := OpCode(words[offset] & 0xFFFF)
		if wc == 0 || offset+wc > len(words) {
			break
		}
		instrs = append(instrs, spirvInstruction{
			offset:    offset,
			opcode:    op,
			wordCount: wc,
			words:     words[offset : offset+wc],
		})
		offset += wc
	}
	return instrs
}

func countOpcode(instrs []spirvInstruction, opcode OpCode) int {
	n := 0
	for _, inst := range instrs {
		if inst.opcode == opcode {
			n++
		}
	}
	return n
}

func collectNames(instrs []spirvInstruction) map[uint32]string {
	names := make(map[uint32]string)
	for _, inst := range instrs {
		if inst.opcode == OpName && inst.wordCount >= 3 {
			names[inst.words[1]], _ = decodeString(inst.words[2:])
		}
	}
	return names
}

// functionBodies splits the instructions into one slice per function,
// from OpFunction to OpFunctionEnd inclusive.
func functionBodies(instrs []spirvInstruction) [][]spirvInstruction {
	var bodies [][]spirvInstruction
	var current []spirvInstruction
	for _, inst := range instrs {
		switch {
		case inst.opcode == OpFunction:
			current = []spirvInstruction{inst}
		case current != nil:
			current = append(current, inst)
			if inst.opcode == OpFunctionEnd {
				bodies = append(bodies, current)
				current = nil
			}
		}
	}
	return bodies
}

// compileModule compiles m with default options and fails the test on
// error.
func compileModule(t *testing.T, m *ir.Module) *Result {
	t.Helper()
	return compileWith(t, m, DefaultOptions())
}

func compileWith(t *testing.T, m *ir.Module, opts Options) *Result {
	t.Helper()
	result, err := Compile(m, opts)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return result
}

func kernelModule(fns ...*ir.Function) *ir.Module {
	return &ir.Module{Name: "test", Functions: fns}
}

// scaleByTwo is f(p) { *p = *p * 2.0 }.
func scaleByTwo() *ir.Function {
	b := ir.NewFunction("scale", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
	p := b.Param(0)
	v := b.Load(p)
	m := b.Mul(ir.Float, v, ir.F32Const(2.0))
	b.Store(m, p)
	b.Ret(nil)
	return b.Function()
}

// piTwice references the constant 3.14 from two instructions.
func piTwice() *ir.Function {
	b := ir.NewFunction("pi", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
	p := b.Param(0)
	v := b.Load(p)
	a := b.Add(ir.Float, v, ir.F32Const(3.14))
	m := b.Mul(ir.Float, a, ir.F32Const(3.14))
	b.Store(m, p)
	b.Ret(nil)
	return b.Function()
}

// signOf stores 1.0 or -1.0 depending on the sign of the element:
//
//	entry: condbr (x > 0) then else
//	then:  store 1.0;  br merge
//	else:  store -1.0; br merge
//	merge: ret
func signOf() (*ir.Function, *ir.Block) {
	b := ir.NewFunction("sign", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
	p := b.Param(0)
	thenBlk := b.NewBlock("then")
	elseBlk := b.NewBlock("else")
	merge := b.NewBlock("merge")

	v := b.Load(p)
	c := b.Compare(ir.Gt, ir.Float, v, ir.F32Const(0))
	b.CondBr(c, thenBlk, elseBlk)

	b.SetBlock(thenBlk)
	b.Store(ir.F32Const(1), p)
	b.Br(merge)

	b.SetBlock(elseBlk)
	b.Store(ir.F32Const(-1), p)
	b.Br(merge)

	b.SetBlock(merge)
	b.Ret(nil)
	return b.Function(), merge
}

// emptyBody is f(p) { return }.
func emptyBody() *ir.Function {
	b := ir.NewFunction("noop", ir.Void, ir.Ptr(ir.I32, ir.SpaceBuffer))
	b.Ret(nil)
	return b.Function()
}

// countDown loops on a local counter: while (i > 0) { *p += 1; i -= 1 }.
//
//	entry:  local i = 4; br header
//	header: loop(merge, cont); condbr (i > 0) body merge
//	body:   *p = *p + 1; br cont
//	cont:   i = i - 1; br header
//	merge:  ret
func countDown() *ir.Function {
	b := ir.NewFunction("count", ir.Void, ir.Ptr(ir.I32, ir.SpaceBuffer))
	p := b.Param(0)
	header := b.NewBlock("header")
	body := b.NewBlock("body")
	cont := b.NewBlock("cont")
	merge := b.NewBlock("merge")

	i := b.Local("i", ir.I32)
	b.Store(ir.I32Const(4), i)
	b.Br(header)

	b.SetBlock(header)
	b.MarkLoop(merge, cont)
	iv := b.Load(i)
	b.CondBr(b.Compare(ir.Gt, ir.Signed, iv, ir.I32Const(0)), body, merge)

	b.SetBlock(body)
	b.Store(b.Add(ir.Signed, b.Load(p), ir.I32Const(1)), p)
	b.Br(cont)

	b.SetBlock(cont)
	b.Store(b.Sub(ir.Signed, b.Load(i), ir.I32Const(1)), i)
	b.Br(header)

	b.SetBlock(merge)
	b.Ret(nil)
	return b.Function()
}

// nestedIfs stores 2.0 when the element is in (0, 10), otherwise leaves
// it alone. Both conditionals reconverge on end; with explicitMerge the
// inner one merges into its own block first.
//
//	entry: condbr (x > 0) inner end
//	inner: condbr (x < 10) hit end      ; or hit innerEnd
//	hit:   store 2.0; br end            ; or br innerEnd
//	end:   ret
func nestedIfs(explicitMerge bool) *ir.Function {
	b := ir.NewFunction("nested", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
	p := b.Param(0)
	inner := b.NewBlock("inner")
	hit := b.NewBlock("hit")
	var innerEnd *ir.Block
	if explicitMerge {
		innerEnd = b.NewBlock("inner_end")
	}
	end := b.NewBlock("end")

	x := b.Load(p)
	b.CondBr(b.Compare(ir.Gt, ir.Float, x, ir.F32Const(0)), inner, end)

	b.SetBlock(inner)
	if explicitMerge {
		br := b.CondBr(b.Compare(ir.Lt, ir.Float, x, ir.F32Const(10)), hit, innerEnd)
		br.Merge = innerEnd
	} else {
		b.CondBr(b.Compare(ir.Lt, ir.Float, x, ir.F32Const(10)), hit, end)
	}

	b.SetBlock(hit)
	b.Store(ir.F32Const(2), p)
	if explicitMerge {
		b.Br(innerEnd)
		b.SetBlock(innerEnd)
	}
	b.Br(end)

	b.SetBlock(end)
	b.Ret(nil)
	return b.Function()
}
