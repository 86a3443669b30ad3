package ir

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// countKernel builds a counted loop with header, body, continue and exit
// blocks.
func countKernel() *Module {
	b := NewFunction("count", Void, Ptr(I32, SpaceBuffer))
	p := b.Param(0)
	i := b.Local("i", I32)
	header := b.NewBlock("header")
	body := b.NewBlock("body")
	cont := b.NewBlock("cont")
	exit := b.NewBlock("exit")
	b.Store(b.Load(p), i)
	b.Br(header)

	b.SetBlock(header)
	b.MarkLoop(exit, cont)
	b.CondBr(b.Compare(Gt, Signed, b.Load(i), I32Const(0)), body, exit)

	b.SetBlock(body)
	b.Store(b.Add(Signed, b.Load(p), I32Const(1)), p)
	b.Br(cont)

	b.SetBlock(cont)
	b.Store(b.Sub(Signed, b.Load(i), I32Const(1)), i)
	b.Br(header)

	b.SetBlock(exit)
	b.Ret(nil)
	return &Module{Name: "count", Functions: []*Function{b.Function()}}
}

func TestFormatGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "clamp", []byte(Format(clampKernel())))
}

func TestFormatLoop(t *testing.T) {
	text := Format(countKernel())
	for _, want := range []string{
		"header: ; loop merge=exit continue=cont\n",
		"%2 = cmp.gt.signed %1, i32 0\n",
		"%4 = add.signed %3, i32 1\n",
		"%6 = sub.signed %5, i32 1\n",
		"condbr %2, body, exit\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("formatted text lacks %q:\n%s", want, text)
		}
	}
}

func TestFormatNegativeConstant(t *testing.T) {
	b := NewFunction("k", Void, Ptr(I8, SpaceBuffer))
	b.Store(Int(8, -3), b.Param(0))
	b.Ret(nil)
	text := Format(&Module{Name: "k", Functions: []*Function{b.Function()}})
	if !strings.Contains(text, "store i8 -3, %arg0") {
		t.Errorf("got:\n%s", text)
	}
}

func TestFormatForeignReferences(t *testing.T) {
	other := NewFunction("other", Void, F32)
	other.Ret(nil)

	b := NewFunction("k", Void, Ptr(F32, SpaceBuffer))
	b.Store(other.Param(0), b.Param(0))
	b.Br(other.Function().Entry())
	text := Format(&Module{Name: "k", Functions: []*Function{b.Function()}})
	if !strings.Contains(text, "store <undefined>, %arg0") || !strings.Contains(text, "br <foreign>") {
		t.Errorf("got:\n%s", text)
	}
}
