// Package ir defines the intermediate representation consumed by the
// parallax kernel generator.
//
// The IR is deliberately small:
//   - Types: void, bool, int(width), float(width), pointer(elem, space)
//   - Values: constants, function arguments and instruction results
//   - Instructions: a closed set of arithmetic, comparison, memory,
//     call and terminator operations
//   - Blocks: instruction lists ending in exactly one terminator
//   - Functions and a Module holding them
//
// # Signedness
//
// Integer types carry no signedness. Every arithmetic, comparison and
// conversion instruction names its Domain (Signed, Unsigned or Float)
// when the producer builds it, and the generator never guesses it from a
// bit width.
//
// # Building modules
//
//	b := ir.NewFunction("scale", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
//	v := b.Load(b.Param(0))
//	m := b.Mul(ir.Float, v, ir.F32Const(2))
//	b.Store(m, b.Param(0))
//	b.Ret(nil)
//	module := &ir.Module{Name: "scale", Functions: []*ir.Function{b.Function()}}
//
// # Wire form
//
// Modules cross process boundaries as YAML or msgpack (see WireModule).
// Fingerprint hashes the canonical msgpack encoding and is the key used by
// kernel caches.
package ir
