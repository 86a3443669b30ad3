// Package spirv generates SPIR-V compute kernels from parallax IR.
//
// SPIR-V is the standard intermediate language for GPU shaders,
// used by Vulkan, OpenCL, and other APIs.
//
// # IR to SPIR-V Backend
//
// The Backend translates one IR module into a GLCompute kernel. The first
// function of the module is the per-element operation; the backend wraps
// it in an entry point that reads its invocation id, checks it against the
// element count and calls the function with a pointer to that element:
//
//	result, err := spirv.Compile(module, spirv.DefaultOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.WriteFile("kernel.spv", result.Binary, 0o644)
//
// result.ABI tells a loader where the buffers go: the element buffer at
// descriptor set 0 binding 0, the element count as a u32 push constant,
// and a workgroup size of 256x1x1.
//
// Types and constants are interned, so each distinct one is declared
// exactly once. Types the generator cannot represent are declared through
// a 32-bit fallback and listed in Result.Unsupported.
//
// # Binary Writer
//
// ModuleBuilder keeps one buffer per logical section and concatenates
// them in SPIR-V order when the module is finalized:
//
//	builder := spirv.NewModuleBuilder(spirv.Version1_3)
//	builder.AddCapability(spirv.CapabilityShader)
//
//	floatType := builder.AddTypeFloat(32)
//	vec4Type := builder.AddTypeVector(floatType, 4)
//
//	binary, err := builder.Build()
//
// # Reading binaries
//
// Verify checks the invariants every generated module satisfies, and
// Disassemble renders a module as assembly text.
package spirv
