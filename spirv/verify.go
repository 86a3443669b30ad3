package spirv

import "fmt"

// Verify re-reads a finished module and checks the invariants every
// generated kernel must satisfy:
//
//   - the header carries the magic number and schema 0
//   - sections appear in order and OpMemoryModel appears once
//   - every result id is unique and the bound is one past the largest
//   - in the Types and Functions sections every operand id is defined at
//     an earlier position, except labels and functions, which may be
//     named before their definition
//   - ids named by entry points, debug names and decorations are defined
//     somewhere in the module
//   - every block ends in a terminator and functions are closed
//   - no block is the merge of more than one selection or loop
//
// Violations are reported as ErrInternal.
func Verify(words []uint32) error {
	if err := verify(words); err != nil {
		return NewError(ErrInternal, "verify: "+err.Error())
	}
	return nil
}

func verify(words []uint32) error {
	h, insts, err := decodeModule(words)
	if err != nil {
		return err
	}
	if h.Schema != 0 {
		return fmt.Errorf("schema %d, want 0", h.Schema)
	}

	// Definitions
	defined := make(map[uint32]int, len(insts))
	forwardOK := make(map[uint32]bool)
	var maxID uint32
	for i, d := range insts {
		if !d.info.result {
			continue
		}
		if d.result == 0 {
			return fmt.Errorf("%s at offset %d defines id 0", d.op, d.offset)
		}
		if prev, dup := defined[d.result]; dup {
			return fmt.Errorf("id %%%d defined at offsets %d and %d", d.result, insts[prev].offset, d.offset)
		}
		defined[d.result] = i
		if d.op == OpLabel || d.op == OpFunction {
			forwardOK[d.result] = true
		}
		maxID = max(maxID, d.result)
	}
	if h.Bound != maxID+1 {
		return fmt.Errorf("bound %d, largest id %d", h.Bound, maxID)
	}

	// Section order and references
	section := SectionPreamble
	memoryModels := 0
	for i, d := range insts {
		s, _ := sectionOf(d.op, d.words)
		if s < section {
			return fmt.Errorf("%s at offset %d belongs in %s, after %s", d.op, d.offset, s, section)
		}
		section = s
		if d.op == OpMemoryModel {
			memoryModels++
		}

		for _, id := range d.ids() {
			at, ok := defined[id]
			if !ok {
				return fmt.Errorf("%s at offset %d references undefined id %%%d", d.op, d.offset, id)
			}
			if (s == SectionTypes || s == SectionFunctions) && at >= i && !forwardOK[id] {
				return fmt.Errorf("%s at offset %d references %%%d before its definition", d.op, d.offset, id)
			}
		}
	}
	if memoryModels != 1 {
		return fmt.Errorf("%d memory model instructions, want 1", memoryModels)
	}

	return verifyBlocks(insts)
}

// verifyBlocks checks that blocks end in terminators, that function
// bodies are properly opened and closed, and that merge blocks are unique.
func verifyBlocks(insts []decoded) error {
	inFunction, inBlock := false, false
	merges := make(map[uint32]int)
	for _, d := range insts {
		switch d.op {
		case OpSelectionMerge, OpLoopMerge:
			if len(d.words) == 0 {
				return fmt.Errorf("%s at offset %d has no merge block", d.op, d.offset)
			}
			if prev, dup := merges[d.words[0]]; dup {
				return fmt.Errorf("%%%d is the merge block of the constructs at offsets %d and %d", d.words[0], prev, d.offset)
			}
			merges[d.words[0]] = d.offset
			if !inBlock {
				return fmt.Errorf("%s at offset %d outside a block", d.op, d.offset)
			}
		case OpFunction:
			if inFunction {
				return fmt.Errorf("OpFunction at offset %d inside a function", d.offset)
			}
			inFunction = true
		case OpFunctionEnd:
			if !inFunction || inBlock {
				return fmt.Errorf("OpFunctionEnd at offset %d closes an unterminated block", d.offset)
			}
			inFunction = false
		case OpLabel:
			if !inFunction || inBlock {
				return fmt.Errorf("OpLabel at offset %d starts a block inside a block", d.offset)
			}
			inBlock = true
		case OpBranch, OpBranchConditional, OpReturn, OpReturnValue, OpUnreachable:
			if !inBlock {
				return fmt.Errorf("%s at offset %d outside a block", d.op, d.offset)
			}
			inBlock = false
		case OpFunctionParameter:
			if !inFunction || inBlock {
				return fmt.Errorf("OpFunctionParameter at offset %d outside a function header", d.offset)
			}
		default:
			if inFunction && !inBlock {
				return fmt.Errorf("%s at offset %d outside a block", d.op, d.offset)
			}
		}
	}
	if inFunction {
		return fmt.Errorf("function not closed")
	}
	return nil
}
