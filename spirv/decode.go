package spirv

import "fmt"

// operand is one decoded operand of an instruction.
type operand struct {
	kind  operandKind // operandID, operandLiteral or operandString
	value uint32
	text  string
}

// decoded is one instruction read back from a binary.
type decoded struct {
	offset     int // word offset of the instruction
	op         OpCode
	info       opInfo
	words      []uint32 // operand words after the opcode word
	resultType uint32
	result     uint32
	operands   []operand
}

// Header is the five-word module header.
type Header struct {
	Magic     uint32
	Version   Version
	Generator uint32
	Bound     uint32
	Schema    uint32
}

func readHeader(words []uint32) (Header, error) {
	if len(words) < HeaderWords {
		return Header{}, fmt.Errorf("module has %d words, header needs %d", len(words), HeaderWords)
	}
	h := Header{
		Magic:     words[0],
		Version:   Version{Major: uint8(words[1] >> 16), Minor: uint8(words[1] >> 8)},
		Generator: words[2],
		Bound:     words[3],
		Schema:    words[4],
	}
	if h.Magic != MagicNumber {
		return h, fmt.Errorf("invalid SPIR-V magic: 0x%08X", h.Magic)
	}
	return h, nil
}

// decodeModule splits the words after the header into instructions.
func decodeModule(words []uint32) (Header, []decoded, error) {
	h, err := readHeader(words)
	if err != nil {
		return h, nil, err
	}
	var out []decoded
	for off := HeaderWords; off < len(words); {
		count := int(words[off] >> 16)
		op := OpCode(words[off] & 0xFFFF)
		if count == 0 || off+count > len(words) {
			return h, out, fmt.Errorf("invalid word count %d at offset %d", count, off)
		}
		d, err := decodeInstruction(op, words[off+1:off+count])
		if err != nil {
			return h, out, fmt.Errorf("offset %d: %w", off, err)
		}
		d.offset = off
		out = append(out, d)
		off += count
	}
	return h, out, nil
}

// decodeInstruction reads the operands of one instruction using its
// shape from opTable.
func decodeInstruction(op OpCode, words []uint32) (decoded, error) {
	info, ok := opTable[op]
	if !ok {
		return decoded{}, fmt.Errorf("unknown opcode %d", op)
	}
	d := decoded{op: op, info: info, words: words}
	rest := words
	if info.resultType {
		if len(rest) == 0 {
			return d, fmt.Errorf("%s: missing result type", info.name)
		}
		d.resultType, rest = rest[0], rest[1:]
	}
	if info.result {
		if len(rest) == 0 {
			return d, fmt.Errorf("%s: missing result id", info.name)
		}
		d.result, rest = rest[0], rest[1:]
	}
	for _, kind := range info.operands {
		switch kind {
		case operandID, operandLiteral:
			if len(rest) == 0 {
				return d, fmt.Errorf("%s: missing operand", info.name)
			}
			d.operands = append(d.operands, operand{kind: kind, value: rest[0]})
			rest = rest[1:]
		case operandString:
			if len(rest) == 0 {
				return d, fmt.Errorf("%s: missing string operand", info.name)
			}
			s, n := decodeString(rest)
			d.operands = append(d.operands, operand{kind: operandString, text: s})
			rest = rest[n:]
		case operandIDs:
			for _, w := range rest {
				d.operands = append(d.operands, operand{kind: operandID, value: w})
			}
			rest = nil
		case operandLiterals:
			for _, w := range rest {
				d.operands = append(d.operands, operand{kind: operandLiteral, value: w})
			}
			rest = nil
		}
	}
	if len(rest) != 0 {
		return d, fmt.Errorf("%s: %d trailing words", info.name, len(rest))
	}
	return d, nil
}

// ids returns every id the instruction reads, result type first.
func (d decoded) ids() []uint32 {
	var ids []uint32
	if d.info.resultType {
		ids = append(ids, d.resultType)
	}
	for _, o := range d.operands {
		if o.kind == operandID {
			ids = append(ids, o.value)
		}
	}
	return ids
}

// ReadHeader decodes the header of a SPIR-V binary.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderWords*4 {
		return Header{}, fmt.Errorf("file too small")
	}
	words, err := BytesToWords(data[:HeaderWords*4])
	if err != nil {
		return Header{}, err
	}
	return readHeader(words)
}
