package asm

import "fmt"

// instrWords reports how many 5-word hardware instructions in occupies
// once pseudo-ops are expanded, for the purpose of computing label
// addresses before expansion actually runs. Label/Comment contribute no
// code; Call expands to a single JAL (any LI PCB it needs is emitted by
// the caller -- see callconv.EmitCall -- as an ordinary real instruction
// already counted on its own); everything else is one instruction.
func instrWords(op Op) int {
	switch op {
	case OpLabel, OpComment:
		return 0
	default:
		return 1
	}
}

// LabelAddresses computes the word address of every Label pseudo-op in a
// single bank's flat instruction stream, in the same units PC/branch
// offsets use (word count, one instruction = WordsPerInstruction words).
// Must be called before Resolve so cross-function Call targets are known.
func LabelAddresses(in []Instruction) (map[string]int, error) {
	addrs := make(map[string]int)
	addr := 0
	for _, ins := range in {
		if ins.Op == OpLabel {
			if _, exists := addrs[ins.Label]; exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, ins.Label)
			}
			addrs[ins.Label] = addr
			continue
		}
		addr += instrWords(ins.Op) * WordsPerInstruction
	}
	return addrs, nil
}

// CallTarget is the resolved (bank, address) a Call pseudo-op jumps to.
type CallTarget struct {
	Bank uint16
	Addr int
}

// Resolve expands a bank's pseudo-ops (Move, Ret, Call, Label, Comment)
// and resolves branch labels to PC-relative offsets in instruction units
// (the word delta divided by WordsPerInstruction), producing a
// linear, fully real instruction stream ready for Encode. labelAddr is
// this bank's own label->address map from LabelAddresses; callTargets
// resolves every Call label module-wide, since a callee may live in a
// different bank.
func Resolve(in []Instruction, labelAddr map[string]int, callTargets map[string]CallTarget) ([]Instruction, error) {
	var out []Instruction
	pos := 0

	for _, ins := range in {
		switch ins.Op {
		case OpLabel, OpComment:
			continue

		case OpMove:
			out = append(out, Addi(ins.Rd, ins.Rs1, 0))
			pos += WordsPerInstruction

		case OpRet:
			out = append(out, Jalr(R0, R0, RA))
			pos += WordsPerInstruction

		case OpCall:
			target, ok := callTargets[ins.Label]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUndefinedLabel, ins.Label)
			}
			out = append(out, Jal(R0, int32(target.Bank), int32(target.Addr)))
			pos += WordsPerInstruction

		case OpBeq, OpBne, OpBlt, OpBge:
			if ins.HasLabel {
				target, ok := labelAddr[ins.Label]
				if !ok {
					return nil, fmt.Errorf("%w: %s", ErrUndefinedLabel, ins.Label)
				}
				offset := int32(target-(pos+WordsPerInstruction)) / WordsPerInstruction
				resolved := ins
				resolved.HasLabel = false
				resolved.Imm = offset
				out = append(out, resolved)
			} else {
				out = append(out, ins)
			}
			pos += WordsPerInstruction

		default:
			out = append(out, ins)
			pos += WordsPerInstruction
		}
	}

	return out, nil
}
