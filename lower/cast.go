package lower

import "ripplevm/asm"
import "ripplevm/ir"

// LowerCast lowers a Cast instruction. Zero/sign extension
// between integer widths narrower than a machine word are both plain
// register moves, since every scalar already occupies a full word;
// truncation masks down to the narrower width; pointer-to-integer keeps
// only the address word and drops the bank; integer-to-pointer is
// rejected, per the documented open question, since a bank cannot be
// synthesized from a bare integer.
func LowerCast(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	if in.Cast == ir.CastIntToPtr {
		return nil, ErrInvalidCast
	}

	sub, srcReg, err := c.valueReg(in.Operand)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instruction{}, sub...)

	c.pinValue(in.Operand)
	dst := c.Alloc.GetRegister(TempName(in.Result))
	out = append(out, c.Alloc.TakeInstructions()...)
	c.unpinValue(in.Operand)

	switch in.Cast {
	case ir.CastZExt, ir.CastSExt, ir.CastPtrToInt:
		out = append(out, asm.Addi(dst, srcReg, 0))
	case ir.CastTrunc:
		mask := int32(0xFFFF)
		switch in.ResultTy.Kind {
		case ir.I1:
			mask = 0x1
		case ir.I8:
			mask = 0xFF
		}
		out = append(out, asm.Andi(dst, srcReg, mask))
	}

	c.releaseOperand(in.Operand, srcReg)
	return out, nil
}
