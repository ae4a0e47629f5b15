package lower

import (
	"ripplevm/asm"
	"ripplevm/ir"
)

// LowerUnary lowers Not (XORI dst, src, -1) and Neg (SUB dst, R0, src),
// reusing the operand's register when it's dead after this instruction.
func LowerUnary(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	sub, srcReg, err := c.valueReg(in.Operand)
	if err != nil {
		return nil, err
	}
	out = append(out, sub...)

	dst := srcReg
	reuse := in.Operand.Kind == ir.ValueTemp && c.LhsDeadAfter != nil && c.LhsDeadAfter(in.Operand.Temp, c.InstrIndex)
	if reuse {
		c.Alloc.Rename(TempName(in.Operand.Temp), TempName(in.Result))
	} else {
		c.pinValue(in.Operand)
		dst = c.Alloc.GetRegister(TempName(in.Result))
		out = append(out, c.Alloc.TakeInstructions()...)
		c.unpinValue(in.Operand)
	}

	switch in.UnOp {
	case ir.UNot:
		out = append(out, asm.Xori(dst, srcReg, -1))
	case ir.UNeg:
		out = append(out, asm.Sub(dst, asm.R0, srcReg))
	}

	if dst != srcReg {
		c.releaseOperand(in.Operand, srcReg)
	}
	return out, nil
}
