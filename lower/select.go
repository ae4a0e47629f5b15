package lower

import (
	"fmt"

	"ripplevm/asm"
	"ripplevm/ir"
)

// LowerSelect lowers a two-way select. The ISA has no conditional-move
// opcode, so this branches around a single move, mirroring the
// cond-equals-zero test LowerBranchCond uses.
func LowerSelect(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	condSub, condReg, err := c.valueReg(in.SelectCond)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instruction{}, condSub...)
	c.pinValue(in.SelectCond)

	dst := c.Alloc.GetRegister(TempName(in.Result))
	out = append(out, c.Alloc.TakeInstructions()...)

	falseLabel := fmt.Sprintf("%s.select%d.false", c.FuncName, in.Result)
	doneLabel := fmt.Sprintf("%s.select%d.done", c.FuncName, in.Result)

	tSub, tReg, err := c.valueReg(in.SelectT)
	if err != nil {
		return nil, err
	}
	c.pinValue(in.SelectT)
	fSub, fReg, err := c.valueReg(in.SelectF)
	if err != nil {
		return nil, err
	}
	c.pinValue(in.SelectF)

	out = append(out, asm.Beq(condReg, asm.R0, falseLabel))
	out = append(out, tSub...)
	out = append(out, asm.Addi(dst, tReg, 0))
	out = append(out, asm.Beq(asm.R0, asm.R0, doneLabel))
	out = append(out, asm.Label(falseLabel))
	out = append(out, fSub...)
	out = append(out, asm.Addi(dst, fReg, 0))
	out = append(out, asm.Label(doneLabel))

	c.unpinValue(in.SelectCond)
	c.unpinValue(in.SelectT)
	c.unpinValue(in.SelectF)
	c.releaseOperand(in.SelectCond, condReg)
	c.releaseOperand(in.SelectT, tReg)
	c.releaseOperand(in.SelectF, fReg)
	return out, nil
}
