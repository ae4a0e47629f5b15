package lower

import (
	"fmt"

	"ripplevm/asm"
	"ripplevm/callconv"
	"ripplevm/ir"
)

// LowerBranch lowers an unconditional branch to an always-taken BEQ
// R0, R0, label; the ISA has no dedicated jump mnemonic, so
// unconditional jumps are synthesized from the comparison branches.
func LowerBranch(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	return []asm.Instruction{asm.Beq(asm.R0, asm.R0, c.BlockLabel(in.Target))}, nil
}

// LowerBranchCond lowers a conditional branch: branch to the false
// target when the condition register equals zero, otherwise fall
// through to an unconditional jump to the true target.
func LowerBranchCond(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	sub, condReg, err := c.valueReg(in.Cond)
	if err != nil {
		return nil, err
	}
	out := append([]asm.Instruction{}, sub...)
	out = append(out, asm.Beq(condReg, asm.R0, c.BlockLabel(in.FalseLabel)))
	out = append(out, asm.Beq(asm.R0, asm.R0, c.BlockLabel(in.TrueTarget)))
	c.releaseOperand(in.Cond, condReg)
	return out, nil
}

// LowerCompareAndBranch fuses a comparison with the conditional branch
// that consumes it, using the BEQ/BNE/BLT/BGE opcodes directly instead of
// materializing an i1 and testing it against zero. Eq/Ne/Slt/Sge map onto
// a single branch to the true target followed by an unconditional branch
// to the false target; Sle/Sgt invert through an operand swap and branch
// to the false target first. Applied by the module lowerer when the
// comparison's result is used only by the branch immediately after it.
func LowerCompareAndBranch(c *Context, cmp, br ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	lSub, lhsReg, err := c.valueReg(cmp.Lhs)
	if err != nil {
		return nil, err
	}
	out = append(out, lSub...)
	c.pinValue(cmp.Lhs)
	rSub, rhsReg, err := c.valueReg(cmp.Rhs)
	if err != nil {
		return nil, err
	}
	out = append(out, rSub...)
	c.unpinValue(cmp.Lhs)

	trueLabel := c.BlockLabel(br.TrueTarget)
	falseLabel := c.BlockLabel(br.FalseLabel)

	switch cmp.BinOp {
	case ir.BEq:
		out = append(out, asm.Beq(lhsReg, rhsReg, trueLabel))
	case ir.BNe:
		out = append(out, asm.Bne(lhsReg, rhsReg, trueLabel))
	case ir.BSlt:
		out = append(out, asm.Blt(lhsReg, rhsReg, trueLabel))
	case ir.BSge:
		out = append(out, asm.Bge(lhsReg, rhsReg, trueLabel))
	case ir.BSle:
		// lhs <= rhs: branch to the false target if rhs < lhs, else fall
		// through to the true target.
		out = append(out, asm.Blt(rhsReg, lhsReg, falseLabel))
		out = append(out, asm.Beq(asm.R0, asm.R0, trueLabel))
		c.releaseOperand(cmp.Lhs, lhsReg)
		c.releaseOperand(cmp.Rhs, rhsReg)
		return out, nil
	case ir.BSgt:
		// lhs > rhs: branch to the false target if rhs >= lhs.
		out = append(out, asm.Bge(rhsReg, lhsReg, falseLabel))
		out = append(out, asm.Beq(asm.R0, asm.R0, trueLabel))
		c.releaseOperand(cmp.Lhs, lhsReg)
		c.releaseOperand(cmp.Rhs, rhsReg)
		return out, nil
	default:
		return nil, fmt.Errorf("lower: op %d is not a comparison", cmp.BinOp)
	}

	out = append(out, asm.Beq(asm.R0, asm.R0, falseLabel))
	c.releaseOperand(cmp.Lhs, lhsReg)
	c.releaseOperand(cmp.Rhs, rhsReg)
	return out, nil
}

// LowerReturn lowers a Return: move the value (and bank, for a pointer
// return) into the RV0/RV1 convention registers, then branch to this
// function's single epilogue label.
func LowerReturn(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	if in.HasRetVal {
		if in.RetVal.Type.IsPointer() {
			sub, addrReg, bank, err := c.fatPointerRegs(in.RetVal)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			out = append(out, asm.Move(asm.RV0, addrReg))
			out = append(out, asm.Move(asm.RV1, bank.Register()))
			c.releaseOperand(in.RetVal, addrReg)
		} else {
			sub, reg, err := c.valueReg(in.RetVal)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			out = append(out, asm.Move(asm.RV0, reg))
			c.releaseOperand(in.RetVal, reg)
		}
	}

	out = append(out, asm.Beq(asm.R0, asm.R0, c.EpilogueLabel))
	return out, nil
}

// LowerCall lowers a Call instruction: materialize every
// argument into registers, bind register-resident ones to A0-A3 per
// PlaceParams, push the rest to the stack, spill caller-saves, emit the
// (possibly cross-bank) call, capture the return value, and clean up
// the stack.
func LowerCall(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	kinds := make([]callconv.ArgKind, len(in.Args))
	argRegs := make([]asm.Register, len(in.Args))
	argBanks := make([]asm.Register, len(in.Args))

	for i, a := range in.Args {
		if a.Type.IsPointer() {
			kinds[i] = callconv.ArgFatPointer
			sub, reg, bank, err := c.fatPointerRegs(a)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			argRegs[i] = reg
			argBanks[i] = bank.Register()
		} else {
			kinds[i] = callconv.ArgScalar
			sub, reg, err := c.valueReg(a)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			argRegs[i] = reg
		}
		// Keep every evaluated argument's registers safe from the later
		// arguments' reloads; unpinned again before the caller-saves
		// spill.
		c.pinValue(a)
	}

	locs := callconv.PlaceParams(kinds)

	for i, loc := range locs {
		switch kinds[i] {
		case callconv.ArgScalar:
			if loc.AddrInReg {
				out = append(out, asm.Move(loc.AddrReg, argRegs[i]))
			}
		case callconv.ArgFatPointer:
			if loc.AddrInReg {
				out = append(out, asm.Move(loc.AddrReg, argRegs[i]))
			}
			if loc.BankInReg {
				out = append(out, asm.Move(loc.BankReg, argBanks[i]))
			}
		}
	}

	args := make([]callconv.Arg, len(in.Args))
	stackWords := 0
	for i, loc := range locs {
		args[i] = callconv.Arg{Kind: kinds[i], Reg: argRegs[i], Bank: argBanks[i]}
		switch kinds[i] {
		case callconv.ArgScalar:
			if !loc.AddrInReg {
				stackWords++
			}
		case callconv.ArgFatPointer:
			if !loc.AddrInReg {
				stackWords++
			}
			if !loc.BankInReg {
				stackWords++
			}
		}
	}

	for _, a := range in.Args {
		c.unpinValue(a)
	}

	out = append(out, callconv.SetupCallArgs(c.Alloc, args, locs)...)

	for i, a := range in.Args {
		c.releaseOperand(a, argRegs[i])
	}

	targetBank := int32(0)
	if in.Callee.Kind == ir.ValueFunction {
		targetBank = int32(c.FuncBank[in.Callee.Name])
	}
	out = append(out, callconv.EmitCall(in.Callee.Name, targetBank)...)
	out = append(out, callconv.CleanupStack(stackWords)...)

	if in.HasResult {
		sub, _, bankReg := callconv.HandleReturnValue(c.Alloc, TempName(in.Result), in.ResultTy.IsPointer())
		out = append(out, sub...)
		if in.ResultTy.IsPointer() {
			c.Banks[in.Result] = asm.RegisterBankNamed(bankReg, BankName(in.Result))
		}
	}

	return out, nil
}
