package lower

import "ripplevm/asm"
import "ripplevm/ir"

// immFastPath reports whether op has an I-form fast path and the asm.Op
// to use for it. Only arithmetic ops (ADD/SUB/MUL/DIV/MOD) get
// the immediate fast path; bitwise/shift ops without an I-form load the
// constant into a register first. SUB's fast path negates the immediate
// and reuses ADDI.
func immFastPath(op ir.BinaryOp) (asm.Op, bool, bool) {
	switch op {
	case ir.BAdd:
		return asm.OpAddi, false, true
	case ir.BSub:
		return asm.OpAddi, true, true // negate immediate
	case ir.BMul:
		return asm.OpMuli, false, true
	case ir.BDiv:
		return asm.OpDivi, false, true
	case ir.BMod:
		return asm.OpModi, false, true
	default:
		return 0, false, false
	}
}

func rformOp(op ir.BinaryOp) asm.Op {
	switch op {
	case ir.BAdd:
		return asm.OpAdd
	case ir.BSub:
		return asm.OpSub
	case ir.BMul:
		return asm.OpMul
	case ir.BDiv:
		return asm.OpDiv
	case ir.BMod:
		return asm.OpMod
	case ir.BAnd:
		return asm.OpAnd
	case ir.BOr:
		return asm.OpOr
	case ir.BXor:
		return asm.OpXor
	case ir.BShl:
		return asm.OpSll
	case ir.BShr:
		return asm.OpSrl
	default:
		return asm.OpAdd
	}
}

// need is the Sethi-Ullman-style register-pressure estimate used to pick
// operand evaluation order: a constant needs nothing held live, a temp
// needs one register.
func need(v ir.Value) int {
	if v.Kind == ir.ValueConstant {
		return 0
	}
	return 1
}

func emitIForm(c *Context, op asm.Op, negate bool, dst, lhsReg asm.Register, imm int64) []asm.Instruction {
	v := int32(imm)
	if negate {
		v = -v
	}
	return []asm.Instruction{{Op: op, Rd: dst, Rs1: lhsReg, Imm: v}}
}

// LowerBinary lowers one IR Binary instruction: comparisons fuse
// to the SLTU-based Eq/Ne sequences (or a direct SLTU for ordered
// comparisons, with Sle/Sgt/Sge synthesized via operand swap and/or
// inversion per the documented Slt-as-unsigned open question), and the
// arithmetic ops (ADD/SUB/MUL/DIV/MOD) take the immediate fast path when
// the RHS is a constant; bitwise and shift ops always use the R-form.
func LowerBinary(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	if in.BinOp.IsComparison() {
		return lowerComparison(c, in)
	}

	var out []asm.Instruction

	lhs, rhs := in.Lhs, in.Rhs
	// Evaluate the higher-need operand first so its register is freed
	// earlier, for commutative ops only (operand order is observable for
	// non-commutative ops like Sub/Div/Mod/Shl/Shr).
	lhsFirst := true
	if in.BinOp.IsCommutative() && need(rhs) > need(lhs) {
		lhsFirst = false
	}

	var lhsReg, rhsReg asm.Register
	var err error
	eval := func(v ir.Value) (asm.Register, error) {
		sub, reg, err := c.valueReg(v)
		out = append(out, sub...)
		return reg, err
	}

	if lhsFirst {
		if lhsReg, err = eval(lhs); err != nil {
			return nil, err
		}
		c.pinValue(lhs)
		if rhs.Kind == ir.ValueConstant {
			if op, negate, ok := immFastPath(in.BinOp); ok {
				dst := dstReg(c, in, lhsReg)
				out = append(out, c.Alloc.TakeInstructions()...)
				out = append(out, emitIForm(c, op, negate, dst, lhsReg, rhs.ConstantValue)...)
				c.unpinValue(lhs)
				if dst != lhsReg {
					c.releaseOperand(lhs, lhsReg)
				}
				return out, nil
			}
		}
		if rhsReg, err = eval(rhs); err != nil {
			return nil, err
		}
	} else {
		if rhsReg, err = eval(rhs); err != nil {
			return nil, err
		}
		c.pinValue(rhs)
		if lhsReg, err = eval(lhs); err != nil {
			return nil, err
		}
	}
	c.pinValue(lhs)
	c.pinValue(rhs)

	dst := dstReg(c, in, lhsReg)
	out = append(out, c.Alloc.TakeInstructions()...)
	out = append(out, asm.Instruction{Op: rformOp(in.BinOp), Rd: dst, Rs1: lhsReg, Rs2: rhsReg})
	c.unpinValue(lhs)
	c.unpinValue(rhs)
	if dst != lhsReg {
		c.releaseOperand(lhs, lhsReg)
	}
	c.releaseOperand(rhs, rhsReg)
	return out, nil
}

// dstReg decides the binary op's result register: reuse lhsReg when the
// lhs temp is dead after this instruction,
// otherwise allocate a fresh one. Reuse renames the allocator's
// occupancy record from the lhs temp's name to the result's, so later
// lookups of the result find this same physical register.
func dstReg(c *Context, in ir.Instruction, lhsReg asm.Register) asm.Register {
	if in.Lhs.Kind == ir.ValueTemp && c.LhsDeadAfter != nil && c.LhsDeadAfter(in.Lhs.Temp, c.InstrIndex) {
		c.Alloc.Rename(TempName(in.Lhs.Temp), TempName(in.Result))
		return lhsReg
	}
	return c.Alloc.GetRegister(TempName(in.Result))
}

func lowerComparison(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction
	lSub, lhsReg, err := c.valueReg(in.Lhs)
	if err != nil {
		return nil, err
	}
	out = append(out, lSub...)
	c.pinValue(in.Lhs)
	rSub, rhsReg, err := c.valueReg(in.Rhs)
	if err != nil {
		return nil, err
	}
	out = append(out, rSub...)
	c.pinValue(in.Rhs)

	dst := c.Alloc.GetRegister(TempName(in.Result))
	out = append(out, c.Alloc.TakeInstructions()...)

	switch in.BinOp {
	case ir.BEq:
		// dst = (lhs<rhs) | (rhs<lhs) then invert: neither less-than means equal.
		tmp := c.Alloc.GetRegister(TempName(in.Result) + ".cmp")
		out = append(out, c.Alloc.TakeInstructions()...)
		out = append(out, asm.Sltu(dst, lhsReg, rhsReg))
		out = append(out, asm.Sltu(tmp, rhsReg, lhsReg))
		out = append(out, asm.Or(dst, dst, tmp))
		out = append(out, asm.Xori(dst, dst, 1))
		c.Alloc.Free(tmp)
	case ir.BNe:
		tmp := c.Alloc.GetRegister(TempName(in.Result) + ".cmp")
		out = append(out, c.Alloc.TakeInstructions()...)
		out = append(out, asm.Sltu(dst, lhsReg, rhsReg))
		out = append(out, asm.Sltu(tmp, rhsReg, lhsReg))
		out = append(out, asm.Or(dst, dst, tmp))
		c.Alloc.Free(tmp)
	case ir.BSlt:
		// Signed less-than is implemented as unsigned until a correct
		// sign-fixing sequence is designed; see DESIGN.md.
		out = append(out, asm.Sltu(dst, lhsReg, rhsReg))
	case ir.BSgt:
		out = append(out, asm.Sltu(dst, rhsReg, lhsReg))
	case ir.BSle:
		// lhs <= rhs  ==  !(rhs < lhs)
		out = append(out, asm.Sltu(dst, rhsReg, lhsReg))
		out = append(out, asm.Xori(dst, dst, 1))
	case ir.BSge:
		// lhs >= rhs  ==  !(lhs < rhs)
		out = append(out, asm.Sltu(dst, lhsReg, rhsReg))
		out = append(out, asm.Xori(dst, dst, 1))
	}

	c.unpinValue(in.Lhs)
	c.unpinValue(in.Rhs)
	c.releaseOperand(in.Lhs, lhsReg)
	c.releaseOperand(in.Rhs, rhsReg)
	return out, nil
}
