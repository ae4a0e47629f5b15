package lower

import (
	"ripplevm/asm"
	"ripplevm/ir"
)

// LowerLoad lowers a Load instruction: resolve the pointer's
// (addr, bank) registers, emit LOAD dst, bank, addr, and when the loaded
// value is itself a pointer, load the bank word from addr+1 into a
// second register and record it in c.Banks for later use.
func LowerLoad(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	sub, addrReg, bank, err := c.fatPointerRegs(in.Ptr)
	if err != nil {
		return nil, err
	}
	out = append(out, sub...)
	c.pinValue(in.Ptr)

	dst := c.Alloc.GetRegister(TempName(in.Result))
	out = append(out, c.Alloc.TakeInstructions()...)
	out = append(out, asm.Load(dst, bank.Register(), addrReg))

	if in.ResultTy.IsPointer() {
		bankAddr := c.Alloc.GetRegister(TempName(in.Result) + ".addr2")
		out = append(out, c.Alloc.TakeInstructions()...)
		out = append(out, asm.Addi(bankAddr, addrReg, 1))

		bankReg := c.Alloc.GetRegister(BankName(in.Result))
		out = append(out, c.Alloc.TakeInstructions()...)
		out = append(out, asm.Load(bankReg, bank.Register(), bankAddr))
		c.Alloc.Free(bankAddr)

		c.Banks[in.Result] = asm.RegisterBankNamed(bankReg, BankName(in.Result))
	}

	c.unpinValue(in.Ptr)
	c.releaseOperand(in.Ptr, addrReg)
	return out, nil
}

// LowerStore lowers a Store instruction: mirrors LowerLoad, storing the
// scalar value word and, for a fat-pointer-typed value, its bank word at
// addr+1.
func LowerStore(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	sub, addrReg, bank, err := c.fatPointerRegs(in.Ptr)
	if err != nil {
		return nil, err
	}
	out = append(out, sub...)
	c.pinValue(in.Ptr)

	if in.StoreVal.Type.IsPointer() {
		vSub, valAddrReg, valBank, err := c.fatPointerRegs(in.StoreVal)
		if err != nil {
			return nil, err
		}
		out = append(out, vSub...)
		out = append(out, asm.Store(valAddrReg, bank.Register(), addrReg))

		bankAddr := c.Alloc.GetRegister("store.addr2")
		out = append(out, c.Alloc.TakeInstructions()...)
		out = append(out, asm.Addi(bankAddr, addrReg, 1))
		out = append(out, asm.Store(valBank.Register(), bank.Register(), bankAddr))
		c.Alloc.Free(bankAddr)
		c.unpinValue(in.Ptr)
		c.releaseOperand(in.StoreVal, valAddrReg)
		c.releaseOperand(in.Ptr, addrReg)
		return out, nil
	}

	vSub, valReg, err := c.valueReg(in.StoreVal)
	if err != nil {
		return nil, err
	}
	out = append(out, vSub...)
	out = append(out, asm.Store(valReg, bank.Register(), addrReg))
	c.unpinValue(in.Ptr)
	c.releaseOperand(in.StoreVal, valReg)
	c.releaseOperand(in.Ptr, addrReg)
	return out, nil
}

// LowerGEP lowers a GetElementPointer: adds the element offset to the
// base address, leaving the base's bank untouched and unchanged on the
// result; a GEP never changes which bank a pointer refers to.
// Multi-dimensional indexing (struct/array chains) folds to a single
// accumulated offset, since every index here is already resolved to a
// word count by the front end.
func LowerGEP(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	var out []asm.Instruction

	sub, addrReg, bank, err := c.fatPointerRegs(in.Ptr)
	if err != nil {
		return nil, err
	}
	out = append(out, sub...)
	c.pinValue(in.Ptr)

	dst := c.Alloc.GetRegister(TempName(in.Result))
	out = append(out, c.Alloc.TakeInstructions()...)

	cur := addrReg
	for i, idx := range in.Indices {
		if idx.Kind == ir.ValueConstant && idx.ConstantValue == 0 {
			if i == len(in.Indices)-1 && cur != dst {
				out = append(out, asm.Addi(dst, cur, 0))
				cur = dst
			}
			continue
		}
		if idx.Kind == ir.ValueConstant {
			out = append(out, asm.Addi(dst, cur, int32(idx.ConstantValue)))
			cur = dst
			continue
		}
		iSub, idxReg, err := c.valueReg(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, iSub...)
		out = append(out, asm.Add(dst, cur, idxReg))
		cur = dst
	}
	if cur != dst {
		out = append(out, asm.Addi(dst, cur, 0))
	}

	c.unpinValue(in.Ptr)
	c.releaseOperand(in.Ptr, addrReg)
	c.Banks[in.Result] = bank
	return out, nil
}

// LowerAlloca lowers a stack allocation to the precomputed FP-relative
// slot the module lowerer assigned this temp (a single ADDI off FP),
// tagging the result as stack-banked.
func LowerAlloca(c *Context, in ir.Instruction) ([]asm.Instruction, error) {
	off, ok := c.AllocaOffset[in.Result]
	if !ok {
		return nil, ErrBankUnknown
	}

	dst := c.Alloc.GetRegister(TempName(in.Result))
	out := c.Alloc.TakeInstructions()
	out = append(out, asm.Addi(dst, asm.FP, int32(off)))

	c.Banks[in.Result] = asm.StackBank()
	return out, nil
}
