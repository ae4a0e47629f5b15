package lower

import (
	"testing"

	"ripplevm/asm"
	"ripplevm/ir"
	"ripplevm/regalloc"
)

func newContext() *Context {
	return &Context{
		Alloc:         regalloc.New(),
		FuncName:      "f",
		EpilogueLabel: "f.epilogue",
		BlockLabel:    func(id ir.LabelID) string { return "f.L" },
		Banks:         make(map[ir.TempID]asm.BankInfo),
		GlobalAddr:    make(map[string]uint16),
		FuncBank:      make(map[string]uint16),
	}
}

func i32() ir.Type { return ir.Type{Kind: ir.I16} }

func TestLowerBinaryImmediateFastPath(t *testing.T) {
	c := newContext()
	in := ir.Binary(ir.BAdd, ir.TempValue(0, i32()), ir.Constant(5, i32()), 1, i32())
	c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()

	out, err := LowerBinary(c, in)
	if err != nil {
		t.Fatalf("LowerBinary: %v", err)
	}
	last := out[len(out)-1]
	if last.Op != asm.OpAddi {
		t.Fatalf("expected ADDI fast path, got %s", last.Op)
	}
	if last.Imm != 5 {
		t.Fatalf("expected immediate 5, got %d", last.Imm)
	}
}

func TestLowerBinaryReusesDeadLhsRegister(t *testing.T) {
	c := newContext()
	lhsReg := c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()
	c.LhsDeadAfter = func(id ir.TempID, idx int) bool { return id == 0 }

	in := ir.Binary(ir.BAdd, ir.TempValue(0, i32()), ir.TempValue(2, i32()), 1, i32())
	c.Alloc.GetRegister(TempName(2))
	c.Alloc.TakeInstructions()

	out, err := LowerBinary(c, in)
	if err != nil {
		t.Fatalf("LowerBinary: %v", err)
	}
	last := out[len(out)-1]
	if last.Rd != lhsReg {
		t.Fatalf("expected result to reuse lhs register %v, got %v", lhsReg, last.Rd)
	}
	if got := c.Alloc.Reload(TempName(1)); got != lhsReg {
		t.Fatalf("expected allocator to track result %%t1 in renamed register, got %v", got)
	}
}

func TestLowerComparisonEqUsesDoubleSltu(t *testing.T) {
	c := newContext()
	in := ir.Binary(ir.BEq, ir.TempValue(0, i32()), ir.TempValue(1, i32()), 2, ir.Type{Kind: ir.I1})
	c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()
	c.Alloc.GetRegister(TempName(1))
	c.Alloc.TakeInstructions()

	out, err := LowerBinary(c, in)
	if err != nil {
		t.Fatalf("LowerBinary: %v", err)
	}
	sltuCount := 0
	for _, ins := range out {
		if ins.Op == asm.OpSltu {
			sltuCount++
		}
	}
	if sltuCount != 2 {
		t.Fatalf("expected 2 SLTU instructions for Eq, got %d", sltuCount)
	}
}

func TestLowerUnaryNot(t *testing.T) {
	c := newContext()
	c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()

	in := ir.Unary(ir.UNot, ir.TempValue(0, i32()), 1, i32())
	out, err := LowerUnary(c, in)
	if err != nil {
		t.Fatalf("LowerUnary: %v", err)
	}
	last := out[len(out)-1]
	if last.Op != asm.OpXori || last.Imm != -1 {
		t.Fatalf("expected XORI dst, src, -1, got %+v", last)
	}
}

func TestLowerAllocaEmitsFPRelativeAddi(t *testing.T) {
	c := newContext()
	c.AllocaOffset = map[ir.TempID]int{0: -3}

	in := ir.Alloca(i32(), 1, 0)
	out, err := LowerAlloca(c, in)
	if err != nil {
		t.Fatalf("LowerAlloca: %v", err)
	}
	last := out[len(out)-1]
	if last.Op != asm.OpAddi || last.Rs1 != asm.FP || last.Imm != -3 {
		t.Fatalf("expected ADDI dst, FP, -3, got %+v", last)
	}
	if bank := c.Banks[0]; bank.Tag != asm.BankStack {
		t.Fatalf("expected alloca result tagged stack-banked, got %v", bank.Tag)
	}
}

func TestLowerCastIntToPtrRejected(t *testing.T) {
	c := newContext()
	c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()

	in := ir.Cast(ir.CastIntToPtr, ir.TempValue(0, i32()), 1, ir.NewFatPtr(i32()))
	if _, err := LowerCast(c, in); err != ErrInvalidCast {
		t.Fatalf("expected ErrInvalidCast, got %v", err)
	}
}

func TestLowerReturnBranchesToEpilogue(t *testing.T) {
	c := newContext()
	c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()

	in := ir.Return(ir.TempValue(0, i32()), true)
	out, err := LowerReturn(c, in)
	if err != nil {
		t.Fatalf("LowerReturn: %v", err)
	}
	last := out[len(out)-1]
	if last.Op != asm.OpBeq || last.Label != "f.epilogue" {
		t.Fatalf("expected branch to epilogue label, got %+v", last)
	}
}

func TestLowerBranchCondTargetsBothLabels(t *testing.T) {
	c := newContext()
	c.Alloc.GetRegister(TempName(0))
	c.Alloc.TakeInstructions()
	c.BlockLabel = func(id ir.LabelID) string {
		if id == 1 {
			return "f.true"
		}
		return "f.false"
	}

	in := ir.BranchCond(ir.TempValue(0, ir.Type{Kind: ir.I1}), 1, 2)
	out, err := LowerBranchCond(c, in)
	if err != nil {
		t.Fatalf("LowerBranchCond: %v", err)
	}
	if out[0].Label != "f.false" || out[1].Label != "f.true" {
		t.Fatalf("expected [false, true] label order, got %+v", out)
	}
}
