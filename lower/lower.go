// Package lower implements instruction lowering: one function per IR
// opcode family, each producing an ordered, allocator-aware assembly
// sequence for the module lowerer to stitch together.
package lower

import (
	"errors"
	"fmt"

	"ripplevm/asm"
	"ripplevm/ir"
	"ripplevm/regalloc"
)

// ErrInvalidCast marks an integer-to-pointer cast, rejected at lowering
// time: the fat-pointer bank cannot be synthesized from a bare integer.
var ErrInvalidCast = errors.New("lower: integer-to-pointer cast is not supported")

// ErrBankUnknown marks an internal-compiler-error: a load or store
// through a pointer whose bank is neither recorded nor tagged.
var ErrBankUnknown = errors.New("lower: pointer bank information missing")

// Context carries the per-function state instruction lowering threads
// through every opcode: the register allocator, this function's label
// names, resolved bank information for every pointer-typed temp, and the
// module-wide tables (global addresses, function banks) lowering needs to
// resolve Load/Store/GEP/Call targets. The module lowerer (codegen)
// constructs one Context per function and discards it at function exit,
// matching the allocator's own per-function lifecycle.
type Context struct {
	Alloc *regalloc.Allocator

	FuncName      string
	EpilogueLabel string

	// BlockLabel resolves an IR basic block label to its assembly label
	// name, e.g. "f.L3".
	BlockLabel func(ir.LabelID) string

	// Banks resolves a pointer-typed temp's bank info once it has been
	// produced by Alloca, a Load of a pointer, a parameter bind, or a GEP
	// (which inherits its base's bank unchanged).
	Banks map[ir.TempID]asm.BankInfo

	// GlobalAddr maps a global's name to its GP-relative address,
	// assigned by the module lowerer before any function lowers.
	GlobalAddr map[string]uint16

	// FuncBank maps a callee function name to the bank it's placed in,
	// for cross-bank call emission.
	FuncBank map[string]uint16

	// LhsDeadAfter reports whether the temp last used as a binary op's
	// lhs operand is dead after this instruction, letting the result
	// reuse its register. Populated by the
	// module lowerer from a single forward liveness pass per function.
	LhsDeadAfter func(ir.TempID, int) bool

	// InstrIndex is the index of the instruction currently being lowered
	// within its basic block, consulted by LhsDeadAfter.
	InstrIndex int

	// AllocaOffset maps an Alloca instruction's result temp to its
	// FP-relative stack slot, assigned by the module lowerer from the
	// function's locals layout before any block lowers.
	AllocaOffset map[ir.TempID]int
}

// TempName returns the register allocator's name for a temp. Kept in one
// place since every lowering function needs to turn an ir.Value into an
// allocator key the same way.
func TempName(id ir.TempID) string { return fmt.Sprintf("t%d", id) }

// BankName returns the allocator name used for the runtime bank register
// that accompanies a fat pointer's address register, e.g. when a Load
// produces a pointer-typed result. Mirrors callconv's "name.bank"
// convention for fat-pointer return values so the two packages agree on
// one scheme.
func BankName(id ir.TempID) string { return TempName(id) + ".bank" }

// valueReg resolves an ir.Value already known to be scalar (not a fat
// pointer) to a register, materializing constants via GetConstRegister
// and temps via Alloc.Reload. Globals and other fat-pointer values are
// rejected with an error here; fatPointerRegs resolves those.
func (c *Context) valueReg(v ir.Value) ([]asm.Instruction, asm.Register, error) {
	var out []asm.Instruction
	switch v.Kind {
	case ir.ValueConstant:
		reg := c.Alloc.GetConstRegister(int32(v.ConstantValue))
		out = append(out, c.Alloc.TakeInstructions()...)
		return out, reg, nil
	case ir.ValueTemp:
		reg := c.Alloc.Reload(TempName(v.Temp))
		out = append(out, c.Alloc.TakeInstructions()...)
		return out, reg, nil
	case ir.ValueUndef:
		reg := c.Alloc.GetConstRegister(0)
		out = append(out, c.Alloc.TakeInstructions()...)
		return out, reg, nil
	default:
		return nil, 0, fmt.Errorf("lower: value kind %d is not a scalar register value", v.Kind)
	}
}

// fatPointerRegs resolves a fat-pointer value to its (address, bank)
// registers. base must already have a known BankInfo: either recorded in
// c.Banks (temps) or GlobalBank()/StackBank() for Global/a stack alloca
// result that has already been bound.
func (c *Context) fatPointerRegs(v ir.Value) ([]asm.Instruction, asm.Register, asm.BankInfo, error) {
	var out []asm.Instruction

	switch v.Kind {
	case ir.ValueTemp:
		addrReg := c.Alloc.Reload(TempName(v.Temp))
		out = append(out, c.Alloc.TakeInstructions()...)
		bank, ok := c.Banks[v.Temp]
		if !ok {
			return nil, 0, asm.BankInfo{}, fmt.Errorf("%w: %%t%d", ErrBankUnknown, v.Temp)
		}
		if bank.IsRegister() && bank.Name != "" {
			// The recorded register is only a snapshot; the bank value
			// may have been spilled since. Re-resolve through the
			// allocator, keeping the address register pinned so the
			// reload can't evict it.
			c.Alloc.Pin(TempName(v.Temp))
			bankReg := c.Alloc.Reload(bank.Name)
			out = append(out, c.Alloc.TakeInstructions()...)
			c.Alloc.Unpin(TempName(v.Temp))
			bank.Kind = bankReg
		}
		return out, addrReg, bank, nil

	case ir.ValueGlobal:
		addr, ok := c.GlobalAddr[v.Name]
		if !ok {
			return nil, 0, asm.BankInfo{}, fmt.Errorf("lower: undefined global %q", v.Name)
		}
		reg := c.Alloc.GetConstRegister(int32(addr))
		out = append(out, c.Alloc.TakeInstructions()...)
		return out, reg, asm.GlobalBank(), nil

	case ir.ValueFatPtr:
		sub, addrReg, err := c.valueReg(*v.Addr)
		if err != nil {
			return nil, 0, asm.BankInfo{}, err
		}
		out = append(out, sub...)
		return out, addrReg, bankInfoFromTag(v.BankTag), nil

	default:
		return nil, 0, asm.BankInfo{}, fmt.Errorf("lower: value kind %d is not a fat pointer", v.Kind)
	}
}

// pinValue protects an operand's registers (and, for fat pointers, the
// bank value's) from being chosen as spill victims while the lowering of
// the current instruction allocates further registers. Every pinValue is
// matched by an unpinValue once the instruction's code has been emitted;
// pinning values the allocator doesn't track is harmless.
func (c *Context) pinValue(v ir.Value) {
	if v.Kind != ir.ValueTemp {
		return
	}
	c.Alloc.Pin(TempName(v.Temp))
	if v.Type.IsPointer() {
		c.Alloc.Pin(BankName(v.Temp))
	}
}

func (c *Context) unpinValue(v ir.Value) {
	if v.Kind != ir.ValueTemp {
		return
	}
	c.Alloc.Unpin(TempName(v.Temp))
	if v.Type.IsPointer() {
		c.Alloc.Unpin(BankName(v.Temp))
	}
}

// releaseOperand returns the register that materialized v to the back of
// the free pool when v is not an allocator-tracked temp: constants,
// undef, global addresses, and constant fat-pointer address words are
// all reclaimable the moment the instruction that consumed them has been
// emitted. Named temps stay live under allocator control.
func (c *Context) releaseOperand(v ir.Value, reg asm.Register) {
	switch v.Kind {
	case ir.ValueConstant, ir.ValueUndef, ir.ValueGlobal:
		c.Alloc.FreeConstRegister(reg)
	case ir.ValueFatPtr:
		if v.Addr.Kind == ir.ValueConstant || v.Addr.Kind == ir.ValueUndef {
			c.Alloc.FreeConstRegister(reg)
		}
	}
}

func bankInfoFromTag(tag ir.BankTagKind) asm.BankInfo {
	switch tag {
	case ir.BankGlobal:
		return asm.GlobalBank()
	case ir.BankStack:
		return asm.StackBank()
	default:
		return asm.BankInfo{Kind: asm.SC, Tag: asm.BankUnknown}
	}
}
