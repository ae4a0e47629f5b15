// Package callconv implements the Ripple calling convention: a stable
// ABI between caller and callee covering parameter placement,
// return-value placement, the prologue/epilogue sequence, and
// cross-bank calls. Both sides derive every placement from the same
// PlaceParams table, so they cannot disagree.
package callconv

import (
	"ripplevm/asm"
	"ripplevm/regalloc"
)

// firstStackParamOffset is FP-7: two words for saved RA/FP plus a
// conventional gap reserved for future ABI use. This
// constant is load-bearing on both the caller and callee side and must
// never be changed independently on one.
const firstStackParamOffset = -7

// abiGapWords is the caller-side expression of the same gap: after
// pushing its stack arguments the caller advances SP by this many words,
// so the topmost pushed word ends up exactly at the callee's FP-7 once
// the prologue has saved RA and the old FP (RA lands at FP-2, the old FP
// at FP-1, so the word just below the frame is FP-3). Derived from
// firstStackParamOffset so the two sides cannot drift apart.
const abiGapWords = -firstStackParamOffset - 3

// ArgKind distinguishes a scalar argument from a fat pointer.
type ArgKind uint8

const (
	ArgScalar ArgKind = iota
	ArgFatPointer
)

// Arg is one call argument, already materialized into registers by the
// caller before SetupCallArgs runs.
type Arg struct {
	Kind ArgKind
	Reg  asm.Register // ArgScalar: the value; ArgFatPointer: the address
	Bank asm.Register // ArgFatPointer only: the bank
}

// ParamLocation describes where one callee parameter lives once bound:
// either wholly in argument registers, or (for a split fat pointer or any
// parameter past the first four words) on the stack at a known FP offset.
type ParamLocation struct {
	Kind ArgKind

	// Register placement (Kind may still be ArgFatPointer if address is in
	// a register but bank landed on the stack -- see AddrInReg/BankInReg).
	AddrReg   asm.Register
	BankReg   asm.Register
	AddrInReg bool
	BankInReg bool

	// Stack placement: FP-relative offsets, valid when the corresponding
	// InReg flag is false.
	AddrOffset int
	BankOffset int
}

// PlaceParams computes the ABI location of every parameter in a
// signature, given each parameter's kind:
// A0-A3 fill left to right, a fat pointer that would straddle A3 and a
// fifth register splits (address in A3, bank on the stack), and every
// remaining word goes on the stack in pushed order.
func PlaceParams(kinds []ArgKind) []ParamLocation {
	argRegs := []asm.Register{asm.A0, asm.A1, asm.A2, asm.A3}
	locs := make([]ParamLocation, len(kinds))

	nextReg := 0
	stackWords := 0 // words already assigned to the stack, in push order

	for i, k := range kinds {
		loc := ParamLocation{Kind: k}

		switch k {
		case ArgScalar:
			if nextReg < len(argRegs) {
				loc.AddrReg = argRegs[nextReg]
				loc.AddrInReg = true
				nextReg++
			} else {
				loc.AddrOffset = firstStackParamOffset - stackWords
				stackWords++
			}

		case ArgFatPointer:
			if nextReg+1 < len(argRegs) {
				loc.AddrReg = argRegs[nextReg]
				loc.BankReg = argRegs[nextReg+1]
				loc.AddrInReg = true
				loc.BankInReg = true
				nextReg += 2
			} else if nextReg < len(argRegs) {
				// Split allowed only at the A3/stack boundary: address in
				// A3, bank on the stack.
				loc.AddrReg = argRegs[nextReg]
				loc.AddrInReg = true
				nextReg++
				loc.BankOffset = firstStackParamOffset - stackWords
				stackWords++
			} else {
				loc.AddrOffset = firstStackParamOffset - stackWords
				stackWords++
				loc.BankOffset = firstStackParamOffset - stackWords
				stackWords++
			}
		}

		locs[i] = loc
	}

	return locs
}

// SetupCallArgs pushes stack-bound arguments in reverse source order
// (rightmost first; fat pointers push bank then address so address ends
// up on top) and spills all live registers to honor caller-saves, then
// returns the generated instructions. Register-bound arguments must
// already be in A0-A3 by the time this runs; SetupCallArgs only handles
// the stack portion and the pre-call spill.
func SetupCallArgs(alloc *regalloc.Allocator, args []Arg, locs []ParamLocation) []asm.Instruction {
	var out []asm.Instruction
	out = append(out, asm.Comment("push stack arguments, rightmost first"))

	for i := len(args) - 1; i >= 0; i-- {
		loc := locs[i]
		switch args[i].Kind {
		case ArgScalar:
			if !loc.AddrInReg {
				out = append(out, asm.Comment("push stack scalar arg"))
				out = append(out, asm.Store(args[i].Reg, asm.SB, asm.SP))
				out = append(out, asm.Addi(asm.SP, asm.SP, 1))
			}
		case ArgFatPointer:
			if !loc.BankInReg {
				out = append(out, asm.Comment("push fat pointer bank"))
				out = append(out, asm.Store(args[i].Bank, asm.SB, asm.SP))
				out = append(out, asm.Addi(asm.SP, asm.SP, 1))
			}
			if !loc.AddrInReg {
				out = append(out, asm.Comment("push fat pointer address"))
				out = append(out, asm.Store(args[i].Reg, asm.SB, asm.SP))
				out = append(out, asm.Addi(asm.SP, asm.SP, 1))
			}
		}
	}

	if stackWords := StackWords(locs); stackWords > 0 {
		out = append(out, asm.Comment("reserve ABI gap above stack arguments"))
		out = append(out, asm.Addi(asm.SP, asm.SP, abiGapWords))
	}

	out = append(out, asm.Comment("spill all registers before call (caller-saves)"))
	alloc.SpillAll()
	out = append(out, alloc.TakeInstructions()...)

	return out
}

// StackWords counts how many words of a placed signature live on the
// stack, which is also the number of words SetupCallArgs pushes.
func StackWords(locs []ParamLocation) int {
	n := 0
	for _, loc := range locs {
		switch loc.Kind {
		case ArgScalar:
			if !loc.AddrInReg {
				n++
			}
		case ArgFatPointer:
			if !loc.AddrInReg {
				n++
			}
			if !loc.BankInReg {
				n++
			}
		}
	}
	return n
}

// EmitCall emits the cross-bank-aware call sequence: for a callee in a
// non-zero bank, LI PCB first; JAL always records RA<-(address of the
// next instruction, PC+WordsPerInstruction) and RAB<-executing bank
// atomically.
func EmitCall(label string, targetBank int32) []asm.Instruction {
	var out []asm.Instruction
	if targetBank != 0 {
		out = append(out, asm.Comment("cross-bank call: set PCB"))
		out = append(out, asm.Li(asm.PCB, targetBank))
	}
	out = append(out, asm.Call(label))
	return out
}

// HandleReturnValue copies RV0 (and RV1 for a pointer return) into fresh
// allocator-owned registers and returns the generated instructions along
// with those registers.
func HandleReturnValue(alloc *regalloc.Allocator, resultName string, isPointer bool) ([]asm.Instruction, asm.Register, asm.Register) {
	var out []asm.Instruction

	if isPointer {
		addrReg := alloc.GetRegister(resultName)
		out = append(out, alloc.TakeInstructions()...)
		bankReg := alloc.GetRegister(resultName + ".bank")
		out = append(out, alloc.TakeInstructions()...)

		out = append(out, asm.Comment("capture fat pointer return value"))
		out = append(out, asm.Move(addrReg, asm.RV0))
		out = append(out, asm.Move(bankReg, asm.RV1))
		return out, addrReg, bankReg
	}

	retReg := alloc.GetRegister(resultName)
	out = append(out, alloc.TakeInstructions()...)
	out = append(out, asm.Comment("capture scalar return value"))
	out = append(out, asm.Move(retReg, asm.RV0))
	return out, retReg, 0
}

// CleanupStack adjusts SP back down by the number of words pushed for
// this call's stack arguments, plus the ABI gap SetupCallArgs reserved
// above them. A call followed by this cleanup leaves SP exactly as it
// was before the argument pushes.
func CleanupStack(stackWords int) []asm.Instruction {
	if stackWords == 0 {
		return nil
	}
	return []asm.Instruction{
		asm.Comment("clean up stack arguments"),
		asm.Addi(asm.SP, asm.SP, int32(-(stackWords + abiGapWords))),
	}
}

// LoadParam loads callee parameter index (already bound to its
// ParamLocation by PlaceParams) into a fresh allocator-owned register.
// Register-resident parameters need no code; stack-resident ones are
// loaded via SC as scratch.
func LoadParam(alloc *regalloc.Allocator, name string, loc ParamLocation) []asm.Instruction {
	var out []asm.Instruction
	if loc.AddrInReg {
		return out
	}
	reg := alloc.GetRegister(name)
	out = append(out, alloc.TakeInstructions()...)
	out = append(out, asm.Comment("load stack parameter"))
	out = append(out, asm.Addi(asm.SC, asm.FP, int32(loc.AddrOffset)))
	out = append(out, asm.Load(reg, asm.SB, asm.SC))
	return out
}

// Prologue emits the callee entry sequence: lazily init SB, save
// RA and FP, set FP<-SP, and reserve localSlots words (alloca words plus
// spill headroom) for locals.
func Prologue(sbInitialized bool, localSlots int) []asm.Instruction {
	var out []asm.Instruction
	if !sbInitialized {
		out = append(out, asm.Li(asm.SB, 1))
	}
	out = append(out, asm.Store(asm.RA, asm.SB, asm.SP))
	out = append(out, asm.Addi(asm.SP, asm.SP, 1))
	out = append(out, asm.Store(asm.FP, asm.SB, asm.SP))
	out = append(out, asm.Addi(asm.SP, asm.SP, 1))
	out = append(out, asm.Move(asm.FP, asm.SP))
	if localSlots != 0 {
		out = append(out, asm.Addi(asm.SP, asm.SP, int32(localSlots)))
	}
	return out
}

// Epilogue emits the callee exit sequence: restore SP/FP/RA, restore PCB
// from RAB, and JALR back to RA. Every function has exactly one epilogue
// label; callers branch to it instead of repeating this sequence.
func Epilogue() []asm.Instruction {
	return []asm.Instruction{
		asm.Move(asm.SP, asm.FP),
		asm.Addi(asm.SP, asm.SP, -1),
		asm.Load(asm.FP, asm.SB, asm.SP),
		asm.Addi(asm.SP, asm.SP, -1),
		asm.Load(asm.RA, asm.SB, asm.SP),
		asm.Move(asm.PCB, asm.RAB),
		asm.Jalr(asm.R0, asm.R0, asm.RA),
	}
}
