package lower

import (
	"ripplevm/asm"
	"ripplevm/ir"
	"ripplevm/regalloc"
)

// GlobalInit emits the word-by-word store sequence that writes one
// global's initializer into the global bank; the module lowerer's
// synthesized _init_globals routine runs this for every global with a
// non-zero initializer before jumping to main. addr is the global's
// already-assigned GP-relative base address.
func GlobalInit(alloc *regalloc.Allocator, g *ir.Global, addr uint16) []asm.Instruction {
	var out []asm.Instruction
	if len(g.Initializer) == 0 {
		return out
	}

	addrReg := alloc.GetConstRegister(int32(addr))
	out = append(out, alloc.TakeInstructions()...)

	for i, v := range g.Initializer {
		if v.Kind != ir.ValueConstant {
			out = append(out, asm.Comment("non-constant global initializer word skipped"))
			continue
		}
		valReg := alloc.GetConstRegister(int32(v.ConstantValue))
		out = append(out, alloc.TakeInstructions()...)

		if i == 0 {
			out = append(out, asm.Store(valReg, asm.GP, addrReg))
		} else {
			offReg := alloc.GetConstRegister(int32(i))
			out = append(out, alloc.TakeInstructions()...)
			tmp := alloc.GetConstRegister(0)
			out = append(out, alloc.TakeInstructions()...)
			out = append(out, asm.Add(tmp, addrReg, offReg))
			out = append(out, asm.Store(valReg, asm.GP, tmp))
			alloc.FreeConstRegister(tmp)
			alloc.FreeConstRegister(offReg)
		}
		alloc.FreeConstRegister(valReg)
	}

	alloc.FreeConstRegister(addrReg)
	return out
}
