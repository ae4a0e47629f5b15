package codegen

import (
	"fmt"

	"ripplevm/asm"
	"ripplevm/callconv"
	"ripplevm/ir"
	"ripplevm/lower"
	"ripplevm/regalloc"
)

func blockLabelName(funcName string, id ir.LabelID) string {
	return fmt.Sprintf("%s.L%d", funcName, id)
}

// bindParams copies every ABI-placed parameter into an allocator-owned
// register at function entry: register-resident ones via a move from
// A0-A3, stack-resident ones via callconv.LoadParam. Binding every
// parameter eagerly (rather than lazily on first use) keeps the
// allocator's name table in sync with the ABI from the first
// instruction onward, since A0-A3 themselves are never part of the
// allocator's pool.
func bindParams(alloc *regalloc.Allocator, f *ir.Function, locs []callconv.ParamLocation, c *lower.Context) []asm.Instruction {
	var out []asm.Instruction

	for i, p := range f.Params {
		loc := locs[i]
		name := lower.TempName(p.Temp)

		if loc.AddrInReg {
			reg := alloc.GetRegister(name)
			out = append(out, alloc.TakeInstructions()...)
			out = append(out, asm.Addi(reg, loc.AddrReg, 0))
		} else {
			out = append(out, callconv.LoadParam(alloc, name, loc)...)
		}

		if !p.Type.IsPointer() {
			continue
		}

		bankName := lower.BankName(p.Temp)
		if loc.BankInReg {
			reg := alloc.GetRegister(bankName)
			out = append(out, alloc.TakeInstructions()...)
			out = append(out, asm.Addi(reg, loc.BankReg, 0))
		} else {
			bankLoc := callconv.ParamLocation{AddrOffset: loc.BankOffset}
			out = append(out, callconv.LoadParam(alloc, bankName, bankLoc)...)
		}
		c.Banks[p.Temp] = asm.RegisterBankNamed(alloc.Reload(bankName), bankName)
	}

	return out
}

// lowerFunction lowers one function to a flat assembly sequence with its
// calls, branches, and block entries still expressed as label-carrying
// pseudo-ops: the module lowerer resolves every label and
// call target once every function's bank assignment is known.
func (lw *Lowerer) lowerFunction(f *ir.Function, globalAddr map[string]uint16, funcBank map[string]uint16) ([]asm.Instruction, error) {
	alloc := regalloc.New()
	offsets, allocaWords := allocaLayout(f)
	alloc.SetFrameBase(allocaWords)
	epilogueLabel := f.Name + ".epilogue"

	c := &lower.Context{
		Alloc:         alloc,
		FuncName:      f.Name,
		EpilogueLabel: epilogueLabel,
		Banks:         make(map[ir.TempID]asm.BankInfo),
		GlobalAddr:    globalAddr,
		FuncBank:      funcBank,
		AllocaOffset:  offsets,
	}
	c.BlockLabel = func(id ir.LabelID) string {
		if id == f.Entry {
			return f.Name
		}
		return blockLabelName(f.Name, id)
	}

	// The body is lowered into its own buffer first: local_slots covers
	// every alloca plus spill headroom, and the spill count is only known
	// once the body has been through the allocator. The prologue is
	// prepended afterward with the final frame size.
	var body []asm.Instruction

	kinds := make([]callconv.ArgKind, len(f.Params))
	for i, p := range f.Params {
		if p.Type.IsPointer() {
			kinds[i] = callconv.ArgFatPointer
		} else {
			kinds[i] = callconv.ArgScalar
		}
	}
	body = append(body, bindParams(alloc, f, callconv.PlaceParams(kinds), c)...)

	liveness := lastUseIndex(f)

	for bi, b := range f.Blocks {
		if b.Label != f.Entry {
			body = append(body, asm.Label(blockLabelName(f.Name, b.Label)))
		}

		last := liveness[bi]
		c.LhsDeadAfter = func(id ir.TempID, idx int) bool {
			got, ok := last[id]
			return ok && got == idx
		}

		for idx := 0; idx < len(b.Instructions); idx++ {
			in := b.Instructions[idx]
			c.InstrIndex = idx

			// Fuse a comparison with the conditional branch consuming it
			// when the i1 result has no other use: the pair lowers to a
			// direct BEQ/BNE/BLT/BGE instead of a materialized flag.
			if in.Kind == ir.IBinary && in.BinOp.IsComparison() && idx+1 < len(b.Instructions) {
				next := b.Instructions[idx+1]
				if next.Kind == ir.IBranchCond && next.Cond.Kind == ir.ValueTemp &&
					next.Cond.Temp == in.Result && last[in.Result] == idx+1 {
					lowered, err := lower.LowerCompareAndBranch(c, in, next)
					if err != nil {
						return nil, fmt.Errorf("function %s, block %d, instruction %d: %w", f.Name, bi, idx, err)
					}
					body = append(body, lowered...)
					idx++
					continue
				}
			}

			lowered, err := lw.lowerInstruction(c, in)
			if err != nil {
				return nil, fmt.Errorf("function %s, block %d, instruction %d: %w", f.Name, bi, idx, err)
			}
			body = append(body, lowered...)
		}
	}

	spillSlots := alloc.SpillSlots()
	if spillSlots < regalloc.SpillHeadroom {
		spillSlots = regalloc.SpillHeadroom
	}
	localSlots := allocaWords + spillSlots

	out := make([]asm.Instruction, 0, len(body)+16)
	out = append(out, asm.Label(f.Name))
	out = append(out, callconv.Prologue(false, localSlots)...)
	out = append(out, body...)
	out = append(out, asm.Label(epilogueLabel))
	out = append(out, callconv.Epilogue()...)

	return out, nil
}

func (lw *Lowerer) lowerInstruction(c *lower.Context, in ir.Instruction) ([]asm.Instruction, error) {
	switch in.Kind {
	case ir.IBinary:
		return lower.LowerBinary(c, in)
	case ir.IUnary:
		return lower.LowerUnary(c, in)
	case ir.ILoad:
		return lower.LowerLoad(c, in)
	case ir.IStore:
		return lower.LowerStore(c, in)
	case ir.IGEP:
		return lower.LowerGEP(c, in)
	case ir.IAlloca:
		return lower.LowerAlloca(c, in)
	case ir.ICall:
		return lower.LowerCall(c, in)
	case ir.IReturn:
		return lower.LowerReturn(c, in)
	case ir.IBranch:
		return lower.LowerBranch(c, in)
	case ir.IBranchCond:
		return lower.LowerBranchCond(c, in)
	case ir.ICast:
		return lower.LowerCast(c, in)
	case ir.ISelect:
		return lower.LowerSelect(c, in)
	case ir.IComment:
		return []asm.Instruction{asm.Comment(in.Text)}, nil
	case ir.IInlineAsm:
		return []asm.Instruction{asm.Comment("inline: " + in.Text)}, nil
	case ir.IPhi:
		return nil, fmt.Errorf("codegen: phi nodes must be eliminated before lowering (function %s)", c.FuncName)
	default:
		return nil, fmt.Errorf("codegen: unhandled instruction kind %d", in.Kind)
	}
}
