package codegen

import "ripplevm/ir"

// lastUseIndex computes, per basic block, the index of each temp's last
// use within that block, used to drive instruction lowering's
// register-reuse decisions. A temp read from
// more than one block is never reported as locally dead, even at its
// last in-block use: lowering proceeds one block at a time and can't see
// whether a later block still needs the value.
func lastUseIndex(f *ir.Function) map[int]map[ir.TempID]int {
	blocksUsing := make(map[ir.TempID]map[int]bool)
	for bi, b := range f.Blocks {
		for _, in := range b.Instructions {
			for _, v := range operandValues(in) {
				if v.Kind != ir.ValueTemp {
					continue
				}
				if blocksUsing[v.Temp] == nil {
					blocksUsing[v.Temp] = make(map[int]bool)
				}
				blocksUsing[v.Temp][bi] = true
			}
		}
	}

	result := make(map[int]map[ir.TempID]int, len(f.Blocks))
	for bi, b := range f.Blocks {
		last := make(map[ir.TempID]int)
		for idx, in := range b.Instructions {
			for _, v := range operandValues(in) {
				if v.Kind != ir.ValueTemp {
					continue
				}
				if len(blocksUsing[v.Temp]) == 1 {
					last[v.Temp] = idx
				}
			}
		}
		result[bi] = last
	}
	return result
}

// operandValues returns every Value an instruction reads, in no
// particular order, for use by liveness analysis.
func operandValues(in ir.Instruction) []ir.Value {
	var vs []ir.Value
	switch in.Kind {
	case ir.IBinary:
		vs = append(vs, in.Lhs, in.Rhs)
	case ir.IUnary:
		vs = append(vs, in.Operand)
	case ir.ILoad:
		vs = append(vs, in.Ptr)
	case ir.IStore:
		vs = append(vs, in.StoreVal, in.Ptr)
	case ir.IGEP:
		vs = append(vs, in.Ptr)
		vs = append(vs, in.Indices...)
	case ir.ICall:
		vs = append(vs, in.Args...)
	case ir.IReturn:
		if in.HasRetVal {
			vs = append(vs, in.RetVal)
		}
	case ir.IBranchCond:
		vs = append(vs, in.Cond)
	case ir.ICast:
		vs = append(vs, in.Operand)
	case ir.ISelect:
		vs = append(vs, in.SelectCond, in.SelectT, in.SelectF)
	}
	return vs
}
