package codegen

import "ripplevm/ir"

// allocaLayout assigns each Alloca instruction in f a distinct
// FP-relative offset, growing upward from FP+0 (spill slots follow in
// the headroom directly above the allocas, per the allocator's frame
// base, so the two never collide), and returns how many words the
// allocas occupy.
func allocaLayout(f *ir.Function) (map[ir.TempID]int, int) {
	offsets := make(map[ir.TempID]int)
	next := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instructions {
			if in.Kind != ir.IAlloca {
				continue
			}
			count := in.AllocaN
			if count == 0 {
				count = 1
			}
			words := in.AllocaTy.SizeWords() * count
			offsets[in.Result] = next
			next += words
		}
	}
	return offsets, next
}
