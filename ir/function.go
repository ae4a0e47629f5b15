package ir

// BasicBlock is an ordered sequence of instructions ending in exactly one
// terminator (Branch, BranchCond, or Return).
type BasicBlock struct {
	Label        LabelID
	Name         string
	Instructions []Instruction
}

// Terminator returns the block's terminating instruction, or false if the
// block is malformed (missing or misplaced terminator) -- callers that
// build blocks by hand are expected to maintain this invariant; the
// module lowerer does not check it.
func (b *BasicBlock) Terminator() (Instruction, bool) {
	if len(b.Instructions) == 0 {
		return Instruction{}, false
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !last.IsTerminator() {
		return Instruction{}, false
	}
	return last, true
}

// Param is one function parameter: its temp id and type.
type Param struct {
	Temp TempID
	Type Type
}

// Function is {name, params, return_type, blocks, entry_block}. Parameters
// occupy the first temp IDs of the function; the allocator reserves temp
// IDs >= len(Params) for internal use.
//
// Bank names which memory bank the module lowerer places this function's
// code in. Cross-bank calls need the callee's bank known at lowering
// time so the caller can set PCB before the JAL; defaults to 0
// (single-bank modules, the common case).
type Function struct {
	Name       string
	Params     []Param
	ReturnType Type
	Blocks     []*BasicBlock
	Entry      LabelID
	Bank       uint16
}

// Block looks up a basic block by label.
func (f *Function) Block(label LabelID) (*BasicBlock, bool) {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b, true
		}
	}
	return nil, false
}

// EntryBlock returns the function's entry block.
func (f *Function) EntryBlock() (*BasicBlock, bool) {
	return f.Block(f.Entry)
}

// NextTempID returns the first temp ID not reserved by a parameter,
// suitable as the starting point for a per-function temp counter.
func (f *Function) NextTempID() TempID {
	return TempID(len(f.Params))
}
