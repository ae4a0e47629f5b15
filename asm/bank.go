package asm

// BankTag describes which kind of 16-bit memory bank a pointer addresses.
// Every fat pointer carried through the IR and across the ABI resolves to
// one of these at codegen time; Global and Stack resolve to the fixed GP
// and SB registers, Register carries a runtime bank in an allocator-owned
// register, and Unknown/Mixed/Null exist so the front-end can describe a
// pointer whose bank isn't yet, or can't be, pinned down statically.
type BankTag uint8

const (
	BankGlobal BankTag = iota
	BankStack
	BankHeap
	BankUnknown
	BankMixed
	BankNull
)

var bankTagNames = [...]string{
	BankGlobal:  "global",
	BankStack:   "stack",
	BankHeap:    "heap",
	BankUnknown: "unknown",
	BankMixed:   "mixed",
	BankNull:    "null",
}

func (b BankTag) String() string {
	if int(b) < len(bankTagNames) {
		return bankTagNames[b]
	}
	return "?bank?"
}

// BankInfo resolves a pointer's bank to a concrete register at emit time.
// Kind selects which field is meaningful: Global/Stack need no register
// (GP/SB are implied), Register carries the runtime bank register. Name,
// when set, is the register allocator's key for the bank value: the
// register in Kind is only a snapshot, and a use after the value may
// have been spilled must re-resolve through the allocator under this
// name.
type BankInfo struct {
	Kind Register // GP, SB, or a register holding a runtime bank
	Tag  BankTag
	Name string
}

// GlobalBank is the resolved bank info for a pointer known to live in the
// global data segment.
func GlobalBank() BankInfo { return BankInfo{Kind: GP, Tag: BankGlobal} }

// StackBank is the resolved bank info for a pointer known to live on the
// current function's stack frame.
func StackBank() BankInfo { return BankInfo{Kind: SB, Tag: BankStack} }

// RegisterBank is the resolved bank info for a pointer whose bank is only
// known at runtime, held in reg.
func RegisterBank(reg Register) BankInfo { return BankInfo{Kind: reg, Tag: BankMixed} }

// RegisterBankNamed is RegisterBank for a bank value the register
// allocator tracks under name, letting later uses re-resolve the
// register after spills.
func RegisterBankNamed(reg Register, name string) BankInfo {
	return BankInfo{Kind: reg, Tag: BankMixed, Name: name}
}

// IsRegister reports whether the bank lives in an ordinary register
// rather than the implied GP/SB.
func (b BankInfo) IsRegister() bool {
	return b.Tag != BankGlobal && b.Tag != BankStack
}

// Register returns the register that should be used as the bank operand
// for a load or store through this bank info.
func (b BankInfo) Register() Register { return b.Kind }
