package ir

// LabelID identifies a basic block, unique within its function.
type LabelID uint32

// BinaryOp enumerates the binary operators a Binary instruction may carry.
type BinaryOp uint8

const (
	BAdd BinaryOp = iota
	BSub
	BMul
	BDiv
	BMod
	BAnd
	BOr
	BXor
	BShl
	BShr
	BEq
	BNe
	BSlt // signed less-than
	BSle
	BSgt
	BSge
)

// IsCommutative reports whether operand order doesn't affect the result,
// which the Sethi-Ullman-style lowering heuristic uses to decide whether
// it may reorder operand evaluation.
func (op BinaryOp) IsCommutative() bool {
	switch op {
	case BAdd, BMul, BAnd, BOr, BXor, BEq, BNe:
		return true
	default:
		return false
	}
}

// IsComparison reports whether op produces an i1 result.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case BEq, BNe, BSlt, BSle, BSgt, BSge:
		return true
	default:
		return false
	}
}

// UnaryOp enumerates unary operators.
type UnaryOp uint8

const (
	UNot UnaryOp = iota
	UNeg
)

// CastKind enumerates the Cast instruction's conversion kinds.
type CastKind uint8

const (
	CastZExt CastKind = iota
	CastSExt
	CastTrunc
	CastPtrToInt
	CastIntToPtr
)

// InstrKind tags the variant held by an Instruction.
type InstrKind uint8

const (
	IBinary InstrKind = iota
	IUnary
	ILoad
	IStore
	IGEP
	IAlloca
	ICall
	IReturn
	IBranch
	IBranchCond
	IPhi
	ICast
	ISelect
	IInlineAsm
	IComment
)

// Instruction is one IR instruction. Only the fields relevant to Kind are
// meaningful; one concrete struct with fields shared across the opcode
// kinds keeps construction and matching flat, at the cost of a few
// unused fields per instruction.
type Instruction struct {
	Kind InstrKind

	// Binary / Unary / Cast
	BinOp   BinaryOp
	UnOp    UnaryOp
	Cast    CastKind
	Lhs     Value
	Rhs     Value
	Operand Value

	// Load / Store / GEP / Alloca
	Ptr      Value
	StoreVal Value
	Indices  []Value
	AllocaTy Type
	AllocaN  int

	// Call
	Callee Value
	Args   []Value

	// Return
	RetVal    Value
	HasRetVal bool

	// Branch / BranchCond
	Target     LabelID
	TrueTarget LabelID
	FalseLabel LabelID
	Cond       Value

	// Phi
	PhiIncoming []PhiEdge

	// Select
	SelectCond Value
	SelectT    Value
	SelectF    Value

	// InlineAsm / Comment
	Text string

	// Result, when this instruction produces a value.
	Result    TempID
	ResultTy  Type
	HasResult bool
}

// PhiEdge is one (predecessor block, incoming value) pair of a Phi.
type PhiEdge struct {
	Block LabelID
	Value Value
}

func Binary(op BinaryOp, lhs, rhs Value, result TempID, ty Type) Instruction {
	return Instruction{Kind: IBinary, BinOp: op, Lhs: lhs, Rhs: rhs, Result: result, ResultTy: ty, HasResult: true}
}

func Unary(op UnaryOp, operand Value, result TempID, ty Type) Instruction {
	return Instruction{Kind: IUnary, UnOp: op, Operand: operand, Result: result, ResultTy: ty, HasResult: true}
}

func Load(ptr Value, ty Type, result TempID) Instruction {
	return Instruction{Kind: ILoad, Ptr: ptr, Result: result, ResultTy: ty, HasResult: true}
}

func Store(value, ptr Value) Instruction {
	return Instruction{Kind: IStore, StoreVal: value, Ptr: ptr}
}

func GEP(base Value, indices []Value, result TempID, ty Type) Instruction {
	return Instruction{Kind: IGEP, Ptr: base, Indices: indices, Result: result, ResultTy: ty, HasResult: true}
}

func Alloca(ty Type, count int, result TempID) Instruction {
	return Instruction{Kind: IAlloca, AllocaTy: ty, AllocaN: count, Result: result, ResultTy: NewFatPtr(ty), HasResult: true}
}

func Call(fn Value, args []Value, result TempID, ty Type, hasResult bool) Instruction {
	return Instruction{Kind: ICall, Callee: fn, Args: args, Result: result, ResultTy: ty, HasResult: hasResult}
}

func Return(value Value, has bool) Instruction {
	return Instruction{Kind: IReturn, RetVal: value, HasRetVal: has}
}

func Branch(target LabelID) Instruction {
	return Instruction{Kind: IBranch, Target: target}
}

func BranchCond(cond Value, trueLabel, falseLabel LabelID) Instruction {
	return Instruction{Kind: IBranchCond, Cond: cond, TrueTarget: trueLabel, FalseLabel: falseLabel}
}

func Phi(edges []PhiEdge, result TempID, ty Type) Instruction {
	return Instruction{Kind: IPhi, PhiIncoming: edges, Result: result, ResultTy: ty, HasResult: true}
}

func Cast(kind CastKind, operand Value, result TempID, ty Type) Instruction {
	return Instruction{Kind: ICast, Cast: kind, Operand: operand, Result: result, ResultTy: ty, HasResult: true}
}

func Select(cond, t, f Value, result TempID, ty Type) Instruction {
	return Instruction{Kind: ISelect, SelectCond: cond, SelectT: t, SelectF: f, Result: result, ResultTy: ty, HasResult: true}
}

func InlineAsm(text string) Instruction {
	return Instruction{Kind: IInlineAsm, Text: text}
}

func Comment(text string) Instruction {
	return Instruction{Kind: IComment, Text: text}
}

// IsTerminator reports whether this instruction ends a basic block.
func (in Instruction) IsTerminator() bool {
	switch in.Kind {
	case IBranch, IBranchCond, IReturn:
		return true
	default:
		return false
	}
}
