package ir

import "fmt"

// TempID identifies an SSA-like temporary, unique within its function.
type TempID uint32

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueConstant ValueKind = iota
	ValueTemp
	ValueGlobal
	ValueFunction
	ValueFatPtr
	ValueUndef
)

// Value is a tagged variant: Constant(i64) | Temp(TempId) | Global(name) |
// Function(name) | FatPtr{addr, bank} | Undef.
type Value struct {
	Kind ValueKind

	ConstantValue int64
	Temp          TempID
	Name          string // Global or Function name

	// ValueFatPtr: addr is itself a Value (usually a Temp or Constant);
	// BankTag names the pointer's statically known bank kind, which the
	// lowerer turns into an asm.BankInfo (Global and Stack map to GP and
	// SB).
	Addr    *Value
	BankTag BankTagKind
	Type    Type
}

// BankTagKind mirrors asm.BankTag without creating an import cycle; the
// lowerer translates between the two at the codegen boundary.
type BankTagKind uint8

const (
	BankGlobal BankTagKind = iota
	BankStack
	BankHeap
	BankUnknown
	BankMixed
	BankNull
)

func Constant(v int64, t Type) Value {
	return Value{Kind: ValueConstant, ConstantValue: v, Type: t}
}

func TempValue(id TempID, t Type) Value {
	return Value{Kind: ValueTemp, Temp: id, Type: t}
}

func GlobalValue(name string, t Type) Value {
	return Value{Kind: ValueGlobal, Name: name, Type: t}
}

func FunctionValue(name string, t Type) Value {
	return Value{Kind: ValueFunction, Name: name, Type: t}
}

func FatPtrValue(addr Value, bank BankTagKind, pointee Type) Value {
	a := addr
	return Value{Kind: ValueFatPtr, Addr: &a, BankTag: bank, Type: NewFatPtr(pointee)}
}

func Undef(t Type) Value {
	return Value{Kind: ValueUndef, Type: t}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueConstant:
		return fmt.Sprintf("%d", v.ConstantValue)
	case ValueTemp:
		return fmt.Sprintf("%%t%d", v.Temp)
	case ValueGlobal:
		return fmt.Sprintf("@%s", v.Name)
	case ValueFunction:
		return fmt.Sprintf("@%s()", v.Name)
	case ValueFatPtr:
		return fmt.Sprintf("fatptr(%s)", v.Addr)
	case ValueUndef:
		return "undef"
	default:
		return "?value?"
	}
}
