package asm

import "fmt"

// Op enumerates every Ripple assembly mnemonic, both the hardware opcodes
// that the encoder turns into wire bytes and the pseudo-ops (Move, Call,
// Ret, Label, Comment) that expand into one or more hardware opcodes, or
// into no encoded bytes at all, during assembly.
type Op byte

const (
	OpHalt Op = iota

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpSll
	OpSrl
	OpSlt
	OpSltu

	OpAddi
	OpSubi
	OpMuli
	OpDivi
	OpModi
	OpAndi
	OpOri
	OpXori
	OpLi
	OpSlli
	OpSrli

	OpLoad
	OpStore

	OpJal
	OpJalr

	OpBeq
	OpBne
	OpBlt
	OpBge

	OpBrk

	// Pseudo-ops: expanded by the assembler/lowerer, never encoded directly.
	OpMove
	OpCall
	OpRet
	OpLabel
	OpComment
)

var opNames = map[Op]string{
	OpHalt: "halt", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpSll: "sll", OpSrl: "srl", OpSlt: "slt", OpSltu: "sltu",
	OpAddi: "addi", OpSubi: "subi", OpMuli: "muli", OpDivi: "divi", OpModi: "modi",
	OpAndi: "andi", OpOri: "ori", OpXori: "xori", OpLi: "li", OpSlli: "slli", OpSrli: "srli",
	OpLoad: "load", OpStore: "store", OpJal: "jal", OpJalr: "jalr",
	OpBeq: "beq", OpBne: "bne", OpBlt: "blt", OpBge: "bge", OpBrk: "brk",
	OpMove: "move", OpCall: "call", OpRet: "ret", OpLabel: "label", OpComment: "comment",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("?op%d?", byte(o))
}

// IsRForm reports whether o takes (rd, rs1, rs2) register operands.
func (o Op) IsRForm() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpSll, OpSrl, OpSlt, OpSltu, OpJalr:
		return true
	default:
		return false
	}
}

// IsIForm reports whether o takes (rd, rs, imm16) operands.
func (o Op) IsIForm() bool {
	switch o {
	case OpAddi, OpSubi, OpMuli, OpDivi, OpModi, OpAndi, OpOri, OpXori, OpSlli, OpSrli:
		return true
	default:
		return false
	}
}

// HasIFormFastPath reports whether op has an immediate-operand fast path. Per the
// lowering rules, bitwise/shift binary ops intentionally do not use their
// I-form encodings as a fast path even though the ISA defines them; only
// arithmetic ops do.
func (o Op) HasIFormFastPath() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return true
	default:
		return false
	}
}

// Instruction is a single tagged assembly instruction. Not every field is
// meaningful for every Op; see the constructor functions below.
type Instruction struct {
	Op Op

	Rd  Register
	Rs1 Register
	Rs2 Register

	Imm      int32
	HasLabel bool
	Label    string

	Text string // Comment text, or a human-readable annotation for Label
}

func rform(op Op, rd, rs1, rs2 Register) Instruction {
	return Instruction{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2}
}

func iform(op Op, rd, rs Register, imm int32) Instruction {
	return Instruction{Op: op, Rd: rd, Rs1: rs, Imm: imm}
}

func Add(rd, rs1, rs2 Register) Instruction  { return rform(OpAdd, rd, rs1, rs2) }
func Sub(rd, rs1, rs2 Register) Instruction  { return rform(OpSub, rd, rs1, rs2) }
func Mul(rd, rs1, rs2 Register) Instruction  { return rform(OpMul, rd, rs1, rs2) }
func Div(rd, rs1, rs2 Register) Instruction  { return rform(OpDiv, rd, rs1, rs2) }
func Mod(rd, rs1, rs2 Register) Instruction  { return rform(OpMod, rd, rs1, rs2) }
func And(rd, rs1, rs2 Register) Instruction  { return rform(OpAnd, rd, rs1, rs2) }
func Or(rd, rs1, rs2 Register) Instruction   { return rform(OpOr, rd, rs1, rs2) }
func Xor(rd, rs1, rs2 Register) Instruction  { return rform(OpXor, rd, rs1, rs2) }
func Sll(rd, rs1, rs2 Register) Instruction  { return rform(OpSll, rd, rs1, rs2) }
func Srl(rd, rs1, rs2 Register) Instruction  { return rform(OpSrl, rd, rs1, rs2) }
func Slt(rd, rs1, rs2 Register) Instruction  { return rform(OpSlt, rd, rs1, rs2) }
func Sltu(rd, rs1, rs2 Register) Instruction { return rform(OpSltu, rd, rs1, rs2) }

func Addi(rd, rs Register, imm int32) Instruction { return iform(OpAddi, rd, rs, imm) }
func Subi(rd, rs Register, imm int32) Instruction { return iform(OpSubi, rd, rs, imm) }
func Muli(rd, rs Register, imm int32) Instruction { return iform(OpMuli, rd, rs, imm) }
func Divi(rd, rs Register, imm int32) Instruction { return iform(OpDivi, rd, rs, imm) }
func Modi(rd, rs Register, imm int32) Instruction { return iform(OpModi, rd, rs, imm) }
func Andi(rd, rs Register, imm int32) Instruction { return iform(OpAndi, rd, rs, imm) }
func Ori(rd, rs Register, imm int32) Instruction  { return iform(OpOri, rd, rs, imm) }
func Xori(rd, rs Register, imm int32) Instruction { return iform(OpXori, rd, rs, imm) }
func Slli(rd, rs Register, imm int32) Instruction { return iform(OpSlli, rd, rs, imm) }
func Srli(rd, rs Register, imm int32) Instruction { return iform(OpSrli, rd, rs, imm) }

func Li(rd Register, imm int32) Instruction { return Instruction{Op: OpLi, Rd: rd, Imm: imm} }

func Load(rd, bank, addr Register) Instruction  { return rform(OpLoad, rd, bank, addr) }
func Store(rs, bank, addr Register) Instruction { return rform(OpStore, rs, bank, addr) }

func Jal(rd Register, bankImm, addrImm int32) Instruction {
	return Instruction{Op: OpJal, Rd: rd, Imm: bankImm<<16 | (addrImm & 0xFFFF)}
}

func Jalr(rd, rsBank, rsAddr Register) Instruction { return rform(OpJalr, rd, rsBank, rsAddr) }

func branch(op Op, rs1, rs2 Register, label string) Instruction {
	return Instruction{Op: op, Rs1: rs1, Rs2: rs2, HasLabel: true, Label: label}
}

func Beq(rs1, rs2 Register, label string) Instruction { return branch(OpBeq, rs1, rs2, label) }
func Bne(rs1, rs2 Register, label string) Instruction { return branch(OpBne, rs1, rs2, label) }
func Blt(rs1, rs2 Register, label string) Instruction { return branch(OpBlt, rs1, rs2, label) }
func Bge(rs1, rs2 Register, label string) Instruction { return branch(OpBge, rs1, rs2, label) }

func Brk() Instruction  { return Instruction{Op: OpBrk} }
func Halt() Instruction { return Instruction{Op: OpHalt} }

func Move(rd, rs Register) Instruction { return Instruction{Op: OpMove, Rd: rd, Rs1: rs} }

func Call(label string) Instruction { return Instruction{Op: OpCall, HasLabel: true, Label: label} }
func Ret() Instruction              { return Instruction{Op: OpRet} }

func Label(name string) Instruction {
	return Instruction{Op: OpLabel, HasLabel: true, Label: name}
}

func Comment(text string) Instruction { return Instruction{Op: OpComment, Text: text} }

// IsPseudo reports whether the instruction is expanded away before
// encoding and never corresponds to a single hardware opcode.
func (in Instruction) IsPseudo() bool {
	switch in.Op {
	case OpMove, OpCall, OpRet, OpLabel, OpComment:
		return true
	default:
		return false
	}
}
