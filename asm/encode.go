package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// Encoded is the wire layout of one instruction: opcode byte, a reserved
// byte, three 16-bit payload words, and a trailing reserved word so the
// record is exactly 5 words (10 bytes) wide end to end.
type Encoded struct {
	Opcode   byte
	Reserved byte
	W1       uint16
	W2       uint16
	W3       uint16
	W4       uint16 // always zero; reserved for future ABI use
}

const encodedWords uint32 = 5
const encodedBytes uint32 = uint32(unsafe.Sizeof(Encoded{}))

func init() {
	if encodedBytes != 10 {
		panic("asm: Encoded size not equal to 10 bytes")
	}
}

var (
	ErrImmediateRange   = errors.New("asm: immediate out of range")
	ErrUnknownOpcode    = errors.New("asm: unknown opcode")
	ErrUnresolvedLabel  = errors.New("asm: unresolved label")
	ErrPseudoNotEncoded = errors.New("asm: pseudo-op reached the encoder directly")
)

const MaxImmediate = 0xFFFF

var opToOpcode = map[Op]byte{
	OpHalt: 0x00,
	OpAdd:  0x01, OpSub: 0x02, OpMul: 0x03, OpDiv: 0x04, OpMod: 0x05,
	OpAnd: 0x06, OpOr: 0x07, OpXor: 0x08, OpSll: 0x09,
	OpAddi: 0x0A, OpAndi: 0x0B, OpOri: 0x0C, OpXori: 0x0D, OpLi: 0x0E, OpSlli: 0x0F, OpSrli: 0x10,
	OpLoad: 0x11, OpStore: 0x12,
	OpJal: 0x13, OpJalr: 0x14,
	OpBeq: 0x15, OpBne: 0x16, OpBlt: 0x17, OpBge: 0x18,
	OpBrk: 0x19,
	OpSrl: 0x1A, OpSltu: 0x1B,
	OpSubi: 0x1C, OpMuli: 0x1D, OpDivi: 0x1E, OpModi: 0x1F,
}

var opcodeToOp map[byte]Op

func init() {
	opcodeToOp = make(map[byte]Op, len(opToOpcode))
	for op, code := range opToOpcode {
		opcodeToOp[code] = op
	}
	// Slt has no opcode of its own; it is encoded as Sltu, resolving the
	// documented open question that an unsigned implementation stands in
	// for the signed comparison until one is implemented faithfully.
}

// opcodeFor resolves the wire opcode for op, aliasing Slt to Sltu.
func opcodeFor(op Op) (byte, bool) {
	if op == OpSlt {
		op = OpSltu
	}
	code, ok := opToOpcode[op]
	return code, ok
}

// CheckImmediate validates an immediate against the configured maximum
// (spec default 65535) and returns it reinterpreted as a two's-complement
// uint16.
func CheckImmediate(v int32, max int32) (uint16, error) {
	if max <= 0 {
		max = MaxImmediate
	}
	if v >= 0 {
		if v > max {
			return 0, fmt.Errorf("%w: %d exceeds max %d", ErrImmediateRange, v, max)
		}
		return uint16(v), nil
	}
	// Negative immediates are permitted and reinterpreted as two's
	// complement u16, so they must fit the signed half of the range:
	// -(max+1)/2 .. -1 (-32768 .. -1 for the default maximum).
	if int64(v) < -(int64(max)+1)/2 {
		return 0, fmt.Errorf("%w: %d exceeds max %d", ErrImmediateRange, v, max)
	}
	return uint16(int16(v)), nil
}

// Encode translates one already-resolved Instruction (labels replaced
// with PC-relative offsets, pseudo-ops already expanded) into its wire
// Encoded record.
func Encode(in Instruction) (Encoded, error) {
	if in.IsPseudo() {
		return Encoded{}, fmt.Errorf("%w: %s", ErrPseudoNotEncoded, in.Op)
	}

	code, ok := opcodeFor(in.Op)
	if !ok {
		return Encoded{}, fmt.Errorf("%w: %s", ErrUnknownOpcode, in.Op)
	}

	enc := Encoded{Opcode: code}

	switch {
	case in.Op == OpHalt || in.Op == OpBrk:
		// all-zero payload

	case in.Op.IsRForm():
		enc.W1 = uint16(in.Rd)
		enc.W2 = uint16(in.Rs1)
		enc.W3 = uint16(in.Rs2)

	case in.Op.IsIForm():
		imm, err := CheckImmediate(in.Imm, MaxImmediate)
		if err != nil {
			return Encoded{}, err
		}
		enc.W1 = uint16(in.Rd)
		enc.W2 = uint16(in.Rs1)
		enc.W3 = imm

	case in.Op == OpLi:
		imm, err := CheckImmediate(in.Imm, MaxImmediate)
		if err != nil {
			return Encoded{}, err
		}
		enc.W1 = uint16(in.Rd)
		enc.W3 = imm

	case in.Op == OpLoad:
		enc.W1 = uint16(in.Rd)
		enc.W2 = uint16(in.Rs1) // bank
		enc.W3 = uint16(in.Rs2) // addr

	case in.Op == OpStore:
		enc.W1 = uint16(in.Rd) // value source
		enc.W2 = uint16(in.Rs1)
		enc.W3 = uint16(in.Rs2)

	case in.Op == OpJal:
		enc.W1 = uint16(in.Rd)
		enc.W2 = uint16((in.Imm >> 16) & 0xFFFF)
		enc.W3 = uint16(in.Imm & 0xFFFF)

	case in.Op == OpBeq, in.Op == OpBne, in.Op == OpBlt, in.Op == OpBge:
		if in.HasLabel {
			return Encoded{}, fmt.Errorf("%w: %s", ErrUnresolvedLabel, in.Label)
		}
		imm, err := CheckImmediate(in.Imm, MaxImmediate)
		if err != nil {
			return Encoded{}, err
		}
		enc.W1 = uint16(in.Rs1)
		enc.W2 = uint16(in.Rs2)
		enc.W3 = imm

	default:
		return Encoded{}, fmt.Errorf("%w: %s", ErrUnknownOpcode, in.Op)
	}

	return enc, nil
}

// Bytes serializes e as the 10-byte little-endian wire record.
func (e Encoded) Bytes() [10]byte {
	var out [10]byte
	out[0] = e.Opcode
	out[1] = e.Reserved
	binary.LittleEndian.PutUint16(out[2:4], e.W1)
	binary.LittleEndian.PutUint16(out[4:6], e.W2)
	binary.LittleEndian.PutUint16(out[6:8], e.W3)
	binary.LittleEndian.PutUint16(out[8:10], e.W4)
	return out
}

// DecodeBytes parses a 10-byte little-endian record into an Encoded.
func DecodeBytes(b []byte) (Encoded, error) {
	if len(b) < 10 {
		return Encoded{}, fmt.Errorf("asm: short instruction record (%d bytes)", len(b))
	}
	return Encoded{
		Opcode:   b[0],
		Reserved: b[1],
		W1:       binary.LittleEndian.Uint16(b[2:4]),
		W2:       binary.LittleEndian.Uint16(b[4:6]),
		W3:       binary.LittleEndian.Uint16(b[6:8]),
		W4:       binary.LittleEndian.Uint16(b[8:10]),
	}, nil
}

// Decode turns a wire record back into a generic Instruction. Register
// roles (Rd vs Rs1/Rs2, bank vs addr) are recovered per opcode using the
// same layout Encode used to produce them; branch offsets come back as
// signed PC-relative deltas, not labels.
func Decode(e Encoded) (Instruction, error) {
	op, ok := opcodeToOp[e.Opcode]
	if !ok {
		return Instruction{}, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, e.Opcode)
	}

	switch {
	case op == OpHalt || op == OpBrk:
		return Instruction{Op: op}, nil

	case op.IsRForm():
		return rform(op, Register(e.W1), Register(e.W2), Register(e.W3)), nil

	case op.IsIForm():
		return Instruction{Op: op, Rd: Register(e.W1), Rs1: Register(e.W2), Imm: int32(int16(e.W3))}, nil

	case op == OpLi:
		return Instruction{Op: op, Rd: Register(e.W1), Imm: int32(int16(e.W3))}, nil

	case op == OpLoad:
		return Instruction{Op: op, Rd: Register(e.W1), Rs1: Register(e.W2), Rs2: Register(e.W3)}, nil

	case op == OpStore:
		return Instruction{Op: op, Rd: Register(e.W1), Rs1: Register(e.W2), Rs2: Register(e.W3)}, nil

	case op == OpJal:
		imm := int32(e.W2)<<16 | int32(e.W3)
		return Instruction{Op: op, Rd: Register(e.W1), Imm: imm}, nil

	case op == OpBeq, op == OpBne, op == OpBlt, op == OpBge:
		return Instruction{Op: op, Rs1: Register(e.W1), Rs2: Register(e.W2), Imm: int32(int16(e.W3))}, nil

	default:
		return Instruction{}, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, e.Opcode)
	}
}
