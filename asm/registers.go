package asm

import "fmt"

// Register names the Ripple VM's architectural register file.
//
// The file carries 28 named slots: R0 (hardwired zero), four argument
// registers, two return-value registers, eight temporaries, four saved
// registers, five address-related registers (GP/SB/SP/FP/SC), and four
// control registers (PC/PCB/RA/RAB). Early design notes for this project
// rounded that down to "20 registers" / "16 general purpose"; the actual
// register file implemented here, and required by the calling convention
// and register allocator below, is the full 28-slot set.
type Register uint8

const (
	R0 Register = iota

	A0
	A1
	A2
	A3

	RV0
	RV1

	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7

	S0
	S1
	S2
	S3

	GP
	SB
	SP
	FP
	SC

	PC
	PCB
	RA
	RAB

	numRegisters
)

// NumRegisters is the size of the architectural register file, exposed
// for the VM's register array.
const NumRegisters = int(numRegisters)

var (
	strToRegisterMap = map[string]Register{
		"r0":  R0,
		"a0":  A0,
		"a1":  A1,
		"a2":  A2,
		"a3":  A3,
		"rv0": RV0,
		"rv1": RV1,
		"t0":  T0,
		"t1":  T1,
		"t2":  T2,
		"t3":  T3,
		"t4":  T4,
		"t5":  T5,
		"t6":  T6,
		"t7":  T7,
		"s0":  S0,
		"s1":  S1,
		"s2":  S2,
		"s3":  S3,
		"gp":  GP,
		"sb":  SB,
		"sp":  SP,
		"fp":  FP,
		"sc":  SC,
		"pc":  PC,
		"pcb": PCB,
		"ra":  RA,
		"rab": RAB,
	}

	registerToStrMap map[Register]string
)

func init() {
	registerToStrMap = make(map[Register]string, len(strToRegisterMap))
	for s, r := range strToRegisterMap {
		registerToStrMap[r] = s
	}
}

func (r Register) String() string {
	if s, ok := registerToStrMap[r]; ok {
		return s
	}
	return fmt.Sprintf("?reg%d?", uint8(r))
}

// ParseRegister resolves a register mnemonic, case-insensitively.
func ParseRegister(name string) (Register, bool) {
	r, ok := strToRegisterMap[lower(name)]
	return r, ok
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// IsArgument reports whether r is one of the ABI argument registers A0-A3.
func (r Register) IsArgument() bool {
	return r >= A0 && r <= A3
}

// IsAllocatable reports whether r belongs to the register allocator's pool
// (the saved and temporary registers only; every other register is managed
// by the calling convention or is a fixed-purpose architectural register).
func (r Register) IsAllocatable() bool {
	switch r {
	case S0, S1, S2, S3, T0, T1, T2, T3, T4, T5, T6, T7:
		return true
	default:
		return false
	}
}
