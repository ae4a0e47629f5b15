package vm

import (
	"fmt"

	"ripplevm/asm"
)

// fetch decodes the 5-word instruction at the current linear PC.
func (vm *VM) fetch() (asm.Instruction, bool) {
	pc := vm.registers[asm.PC]

	linear := int(vm.curBank)*vm.bankSize + int(pc)
	if int(vm.curBank) >= vm.numBanks || linear+asm.WordsPerInstruction > len(vm.code) {
		vm.fault(fmt.Errorf("%w: %d:%d", errPCOutOfRange, vm.curBank, pc))
		return asm.Instruction{}, false
	}

	w0 := vm.code[linear]
	enc := asm.Encoded{
		Opcode:   byte(w0),
		Reserved: byte(w0 >> 8),
		W1:       vm.code[linear+1],
		W2:       vm.code[linear+2],
		W3:       vm.code[linear+3],
		W4:       vm.code[linear+4],
	}

	in, err := asm.Decode(enc)
	if err != nil {
		vm.fault(fmt.Errorf("%w: 0x%02X at %d:%d", errBadOpcode, enc.Opcode, vm.curBank, pc))
		return asm.Instruction{}, false
	}

	// Opcode 0 with a non-zero payload is a NOP; all-zero is HALT.
	if in.Op == asm.OpHalt && (enc.W1|enc.W2|enc.W3) != 0 {
		return asm.Instruction{Op: asm.OpAddi, Rd: asm.R0}, true
	}

	return in, true
}

// Step executes one instruction. HALT moves the VM to the Halted state
// and BRK to Paused, both without touching registers or memory; faults
// move it to Error. Any other instruction executes and advances PC by
// one instruction unless it wrote PC itself.
func (vm *VM) Step() {
	if vm.state != StateRunning {
		return
	}
	vm.pcWritten = false

	in, ok := vm.fetch()
	if !ok {
		return
	}

	pc := vm.registers[asm.PC]
	next := pc + asm.WordsPerInstruction

	switch in.Op {
	case asm.OpHalt:
		vm.state = StateHalted
		vm.stdout.Flush()
		return

	case asm.OpBrk:
		vm.state = StatePaused
		return

	case asm.OpAdd:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)+vm.readReg(in.Rs2))
	case asm.OpSub:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)-vm.readReg(in.Rs2))
	case asm.OpMul:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)*vm.readReg(in.Rs2))
	case asm.OpDiv:
		rhs := vm.readReg(in.Rs2)
		if rhs == 0 {
			vm.fault(errDivisionByZero)
			return
		}
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)/rhs)
	case asm.OpMod:
		rhs := vm.readReg(in.Rs2)
		if rhs == 0 {
			vm.fault(errDivisionByZero)
			return
		}
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)%rhs)
	case asm.OpAnd:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)&vm.readReg(in.Rs2))
	case asm.OpOr:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)|vm.readReg(in.Rs2))
	case asm.OpXor:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)^vm.readReg(in.Rs2))
	case asm.OpSll:
		vm.writeReg(in.Rd, shiftLeft(vm.readReg(in.Rs1), vm.readReg(in.Rs2)))
	case asm.OpSrl:
		vm.writeReg(in.Rd, shiftRight(vm.readReg(in.Rs1), vm.readReg(in.Rs2)))
	case asm.OpSltu:
		vm.writeReg(in.Rd, boolWord(vm.readReg(in.Rs1) < vm.readReg(in.Rs2)))

	case asm.OpAddi:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)+uint16(in.Imm))
	case asm.OpSubi:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)-uint16(in.Imm))
	case asm.OpMuli:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)*uint16(in.Imm))
	case asm.OpDivi:
		if uint16(in.Imm) == 0 {
			vm.fault(errDivisionByZero)
			return
		}
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)/uint16(in.Imm))
	case asm.OpModi:
		if uint16(in.Imm) == 0 {
			vm.fault(errDivisionByZero)
			return
		}
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)%uint16(in.Imm))
	case asm.OpAndi:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)&uint16(in.Imm))
	case asm.OpOri:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)|uint16(in.Imm))
	case asm.OpXori:
		vm.writeReg(in.Rd, vm.readReg(in.Rs1)^uint16(in.Imm))
	case asm.OpSlli:
		vm.writeReg(in.Rd, shiftLeft(vm.readReg(in.Rs1), uint16(in.Imm)))
	case asm.OpSrli:
		vm.writeReg(in.Rd, shiftRight(vm.readReg(in.Rs1), uint16(in.Imm)))
	case asm.OpLi:
		vm.writeReg(in.Rd, uint16(in.Imm))

	case asm.OpLoad:
		vm.writeReg(in.Rd, vm.readMem(vm.readReg(in.Rs1), vm.readReg(in.Rs2)))
	case asm.OpStore:
		vm.writeMem(vm.readReg(in.Rs1), vm.readReg(in.Rs2), vm.readReg(in.Rd))

	case asm.OpJal:
		// RA and RAB are saved atomically before the jump: RAB records
		// the bank this JAL executes in, which is where the return must
		// land. rd receives the same link address (usually R0, which
		// discards it).
		vm.writeReg(asm.RA, next)
		vm.writeReg(asm.RAB, vm.curBank)
		vm.writeReg(in.Rd, next)
		vm.curBank = uint16(in.Imm >> 16)
		vm.registers[asm.PCB] = vm.curBank
		vm.registers[asm.PC] = uint16(in.Imm)
		vm.pcWritten = true

	case asm.OpJalr:
		// Register-indirect jump. The target bank comes from rs_bank, or
		// from the PCB register when rs_bank is R0, which is how the
		// epilogue's PCB<-RAB; JALR R0, R0, RA returns across banks.
		vm.writeReg(in.Rd, next)
		bank := vm.readReg(asm.PCB)
		if in.Rs1 != asm.R0 {
			bank = vm.readReg(in.Rs1)
		}
		vm.curBank = bank
		vm.registers[asm.PCB] = bank
		vm.registers[asm.PC] = vm.readReg(in.Rs2)
		vm.pcWritten = true

	case asm.OpBeq:
		vm.branch(pc, in, vm.readReg(in.Rs1) == vm.readReg(in.Rs2))
	case asm.OpBne:
		vm.branch(pc, in, vm.readReg(in.Rs1) != vm.readReg(in.Rs2))
	case asm.OpBlt:
		vm.branch(pc, in, vm.readReg(in.Rs1) < vm.readReg(in.Rs2))
	case asm.OpBge:
		vm.branch(pc, in, vm.readReg(in.Rs1) >= vm.readReg(in.Rs2))

	default:
		vm.fault(fmt.Errorf("%w: %s", errBadOpcode, in.Op))
		return
	}

	if vm.state != StateRunning {
		return
	}
	if !vm.pcWritten {
		vm.registers[asm.PC] = next
	}

	// TTY output-ready handshake: not-ready for exactly one full cycle
	// after the write, ready again on the cycle after that.
	if vm.outputDelay > 0 {
		vm.outputDelay--
		if vm.outputDelay == 0 {
			vm.outputReady = true
		}
	}
}

// branch applies a taken/not-taken PC-relative branch; offsets are in
// instruction units relative to the following instruction.
func (vm *VM) branch(pc uint16, in asm.Instruction, taken bool) {
	if !taken {
		return
	}
	delta := (in.Imm + 1) * asm.WordsPerInstruction
	vm.registers[asm.PC] = uint16(int32(pc) + delta)
	vm.pcWritten = true
}

// Comparisons and branches on this machine are uniformly unsigned, the
// same resolution the lowering documents for Slt.
func boolWord(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func shiftLeft(v, by uint16) uint16 {
	if by >= 16 {
		return 0
	}
	return v << by
}

func shiftRight(v, by uint16) uint16 {
	if by >= 16 {
		return 0
	}
	return v >> by
}

// Run executes instructions until the VM halts, pauses at a BRK, or
// faults. Returns the fault, or nil for HALT and BRK.
func (vm *VM) Run() error {
	for vm.state == StateRunning {
		vm.Step()
	}
	vm.stdout.Flush()
	return vm.Err()
}

// RunSteps executes at most n instructions, stopping early on any state
// change, and reports how many ran.
func (vm *VM) RunSteps(n int) int {
	ran := 0
	for ; ran < n && vm.state == StateRunning; ran++ {
		vm.Step()
	}
	vm.stdout.Flush()
	return ran
}

// Resume continues past a BRK: the paused PC still points at the BRK
// instruction, so advance over it and re-enter the Running state.
func (vm *VM) Resume() {
	if vm.state != StatePaused {
		return
	}
	vm.registers[asm.PC] += asm.WordsPerInstruction
	vm.state = StateRunning
}
