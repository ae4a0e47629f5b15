package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ripplevm/asm"
)

// RunProgram executes until the VM halts or faults, printing the fault
// (with the offending instruction, when it can be recovered) on error.
// BRK instructions pause the VM; outside the debugger they are resumed
// immediately.
func (vm *VM) RunProgram() {
	for {
		if err := vm.Run(); err != nil {
			fmt.Printf("%s%s\n", err, vm.formatCurrentInstruction(" at instruction:"))
			return
		}
		if vm.state != StatePaused {
			return
		}
		vm.Resume()
	}
}

// RunProgramDebugMode runs the interactive line-mode stepper:
//
//	n or next:            execute next instruction
//	r or run:             run until HALT, BRK, or a breakpoint
//	b or break <addr>:    toggle a breakpoint at a code word address
//	regs:                 print the register file
//	q or quit:            stop
//
// BRK instructions in the program pause here as well.
func (vm *VM) RunProgramDebugMode() {
	fmt.Printf("Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <addr>: break at code address (toggle)\n\tregs: print registers\n\tq or quit: stop\n\n")

	vm.printCurrentState()

	reader := bufio.NewReader(os.Stdin)
	breakAt := make(map[int]struct{})
	waitForInput := true
	lastBreak := -1

	for {
		line := ""
		if waitForInput {
			fmt.Print("\n-> ")
			raw, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.ToLower(strings.TrimSpace(raw))
		} else {
			linear := vm.linearPC()
			if _, ok := breakAt[linear]; ok && lastBreak != linear {
				fmt.Println("breakpoint")
				vm.printCurrentState()
				waitForInput = true
				lastBreak = linear
				continue
			}
		}

		switch {
		case !waitForInput || line == "n" || line == "next" || line == "":
			lastBreak = -1
			if vm.state == StatePaused {
				vm.Resume()
			}
			vm.Step()

			if waitForInput {
				vm.stdout.Flush()
				vm.printCurrentState()
			}
			if vm.state == StatePaused {
				fmt.Println("brk")
				waitForInput = true
			}
			if vm.state == StateHalted {
				vm.stdout.Flush()
				fmt.Println("halted")
				return
			}
			if err := vm.Err(); err != nil {
				fmt.Printf("%s%s\n", err, vm.formatCurrentInstruction(" at instruction:"))
				return
			}

		case line == "r" || line == "run":
			waitForInput = false

		case line == "regs":
			vm.printCurrentState()

		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "break"), "b"))
			addr, err := strconv.ParseInt(arg, 0, 32)
			if err != nil {
				fmt.Println("Unknown address:", err)
				continue
			}
			if _, ok := breakAt[int(addr)]; ok {
				delete(breakAt, int(addr))
				fmt.Println("breakpoint removed")
			} else {
				breakAt[int(addr)] = struct{}{}
				fmt.Println("breakpoint set")
			}

		case line == "q" || line == "quit":
			return
		}
	}
}

func (vm *VM) linearPC() int {
	return int(vm.curBank)*vm.bankSize + int(vm.registers[asm.PC])
}

// formatCurrentInstruction renders the instruction at PC for error
// messages, preferring the assembled source line when debug symbols are
// available.
func (vm *VM) formatCurrentInstruction(prefix string) string {
	linear := vm.linearPC()
	if sym, ok := vm.debugSym[linear]; ok {
		return fmt.Sprintf("%s %s", prefix, sym)
	}
	if linear+asm.WordsPerInstruction > len(vm.code) {
		return ""
	}
	saveState, saveErr := vm.state, vm.errcode
	vm.state, vm.errcode = StateRunning, nil
	in, ok := vm.fetch()
	vm.state, vm.errcode = saveState, saveErr
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s %s", prefix, formatInstruction(in))
}

func formatInstruction(in asm.Instruction) string {
	switch {
	case in.Op == asm.OpHalt:
		return "halt"
	case in.Op == asm.OpBrk:
		return "brk"
	case in.Op == asm.OpLi:
		return fmt.Sprintf("li %s, %d", in.Rd, in.Imm)
	case in.Op == asm.OpJal:
		return fmt.Sprintf("jal %s, %d, %d", in.Rd, in.Imm>>16, in.Imm&0xFFFF)
	case in.Op.IsRForm():
		return fmt.Sprintf("%s %s, %s, %s", in.Op, in.Rd, in.Rs1, in.Rs2)
	case in.Op.IsIForm():
		return fmt.Sprintf("%s %s, %s, %d", in.Op, in.Rd, in.Rs1, in.Imm)
	case in.Op == asm.OpLoad || in.Op == asm.OpStore:
		return fmt.Sprintf("%s %s, %s, %s", in.Op, in.Rd, in.Rs1, in.Rs2)
	case in.Op == asm.OpBeq || in.Op == asm.OpBne || in.Op == asm.OpBlt || in.Op == asm.OpBge:
		return fmt.Sprintf("%s %s, %s, %d", in.Op, in.Rs1, in.Rs2, in.Imm)
	default:
		return in.Op.String()
	}
}

func (vm *VM) printCurrentState() {
	fmt.Printf("pc %04x:%04x  state %s", vm.registers[asm.PCB], vm.registers[asm.PC], vm.state)
	if sym, ok := vm.debugSym[vm.linearPC()]; ok {
		fmt.Printf("  | %s", sym)
	}
	fmt.Println()

	order := []asm.Register{
		asm.R0, asm.A0, asm.A1, asm.A2, asm.A3, asm.RV0, asm.RV1,
		asm.T0, asm.T1, asm.T2, asm.T3, asm.T4, asm.T5, asm.T6, asm.T7,
		asm.S0, asm.S1, asm.S2, asm.S3,
		asm.GP, asm.SB, asm.SP, asm.FP, asm.SC,
		asm.RA, asm.RAB,
	}
	for i, r := range order {
		fmt.Printf("%4s %04x", r, vm.readReg(r))
		if (i+1)%6 == 0 {
			fmt.Println()
		} else {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}
