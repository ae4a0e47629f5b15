// Command ripplevm runs a Ripple program: either a binary image produced
// by rasm (or the compiler pipeline) or an assembly source file, which is
// assembled on the fly. The -debug flag drops into the interactive
// line-mode stepper.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"ripplevm/asm"
	"ripplevm/vm"
)

func main() {
	debug := flag.Bool("debug", false, "run in the interactive debugger")
	storagePath := flag.String("storage", "", "disk image path for the block-storage device")
	bankSize := flag.Int("bank-size", 0, "words per memory bank (default 4096)")
	numBanks := flag.Int("banks", 0, "number of memory banks (default 8)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ripplevm [-debug] [-storage disk.img] <program.bin|program.rasm>")
		os.Exit(1)
	}

	machine, err := vm.New(vm.Config{
		BankSize:    *bankSize,
		NumBanks:    *numBanks,
		StoragePath: *storagePath,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer machine.Close()

	if err := loadInto(machine, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *debug {
		machine.RunProgramDebugMode()
	} else {
		machine.RunProgram()
	}
}

func loadInto(machine *vm.VM, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}

	if strings.HasSuffix(path, ".rasm") || strings.HasSuffix(path, ".asm") {
		program, err := asm.Assemble(string(data))
		if err != nil {
			return fmt.Errorf("assemble %s: %w", path, err)
		}
		return machine.LoadProgram(program)
	}

	if len(data)%10 != 0 {
		return fmt.Errorf("%s: image size %d is not a whole number of instruction records", path, len(data))
	}
	code := make([]asm.Encoded, 0, len(data)/10)
	for off := 0; off < len(data); off += 10 {
		enc, err := asm.DecodeBytes(data[off : off+10])
		if err != nil {
			return fmt.Errorf("%s at offset %d: %w", path, off, err)
		}
		code = append(code, enc)
	}
	return machine.LoadBank(0, code)
}
