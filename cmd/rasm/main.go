// Command rasm assembles Ripple assembly text into a flat binary image
// of 10-byte instruction records that ripplevm can execute.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"ripplevm/asm"
)

func main() {
	output := flag.String("o", "out.bin", "output image path")
	list := flag.Bool("l", false, "print a listing of the assembled instructions")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rasm [-o out.bin] [-l] <source.rasm>")
		os.Exit(1)
	}

	source, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not read", flag.Arg(0))
		os.Exit(1)
	}

	program, err := asm.Assemble(string(source))
	if err != nil {
		fmt.Fprintln(os.Stderr, "assemble:", err)
		os.Exit(1)
	}

	var image strings.Builder
	for i, in := range program.Instructions {
		enc, err := asm.Encode(in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode instruction %d: %v\n", i, err)
			os.Exit(1)
		}
		b := enc.Bytes()
		image.Write(b[:])

		if *list {
			addr := i * asm.WordsPerInstruction
			line := ""
			if sym, ok := program.DebugSym[addr]; ok {
				line = "  // " + sym
			}
			fmt.Printf("%04x: % x%s\n", addr, b, line)
		}
	}

	if err := os.WriteFile(*output, []byte(image.String()), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
}
