// Package codegen implements the module lowerer: it walks an ir.Module in
// a fixed order, threads the register allocator, calling convention, and
// instruction lowering together, and produces a module's worth of
// assembly with per-function labels resolved down to encoded
// instructions.
package codegen

import (
	"errors"
	"fmt"
	"io"
	"log"

	"ripplevm/asm"
	"ripplevm/ir"
	"ripplevm/lower"
	"ripplevm/regalloc"
)

// globalDataBase is the first bank-0 word address available for global
// data: everything below it belongs to the MMIO headers and the TEXT40
// video memory, which the VM's memory interposer owns. Must match the
// VM's data-section offset.
const globalDataBase uint16 = 1032

// InitGlobalsLabel names the synthesized routine that writes every
// global initializer into the global bank before calling main.
const InitGlobalsLabel = "_init_globals"

var (
	// ErrNoBlocks marks a function with no basic blocks, which the
	// front end should never hand us.
	ErrNoBlocks = errors.New("codegen: function has no basic blocks")
)

// Lowerer drives module lowering. The zero value is not usable; construct
// with New. Trace output is discarded unless enabled with SetTrace.
type Lowerer struct {
	trace *log.Logger
}

// New constructs a module lowerer with tracing disabled.
func New() *Lowerer {
	return &Lowerer{trace: log.New(io.Discard, "", 0)}
}

// SetTrace directs the lowerer's per-function trace output to w.
func (lw *Lowerer) SetTrace(w io.Writer) {
	lw.trace = log.New(w, "codegen: ", 0)
}

// Assembly is the result of lowering a module: one pseudo-op-bearing
// instruction stream per bank, in final emission order, ready for label
// resolution and encoding.
type Assembly struct {
	Banks map[uint16][]asm.Instruction
}

// Image is a fully resolved, encoded module: one encoded instruction
// stream per bank, with bank 0 beginning at the module entry point.
type Image struct {
	Banks map[uint16][]asm.Encoded
}

// LowerModule lowers m: assign every global a monotonically increasing
// bank-0 address, synthesize the _init_globals routine when the module
// defines main, then lower each function into its assigned bank's
// stream. Internal-compiler-errors raised by the allocator are recovered
// here and surfaced as ordinary errors.
func (lw *Lowerer) LowerModule(m *ir.Module) (out *Assembly, err error) {
	defer func() {
		if r := recover(); r != nil {
			ice, ok := r.(*regalloc.InternalError)
			if !ok {
				panic(r)
			}
			out, err = nil, fmt.Errorf("codegen: internal compiler error: %w", ice)
		}
	}()

	globalAddr := make(map[string]uint16, len(m.Globals))
	nextAddr := globalDataBase
	for _, g := range m.Globals {
		g.Address = nextAddr
		globalAddr[g.Name] = nextAddr
		nextAddr += uint16(g.Type.SizeWords())
		lw.trace.Printf("global %s at %d (%d words)", g.Name, g.Address, g.Type.SizeWords())
	}

	funcBank := make(map[string]uint16, len(m.Functions))
	for _, f := range m.Functions {
		funcBank[f.Name] = f.Bank
	}

	banks := make(map[uint16][]asm.Instruction)

	if m.HasMain() {
		banks[0] = append(banks[0], lw.lowerInitGlobals(m, funcBank)...)
	}

	for _, f := range m.Functions {
		if len(f.Blocks) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoBlocks, f.Name)
		}
		lw.trace.Printf("lowering function %s (bank %d, %d blocks)", f.Name, f.Bank, len(f.Blocks))
		code, err := lw.lowerFunction(f, globalAddr, funcBank)
		if err != nil {
			return nil, err
		}
		banks[f.Bank] = append(banks[f.Bank], code...)
	}

	return &Assembly{Banks: banks}, nil
}

// lowerInitGlobals synthesizes the module entry routine: write every
// global's initializer into the global bank, call main, halt on its
// return.
func (lw *Lowerer) lowerInitGlobals(m *ir.Module, funcBank map[string]uint16) []asm.Instruction {
	alloc := regalloc.New()

	out := []asm.Instruction{asm.Label(InitGlobalsLabel)}
	for _, g := range m.Globals {
		if len(g.Initializer) == 0 {
			continue
		}
		if s, ok := stringLike(g); ok {
			out = append(out, asm.Comment(fmt.Sprintf("%s = %q", g.Name, s)))
		} else {
			out = append(out, asm.Comment("init "+g.Name))
		}
		out = append(out, lower.GlobalInit(alloc, g, g.Address)...)
		alloc.FreeAll()
	}

	if bank, ok := funcBank["main"]; ok && bank != 0 {
		out = append(out, asm.Li(asm.PCB, int32(bank)))
	}
	out = append(out, asm.Call("main"))
	out = append(out, asm.Halt())
	return out
}

// stringLike reports whether g's initializer is a NUL-terminated run of
// 7-bit ASCII constants, returning the printable text without the
// terminator.
func stringLike(g *ir.Global) (string, bool) {
	n := len(g.Initializer)
	if n < 2 {
		return "", false
	}
	lastVal := g.Initializer[n-1]
	if lastVal.Kind != ir.ValueConstant || lastVal.ConstantValue != 0 {
		return "", false
	}
	text := make([]byte, 0, n-1)
	for _, v := range g.Initializer[:n-1] {
		if v.Kind != ir.ValueConstant || v.ConstantValue < 1 || v.ConstantValue > 127 {
			return "", false
		}
		text = append(text, byte(v.ConstantValue))
	}
	return string(text), true
}

// Encode resolves every bank's labels and pseudo-ops and encodes the
// result. Call targets are resolved module-wide so a caller in one bank
// can name a function lowered into another.
func (a *Assembly) Encode() (*Image, error) {
	callTargets := make(map[string]asm.CallTarget)
	bankLabels := make(map[uint16]map[string]int, len(a.Banks))

	for bank, code := range a.Banks {
		labels, err := asm.LabelAddresses(code)
		if err != nil {
			return nil, fmt.Errorf("codegen: bank %d: %w", bank, err)
		}
		bankLabels[bank] = labels
		for name, addr := range labels {
			callTargets[name] = asm.CallTarget{Bank: bank, Addr: addr}
		}
	}

	img := &Image{Banks: make(map[uint16][]asm.Encoded, len(a.Banks))}
	for bank, code := range a.Banks {
		resolved, err := asm.Resolve(code, bankLabels[bank], callTargets)
		if err != nil {
			return nil, fmt.Errorf("codegen: bank %d: %w", bank, err)
		}
		encoded := make([]asm.Encoded, 0, len(resolved))
		for _, in := range resolved {
			e, err := asm.Encode(in)
			if err != nil {
				return nil, fmt.Errorf("codegen: bank %d: %w", bank, err)
			}
			encoded = append(encoded, e)
		}
		img.Banks[bank] = encoded
	}
	return img, nil
}
