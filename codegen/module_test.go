package codegen

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"ripplevm/asm"
	"ripplevm/ir"
	"ripplevm/vm"
)

func i16() ir.Type  { return ir.Type{Kind: ir.I16} }
func i8() ir.Type   { return ir.Type{Kind: ir.I8} }
func void() ir.Type { return ir.Type{Kind: ir.Void} }

func block(label ir.LabelID, instrs ...ir.Instruction) *ir.BasicBlock {
	return &ir.BasicBlock{Label: label, Instructions: instrs}
}

// lowerModule lowers m and returns both the assembly (for structural
// assertions) and the encoded image.
func lowerModule(t *testing.T, m *ir.Module) (*Assembly, *Image) {
	t.Helper()
	a, err := New().LowerModule(m)
	if err != nil {
		t.Fatalf("LowerModule: %v", err)
	}
	img, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return a, img
}

// runModule executes the lowered module to a HALT and returns the
// machine for state inspection plus everything it wrote to the TTY.
func runModule(t *testing.T, m *ir.Module) (*vm.VM, string) {
	t.Helper()
	_, img := lowerModule(t, m)

	var out bytes.Buffer
	machine, err := vm.New(vm.Config{Stdout: &out, Stdin: bytes.NewReader(nil)})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	for bank, code := range img.Banks {
		if err := machine.LoadBank(bank, code); err != nil {
			t.Fatalf("LoadBank(%d): %v", bank, err)
		}
	}
	if err := machine.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if machine.State() != vm.StateHalted {
		t.Fatalf("expected a clean halt, got state %s", machine.State())
	}
	return machine, out.String()
}

func flatten(a *Assembly) []asm.Instruction {
	var all []asm.Instruction
	for _, code := range a.Banks {
		all = append(all, code...)
	}
	return all
}

// ttyPtr is a fat pointer aimed at the TTY output register in bank 0.
func ttyPtr() ir.Value {
	return ir.FatPtrValue(ir.Constant(vm.AddrTTYOut, i16()), ir.BankGlobal, i16())
}

func TestHelloWorld(t *testing.T) {
	m := &ir.Module{
		Name: "hello",
		Functions: []*ir.Function{{
			Name:       "main",
			ReturnType: void(),
			Blocks: []*ir.BasicBlock{block(0,
				ir.Store(ir.Constant('H', i16()), ttyPtr()),
				ir.Store(ir.Constant('i', i16()), ttyPtr()),
				ir.Store(ir.Constant('\n', i16()), ttyPtr()),
				ir.Return(ir.Value{}, false),
			)},
		}},
	}

	_, output := runModule(t, m)
	if output != "Hi\n" {
		t.Fatalf("expected output %q, got %q", "Hi\n", output)
	}
}

func TestFatPointerParameter(t *testing.T) {
	ptrTy := ir.NewFatPtr(i16())
	m := &ir.Module{
		Name: "deref",
		Functions: []*ir.Function{
			{
				Name:       "main",
				ReturnType: i16(),
				Blocks: []*ir.BasicBlock{block(0,
					ir.Alloca(i16(), 1, 0),
					ir.Store(ir.Constant(42, i16()), ir.TempValue(0, ptrTy)),
					ir.Call(ir.FunctionValue("f", i16()), []ir.Value{ir.TempValue(0, ptrTy)}, 1, i16(), true),
					ir.Return(ir.TempValue(1, i16()), true),
				)},
			},
			{
				Name:       "f",
				Params:     []ir.Param{{Temp: 0, Type: ptrTy}},
				ReturnType: i16(),
				Blocks: []*ir.BasicBlock{block(0,
					ir.Load(ir.TempValue(0, ptrTy), i16(), 1),
					ir.Return(ir.TempValue(1, i16()), true),
				)},
			},
		},
	}

	a, _ := lowerModule(t, m)
	movedToA0, movedToA1 := false, false
	for _, in := range flatten(a) {
		if in.Op == asm.OpMove && in.Rd == asm.A0 {
			movedToA0 = true
		}
		if in.Op == asm.OpMove && in.Rd == asm.A1 {
			movedToA1 = true
		}
	}
	if !movedToA0 || !movedToA1 {
		t.Fatalf("expected the caller to place address in A0 and bank in A1 (A0=%v A1=%v)", movedToA0, movedToA1)
	}

	machine, _ := runModule(t, m)
	if got := machine.Reg(asm.RV0); got != 42 {
		t.Fatalf("expected *p == 42 in RV0, got %d", got)
	}
}

func TestSpillUnderPressure(t *testing.T) {
	// More independent live values than the 12-register pool: every add
	// result stays live until the summing chain at the end consumes it.
	const n = 16
	var instrs []ir.Instruction
	want := 0
	for i := 0; i < n; i++ {
		a, b := i+1, i+2
		want += a + b
		instrs = append(instrs, ir.Binary(ir.BAdd, ir.Constant(int64(a), i16()), ir.Constant(int64(b), i16()), ir.TempID(i), i16()))
	}
	acc := ir.TempID(0)
	next := ir.TempID(n)
	for i := 1; i < n; i++ {
		instrs = append(instrs, ir.Binary(ir.BAdd, ir.TempValue(acc, i16()), ir.TempValue(ir.TempID(i), i16()), next, i16()))
		acc = next
		next++
	}
	instrs = append(instrs, ir.Return(ir.TempValue(acc, i16()), true))

	m := &ir.Module{
		Name: "spill",
		Functions: []*ir.Function{{
			Name:       "main",
			ReturnType: i16(),
			Blocks:     []*ir.BasicBlock{block(0, instrs...)},
		}},
	}

	a, _ := lowerModule(t, m)
	spillAddrs := 0
	for _, in := range flatten(a) {
		if in.Op == asm.OpAddi && in.Rd == asm.SC && in.Rs1 == asm.FP {
			spillAddrs++
		}
	}
	if spillAddrs < 3 {
		t.Fatalf("expected at least 3 spill/reload address computations, got %d", spillAddrs)
	}

	machine, _ := runModule(t, m)
	if got := machine.Reg(asm.RV0); got != uint16(want) {
		t.Fatalf("sum under spill pressure: got %d want %d", got, want)
	}
}

func branchDiamond(x, y int64) *ir.Module {
	return &ir.Module{
		Name: "diamond",
		Functions: []*ir.Function{{
			Name:       "main",
			ReturnType: i16(),
			Blocks: []*ir.BasicBlock{
				block(0,
					ir.Binary(ir.BSlt, ir.Constant(x, i16()), ir.Constant(y, i16()), 0, ir.Type{Kind: ir.I1}),
					ir.BranchCond(ir.TempValue(0, ir.Type{Kind: ir.I1}), 1, 2),
				),
				block(1, ir.Return(ir.Constant(1, i16()), true)),
				block(2, ir.Return(ir.Constant(2, i16()), true)),
			},
		}},
	}
}

func TestBranchDiamond(t *testing.T) {
	machine, _ := runModule(t, branchDiamond(3, 5))
	if got := machine.Reg(asm.RV0); got != 1 {
		t.Fatalf("3 < 5 should take the true arm: got %d", got)
	}

	machine, _ = runModule(t, branchDiamond(7, 5))
	if got := machine.Reg(asm.RV0); got != 2 {
		t.Fatalf("7 < 5 should take the false arm: got %d", got)
	}
}

func TestBranchDiamondFusesCompare(t *testing.T) {
	a, _ := lowerModule(t, branchDiamond(3, 5))
	sawBlt, sawSltu := false, false
	for _, in := range flatten(a) {
		if in.Op == asm.OpBlt {
			sawBlt = true
		}
		if in.Op == asm.OpSltu || in.Op == asm.OpSlt {
			sawSltu = true
		}
	}
	if !sawBlt {
		t.Fatal("expected the compare to fuse into a BLT")
	}
	if sawSltu {
		t.Fatal("fused compare should not also materialize an SLTU flag")
	}
}

func TestCrossBankCall(t *testing.T) {
	m := &ir.Module{
		Name: "crossbank",
		Functions: []*ir.Function{
			{
				Name:       "main",
				ReturnType: i16(),
				Blocks: []*ir.BasicBlock{block(0,
					ir.Call(ir.FunctionValue("far", i16()), nil, 0, i16(), true),
					ir.Return(ir.TempValue(0, i16()), true),
				)},
			},
			{
				Name:       "far",
				Bank:       1,
				ReturnType: i16(),
				Blocks: []*ir.BasicBlock{block(0,
					ir.Return(ir.Constant(7, i16()), true),
				)},
			},
		},
	}

	a, _ := lowerModule(t, m)
	sawPCBSet := false
	for _, in := range a.Banks[0] {
		if in.Op == asm.OpLi && in.Rd == asm.PCB && in.Imm == 1 {
			sawPCBSet = true
		}
	}
	if !sawPCBSet {
		t.Fatal("expected the caller to set PCB before the cross-bank JAL")
	}

	machine, _ := runModule(t, m)
	if got := machine.Reg(asm.RV0); got != 7 {
		t.Fatalf("cross-bank call result: got %d", got)
	}
	if got := machine.Reg(asm.PCB); got != 0 {
		t.Fatalf("expected execution back in bank 0 after return, PCB=%d", got)
	}
}

func TestGlobalStringInit(t *testing.T) {
	msgTy := ir.NewArray(i8(), 3)
	m := &ir.Module{
		Name: "globals",
		Globals: []*ir.Global{{
			Name: "msg",
			Type: msgTy,
			Initializer: []ir.Value{
				ir.Constant('H', i8()),
				ir.Constant('i', i8()),
				ir.Constant(0, i8()),
			},
		}},
		Functions: []*ir.Function{{
			Name:       "main",
			ReturnType: i16(),
			Blocks: []*ir.BasicBlock{block(0,
				ir.Load(ir.GlobalValue("msg", ir.NewFatPtr(i8())), i16(), 0),
				ir.Return(ir.TempValue(0, i16()), true),
			)},
		}},
	}

	a, _ := lowerModule(t, m)
	sawStringComment := false
	for _, in := range a.Banks[0] {
		if in.Op == asm.OpComment && strings.Contains(in.Text, `"Hi"`) {
			sawStringComment = true
		}
	}
	if !sawStringComment {
		t.Fatal("expected a readable comment for the string-like initializer")
	}

	machine, _ := runModule(t, m)
	if got := machine.Reg(asm.RV0); got != 'H' {
		t.Fatalf("load from msg[0]: got %d want 'H'", got)
	}
	base := m.Globals[0].Address
	wantWords := []uint16{'H', 'i', 0}
	for i, w := range wantWords {
		if got := machine.PeekMem(0, base+uint16(i)); got != w {
			t.Fatalf("global word %d: got %d want %d", i, got, w)
		}
	}
}

func TestStackParameterRoundTrip(t *testing.T) {
	// Five scalars: A0-A3 plus one stack parameter at FP-7. The callee
	// returns the stack-passed one, exercising both sides of the gap.
	params := make([]ir.Param, 5)
	kindsArgs := make([]ir.Value, 5)
	for i := range params {
		params[i] = ir.Param{Temp: ir.TempID(i), Type: i16()}
		kindsArgs[i] = ir.Constant(int64(i+1), i16())
	}

	m := &ir.Module{
		Name: "stackarg",
		Functions: []*ir.Function{
			{
				Name:       "main",
				ReturnType: i16(),
				Blocks: []*ir.BasicBlock{block(0,
					ir.Call(ir.FunctionValue("pick", i16()), kindsArgs, 0, i16(), true),
					ir.Return(ir.TempValue(0, i16()), true),
				)},
			},
			{
				Name:       "pick",
				Params:     params,
				ReturnType: i16(),
				Blocks: []*ir.BasicBlock{block(0,
					ir.Return(ir.TempValue(4, i16()), true),
				)},
			},
		},
	}

	machine, _ := runModule(t, m)
	if got := machine.Reg(asm.RV0); got != 5 {
		t.Fatalf("stack-passed parameter round trip: got %d want 5", got)
	}
	if got := machine.Reg(asm.SP); got != 0 {
		t.Fatalf("SP not restored after call cleanup: %d", got)
	}
}

func TestLoweringIsDeterministic(t *testing.T) {
	build := func() *ir.Module { return branchDiamond(3, 5) }
	a1, err := New().LowerModule(build())
	if err != nil {
		t.Fatalf("LowerModule: %v", err)
	}
	a2, err := New().LowerModule(build())
	if err != nil {
		t.Fatalf("LowerModule: %v", err)
	}
	if !reflect.DeepEqual(a1.Banks, a2.Banks) {
		t.Fatal("lowering the same module twice produced different assembly")
	}
}

func TestAddZeroIsNotFolded(t *testing.T) {
	m := &ir.Module{
		Name: "nofold",
		Functions: []*ir.Function{{
			Name:       "main",
			ReturnType: i16(),
			Blocks: []*ir.BasicBlock{block(0,
				ir.Binary(ir.BAdd, ir.Constant(9, i16()), ir.Constant(0, i16()), 0, i16()),
				ir.Return(ir.TempValue(0, i16()), true),
			)},
		}},
	}

	a, _ := lowerModule(t, m)
	sawAddiZero := false
	for _, in := range flatten(a) {
		if in.Op == asm.OpAddi && in.Imm == 0 && in.Rs1 != asm.FP && !in.IsPseudo() {
			sawAddiZero = true
		}
	}
	if !sawAddiZero {
		t.Fatal("Add(x, 0) must lower to a real ADDI, not fold away")
	}
}
