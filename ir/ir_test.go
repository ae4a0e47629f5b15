package ir

import "testing"

func TestTypeSizeWords(t *testing.T) {
	cases := []struct {
		ty   Type
		want int
	}{
		{Type{Kind: I1}, 1},
		{Type{Kind: I8}, 1},
		{Type{Kind: I16}, 1},
		{Type{Kind: I32}, 2},
		{NewFatPtr(Type{Kind: I16}), 2},
		{NewArray(Type{Kind: I8}, 4), 4},
		{NewStruct([]Type{{Kind: I16}, NewFatPtr(Type{Kind: I8})}), 3},
	}
	for _, c := range cases {
		if got := c.ty.SizeWords(); got != c.want {
			t.Errorf("%s.SizeWords() = %d, want %d", c.ty, got, c.want)
		}
	}
}

func TestBasicBlockTerminator(t *testing.T) {
	b := &BasicBlock{Label: 0, Instructions: []Instruction{
		Binary(BAdd, Constant(1, Type{Kind: I16}), Constant(2, Type{Kind: I16}), 2, Type{Kind: I16}),
	}}
	if _, ok := b.Terminator(); ok {
		t.Fatal("expected no terminator on a block without one")
	}
	b.Instructions = append(b.Instructions, Return(Value{}, false))
	term, ok := b.Terminator()
	if !ok || term.Kind != IReturn {
		t.Fatalf("expected Return terminator, got %+v ok=%v", term, ok)
	}
}

func TestFunctionNextTempID(t *testing.T) {
	f := &Function{Params: []Param{{Temp: 0}, {Temp: 1}}}
	if got := f.NextTempID(); got != 2 {
		t.Fatalf("NextTempID() = %d, want 2", got)
	}
}

func TestModuleHasMain(t *testing.T) {
	m := &Module{Functions: []*Function{{Name: "helper"}}}
	if m.HasMain() {
		t.Fatal("expected HasMain() false without a main function")
	}
	m.Functions = append(m.Functions, &Function{Name: "main"})
	if !m.HasMain() {
		t.Fatal("expected HasMain() true with a main function")
	}
}

func TestBinaryOpCommutative(t *testing.T) {
	if !BAdd.IsCommutative() {
		t.Fatal("BAdd should be commutative")
	}
	if BSub.IsCommutative() {
		t.Fatal("BSub should not be commutative")
	}
	if !BEq.IsComparison() {
		t.Fatal("BEq should be a comparison")
	}
}
