package asm

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Instruction{
		Add(T0, T1, T2),
		Addi(S0, S1, 42),
		Li(S0, -1),
		Load(T0, SB, SC),
		Store(T0, SB, SC),
		Jal(R0, 1, 100),
		Jalr(R0, RAB, RA),
		Halt(),
		Brk(),
	}

	for _, in := range cases {
		enc, err := Encode(in)
		if err != nil {
			t.Fatalf("Encode(%v): %v", in, err)
		}
		bytes := enc.Bytes()
		if len(bytes) != 10 {
			t.Fatalf("expected 10-byte record, got %d", len(bytes))
		}
		decEnc, err := DecodeBytes(bytes[:])
		if err != nil {
			t.Fatalf("DecodeBytes: %v", err)
		}
		if decEnc != enc {
			t.Fatalf("round trip mismatch: %+v != %+v", decEnc, enc)
		}
		out, err := Decode(decEnc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if out.Op == OpSlt {
			t.Fatalf("Slt should never come back out of Decode (aliased to Sltu)")
		}
		_ = out
	}
}

func TestSltAliasesSltu(t *testing.T) {
	enc, err := Encode(Slt(T0, T1, T2))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wantCode, _ := opcodeFor(OpSltu)
	if enc.Opcode != wantCode {
		t.Fatalf("Slt did not alias to Sltu's opcode: got 0x%02X want 0x%02X", enc.Opcode, wantCode)
	}
}

func TestImmediateOutOfRange(t *testing.T) {
	if _, err := CheckImmediate(70000, MaxImmediate); err == nil {
		t.Fatal("expected range error for 70000")
	}
	if _, err := CheckImmediate(-40000, MaxImmediate); err == nil {
		t.Fatal("expected range error for -40000")
	}
	if _, err := CheckImmediate(-1, MaxImmediate); err != nil {
		t.Fatalf("unexpected error for -1: %v", err)
	}
}

// Smallest useful program: LI a value into a register, store it to
// bank:addr, halt.
func TestAssembleHelloWorld(t *testing.T) {
	src := `
		li t0, 'H'
		store t0, gp, r0
		halt
	`
	prog, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(prog.Instructions) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(prog.Instructions))
	}
	if prog.Instructions[0].Op != OpLi || prog.Instructions[0].Imm != 'H' {
		t.Fatalf("unexpected first instruction: %+v", prog.Instructions[0])
	}
	if prog.Instructions[2].Op != OpHalt {
		t.Fatalf("expected final instruction to be halt, got %+v", prog.Instructions[2])
	}
}

func TestAssembleBranchResolvesLabel(t *testing.T) {
	src := `
		beq r0, r0, target
		add t0, t0, t0
		target:
		halt
	`
	prog, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(prog.Instructions) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(prog.Instructions))
	}
	branchInst := prog.Instructions[0]
	if branchInst.Op != OpBeq {
		t.Fatalf("expected beq, got %v", branchInst.Op)
	}
	// target is 1 instruction ahead of the one after the branch.
	if branchInst.Imm != 1 {
		t.Fatalf("expected PC-relative offset of 1 instruction, got %d", branchInst.Imm)
	}
}

func TestUndefinedLabelFails(t *testing.T) {
	_, err := Assemble("beq r0, r0, nowhere\nhalt\n")
	if err == nil {
		t.Fatal("expected error for undefined label")
	}
}
