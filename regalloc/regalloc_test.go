package regalloc

import (
	"testing"

	"ripplevm/asm"
)

func TestPoolSizeIsTwelve(t *testing.T) {
	if got := PoolSize(); got != 12 {
		t.Fatalf("PoolSize() = %d, want 12", got)
	}
}

func TestAllocationOrderSavedThenTemp(t *testing.T) {
	a := New()
	want := []asm.Register{asm.S3, asm.S2, asm.S1, asm.S0, asm.T7, asm.T6, asm.T5, asm.T4, asm.T3, asm.T2, asm.T1, asm.T0}
	for i, w := range want {
		got := a.GetRegister(namef(i))
		a.TakeInstructions()
		if got != w {
			t.Fatalf("allocation %d: got %v, want %v", i, got, w)
		}
	}
}

func namef(i int) string {
	return "v" + string(rune('a'+i))
}

func TestTwelveAllocationsNoSpillThirteenthSpills(t *testing.T) {
	a := New()
	for i := 0; i < 12; i++ {
		a.GetRegister(namef(i))
		insts := a.TakeInstructions()
		for _, in := range insts {
			if in.Op == asm.OpStore {
				t.Fatalf("unexpected spill on allocation %d", i)
			}
		}
	}

	a.GetRegister(namef(12))
	insts := a.TakeInstructions()
	sawStore := false
	for _, in := range insts {
		if in.Op == asm.OpStore {
			sawStore = true
		}
	}
	if !sawStore {
		t.Fatal("expected the 13th allocation to spill a victim")
	}
}

func TestPinnedValueNeverSpilled(t *testing.T) {
	a := New()
	for i := 0; i < 12; i++ {
		a.GetRegister(namef(i))
		a.TakeInstructions()
	}
	// Pin every occupant except the last one, so that one non-pinned
	// occupant remains available as the only legal spill victim.
	for i := 0; i < 11; i++ {
		a.Pin(namef(i))
	}

	a.GetRegister("new-value")
	a.TakeInstructions()

	for i := 0; i < 11; i++ {
		if _, ok := regOfOK(a, namef(i)); !ok {
			t.Fatalf("pinned value %d was evicted despite a non-pinned occupant existing", i)
		}
	}
	if _, ok := regOfOK(a, namef(11)); ok {
		t.Fatal("expected the sole non-pinned occupant to have been spilled")
	}
}

func regOfOK(a *Allocator, name string) (asm.Register, bool) {
	r, ok := a.regOf[name]
	return r, ok
}

func TestReloadAfterSpillAllEmitsOneLoad(t *testing.T) {
	a := New()
	a.GetRegister("x")
	a.TakeInstructions()

	a.SpillAll()
	a.TakeInstructions()

	a.Reload("x")
	insts := a.TakeInstructions()

	loads := 0
	for _, in := range insts {
		if in.Op == asm.OpLoad {
			loads++
		}
	}
	if loads != 1 {
		t.Fatalf("expected exactly one LOAD on reload, got %d (%+v)", loads, insts)
	}
}

func TestConstRegisterNotImmediatelyReused(t *testing.T) {
	// While other registers are still free, a freed constant register
	// goes to the back of the free list and is not handed out next.
	a := New()
	first := a.GetConstRegister(7)
	a.TakeInstructions()
	a.FreeConstRegister(first)
	if got := a.GetRegister("other"); got == first {
		t.Fatalf("freed constant register %v handed out again while others were free", first)
	}

	a = New()
	// Drain the entire pool with const registers.
	var regs []asm.Register
	for i := 0; i < PoolSize(); i++ {
		regs = append(regs, a.GetConstRegister(int32(i)))
		a.TakeInstructions()
	}
	a.FreeConstRegister(regs[0])

	// All 12 registers are now either live constants or freed, so the one
	// just freed is the only option and must come back.
	next := a.GetRegister("fresh")
	if next != regs[0] {
		t.Fatalf("expected the only freed register back, got %v want %v", next, regs[0])
	}
}

func TestStackBankInitializedOnceBeforeFirstSpill(t *testing.T) {
	a := New()
	for i := 0; i < PoolSize()+1; i++ {
		a.GetRegister(namef(i))
		insts := a.TakeInstructions()
		liSB := 0
		for _, in := range insts {
			if in.Op == asm.OpLi && in.Rd == asm.SB {
				liSB++
			}
		}
		if i < PoolSize() && liSB != 0 {
			t.Fatalf("SB initialized before any spill at allocation %d", i)
		}
		if i == PoolSize() && liSB != 1 {
			t.Fatalf("expected exactly one SB init at the first spill, got %d", liSB)
		}
	}
}
