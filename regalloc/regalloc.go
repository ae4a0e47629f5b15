// Package regalloc implements the linear, spill-capable register
// allocator: a small state machine over a fixed pool, backed by a free
// list, an occupancy map, a spill-slot map, a pinned-value set, and a
// pending-instructions buffer the caller drains after each operation.
package regalloc

import (
	"fmt"
	"sort"

	"ripplevm/asm"
)

// pool is popped in this order: saved registers first (preferred for
// long-lived values), then temporaries from T7 down to T0. Twelve
// registers total; the 13th simultaneous value spills.
var pool = []asm.Register{
	asm.S3, asm.S2, asm.S1, asm.S0,
	asm.T7, asm.T6, asm.T5, asm.T4, asm.T3, asm.T2, asm.T1, asm.T0,
}

// SpillHeadroom is the minimum number of spill slots every frame
// reserves above its allocas, whether or not they end up used. The
// module lowerer folds it into local_slots so the prologue reserves the
// space up front.
const SpillHeadroom = 8

// InternalError marks a violation of an allocator invariant that should
// be unreachable given well-formed IR (e.g. every occupant pinned with an
// empty free list). The codegen package recovers these at its boundary.
type InternalError struct {
	msg string
}

func (e *InternalError) Error() string { return "regalloc: " + e.msg }

func internalErrorf(format string, args ...any) {
	panic(&InternalError{msg: fmt.Sprintf(format, args...)})
}

// Allocator is the per-function allocator state. Call Reset (or
// construct a fresh Allocator) at each function entry.
type Allocator struct {
	free      []asm.Register
	occupant  map[asm.Register]string
	regOf     map[string]asm.Register
	spillOff  map[string]int
	nextSpill int
	frameBase int
	pinned    map[string]bool
	pending   []asm.Instruction

	sbInitialized bool
}

// New constructs an allocator with a full free pool and no occupants.
func New() *Allocator {
	a := &Allocator{}
	a.Reset()
	return a
}

// Reset restores the allocator to its per-function initial state.
func (a *Allocator) Reset() {
	a.free = append([]asm.Register(nil), pool...)
	a.occupant = make(map[asm.Register]string)
	a.regOf = make(map[string]asm.Register)
	a.spillOff = make(map[string]int)
	a.nextSpill = 0
	a.frameBase = 0
	a.pinned = make(map[string]bool)
	a.pending = nil
	a.sbInitialized = false
}

// TakeInstructions drains and returns the pending spill/reload/init
// instructions generated by the operations below. Every allocator
// operation's caller must drain this before emitting further code.
func (a *Allocator) TakeInstructions() []asm.Instruction {
	out := a.pending
	a.pending = nil
	return out
}

func (a *Allocator) emit(in asm.Instruction) {
	a.pending = append(a.pending, in)
}

func (a *Allocator) ensureStackBank() {
	if a.sbInitialized {
		return
	}
	a.emit(asm.Li(asm.SB, 1))
	a.sbInitialized = true
}

// GetRegister returns the register holding name, allocating one if
// necessary. If the free list is empty, it spills the first non-pinned
// occupant in pool order and reuses that register.
func (a *Allocator) GetRegister(name string) asm.Register {
	if r, ok := a.regOf[name]; ok {
		return r
	}

	var reg asm.Register
	if len(a.free) > 0 {
		reg = a.free[0]
		a.free = a.free[1:]
	} else {
		reg = a.spillVictim()
	}

	a.occupant[reg] = name
	a.regOf[name] = reg
	return reg
}

// spillVictim picks the first occupied, non-pinned register in pool
// order, emits spill code for it, and returns it for reuse. Walking the
// pool rather than the occupancy map keeps victim choice deterministic,
// which the lowering's reproducibility guarantee depends on.
func (a *Allocator) spillVictim() asm.Register {
	var victim asm.Register
	found := false
	for _, reg := range pool {
		name, occupied := a.occupant[reg]
		if !occupied || a.pinned[name] {
			continue
		}
		victim, found = reg, true
		break
	}
	if !found {
		internalErrorf("no non-pinned register available to spill (every occupant pinned)")
	}

	victimName := a.occupant[victim]
	a.ensureStackBank()
	off := a.spillSlotFor(victimName)
	a.emit(asm.Addi(asm.SC, asm.FP, int32(off)))
	a.emit(asm.Store(victim, asm.SB, asm.SC))

	delete(a.occupant, victim)
	delete(a.regOf, victimName)
	return victim
}

// SetFrameBase records how many words of the frame the function's
// allocas occupy, so spill slots land in the headroom directly above
// them. Call once per function, before lowering its body.
func (a *Allocator) SetFrameBase(allocaWords int) {
	a.frameBase = allocaWords
}

// SpillSlots reports how many distinct spill slots have been assigned so
// far, letting the module lowerer size the frame after lowering the
// body.
func (a *Allocator) SpillSlots() int { return a.nextSpill }

// spillSlotFor returns name's recorded spill offset, assigning the next
// monotonically increasing slot above the allocas on first spill. A
// respilled value reuses its slot.
func (a *Allocator) spillSlotFor(name string) int {
	if off, ok := a.spillOff[name]; ok {
		return off
	}
	off := a.frameBase + a.nextSpill
	a.nextSpill++
	a.spillOff[name] = off
	return off
}

// GetConstRegister allocates a register for an immediate value, emitting
// LI and not tracking it under any name (constants can be immediately
// reclaimed by the caller via FreeConstRegister).
func (a *Allocator) GetConstRegister(value int32) asm.Register {
	var reg asm.Register
	if len(a.free) > 0 {
		reg = a.free[0]
		a.free = a.free[1:]
	} else {
		reg = a.spillVictim()
	}
	a.emit(asm.Li(reg, value))
	return reg
}

// FreeConstRegister returns a register obtained from GetConstRegister to
// the pool, but appends it to the back rather than the front so it is
// not immediately handed out again.
func (a *Allocator) FreeConstRegister(reg asm.Register) {
	a.free = append(a.free, reg)
}

// Rename transfers a register's occupancy from oldName to newName, used
// when a binary/unary op's result reuses its dead operand's register
// when a binary op's result reuses its dead operand's register: the
// physical register doesn't move, but
// the allocator must track it under the result's name from here on. A
// spill slot recorded for oldName, if any, is dropped along with it,
// since oldName is dead and will never be reloaded again.
func (a *Allocator) Rename(oldName, newName string) {
	reg, ok := a.regOf[oldName]
	if !ok {
		return
	}
	delete(a.regOf, oldName)
	delete(a.spillOff, oldName)
	delete(a.pinned, oldName)
	a.regOf[newName] = reg
	a.occupant[reg] = newName
}

// Free returns reg to the pool and drops its occupancy record.
func (a *Allocator) Free(reg asm.Register) {
	if name, ok := a.occupant[reg]; ok {
		delete(a.occupant, reg)
		delete(a.regOf, name)
	}
	a.free = append([]asm.Register{reg}, a.free...)
}

// Pin marks name as ineligible for spilling.
func (a *Allocator) Pin(name string) { a.pinned[name] = true }

// Unpin clears a previous Pin.
func (a *Allocator) Unpin(name string) { delete(a.pinned, name) }

// Reload returns name's register, reloading it from its spill slot if
// necessary. If name was never seen before, a fresh register is
// allocated for it.
func (a *Allocator) Reload(name string) asm.Register {
	if r, ok := a.regOf[name]; ok {
		return r
	}

	reg := a.GetRegister(name)
	if off, ok := a.spillOff[name]; ok {
		a.ensureStackBank()
		a.emit(asm.Addi(asm.SC, asm.FP, int32(off)))
		a.emit(asm.Load(reg, asm.SB, asm.SC))
	}
	return reg
}

// SpillAll spills every live, non-pinned-irrelevant value (constants are
// never tracked by name so they're unaffected) -- invoked before a call
// to respect the caller-saves convention.
func (a *Allocator) SpillAll() {
	names := make([]string, 0, len(a.regOf))
	for name := range a.regOf {
		names = append(names, name)
	}
	// Deterministic spill order, for reproducible lowering output.
	sort.Strings(names)
	for _, name := range names {
		reg := a.regOf[name]
		a.ensureStackBank()
		off := a.spillSlotFor(name)
		a.emit(asm.Addi(asm.SC, asm.FP, int32(off)))
		a.emit(asm.Store(reg, asm.SB, asm.SC))
		delete(a.occupant, reg)
		delete(a.regOf, name)
		a.free = append(a.free, reg)
	}
}

// FreeAll resets occupancy and the free list at a statement boundary,
// without touching the spill-slot map (spilled values remain spillable
// and reloadable across statements) or the stack-bank-initialized flag.
func (a *Allocator) FreeAll() {
	a.free = append([]asm.Register(nil), pool...)
	a.occupant = make(map[asm.Register]string)
	a.regOf = make(map[string]asm.Register)
	a.pinned = make(map[string]bool)
}

// CanReuseRegister reports whether the register holding lhsName may be
// reused as the destination of a binary op whose lhs is lhsName,
// i.e. lhsName is dead after this use (not referenced again, per the
// caller's liveness bookkeeping) and not pinned.
func (a *Allocator) CanReuseRegister(lhsName string, lhsDeadAfterUse bool) bool {
	if !lhsDeadAfterUse {
		return false
	}
	if a.pinned[lhsName] {
		return false
	}
	_, occupied := a.regOf[lhsName]
	return occupied
}

// PoolSize reports the allocator's total pool size (12), exposed for
// tests.
func PoolSize() int { return len(pool) }
