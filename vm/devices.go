package vm

import "bufio"

// MMIO device handlers for bank 0. Read side effects (RNG advance, TTY
// input dequeue, raw-mode enable, key auto-clear) are committed here and
// only here, so they happen on real program loads, never on debugger
// peeks (which go through PeekMem).

// mmioRead handles a load from a bank-0 address below the MMIO limit.
// The computed value is also stored into the backing memory word so raw
// dumps of bank 0 show the device headers' last values.
func (vm *VM) mmioRead(addr uint16) uint16 {
	var value uint16

	switch addr {
	case AddrTTYOut:
		value = 0 // write-only

	case AddrTTYStatus:
		if vm.outputReady {
			value = TTYReady
		}

	case AddrTTYInPop:
		vm.enableTTYInput()
		select {
		case b := <-vm.inputChan:
			value = uint16(b)
		default:
			value = 0
		}

	case AddrTTYInStatus:
		vm.enableTTYInput()
		if len(vm.inputChan) > 0 {
			value = TTYHasByte
		}

	case AddrRNG:
		vm.rngState = vm.rngState*rngMulA + rngAddC
		value = uint16(vm.rngState >> 16)

	case AddrRNGSeed:
		value = uint16(vm.rngState)

	case AddrDispMode:
		value = vm.displayMode

	case AddrDispStatus:
		if vm.outputReady {
			value |= DispReady
		}
		if vm.displayFlushDone {
			value |= DispFlushDone
		}

	case AddrDispCtl:
		if vm.displayEnabled {
			value = DispEnable
		}

	case AddrDispFlush:
		value = 0 // write-only

	case AddrKeyUp, AddrKeyDown, AddrKeyLeft, AddrKeyRight, AddrKeyZ, AddrKeyX:
		value = vm.readKey(addr)

	case AddrDispRes:
		value = vm.displayRes

	case AddrStorageBlock:
		value = vm.storage.Block()
	case AddrStorageAddr:
		value = vm.storage.Addr()
	case AddrStorageData:
		value = vm.storage.ReadByte()
	case AddrStorageCtl:
		value = vm.storage.Control()

	default:
		value = 0 // reserved addresses read as zero
	}

	vm.mem[addr] = value
	return value
}

// mmioWrite handles a store to a bank-0 address below the MMIO limit.
func (vm *VM) mmioWrite(addr, value uint16) {
	switch addr {
	case AddrTTYOut:
		b := byte(value)
		vm.outputBuffer = append(vm.outputBuffer, b)
		vm.stdout.WriteByte(b)
		if b == '\n' {
			vm.stdout.Flush()
		}
		vm.outputReady = false
		vm.outputDelay = 2

	case AddrRNGSeed:
		// Writes touch only the low 16 bits; the high half of the LCG
		// state survives reseeding.
		vm.rngState = (vm.rngState & 0xFFFF0000) | uint32(value)
		vm.mem[AddrRNGSeed] = value

	case AddrDispMode:
		mode := value & 0x3
		if mode != vm.displayMode {
			vm.displayMode = mode
		}
		vm.mem[AddrDispMode] = mode

	case AddrDispCtl:
		if value&DispEnable != 0 {
			vm.displayEnabled = true
		}
		if value&DispClear != 0 {
			// Edge-triggered VRAM clear; the CLEAR bit is never stored.
			for i := Text40Base; i < Text40Base+Text40Words && i < vm.bankSize; i++ {
				vm.mem[i] = 0
			}
		}

	case AddrDispFlush:
		if value != 0 {
			vm.displayFlushDone = false
			if vm.displayMode == DispRGB565 {
				vm.swapFramebuffers()
			}
			vm.displayFlushDone = true
		}

	case AddrDispRes:
		vm.displayRes = value
		vm.mem[AddrDispRes] = value

	case AddrStorageBlock:
		vm.storage.SetBlock(value)
	case AddrStorageAddr:
		vm.storage.SetAddr(value)
	case AddrStorageData:
		vm.storage.WriteByte(value)
	case AddrStorageCtl:
		if err := vm.storage.SetControl(value); err != nil {
			vm.fault(err)
		}

	default:
		// Read-only and reserved addresses ignore writes.
	}
}

// DataSection reports where general data begins in bank 0 under the
// current display mode: past the MMIO headers and, for RGB565, past both
// framebuffers.
func (vm *VM) DataSection() int {
	if vm.displayMode == DispRGB565 {
		w := int(vm.displayRes>>8) & 0xFF
		h := int(vm.displayRes) & 0xFF
		if w > 0 && h > 0 {
			return mmioLimit + 2*w*h
		}
	}
	return DataSectionOffset
}

// swapFramebuffers publishes the RGB565 back buffer by copying it over
// the front buffer. Front buffer sits right after the MMIO headers, back
// buffer right after it.
func (vm *VM) swapFramebuffers() {
	w := int(vm.displayRes>>8) & 0xFF
	h := int(vm.displayRes) & 0xFF
	pixels := w * h
	if pixels == 0 || mmioLimit+2*pixels > vm.bankSize {
		return
	}
	front := vm.mem[mmioLimit : mmioLimit+pixels]
	back := vm.mem[mmioLimit+pixels : mmioLimit+2*pixels]
	copy(front, back)
}

// enableTTYInput starts the raw stdin reader on the first TTY input
// access. The goroutine forwards bytes into the input channel and drops
// them when the queue is full, so a stalled program can't block the
// host's reader.
func (vm *VM) enableTTYInput() {
	if vm.ttyInputEnabled {
		return
	}
	vm.ttyInputEnabled = true
	if vm.stdin == nil {
		return
	}

	reader := bufio.NewReader(vm.stdin)
	go func() {
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return
			}
			select {
			case vm.inputChan <- b:
			default:
				// Queue full; drop.
			}
		}
	}()
}

// PushInput lets the host inject input bytes directly, bypassing stdin.
// Bytes beyond the queue capacity are dropped.
func (vm *VM) PushInput(data []byte) {
	vm.ttyInputEnabled = true
	for _, b := range data {
		select {
		case vm.inputChan <- b:
		default:
			return
		}
	}
}

// SetKey records a host-side key transition and resets the auto-clear
// counter.
func (vm *VM) SetKey(k Key, held bool) {
	switch k {
	case KeyUp:
		vm.keys.up = held
	case KeyDown:
		vm.keys.down = held
	case KeyLeft:
		vm.keys.left = held
	case KeyRight:
		vm.keys.right = held
	case KeyZ:
		vm.keys.z = held
	case KeyX:
		vm.keys.x = held
	}
	vm.keys.lastReadCounter = 0
}

// readKey returns a key's held flag, auto-clearing the whole keyboard
// after enough consecutive reads arrive without fresh host input.
func (vm *VM) readKey(addr uint16) uint16 {
	if vm.displayMode != DispText40 && vm.displayMode != DispRGB565 {
		return 0
	}

	vm.keys.lastReadCounter++
	if vm.keys.lastReadCounter > keyAutoClearReads {
		vm.keys = keyboardState{}
	}

	var held bool
	switch addr {
	case AddrKeyUp:
		held = vm.keys.up
	case AddrKeyDown:
		held = vm.keys.down
	case AddrKeyLeft:
		held = vm.keys.left
	case AddrKeyRight:
		held = vm.keys.right
	case AddrKeyZ:
		held = vm.keys.z
	case AddrKeyX:
		held = vm.keys.x
	}
	return boolWord(held)
}
