package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// BlockSizeWords is the storage block size: 32K words, 64 KiB on disk.
const BlockSizeWords = 32768

const blockSizeBytes = BlockSizeWords * 2

type storageBlock struct {
	data  []uint16
	dirty bool
}

// Storage is the persistent block-storage subsystem: a sparse sequence
// of 64 KiB blocks backed by a disk image, lazily loaded on first touch
// and tracked dirty per block. A COMMIT or COMMIT_ALL control write
// flushes dirty blocks, and Close flushes every dirty block; nothing
// else writes to disk.
type Storage struct {
	currentBlock uint16
	currentAddr  uint16

	blocks map[uint16]*storageBlock

	file *os.File
	busy bool
}

// NewStorage opens (or creates) the disk image at path. An empty path
// yields an in-memory storage with no persistence.
func NewStorage(path string) (*Storage, error) {
	s := &Storage{blocks: make(map[uint16]*storageBlock)}
	if path == "" {
		return s, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStorageIO, err)
	}
	s.file = f
	return s, nil
}

// loadBlock brings a block into the cache, reading it from the backing
// file if present there and zero-filling otherwise.
func (s *Storage) loadBlock(blockNum uint16) error {
	if _, ok := s.blocks[blockNum]; ok {
		return nil
	}

	blk := &storageBlock{data: make([]uint16, BlockSizeWords)}
	if s.file != nil {
		buf := make([]byte, blockSizeBytes)
		offset := int64(blockNum) * blockSizeBytes
		n, err := s.file.ReadAt(buf, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: read block %d: %v", errStorageIO, blockNum, err)
		}
		for i := 0; i+2 <= n; i += 2 {
			blk.data[i/2] = binary.LittleEndian.Uint16(buf[i : i+2])
		}
		if n%2 == 1 {
			blk.data[n/2] = uint16(buf[n-1])
		}
	}
	s.blocks[blockNum] = blk
	return nil
}

func (s *Storage) commitBlock(blockNum uint16) error {
	blk, ok := s.blocks[blockNum]
	if !ok || !blk.dirty {
		return nil
	}
	if s.file != nil {
		buf := make([]byte, blockSizeBytes)
		for i, w := range blk.data {
			binary.LittleEndian.PutUint16(buf[i*2:i*2+2], w)
		}
		if _, err := s.file.WriteAt(buf, int64(blockNum)*blockSizeBytes); err != nil {
			return fmt.Errorf("%w: write block %d: %v", errStorageIO, blockNum, err)
		}
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync block %d: %v", errStorageIO, blockNum, err)
		}
	}
	blk.dirty = false
	return nil
}

// SetBlock selects the current block.
func (s *Storage) SetBlock(blockNum uint16) { s.currentBlock = blockNum }

// SetAddr sets the current byte address within the block.
func (s *Storage) SetAddr(addr uint16) { s.currentAddr = addr }

// Block reports the selected block.
func (s *Storage) Block() uint16 { return s.currentBlock }

// Addr reports the current byte address.
func (s *Storage) Addr() uint16 { return s.currentAddr }

// ReadByte reads the byte at (block, addr) and auto-increments the byte
// address. Errors degrade to a zero read; persistence failures surface
// at commit time instead.
func (s *Storage) ReadByte() uint16 {
	if err := s.loadBlock(s.currentBlock); err != nil {
		s.currentAddr++
		return 0
	}

	blk := s.blocks[s.currentBlock]
	word := blk.data[s.currentAddr/2]
	var value uint16
	if s.currentAddr%2 == 0 {
		value = word & 0xFF
	} else {
		value = word >> 8
	}
	s.currentAddr++
	return value
}

// WriteByte writes the low 8 bits of value at (block, addr), marks the
// block dirty, and auto-increments the byte address.
func (s *Storage) WriteByte(value uint16) {
	if err := s.loadBlock(s.currentBlock); err != nil {
		s.currentAddr++
		return
	}

	blk := s.blocks[s.currentBlock]
	idx := s.currentAddr / 2
	b := value & 0xFF
	if s.currentAddr%2 == 0 {
		blk.data[idx] = (blk.data[idx] & 0xFF00) | b
	} else {
		blk.data[idx] = (blk.data[idx] & 0x00FF) | b<<8
	}
	blk.dirty = true
	s.currentAddr++
}

// Control reads the control register: busy and current-block-dirty bits.
func (s *Storage) Control() uint16 {
	var ctl uint16
	if s.busy {
		ctl |= StorageBusy
	}
	if blk, ok := s.blocks[s.currentBlock]; ok && blk.dirty {
		ctl |= StorageDirty
	}
	return ctl
}

// SetControl handles control-register writes: bit 2 commits the current
// block, bit 3 commits every dirty block.
func (s *Storage) SetControl(value uint16) error {
	if value&StorageCommit != 0 {
		s.busy = true
		err := s.commitBlock(s.currentBlock)
		s.busy = false
		if err != nil {
			return err
		}
	}
	if value&StorageCommitAll != 0 {
		s.busy = true
		err := s.CommitAll()
		s.busy = false
		if err != nil {
			return err
		}
	}
	return nil
}

// CommitAll flushes every dirty block to the backing file.
func (s *Storage) CommitAll() error {
	for num, blk := range s.blocks {
		if !blk.dirty {
			continue
		}
		if err := s.commitBlock(num); err != nil {
			return err
		}
	}
	return nil
}

// Close commits outstanding writes and closes the backing file.
func (s *Storage) Close() error {
	err := s.CommitAll()
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	return err
}
