package flash

import (
	"fmt"
	"sync"
)

// ErasedByte is the value every cell holds after an erase.
const ErasedByte = 0xFF

// MemDevice is an in-memory Device with NOR-style semantics: erasing a page
// restores it to ErasedByte, and a write can only clear bits (new = old AND
// data). Writing to a cell that was not erased first therefore corrupts the
// stored value instead of silently succeeding, which mirrors real hardware
// and lets tests catch a missing erase.
type MemDevice struct {
	mu       sync.Mutex
	data     []byte
	pageSize uint32
	grain    int

	erases int
	writes int
}

// NewMemDevice creates an in-memory flash device of the given size. All
// cells start erased.
func NewMemDevice(size, pageSize uint32, grain int) (*MemDevice, error) {
	if size == 0 || pageSize == 0 || grain <= 0 {
		return nil, fmt.Errorf("invalid geometry (size=%d, page=%d, grain=%d)", size, pageSize, grain)
	}
	if size%pageSize != 0 {
		return nil, fmt.Errorf("size %d is not a whole number of pages (page size %d)", size, pageSize)
	}
	if pageSize%uint32(grain) != 0 {
		return nil, fmt.Errorf("page size %d is not a multiple of write grain %d", pageSize, grain)
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = ErasedByte
	}

	return &MemDevice{data: data, pageSize: pageSize, grain: grain}, nil
}

// Size implements Device.
func (m *MemDevice) Size() uint32 { return uint32(len(m.data)) }

// PageSize implements Device.
func (m *MemDevice) PageSize() uint32 { return m.pageSize }

// WriteGrain implements Device.
func (m *MemDevice) WriteGrain() int { return m.grain }

// ErasePage implements Device.
func (m *MemDevice) ErasePage(addr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr%m.pageSize != 0 {
		return fmt.Errorf("erase address %#x is not page-aligned", addr)
	}
	if addr+m.pageSize > uint32(len(m.data)) {
		return fmt.Errorf("erase page %#x exceeds device size %d", addr, len(m.data))
	}

	for i := addr; i < addr+m.pageSize; i++ {
		m.data[i] = ErasedByte
	}
	m.erases++
	return nil
}

// WriteAt implements Device.
func (m *MemDevice) WriteAt(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	grain := uint32(m.grain)
	if addr%grain != 0 || uint32(len(data))%grain != 0 {
		return fmt.Errorf("write at %#x of %d bytes violates grain %d", addr, len(data), grain)
	}
	if addr > uint32(len(m.data)) || uint32(len(data)) > uint32(len(m.data))-addr {
		return fmt.Errorf("write [%#x, %#x) exceeds device size %d", addr, addr+uint32(len(data)), len(m.data))
	}

	for i, b := range data {
		m.data[addr+uint32(i)] &= b
	}
	m.writes++
	return nil
}

// ReadAt implements Device.
func (m *MemDevice) ReadAt(addr uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr > uint32(len(m.data)) || uint32(len(p)) > uint32(len(m.data))-addr {
		return fmt.Errorf("read [%#x, %#x) exceeds device size %d", addr, addr+uint32(len(p)), len(m.data))
	}

	copy(p, m.data[addr:])
	return nil
}

// EraseCount returns the number of page erases performed.
func (m *MemDevice) EraseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erases
}

// WriteCount returns the number of write calls performed.
func (m *MemDevice) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
