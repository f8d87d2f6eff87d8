// Package flash abstracts the non-volatile memory the update agent writes
// firmware images into: a low-level Device with page-erase and grained-write
// primitives, and a bounds-checked Region describing the target address
// range reserved for the resident image.
package flash

import "fmt"

// Device is the low-level non-volatile memory interface. Implementations
// wrap a flash controller or, for tests and simulation, an in-memory model.
// Erase and write calls are blocking-but-bounded; the agent invokes them
// directly from its poll loop.
type Device interface {
	// Size returns the device capacity in bytes
	Size() uint32

	// PageSize returns the erase granularity in bytes
	PageSize() uint32

	// WriteGrain returns the minimum aligned unit accepted per write call
	WriteGrain() int

	// ErasePage erases the page starting at addr, which must be
	// page-aligned
	ErasePage(addr uint32) error

	// WriteAt programs data at addr. Both addr and len(data) must be
	// multiples of WriteGrain.
	WriteAt(addr uint32, data []byte) error

	// ReadAt fills p with the device contents starting at addr
	ReadAt(addr uint32, p []byte) error
}

// Region is the fixed address range reserved for the updatable image.
// Bounds and alignment are asserted once at construction; every access goes
// through offset-based methods that stay inside the range.
type Region struct {
	dev    Device
	base   uint32
	length uint32
}

// NewRegion validates base and length against the device geometry and
// returns the region. The base must be page-aligned and the length a
// positive whole number of pages inside the device.
func NewRegion(dev Device, base, length uint32) (*Region, error) {
	if dev == nil {
		return nil, fmt.Errorf("device is required")
	}
	if length == 0 {
		return nil, fmt.Errorf("region length must be positive")
	}
	page := dev.PageSize()
	if page == 0 || dev.WriteGrain() <= 0 {
		return nil, fmt.Errorf("device reports invalid geometry (page=%d, grain=%d)", page, dev.WriteGrain())
	}
	if base%page != 0 {
		return nil, fmt.Errorf("region base %#x is not page-aligned (page size %d)", base, page)
	}
	if length%page != 0 {
		return nil, fmt.Errorf("region length %d is not a whole number of pages (page size %d)", length, page)
	}
	if base > dev.Size() || base+length > dev.Size() {
		return nil, fmt.Errorf("region [%#x, %#x) exceeds device size %d", base, base+length, dev.Size())
	}

	return &Region{dev: dev, base: base, length: length}, nil
}

// Base returns the region's start address on the device.
func (r *Region) Base() uint32 { return r.base }

// Length returns the region size in bytes.
func (r *Region) Length() uint32 { return r.length }

// Grain returns the minimum aligned write unit of the underlying device.
func (r *Region) Grain() int { return r.dev.WriteGrain() }

// EraseAll erases every page spanning the region.
func (r *Region) EraseAll() error {
	page := r.dev.PageSize()
	for addr := r.base; addr < r.base+r.length; addr += page {
		if err := r.dev.ErasePage(addr); err != nil {
			return fmt.Errorf("erase page %#x: %w", addr, err)
		}
	}
	return nil
}

// WriteAt programs data at the given offset into the region. The offset and
// length must respect the device write grain and stay inside the region.
func (r *Region) WriteAt(off uint32, data []byte) error {
	grain := uint32(r.dev.WriteGrain())
	if off%grain != 0 || uint32(len(data))%grain != 0 {
		return fmt.Errorf("write at offset %d of %d bytes violates grain %d", off, len(data), grain)
	}
	if off > r.length || uint32(len(data)) > r.length-off {
		return fmt.Errorf("write [%d, %d) exceeds region length %d", off, off+uint32(len(data)), r.length)
	}
	if err := r.dev.WriteAt(r.base+off, data); err != nil {
		return fmt.Errorf("write at %#x: %w", r.base+off, err)
	}
	return nil
}

// ReadAt fills p from the region starting at the given offset.
func (r *Region) ReadAt(off uint32, p []byte) error {
	if off > r.length || uint32(len(p)) > r.length-off {
		return fmt.Errorf("read [%d, %d) exceeds region length %d", off, off+uint32(len(p)), r.length)
	}
	if err := r.dev.ReadAt(r.base+off, p); err != nil {
		return fmt.Errorf("read at %#x: %w", r.base+off, err)
	}
	return nil
}
