package elfimage

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

func sliceBase(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// ErrNoLoadSegments is returned when an ELF file has no PT_LOAD entries.
var ErrNoLoadSegments = errors.New("elfimage: no PT_LOAD segments")

// ErrOverlappingSegments is returned when two PT_LOAD segments' virtual
// address ranges overlap.
var ErrOverlappingSegments = errors.New("elfimage: overlapping PT_LOAD segments")

// ErrInvalidAlignment is returned when a PT_LOAD segment's p_align is
// neither 0 nor a power of two, or exceeds the host page size.
var ErrInvalidAlignment = errors.New("elfimage: invalid PT_LOAD alignment")

// progHeader is the class-normalized program header the segment mapper and
// relocator operate on.
type progHeader struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

const ptLoad = 1

// ImageAlloc is the single contiguous anonymous mapping backing a loaded
// library's runtime image. Base is the module's runtime base address B;
// every loaded address satisfies base <= addr < base+size.
type ImageAlloc struct {
	base     uintptr
	bytes    []byte
	minVreal uint64 // floor(min p_vaddr), the file-vaddr corresponding to base
}

// Base returns the runtime base address B.
func (i *ImageAlloc) Base() uintptr { return i.base }

// Size returns the allocation size in bytes.
func (i *ImageAlloc) Size() int { return len(i.bytes) }

// Bytes exposes the raw backing slice for relocation patching.
func (i *ImageAlloc) Bytes() []byte { return i.bytes }

// VaddrToOffset converts a file-relative virtual address to an offset into
// Bytes()/an address relative to Base().
func (i *ImageAlloc) VaddrToOffset(vaddr uint64) uint64 { return vaddr - i.minVreal }

// Addr converts a file-relative virtual address to a runtime pointer value.
func (i *ImageAlloc) Addr(vaddr uint64) uintptr { return i.base + uintptr(i.VaddrToOffset(vaddr)) }

func pageSize() uint64 { return uint64(os.Getpagesize()) }

func pageFloor(v uint64) uint64 { return v &^ (pageSize() - 1) }
func pageCeil(v uint64) uint64  { return (v + pageSize() - 1) &^ (pageSize() - 1) }

// mapSegments builds the image allocation from a FileView and its parsed
// LOAD program headers: compute the footprint, mmap an anonymous RW region,
// copy each segment's file-backed bytes at the right relative offset, and
// leave the mapping writable for the relocator. Final protection is applied
// by finalizeProtections once relocation has completed, so relocations can
// still write into segments that end up read-only or executable.
func mapSegments(v *FileView, loads []progHeader) (*ImageAlloc, error) {
	if len(loads) == 0 {
		return nil, ErrNoLoadSegments
	}

	sorted := make([]progHeader, len(loads))
	copy(sorted, loads)
	for _, p := range sorted {
		if p.Align != 0 && (p.Align&(p.Align-1) != 0 || p.Align > pageSize()) {
			return nil, fmt.Errorf("%w: p_align 0x%x", ErrInvalidAlignment, p.Align)
		}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Vaddr < sorted[b].Vaddr })
	for i := 1; i < len(sorted); i++ {
		prevEnd := sorted[i-1].Vaddr + sorted[i-1].Memsz
		if sorted[i].Vaddr < prevEnd {
			return nil, fmt.Errorf("%w: [0x%x,0x%x) overlaps [0x%x,0x%x)",
				ErrOverlappingSegments,
				sorted[i].Vaddr, sorted[i].Vaddr+sorted[i].Memsz,
				sorted[i-1].Vaddr, prevEnd)
		}
	}

	minV := sorted[0].Vaddr
	var maxM uint64
	for _, p := range sorted {
		if end := p.Vaddr + p.Memsz; end > maxM {
			maxM = end
		}
	}

	alignedMin := pageFloor(minV)
	alignedMax := pageCeil(maxM)
	size := alignedMax - alignedMin
	if size == 0 {
		return nil, ErrNoLoadSegments
	}

	bytes, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("elfimage: mmap image (%d bytes): %w", size, err)
	}

	img := &ImageAlloc{
		base:     uintptr(0), // resolved below via &bytes[0]
		bytes:    bytes,
		minVreal: alignedMin,
	}
	img.base = sliceBase(bytes)

	for _, p := range sorted {
		fileBytes, err := v.Slice(p.Off, p.Filesz)
		if err != nil {
			_ = unix.Munmap(bytes)
			return nil, fmt.Errorf("elfimage: read segment at file offset 0x%x: %w", p.Off, err)
		}
		dst := p.Vaddr - alignedMin
		copy(bytes[dst:], fileBytes)
		// Bytes beyond Filesz but inside Memsz are already zero: unix.Mmap's
		// anonymous pages are zero-filled by the kernel.
	}

	runtime.KeepAlive(bytes)
	return img, nil
}

// finalizeProtections sets each LOAD segment's page range to exactly the
// protection its p_flags imply.
func finalizeProtections(img *ImageAlloc, loads []progHeader) error {
	for _, p := range loads {
		start := pageFloor(p.Vaddr - img.minVreal)
		end := pageCeil(p.Vaddr - img.minVreal + p.Memsz)
		if end > uint64(len(img.bytes)) {
			end = uint64(len(img.bytes))
		}
		prot := 0
		if p.Flags&4 != 0 { // PF_R
			prot |= unix.PROT_READ
		}
		if p.Flags&2 != 0 { // PF_W
			prot |= unix.PROT_WRITE
		}
		if p.Flags&1 != 0 { // PF_X
			prot |= unix.PROT_EXEC
		}
		if err := unix.Mprotect(img.bytes[start:end], prot); err != nil {
			return fmt.Errorf("elfimage: mprotect [0x%x,0x%x) to 0x%x: %w", start, end, prot, err)
		}
	}
	return nil
}

func releaseImage(img *ImageAlloc) error {
	if img == nil || img.bytes == nil {
		return nil
	}
	b := img.bytes
	img.bytes = nil
	return unix.Munmap(b)
}
