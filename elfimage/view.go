// Package elfimage implements the core ELF loading mechanics: mapping a
// shared object's loadable segments into a contiguous image allocation,
// applying dynamic relocations, and resolving exported symbols through the
// GNU hash table.
package elfimage

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FileView is a read-only view of an ELF file, either memory-mapped
// (OpenFileView) or wrapping bytes already in memory (NewFileViewBytes). It
// survives for the lifetime of any LoadedLibrary built from it, because the
// GNU hash table's bucket and chain arrays are read directly from it rather
// than copied.
type FileView struct {
	data    []byte
	mmapped bool
}

// OpenFileView memory-maps path for reading.
func OpenFileView(path string) (*FileView, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfimage: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("elfimage: stat %s: %w", path, err)
	}
	size := info.Size()
	if size <= 0 {
		return nil, fmt.Errorf("elfimage: %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("elfimage: mmap %s: %w", path, err)
	}

	view := &FileView{data: data, mmapped: true}
	runtime.SetFinalizer(view, (*FileView).Close)
	return view, nil
}

// NewFileViewBytes wraps an in-memory ELF image instead of mapping a file.
// The returned FileView does not own an OS mapping and Close is a no-op.
func NewFileViewBytes(data []byte) *FileView {
	return &FileView{data: data}
}

// Close releases the underlying mapping, if any. Safe to call more than once.
func (v *FileView) Close() error {
	if v.data == nil {
		return nil
	}
	data := v.data
	mmapped := v.mmapped
	v.data = nil
	runtime.SetFinalizer(v, nil)
	if mmapped {
		return unix.Munmap(data)
	}
	return nil
}

// Len reports the number of bytes in the view.
func (v *FileView) Len() int { return len(v.data) }

// Bytes returns the raw backing slice. Callers must not retain it past the
// FileView's lifetime.
func (v *FileView) Bytes() []byte { return v.data }

// Slice returns a sub-slice [off, off+n) of the view, bounds-checked.
func (v *FileView) Slice(off, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	end := off + n
	if end < off || end > uint64(len(v.data)) {
		return nil, fmt.Errorf("elfimage: range [%d,%d) out of bounds (len=%d)", off, end, len(v.data))
	}
	return v.data[off:end], nil
}

// Identify reinterprets the bytes at offset as a value of type T.
func Identify[T any](v *FileView, offset uint64) (T, error) {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	raw, err := v.Slice(offset, size)
	if err != nil {
		return zero, err
	}
	return *(*T)(unsafe.Pointer(&raw[0])), nil
}

// IdentifyArray reinterprets count contiguous T values starting at offset.
func IdentifyArray[T any](v *FileView, offset uint64, count uint64) ([]T, error) {
	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	if count == 0 {
		return nil, nil
	}
	total := elemSize * count
	if total/elemSize != count {
		return nil, fmt.Errorf("elfimage: array size overflow (count=%d, elemSize=%d)", count, elemSize)
	}
	raw, err := v.Slice(offset, total)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), count), nil
}
