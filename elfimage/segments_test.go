package elfimage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapSegmentsRejectsEmptyLoadList(t *testing.T) {
	_, err := mapSegments(NewFileViewBytes(nil), nil)
	require.ErrorIs(t, err, ErrNoLoadSegments)
}

func TestMapSegmentsRejectsOverlap(t *testing.T) {
	v := NewFileViewBytes(make([]byte, 0x2000))
	loads := []progHeader{
		{Vaddr: 0, Memsz: 0x1000},
		{Vaddr: 0x800, Memsz: 0x1000},
	}
	_, err := mapSegments(v, loads)
	require.ErrorIs(t, err, ErrOverlappingSegments)
}

func TestMapSegmentsRejectsNonPowerOfTwoAlignment(t *testing.T) {
	v := NewFileViewBytes(make([]byte, 0x2000))
	loads := []progHeader{
		{Vaddr: 0, Memsz: 0x1000, Align: 0x900},
	}
	_, err := mapSegments(v, loads)
	require.ErrorIs(t, err, ErrInvalidAlignment)
}

func TestMapSegmentsRejectsAlignmentAboveWhatEverGetsUsed(t *testing.T) {
	v := NewFileViewBytes(make([]byte, 0x2000))
	loads := []progHeader{
		{Vaddr: 0, Memsz: 0x1000, Align: uint64(pageSize()) * 2},
	}
	_, err := mapSegments(v, loads)
	require.ErrorIs(t, err, ErrInvalidAlignment)
}

func TestMapSegmentsAcceptsZeroOrPageAlignment(t *testing.T) {
	v := NewFileViewBytes(make([]byte, 0x2000))
	loads := []progHeader{
		{Vaddr: 0, Memsz: 0x1000, Align: 0},
		{Vaddr: 0x1000, Memsz: 0x1000, Align: pageSize()},
	}
	img, err := mapSegments(v, loads)
	require.NoError(t, err)
	defer releaseImage(img)
}

func TestMapSegmentsCopiesFileBytesAtRelativeOffsets(t *testing.T) {
	data := make([]byte, 0x2000)
	copy(data[0x100:], []byte("hello"))
	copy(data[0x1100:], []byte("world"))
	v := NewFileViewBytes(data)

	loads := []progHeader{
		{Off: 0x100, Vaddr: 0x1000, Filesz: 5, Memsz: 0x10, Flags: 4},
		{Off: 0x1100, Vaddr: 0x2000, Filesz: 5, Memsz: 0x10, Flags: 6},
	}
	img, err := mapSegments(v, loads)
	require.NoError(t, err)
	defer releaseImage(img)

	assert.Equal(t, "hello", string(img.Bytes()[img.VaddrToOffset(0x1000):img.VaddrToOffset(0x1000)+5]))
	assert.Equal(t, "world", string(img.Bytes()[img.VaddrToOffset(0x2000):img.VaddrToOffset(0x2000)+5]))
}

func TestMapSegmentsZeroFillsBssTail(t *testing.T) {
	data := make([]byte, 0x1000)
	copy(data[0:], []byte{0xff, 0xff, 0xff, 0xff})
	v := NewFileViewBytes(data)

	loads := []progHeader{
		{Off: 0, Vaddr: 0x1000, Filesz: 4, Memsz: 0x20, Flags: 6},
	}
	img, err := mapSegments(v, loads)
	require.NoError(t, err)
	defer releaseImage(img)

	bss := img.Bytes()[img.VaddrToOffset(0x1000)+4 : img.VaddrToOffset(0x1000)+0x20]
	for _, b := range bss {
		assert.Zero(t, b)
	}
}

func TestFinalizeProtectionsSucceedsForReadAndReadWriteSegments(t *testing.T) {
	data := make([]byte, 0x3000)
	v := NewFileViewBytes(data)
	loads := []progHeader{
		{Off: 0, Vaddr: 0x1000, Filesz: 0, Memsz: 0x1000, Flags: 4},
		{Off: 0, Vaddr: 0x2000, Filesz: 0, Memsz: 0x1000, Flags: 6},
	}
	img, err := mapSegments(v, loads)
	require.NoError(t, err)
	defer releaseImage(img)

	require.NoError(t, finalizeProtections(img, loads))
}

func TestImageAllocAddrTracksBase(t *testing.T) {
	v := NewFileViewBytes(make([]byte, 0x1000))
	loads := []progHeader{{Vaddr: 0x400000, Memsz: 0x1000, Flags: 4}}
	img, err := mapSegments(v, loads)
	require.NoError(t, err)
	defer releaseImage(img)

	assert.Equal(t, img.Base(), img.Addr(0x400000))
	assert.Equal(t, img.Base()+0x10, img.Addr(0x400010))
}
