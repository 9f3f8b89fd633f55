package elfimage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKinds() relocKinds {
	return relocKinds{
		arch: "test", relative: 8, globDat: 6, jumpSlot: 7, nativeABS: 1, wordSize: 8,
	}
}

func TestRelocKindsClassify(t *testing.T) {
	k := testKinds()
	cases := []struct {
		typ  uint32
		want genericKind
	}{
		{0, kindNone},
		{8, kindRelative},
		{6, kindGlobDat},
		{7, kindJumpSlot},
		{1, kindNativeABS},
		{99, kindUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, k.classify(c.typ), "type %d", c.typ)
	}
}

type fakeHost struct {
	known     map[string]uintptr
	undefined uintptr
}

func (h fakeHost) Lookup(name string) uintptr { return h.known[name] }
func (h fakeHost) UndefinedSymbol() uintptr   { return h.undefined }

func newFakeImage(t *testing.T, size int) *ImageAlloc {
	t.Helper()
	return &ImageAlloc{base: 0x1000, bytes: make([]byte, size), minVreal: 0}
}

func TestApplyRelocationsRelative(t *testing.T) {
	img := newFakeImage(t, 16)
	rels := []RelEntry{
		{Offset: 0, Type: 8, Addend: 0x20, HasAddend: true},
	}
	stats, err := applyRelocations(img, rels, testKinds(), nil, nil, fakeHost{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, uint64(0x1020), readWord(img.Bytes(), 0, 8))
}

func TestApplyRelocationsGlobDatResolvesHostSymbol(t *testing.T) {
	img := newFakeImage(t, 16)
	dynstr := []byte{0}
	nameOff := uint32(len(dynstr))
	dynstr = append(dynstr, []byte("malloc\x00")...)
	dynsym := []Sym{{}, {NameOff: nameOff}}

	rels := []RelEntry{
		{Offset: 0, Type: 6, SymIndex: 1, HasAddend: true},
	}
	host := fakeHost{known: map[string]uintptr{"malloc": 0xdead}}
	stats, err := applyRelocations(img, rels, testKinds(), dynsym, dynstr, host)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, uint64(0xdead), readWord(img.Bytes(), 0, 8))
}

func TestApplyRelocationsUndefinedSymbolFallsBackToSentinel(t *testing.T) {
	img := newFakeImage(t, 16)
	dynstr := []byte{0}
	nameOff := uint32(len(dynstr))
	dynstr = append(dynstr, []byte("mystery\x00")...)
	dynsym := []Sym{{}, {NameOff: nameOff}}

	rels := []RelEntry{
		{Offset: 0, Type: 7, SymIndex: 1, HasAddend: true},
	}
	host := fakeHost{undefined: 0xbadbad}
	stats, err := applyRelocations(img, rels, testKinds(), dynsym, dynstr, host)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Undefined)
	assert.Equal(t, uint64(0xbadbad), readWord(img.Bytes(), 0, 8))
}

func TestApplyRelocationsUnknownTypeFails(t *testing.T) {
	img := newFakeImage(t, 16)
	rels := []RelEntry{{Offset: 0, Type: 255}}
	_, err := applyRelocations(img, rels, testKinds(), nil, nil, fakeHost{})
	require.ErrorIs(t, err, ErrUnknownRelocation)
}

func TestApplyRelocationsOutOfBoundsTargetFails(t *testing.T) {
	img := newFakeImage(t, 4)
	rels := []RelEntry{{Offset: 8, Type: 8, HasAddend: true}}
	_, err := applyRelocations(img, rels, testKinds(), nil, nil, fakeHost{})
	require.Error(t, err)
}
