package elfimage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnknownRelocation is wrapped with the offending numeric relocation type.
var ErrUnknownRelocation = errors.New("elfimage: unknown relocation type")

// relocKinds is the architecture-specific numeric-constant table mapping
// {arch, RELATIVE, GLOB_DAT, JUMP_SLOT, NativeABS}. Populated per
// build-tagged reloc_<arch>.go file, selected at compile time to match the
// host architecture.
type relocKinds struct {
	arch      string
	relative  uint32
	globDat   uint32
	jumpSlot  uint32
	nativeABS uint32
	wordSize  int // 4 or 8, the size in bytes of a relocated pointer slot
}

// genericKind classifies a raw relocation type number into one of the
// generic relocation kinds, or reports it as unrecognized.
type genericKind int

const (
	kindNone genericKind = iota
	kindRelative
	kindGlobDat
	kindJumpSlot
	kindNativeABS
	kindUnknown
)

func (k relocKinds) classify(typ uint32) genericKind {
	switch {
	case typ == 0:
		return kindNone
	case typ == k.relative:
		return kindRelative
	case typ == k.globDat:
		return kindGlobDat
	case typ == k.jumpSlot:
		return kindJumpSlot
	case typ == k.nativeABS:
		return kindNativeABS
	default:
		return kindUnknown
	}
}

// HostResolver is the subset of hostabi.Table the relocator needs: resolve
// a Bionic symbol name to a host-provided function pointer, or the shared
// undefined-symbol sentinel if unknown.
type HostResolver interface {
	Lookup(name string) uintptr
	UndefinedSymbol() uintptr
}

// RelocationStats summarizes a load's relocation pass for diagnostics.
type RelocationStats struct {
	Applied   int
	Undefined int
}

// applyRelocations patches img in place for every entry in rels, resolving
// symbol references against dynsym/dynstr and the host resolver. Entries
// are applied in file order; the final state does not depend on order
// because each entry writes a distinct word.
func applyRelocations(
	img *ImageAlloc, rels []RelEntry, kinds relocKinds,
	dynsym []Sym, dynstr []byte, host HostResolver,
) (RelocationStats, error) {
	var stats RelocationStats
	base := uint64(img.Base())

	for _, r := range rels {
		kind := kinds.classify(r.Type)
		if kind == kindNone {
			continue
		}
		if kind == kindUnknown {
			return stats, fmt.Errorf("%w: %d", ErrUnknownRelocation, r.Type)
		}

		target := img.VaddrToOffset(r.Offset)
		if target+uint64(kinds.wordSize) > uint64(len(img.Bytes())) {
			return stats, fmt.Errorf("elfimage: relocation target 0x%x out of bounds", r.Offset)
		}

		var value uint64
		switch kind {
		case kindRelative:
			addend := relocAddend(r, img, target, kinds.wordSize, true)
			value = base + addend

		case kindGlobDat, kindJumpSlot, kindNativeABS:
			var addend uint64
			if r.HasAddend {
				addend = uint64(r.Addend)
			} else if kind != kindNativeABS {
				addend = relocAddend(r, img, target, kinds.wordSize, false)
			}
			// For REL-style native-ABS entries the addend is forced to zero
			// rather than read from the in-place word, to avoid misreading
			// an as-yet-unrelocated host pointer.

			name := symbolName(resolveSymForReloc(r, dynsym), dynstr)
			s := host.Lookup(name)
			if s == 0 {
				s = host.UndefinedSymbol()
				stats.Undefined++
			}
			value = uint64(s) + addend

		default:
			return stats, fmt.Errorf("%w: %d", ErrUnknownRelocation, r.Type)
		}

		writeWord(img.Bytes(), target, value, kinds.wordSize)
		stats.Applied++
	}
	return stats, nil
}

func resolveSymForReloc(r RelEntry, dynsym []Sym) Sym {
	if r.SymIndex == 0 || int(r.SymIndex) >= len(dynsym) {
		return Sym{}
	}
	return dynsym[r.SymIndex]
}

// relocAddend returns the addend to use for this entry: the explicit RELA
// addend if present, otherwise (for REL entries where the caller asks for
// it) the implicit addend read from the image word at the target.
func relocAddend(r RelEntry, img *ImageAlloc, target uint64, wordSize int, allowImplicit bool) uint64 {
	if r.HasAddend {
		return uint64(r.Addend)
	}
	if !allowImplicit {
		return 0
	}
	return readWord(img.Bytes(), target, wordSize)
}

func readWord(b []byte, off uint64, wordSize int) uint64 {
	if wordSize == 8 {
		return binary.LittleEndian.Uint64(b[off : off+8])
	}
	return uint64(binary.LittleEndian.Uint32(b[off : off+4]))
}

func writeWord(b []byte, off uint64, v uint64, wordSize int) {
	if wordSize == 8 {
		binary.LittleEndian.PutUint64(b[off:off+8], v)
	} else {
		binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
	}
}
