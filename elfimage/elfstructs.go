package elfimage

import "debug/elf"

// Raw on-disk ELF structures, laid out to match the ABI exactly so they can
// be reinterpreted directly out of a FileView with Identify/IdentifyArray.
// debug/elf's own Prog/Symbol/Section types are already "cooked" (strings
// resolved, fields widened to uint64); this loader needs the raw layout
// because relocation and hash-table walking operate on file offsets and
// symbol indices, not on debug/elf's abstractions.

type elf64Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// elf32Header is the ELF32 file header; unlike the 64-bit header, Entry/
// Phoff/Shoff are 32-bit fields, so it cannot share elf64Header's layout.
type elf32Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf64ProgHeader struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

type elf64Dyn struct {
	Tag int64
	Val uint64
}

type elf64Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

type elf64Rel struct {
	Off  uint64
	Info uint64
}

type elf64Rela struct {
	Off    uint64
	Info   uint64
	Addend int64
}

// 32-bit counterparts, used on 386 and arm builds (see reloc_386.go /
// reloc_arm.go). r_info packs the symbol index and type differently than
// the 64-bit layout, hence the separate relocSymIndex32/relocType32 helpers
// below rather than reusing relocSymIndex/relocType.

type elf32ProgHeader struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

type elf32Dyn struct {
	Tag int32
	Val uint32
}

type elf32Sym struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

type elf32Rel struct {
	Off  uint32
	Info uint32
}

type elf32Rela struct {
	Off    uint32
	Info   uint32
	Addend int32
}

func relocSymIndex32(info uint32) uint32 { return info >> 8 }
func relocType32(info uint32) uint32     { return info & 0xff }

// gnuHashHeader is the fixed-size prefix of a DT_GNU_HASH section, as laid
// out by the Android/GNU linker: nbuckets, symoffset, bloom word count, and
// bloom shift, always emitted as 32-bit fields regardless of ELF class.
type gnuHashHeader struct {
	NBuckets   uint32
	SymOffset  uint32
	BloomSize  uint32
	BloomShift uint32
}

func relocSymIndex(info uint64) uint32 { return uint32(info >> 32) }
func relocType(info uint64) uint32     { return uint32(info) }

const (
	shtREL  = uint32(elf.SHT_REL)
	shtRELA = uint32(elf.SHT_RELA)
)
