package elfimage

import "debug/elf"

// Sym is a class-normalized dynamic symbol table entry: the interesting
// fields of Elf32_Sym/Elf64_Sym widened to a common shape so the relocator
// and GNU hash resolver never need to branch on ELF class again after
// parsing.
type Sym struct {
	NameOff uint32
	Value   uint64
	Size    uint64
	Info    uint8
	Other   uint8
	Shndx   uint16
}

func (s Sym) Bind() elf.SymBind { return elf.SymBind(s.Info >> 4) }
func (s Sym) Type() elf.SymType { return elf.SymType(s.Info & 0xf) }

// RelEntry is a class-and-kind-normalized relocation entry. HasAddend
// distinguishes an SHT_RELA entry (explicit Addend) from an SHT_REL entry
// (implicit addend, read from the image word at load time).
type RelEntry struct {
	Offset    uint64
	SymIndex  uint32
	Type      uint32
	Addend    int64
	HasAddend bool
}

func parseSyms64(raw []elf64Sym) []Sym {
	out := make([]Sym, len(raw))
	for i, s := range raw {
		out[i] = Sym{NameOff: s.Name, Value: s.Value, Size: s.Size, Info: s.Info, Other: s.Other, Shndx: s.Shndx}
	}
	return out
}

func parseSyms32(raw []elf32Sym) []Sym {
	out := make([]Sym, len(raw))
	for i, s := range raw {
		out[i] = Sym{NameOff: s.Name, Value: uint64(s.Value), Size: uint64(s.Size), Info: s.Info, Other: s.Other, Shndx: s.Shndx}
	}
	return out
}

func relEntriesFromRel64(raw []elf64Rel) []RelEntry {
	out := make([]RelEntry, len(raw))
	for i, r := range raw {
		out[i] = RelEntry{Offset: r.Off, SymIndex: relocSymIndex(r.Info), Type: relocType(r.Info)}
	}
	return out
}

func relEntriesFromRela64(raw []elf64Rela) []RelEntry {
	out := make([]RelEntry, len(raw))
	for i, r := range raw {
		out[i] = RelEntry{
			Offset: r.Off, SymIndex: relocSymIndex(r.Info), Type: relocType(r.Info),
			Addend: r.Addend, HasAddend: true,
		}
	}
	return out
}

func relEntriesFromRel32(raw []elf32Rel) []RelEntry {
	out := make([]RelEntry, len(raw))
	for i, r := range raw {
		out[i] = RelEntry{Offset: uint64(r.Off), SymIndex: relocSymIndex32(r.Info), Type: relocType32(r.Info)}
	}
	return out
}

func relEntriesFromRela32(raw []elf32Rela) []RelEntry {
	out := make([]RelEntry, len(raw))
	for i, r := range raw {
		out[i] = RelEntry{
			Offset: uint64(r.Off), SymIndex: relocSymIndex32(r.Info), Type: relocType32(r.Info),
			Addend: int64(r.Addend), HasAddend: true,
		}
	}
	return out
}
