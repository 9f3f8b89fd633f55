package elfimage

import (
	"debug/elf"
	"errors"
	"fmt"
)

// ErrClassMismatch is returned when the file's ELF class, data encoding, or
// machine type doesn't match the host this binary was built for;
// cross-word-size loading is not supported.
var ErrClassMismatch = errors.New("elfimage: ELF class/machine mismatch")

// LoadedLibrary is the central aggregate produced by a successful load. It
// owns both the read-only file mapping and the RW→final image allocation,
// which must be released together.
type LoadedLibrary struct {
	file  *FileView
	image *ImageAlloc

	dynsym []Sym
	dynstr []byte
	hash   gnuHashTable

	needed []string
	stats  RelocationStats
}

const (
	elfMagic0, elfMagic1, elfMagic2, elfMagic3 = 0x7f, 'E', 'L', 'F'

	dtNeeded   = 1
	dtStrtab   = 5
	dtSymtab   = 6
	dtStrsz    = 10
	dtGnuHash  = 0x6ffffef5
	dtJmprel   = 23
	dtPltrelsz = 2
	dtPltrel   = 20 // DT_PLTREL
	dtRel      = 17
	dtRelsz    = 18
	dtRela     = 7
	dtRelasz   = 8
)

// fileHeader is the class-normalized ELF file header the loader needs;
// readFileHeader reads the class-specific layout and widens it into this
// shape.
type fileHeader struct {
	Ident   [16]byte
	Type    uint16
	Machine uint16
	Phoff   uint64
	Phnum   uint16
}

// dynEntry is a class-normalized .dynamic entry.
type dynEntry struct {
	Tag int64
	Val uint64
}

// Load performs parse, then map, then relocate, in that order, rolling back
// all partially acquired resources on failure.
func Load(v *FileView, host HostResolver) (*LoadedLibrary, error) {
	hdr, err := readFileHeader(v)
	if err != nil {
		return nil, fmt.Errorf("elfimage: read ELF header: %w", err)
	}
	if hdr.Ident[0] != elfMagic0 || hdr.Ident[1] != elfMagic1 || hdr.Ident[2] != elfMagic2 || hdr.Ident[3] != elfMagic3 {
		return nil, fmt.Errorf("%w: not an ELF file", ErrClassMismatch)
	}
	class := hdr.Ident[elf.EI_CLASS]
	wantClass := byte(elf.ELFCLASS64)
	if hostELFClass == 32 {
		wantClass = byte(elf.ELFCLASS32)
	}
	if class != wantClass {
		return nil, fmt.Errorf("%w: ELF class %d, host wants %d", ErrClassMismatch, class, wantClass)
	}
	if data := hdr.Ident[elf.EI_DATA]; data != byte(elf.ELFDATA2LSB) {
		return nil, fmt.Errorf("%w: ELF data encoding %d, host wants little-endian", ErrClassMismatch, data)
	}
	if elf.Type(hdr.Type) != elf.ET_DYN {
		return nil, fmt.Errorf("%w: ELF type %s, only ET_DYN shared objects are supported", ErrClassMismatch, elf.Type(hdr.Type))
	}
	if !matchesHostMachine(elf.Machine(hdr.Machine)) {
		return nil, fmt.Errorf("%w: machine %s does not match host", ErrClassMismatch, elf.Machine(hdr.Machine))
	}

	loads, dynOff, dynSize, err := parseProgramHeaders(v, hdr)
	if err != nil {
		return nil, err
	}

	img, err := mapSegments(v, loads)
	if err != nil {
		return nil, err
	}

	lib := &LoadedLibrary{file: v, image: img}

	if dynSize > 0 {
		if err := lib.parseDynamic(v, dynOff, dynSize); err != nil {
			_ = releaseImage(img)
			return nil, err
		}
	}

	rels, err := lib.collectRelocations(v)
	if err != nil {
		_ = releaseImage(img)
		return nil, err
	}

	stats, err := applyRelocations(img, rels, hostRelocKinds(), lib.dynsym, lib.dynstr, host)
	if err != nil {
		_ = releaseImage(img)
		return nil, err
	}
	lib.stats = stats

	if err := finalizeProtections(img, loads); err != nil {
		_ = releaseImage(img)
		return nil, err
	}

	return lib, nil
}

func matchesHostMachine(m elf.Machine) bool {
	switch hostELFClass {
	case 64:
		return m == elf.EM_X86_64 || m == elf.EM_AARCH64
	default:
		return m == elf.EM_386 || m == elf.EM_ARM
	}
}

func readFileHeader(v *FileView) (fileHeader, error) {
	if hostELFClass == 32 {
		h, err := Identify[elf32Header](v, 0)
		if err != nil {
			return fileHeader{}, err
		}
		return fileHeader{Ident: h.Ident, Type: h.Type, Machine: h.Machine, Phoff: uint64(h.Phoff), Phnum: h.Phnum}, nil
	}
	h, err := Identify[elf64Header](v, 0)
	if err != nil {
		return fileHeader{}, err
	}
	return fileHeader{Ident: h.Ident, Type: h.Type, Machine: h.Machine, Phoff: h.Phoff, Phnum: h.Phnum}, nil
}

func parseProgramHeaders(v *FileView, hdr fileHeader) ([]progHeader, uint64, uint64, error) {
	if hdr.Phnum == 0 {
		return nil, 0, 0, ErrNoLoadSegments
	}

	var loads []progHeader
	var dynOff, dynSize uint64

	if hostELFClass == 32 {
		raw, err := IdentifyArray[elf32ProgHeader](v, hdr.Phoff, uint64(hdr.Phnum))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("elfimage: read program headers: %w", err)
		}
		for _, p := range raw {
			switch p.Type {
			case ptLoad:
				loads = append(loads, progHeader{
					Type: p.Type, Flags: p.Flags, Off: uint64(p.Off),
					Vaddr: uint64(p.Vaddr), Filesz: uint64(p.Filesz), Memsz: uint64(p.Memsz),
					Align: uint64(p.Align),
				})
			case uint32(elf.PT_DYNAMIC):
				dynOff, dynSize = uint64(p.Off), uint64(p.Filesz)
			}
		}
		return loads, dynOff, dynSize, nil
	}

	raw, err := IdentifyArray[elf64ProgHeader](v, hdr.Phoff, uint64(hdr.Phnum))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("elfimage: read program headers: %w", err)
	}
	for _, p := range raw {
		switch p.Type {
		case ptLoad:
			loads = append(loads, progHeader{
				Type: p.Type, Flags: p.Flags, Off: p.Off,
				Vaddr: p.Vaddr, Filesz: p.Filesz, Memsz: p.Memsz,
				Align: p.Align,
			})
		case uint32(elf.PT_DYNAMIC):
			dynOff, dynSize = p.Off, p.Filesz
		}
	}
	return loads, dynOff, dynSize, nil
}

func (lib *LoadedLibrary) parseDynamic(v *FileView, off, size uint64) error {
	entries, err := readDynEntries(v, off, size)
	if err != nil {
		return fmt.Errorf("elfimage: read .dynamic: %w", err)
	}

	var strtabVaddr, symtabVaddr, gnuHashVaddr uint64
	var strsz uint64
	var needed []uint32

	for _, d := range entries {
		switch d.Tag {
		case dtStrtab:
			strtabVaddr = d.Val
		case dtSymtab:
			symtabVaddr = d.Val
		case dtStrsz:
			strsz = d.Val
		case dtGnuHash:
			gnuHashVaddr = d.Val
		case dtNeeded:
			needed = append(needed, uint32(d.Val))
		}
	}

	if strtabVaddr != 0 && strsz != 0 {
		dynstr, err := lib.image.sliceAtVaddr(strtabVaddr, strsz)
		if err != nil {
			return fmt.Errorf("elfimage: read .dynstr: %w", err)
		}
		lib.dynstr = dynstr
	}

	for _, off := range needed {
		lib.needed = append(lib.needed, cString(lib.dynstr, off))
	}

	if gnuHashVaddr != 0 {
		hashOffInFile, ok := lib.fileOffsetForVaddr(gnuHashVaddr)
		if !ok {
			return fmt.Errorf("elfimage: DT_GNU_HASH vaddr 0x%x not in any LOAD segment", gnuHashVaddr)
		}
		table, err := parseGnuHash(v, hashOffInFile, hostELFClass)
		if err != nil {
			return fmt.Errorf("elfimage: parse GNU hash table: %w", err)
		}
		lib.hash = table
	}

	if symtabVaddr != 0 {
		symOffInFile, ok := lib.fileOffsetForVaddr(symtabVaddr)
		if !ok {
			return fmt.Errorf("elfimage: DT_SYMTAB vaddr 0x%x not in any LOAD segment", symtabVaddr)
		}
		// The symbol count isn't given directly by any DT_* tag required for
		// GNU-hash-only libraries; derive it from the hash table's bucket
		// high-water mark. This mirrors how a real runtime linker infers
		// dynsym length indirectly from .gnu.hash on Bionic libraries.
		count := lib.estimateSymCount(v)
		lib.dynsym, err = readSyms(v, symOffInFile, count)
		if err != nil {
			return fmt.Errorf("elfimage: read .dynsym: %w", err)
		}
		if err := lib.hash.setChain(v, uint32(len(lib.dynsym))); err != nil {
			return fmt.Errorf("elfimage: read GNU hash chain: %w", err)
		}
	}

	return nil
}

func readSyms(v *FileView, off uint64, count uint32) ([]Sym, error) {
	if hostELFClass == 32 {
		raw, err := IdentifyArray[elf32Sym](v, off, uint64(count))
		if err != nil {
			return nil, err
		}
		return parseSyms32(raw), nil
	}
	raw, err := IdentifyArray[elf64Sym](v, off, uint64(count))
	if err != nil {
		return nil, err
	}
	return parseSyms64(raw), nil
}

func readDynEntries(v *FileView, off, size uint64) ([]dynEntry, error) {
	if hostELFClass == 32 {
		raw, err := IdentifyArray[elf32Dyn](v, off, size/8)
		if err != nil {
			return nil, err
		}
		out := make([]dynEntry, len(raw))
		for i, d := range raw {
			out[i] = dynEntry{Tag: int64(d.Tag), Val: uint64(d.Val)}
		}
		return out, nil
	}
	raw, err := IdentifyArray[elf64Dyn](v, off, size/16)
	if err != nil {
		return nil, err
	}
	out := make([]dynEntry, len(raw))
	for i, d := range raw {
		out[i] = dynEntry{Tag: d.Tag, Val: d.Val}
	}
	return out, nil
}

// estimateSymCount walks every bucket of the GNU hash table to find the
// highest chain-start symbol index it references, which is a lower bound on
// the true dynsym length; it then adds a fixed 64 entries of headroom for
// the rest of the chain that starts there. The result can exceed the real
// table, in which case the extra entries are whatever bytes follow .dynsym.
func (lib *LoadedLibrary) estimateSymCount(v *FileView) uint32 {
	max := lib.hash.symoffset
	for _, b := range lib.hash.buckets {
		if b > max {
			max = b
		}
	}
	return max + 64
}

func (lib *LoadedLibrary) fileOffsetForVaddr(vaddr uint64) (uint64, bool) {
	// The image is laid out by p_vaddr and the FileView by file offset, so
	// translate through the PT_LOAD segment whose file bytes contain vaddr.
	hdr, err := readFileHeader(lib.file)
	if err != nil {
		return 0, false
	}
	loads, _, _, err := parseProgramHeaders(lib.file, hdr)
	if err != nil {
		return 0, false
	}
	for _, p := range loads {
		if vaddr >= p.Vaddr && vaddr-p.Vaddr < p.Filesz {
			return p.Off + (vaddr - p.Vaddr), true
		}
	}
	return 0, false
}

// sliceAtVaddr reads length bytes at a runtime vaddr directly out of the
// relocated image (used for .dynstr, which the relocator never touches).
func (img *ImageAlloc) sliceAtVaddr(vaddr, length uint64) ([]byte, error) {
	off := img.VaddrToOffset(vaddr)
	end := off + length
	if end > uint64(len(img.bytes)) {
		return nil, fmt.Errorf("elfimage: range [0x%x,0x%x) out of image bounds", off, end)
	}
	return img.bytes[off:end], nil
}

func cString(strs []byte, off uint32) string {
	if uint64(off) >= uint64(len(strs)) {
		return ""
	}
	end := int(off)
	for end < len(strs) && strs[end] != 0 {
		end++
	}
	return string(strs[off:end])
}

func (lib *LoadedLibrary) collectRelocations(v *FileView) ([]RelEntry, error) {
	entries, err := lib.dynEntriesForRelocs(v)
	if err != nil {
		return nil, err
	}

	var rels []RelEntry
	tags := map[int64]uint64{}
	for _, d := range entries {
		tags[d.Tag] = d.Val
	}

	addFromVaddr := func(vaddr, size uint64, rela bool) error {
		if vaddr == 0 || size == 0 {
			return nil
		}
		off, ok := lib.fileOffsetForVaddr(vaddr)
		if !ok {
			return fmt.Errorf("elfimage: relocation table vaddr 0x%x not mapped", vaddr)
		}
		entries, err := readRelEntries(v, off, size, rela)
		if err != nil {
			return err
		}
		rels = append(rels, entries...)
		return nil
	}

	if err := addFromVaddr(tags[dtRel], tags[dtRelsz], false); err != nil {
		return nil, err
	}
	if err := addFromVaddr(tags[dtRela], tags[dtRelasz], true); err != nil {
		return nil, err
	}
	if jmprel, ok := tags[dtJmprel]; ok {
		pltRela := tags[dtPltrel] == dtRela
		if err := addFromVaddr(jmprel, tags[dtPltrelsz], pltRela); err != nil {
			return nil, err
		}
	}

	return rels, nil
}

func readRelEntries(v *FileView, off, size uint64, rela bool) ([]RelEntry, error) {
	if hostELFClass == 32 {
		if rela {
			raw, err := IdentifyArray[elf32Rela](v, off, size/12)
			if err != nil {
				return nil, err
			}
			return relEntriesFromRela32(raw), nil
		}
		raw, err := IdentifyArray[elf32Rel](v, off, size/8)
		if err != nil {
			return nil, err
		}
		return relEntriesFromRel32(raw), nil
	}
	if rela {
		raw, err := IdentifyArray[elf64Rela](v, off, size/24)
		if err != nil {
			return nil, err
		}
		return relEntriesFromRela64(raw), nil
	}
	raw, err := IdentifyArray[elf64Rel](v, off, size/16)
	if err != nil {
		return nil, err
	}
	return relEntriesFromRel64(raw), nil
}

func (lib *LoadedLibrary) dynEntriesForRelocs(v *FileView) ([]dynEntry, error) {
	// Re-read .dynamic; parseDynamic already validated its bounds.
	hdr, err := readFileHeader(v)
	if err != nil {
		return nil, err
	}
	_, dynOff, dynSize, err := parseProgramHeaders(v, hdr)
	if err != nil {
		return nil, err
	}
	if dynSize == 0 {
		return nil, nil
	}
	return readDynEntries(v, dynOff, dynSize)
}

// LoadSymbol resolves name via the GNU hash table and returns an address
// inside the mapped image.
func (lib *LoadedLibrary) LoadSymbol(name string) (uintptr, error) {
	idx, ok := lib.hash.lookup(name, lib.dynsym, lib.dynstr)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
	}
	return lib.image.Addr(lib.dynsym[idx].Value), nil
}

// ExportedSymbols enumerates every name reachable through the GNU hash
// table.
func (lib *LoadedLibrary) ExportedSymbols() []string {
	indices := lib.hash.allExportedIndices()
	names := make([]string, 0, len(indices))
	for _, idx := range indices {
		if int(idx) >= len(lib.dynsym) {
			continue
		}
		if name := symbolName(lib.dynsym[idx], lib.dynstr); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// NeededLibraries returns the DT_NEEDED entries.
func (lib *LoadedLibrary) NeededLibraries() []string { return lib.needed }

// Stats returns the relocation pass's applied/undefined counters.
func (lib *LoadedLibrary) Stats() RelocationStats { return lib.stats }

// ImageBase returns the runtime base address of the mapped image.
func (lib *LoadedLibrary) ImageBase() uintptr { return lib.image.Base() }

// Close releases the image mapping and then the file mapping.
func (lib *LoadedLibrary) Close() error {
	imgErr := releaseImage(lib.image)
	fileErr := lib.file.Close()
	if imgErr != nil {
		return imgErr
	}
	return fileErr
}
