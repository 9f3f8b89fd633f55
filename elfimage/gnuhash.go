package elfimage

import (
	"encoding/binary"
	"errors"
)

// ErrSymbolNotFound is returned by LoadedLibrary.LoadSymbol when the name is
// absent from the library's GNU hash table.
var ErrSymbolNotFound = errors.New("elfimage: symbol not found")

// gnuHashTable is a view over a DT_GNU_HASH section: the bucket and chain
// arrays are slices into the owning LoadedLibrary's FileView and must never
// outlive it; the bloom filter words are copied out of it.
//
// Lookup follows the algorithm the GNU linker uses: compute the djb2-style
// hash, consult the bloom filter for a fast negative, then walk the
// bucket's hash chain comparing both the hash (ignoring its low bit) and
// the symbol name, stopping at the chain-end sentinel (low bit of the chain
// word set).
type gnuHashTable struct {
	nbuckets   uint32
	symoffset  uint32
	bloomSize  uint32
	bloomShift uint32
	bloom      []uint64
	buckets    []uint32
	chain      []uint32
	wordBits   uint32

	chainOffset uint64
}

func parseGnuHash(v *FileView, off uint64, class int) (gnuHashTable, error) {
	hdr, err := Identify[gnuHashHeader](v, off)
	if err != nil {
		return gnuHashTable{}, err
	}
	var table gnuHashTable
	table.nbuckets = hdr.NBuckets
	table.symoffset = hdr.SymOffset
	table.bloomSize = hdr.BloomSize
	table.bloomShift = hdr.BloomShift

	cursor := off + 16 // sizeof(gnuHashHeader): 4 uint32 fields

	wordBytes := uint64(8)
	table.wordBits = 64
	if class == 32 {
		wordBytes = 4
		table.wordBits = 32
	}

	bloom := make([]uint64, hdr.BloomSize)
	for i := uint32(0); i < hdr.BloomSize; i++ {
		raw, err := v.Slice(cursor, wordBytes)
		if err != nil {
			return gnuHashTable{}, err
		}
		if wordBytes == 8 {
			bloom[i] = binary.LittleEndian.Uint64(raw)
		} else {
			bloom[i] = uint64(binary.LittleEndian.Uint32(raw))
		}
		cursor += wordBytes
	}
	table.bloom = bloom

	buckets, err := IdentifyArray[uint32](v, cursor, uint64(hdr.NBuckets))
	if err != nil {
		return gnuHashTable{}, err
	}
	table.buckets = buckets
	cursor += 4 * uint64(hdr.NBuckets)

	// The chain array's length is bounded by the dynamic symbol table size,
	// which is only known once the whole .dynsym has been parsed. The
	// library loader fills it in via setChain once that count is known.
	table.chainOffset = cursor
	return table, nil
}

// setChain reads the chain array now that the caller knows how many dynamic
// symbols exist (symCount - symoffset entries).
func (t *gnuHashTable) setChain(v *FileView, symCount uint32) error {
	if symCount < t.symoffset {
		t.chain = nil
		return nil
	}
	n := symCount - t.symoffset
	chain, err := IdentifyArray[uint32](v, t.chainOffset, uint64(n))
	if err != nil {
		return err
	}
	t.chain = chain
	return nil
}

// gnuHash computes the djb2-derived hash GNU hash tables use: h=5381; for
// each byte c, h = h*33 + c, with 32-bit wraparound.
func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

func (t *gnuHashTable) probablyPresent(h uint32) bool {
	if len(t.bloom) == 0 {
		return true
	}
	word := t.bloom[(h/t.wordBits)%t.bloomSize]
	mask := (uint64(1) << (h % t.wordBits)) | (uint64(1) << ((h >> t.bloomShift) % t.wordBits))
	return word&mask == mask
}

// lookup walks the hash chain for name, returning the dynamic symbol table
// index on success.
func (t *gnuHashTable) lookup(name string, syms []Sym, strs []byte) (uint32, bool) {
	if t.nbuckets == 0 {
		return 0, false
	}
	h := gnuHash(name)
	if !t.probablyPresent(h) {
		return 0, false
	}
	idx := t.buckets[h%t.nbuckets]
	if idx < t.symoffset {
		return 0, false
	}
	for {
		chainPos := idx - t.symoffset
		if int(chainPos) >= len(t.chain) {
			return 0, false
		}
		word := t.chain[chainPos]
		if (word &^ 1) == (h &^ 1) {
			if int(idx) < len(syms) && symbolName(syms[idx], strs) == name {
				return idx, true
			}
		}
		if word&1 != 0 {
			return 0, false
		}
		idx++
	}
}

// allExportedIndices enumerates every symbol index reachable through every
// bucket's chain, used by LoadedLibrary.ExportedSymbols.
func (t *gnuHashTable) allExportedIndices() []uint32 {
	var out []uint32
	for b := uint32(0); b < t.nbuckets; b++ {
		idx := t.buckets[b]
		if idx < t.symoffset {
			continue
		}
		for {
			chainPos := idx - t.symoffset
			if int(chainPos) >= len(t.chain) {
				break
			}
			out = append(out, idx)
			if t.chain[chainPos]&1 != 0 {
				break
			}
			idx++
		}
	}
	return out
}

func symbolName(s Sym, strs []byte) string {
	if uint64(s.NameOff) > uint64(len(strs)) {
		return ""
	}
	end := int(s.NameOff)
	for end < len(strs) && strs[end] != 0 {
		end++
	}
	return string(strs[s.NameOff:end])
}
