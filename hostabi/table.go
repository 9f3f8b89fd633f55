//go:build linux && cgo

// Package hostabi supplies the curated set of host-ABI implementations that
// substitute for the Android/Bionic runtime symbols a loaded library's
// relocations reference.
package hostabi

import "strings"

const (
	minWordLength = 4
	maxWordLength = 22
	maxHashValue  = 45
)

// assoc is the associated-values table the perfect hash below indexes by
// input byte. Authored directly from the fixed 29-symbol keyword set this
// package dispatches (open/close/.../dlclose) with the gperf-style
// algorithm: pick per-byte values such that len(word) + assoc[word[0]] +
// assoc[word[1]] + assoc[word[15]] (the last term only for words of length
// >= 16) lands every keyword on a distinct slot in [0, maxHashValue].
var assoc = [256]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 25, 0, 18, 13, 0, 1, 32, 19, 17, 0, 1, 11, 2, 3, 15,
	1, 0, 0, 5, 2, 3, 0, 4, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// keywords maps each of the 46 hash slots to the symbol name occupying it,
// or "" if the slot is unused. Built once at hash(name) == the slot's index
// for every name in the fixed set; any other input either misses an empty
// slot or collides into an occupied one that fails the full-string
// comparison in lookupIndex.
var keywords = [maxHashValue + 1]string{
	4:  "read",
	5:  "free",
	7:  "__errno",
	8:  "mkdir",
	9:  "write",
	10: "umask",
	11: "fstat",
	12: "ftruncate",
	14: "strncpy",
	15: "pthread_once",
	17: "pthread_create",
	20: "open",
	21: "lstat",
	23: "__system_property_get",
	24: "pthread_rwlock_rdlock",
	26: "pthread_mutex_unlock",
	27: "pthread_rwlock_unlock",
	28: "pthread_rwlock_wrlock",
	29: "dlsym",
	30: "dlopen",
	31: "dlclose",
	33: "malloc",
	34: "close",
	35: "arc4random",
	36: "pthread_mutex_lock",
	38: "pthread_rwlock_destroy",
	39: "pthread_rwlock_init",
	42: "chmod",
	44: "gettimeofday",
}

// hash computes the gperf-style perfect hash: the word length plus the
// associated values of str[0], str[1] (when len>=2), and str[15] (when
// len>=16).
func hash(name string) int {
	l := len(name)
	h := l
	h += int(assoc[name[0]])
	if l >= 2 {
		h += int(assoc[name[1]])
	}
	if l >= 16 {
		h += int(assoc[name[15]])
	}
	return h
}

// lookupIndex returns the hash slot for name if name is exactly one of the
// fixed keyword set, confirmed by full-string comparison as the perfect
// hash contract requires (the hash alone does not guarantee membership for
// arbitrary inputs).
func lookupIndex(name string) (int, bool) {
	if len(name) < minWordLength || len(name) > maxWordLength {
		return 0, false
	}
	h := hash(name)
	if h < 0 || h > maxHashValue {
		return 0, false
	}
	if keywords[h] == name {
		return h, true
	}
	return 0, false
}

// Table is the compile-time-constant host symbol table: a fixed mapping
// from Bionic symbol names to host-provided function addresses, dispatched
// through the perfect hash above.
type Table struct {
	addrs     [maxHashValue + 1]uintptr
	undefined uintptr
}

// NewTable builds the host symbol table, wiring the dlopen/dlsym/dlclose
// entries to hook so the guest library's own dynamic-loading calls re-enter
// the loader.
func NewTable(hook DlopenHook) *Table {
	setDlopenHook(hook)

	t := &Table{undefined: undefinedSymbolAddr}
	for name, addr := range passthroughSymbols() {
		if idx, ok := lookupIndex(name); ok {
			t.addrs[idx] = addr
		}
	}
	for name, addr := range customSymbols() {
		if idx, ok := lookupIndex(name); ok {
			t.addrs[idx] = addr
		}
	}
	return t
}

// Lookup returns the host address bound to name, or 0 if name isn't one of
// the fixed set. A trailing "@VERSION" symbol-versioning suffix (as Bionic
// libraries sometimes carry on imported relocations) is stripped before the
// hash lookup.
func (t *Table) Lookup(name string) uintptr {
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	idx, ok := lookupIndex(name)
	if !ok {
		return 0
	}
	return t.addrs[idx]
}

// UndefinedSymbol returns the sentinel address unresolved relocations are
// bound to.
func (t *Table) UndefinedSymbol() uintptr { return t.undefined }
