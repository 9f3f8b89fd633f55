//go:build linux && cgo

package hostabi

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNames = []string{
	"open", "close", "read", "write",
	"lstat", "fstat", "mkdir", "chmod", "umask", "ftruncate",
	"malloc", "free", "strncpy", "gettimeofday",
	"__errno", "arc4random", "__system_property_get",
	"pthread_create", "pthread_once", "pthread_mutex_lock", "pthread_mutex_unlock",
	"pthread_rwlock_init", "pthread_rwlock_destroy", "pthread_rwlock_rdlock",
	"pthread_rwlock_wrlock", "pthread_rwlock_unlock",
	"dlopen", "dlsym", "dlclose",
}

func TestLookupIndexEveryFixedNameHasASlot(t *testing.T) {
	seen := map[int]string{}
	for _, name := range fixedNames {
		idx, ok := lookupIndex(name)
		require.True(t, ok, "name %q should resolve", name)
		if other, dup := seen[idx]; dup {
			t.Fatalf("hash collision: %q and %q both map to slot %d", name, other, idx)
		}
		seen[idx] = name
		assert.Equal(t, name, keywords[idx])
	}
	assert.Len(t, seen, len(fixedNames))
}

// TestPerfectHashPositionalEquality guards against accidentally reusing a
// slot: swapping any two entries in the keyword table must break at least
// one lookup.
func TestPerfectHashPositionalEquality(t *testing.T) {
	indices := make([]int, 0, len(fixedNames))
	for _, name := range fixedNames {
		idx, ok := lookupIndex(name)
		require.True(t, ok)
		indices = append(indices, idx)
	}

	for i := 0; i < len(indices); i++ {
		for j := i + 1; j < len(indices); j++ {
			a, b := indices[i], indices[j]
			keywords[a], keywords[b] = keywords[b], keywords[a]

			broke := keywords[a] != fixedNames[i] || keywords[b] != fixedNames[j]
			keywords[a], keywords[b] = keywords[b], keywords[a]

			assert.True(t, broke, "swapping slots %d and %d should break a lookup", a, b)
		}
	}
}

func TestLookupIndexRejectsNonMembers(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_0123456789"

	members := map[string]bool{}
	for _, n := range fixedNames {
		members[n] = true
	}

	falsePositives := 0
	for i := 0; i < 10000; i++ {
		n := 1 + r.Intn(30)
		buf := make([]byte, n)
		for j := range buf {
			buf[j] = alphabet[r.Intn(len(alphabet))]
		}
		s := string(buf)
		if members[s] {
			continue
		}
		if _, ok := lookupIndex(s); ok {
			falsePositives++
		}
	}
	assert.Zero(t, falsePositives)
}

func TestTableLookupDropsSymbolVersionSuffix(t *testing.T) {
	tbl := NewTable(nopHook{})
	withoutSuffix := tbl.Lookup("malloc")
	withSuffix := tbl.Lookup("malloc@LIBC")
	require.NotZero(t, withoutSuffix)
	assert.Equal(t, withoutSuffix, withSuffix)
}

func TestTableLookupUnknownNameReturnsZero(t *testing.T) {
	tbl := NewTable(nopHook{})
	assert.Zero(t, tbl.Lookup("not_a_real_symbol"))
}

type nopHook struct{}

func (nopHook) Open(string) (uintptr, error)         { return 0, nil }
func (nopHook) Sym(uintptr, string) (uintptr, error) { return 0, nil }
func (nopHook) Close(uintptr) error                  { return nil }
