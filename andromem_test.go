//go:build linux && cgo && (386 || amd64 || arm64 || arm)

package andromem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soloaderhq/andromem"
	"github.com/soloaderhq/andromem/internal/cgotestutil"
)

func TestOpenLibraryAndCallAdd(t *testing.T) {
	soPath := buildCFixture(t, "hello")

	lib, err := andromem.OpenLibrary(soPath)
	require.NoError(t, err)
	defer lib.Close()

	addr, err := lib.LookupSymbol("add")
	require.NoError(t, err)
	require.NotZero(t, addr)

	require.EqualValues(t, 5, cgotestutil.CallIntIntInt(addr, 2, 3))
}

func TestOpenLibraryUsesMallocAndFree(t *testing.T) {
	soPath := buildCFixture(t, "uses_malloc")

	lib, err := andromem.OpenLibrary(soPath)
	require.NoError(t, err)
	defer lib.Close()

	addr, err := lib.LookupSymbol("alloc_and_free")
	require.NoError(t, err)

	require.EqualValues(t, 1, cgotestutil.CallIntInt(addr, 1024))
}

func TestOpenLibraryQueriesSystemProperty(t *testing.T) {
	soPath := buildCFixture(t, "queries_sn")

	lib, err := andromem.OpenLibrary(soPath)
	require.NoError(t, err)
	defer lib.Close()

	addr, err := lib.LookupSymbol("get_sn")
	require.NoError(t, err)

	buf := make([]byte, 64)
	n := cgotestutil.CallPtrInt(addr, buf)
	require.EqualValues(t, 13, n)
	require.Equal(t, "no s/n number", string(buf[:n]))
}

func TestOpenLibraryUsesPthreadOnceLoadsWithoutError(t *testing.T) {
	soPath := buildCFixture(t, "uses_pthread_once")

	lib, err := andromem.OpenLibrary(soPath)
	require.NoError(t, err)
	defer lib.Close()

	addr, err := lib.LookupSymbol("run_once")
	require.NoError(t, err)

	// Calling it twice only exercises the inert pthread_once stub; it must
	// not deadlock or crash.
	require.EqualValues(t, 0, cgotestutil.CallVoidInt(addr))
	require.EqualValues(t, 0, cgotestutil.CallVoidInt(addr))
}

func TestLookupSymbolNotExportedFails(t *testing.T) {
	soPath := buildCFixture(t, "hello")

	lib, err := andromem.OpenLibrary(soPath)
	require.NoError(t, err)
	defer lib.Close()

	_, err = lib.LookupSymbol("this_is_not_exported")
	require.Error(t, err)
}

func TestExportedSymbolsIncludesAdd(t *testing.T) {
	soPath := buildCFixture(t, "hello")

	lib, err := andromem.OpenLibrary(soPath)
	require.NoError(t, err)
	defer lib.Close()

	require.Contains(t, lib.ExportedSymbols(), "add")
}

func TestOpenLibraryRejectsUnknownRelocationType(t *testing.T) {
	soPath := buildCFixture(t, "uses_malloc")
	data := corruptFirstRelocationType(t, soPath, 0x4242)

	_, err := andromem.OpenLibraryBytes(data)
	require.Error(t, err)
}
