package andromem_test

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// buildCFixture compiles testdata/c/<name>.c into a minimal PIC shared
// object under a temp directory, the same "build on the fly" shape
// sharedlib_build_go_test.go uses for its Go fixtures, adapted to a plain C
// compiler so the resulting relocations stay within the generic
// RELATIVE/GLOB_DAT/JUMP_SLOT/native-ABS set this loader understands (a
// cgo-linked Go c-shared build drags in TLS and IFUNC relocations the
// loader has no Non-goals-permitted way to resolve).
func buildCFixture(t *testing.T, name string) string {
	t.Helper()

	cc := findCompiler(t)
	src := filepath.Join("testdata", "c", name+".c")
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("fixture source %s: %v", src, err)
	}

	out := filepath.Join(t.TempDir(), name+".so")
	cmd := exec.Command(cc, "-shared", "-fPIC", "-nostartfiles", "-O0", "-o", out, src)
	if combined, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("compile fixture %s with %s: %v\n%s", name, cc, err, combined)
	}
	return out
}

// corruptFirstRelocationType reads soPath, finds the first SHT_RELA/SHT_REL
// entry, and overwrites its relocation type with badType — a value outside
// every generic kind this loader recognizes — returning the patched file
// bytes. Used to exercise the unknown-relocation-type failure path without
// hand-authoring a malformed ELF from scratch.
func corruptFirstRelocationType(t *testing.T, soPath string, badType uint32) []byte {
	t.Helper()

	data, err := os.ReadFile(soPath)
	if err != nil {
		t.Fatalf("read fixture %s: %v", soPath, err)
	}

	ef, err := elf.Open(soPath)
	if err != nil {
		t.Fatalf("elf.Open %s: %v", soPath, err)
	}
	defer ef.Close()

	for _, sec := range ef.Sections {
		if sec.Type != elf.SHT_RELA && sec.Type != elf.SHT_REL {
			continue
		}
		if sec.Size < 16 {
			continue
		}
		if ef.Class == elf.ELFCLASS64 {
			infoOff := sec.Offset + 8
			info := binary.LittleEndian.Uint64(data[infoOff : infoOff+8])
			symIdx := info >> 32
			newInfo := (symIdx << 32) | uint64(badType)
			binary.LittleEndian.PutUint64(data[infoOff:infoOff+8], newInfo)
		} else {
			infoOff := sec.Offset + 4
			info := binary.LittleEndian.Uint32(data[infoOff : infoOff+4])
			symIdx := info >> 8
			newInfo := (symIdx << 8) | (badType & 0xff)
			binary.LittleEndian.PutUint32(data[infoOff:infoOff+4], newInfo)
		}
		return data
	}

	t.Fatalf("fixture %s has no RELA/REL section to corrupt", soPath)
	return nil
}

func findCompiler(t *testing.T) string {
	t.Helper()
	for _, cc := range []string{"cc", "gcc", "clang"} {
		if path, err := exec.LookPath(cc); err == nil {
			return path
		}
	}
	t.Skip("no C compiler available to build fixtures")
	return ""
}
