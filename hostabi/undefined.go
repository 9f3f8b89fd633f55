//go:build linux && cgo

package hostabi

/*
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>

static void andromem_undefined_symbol(void) {
	fprintf(stderr, "andromem: call into undefined host symbol\n");
	abort();
}

static uintptr_t andromem_undefined_symbol_addr(void) {
	return (uintptr_t)andromem_undefined_symbol;
}
*/
import "C"

// undefinedSymbolAddr is the sentinel every unresolved GLOB_DAT/JUMP_SLOT/
// native-ABS relocation is bound to. Invoking it aborts the process; there
// is no recovery path, matching an unresolved-symbol failure in a real
// runtime linker.
var undefinedSymbolAddr = uintptr(C.andromem_undefined_symbol_addr())
