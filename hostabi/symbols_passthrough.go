//go:build linux && cgo

package hostabi

/*
#cgo LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

static uintptr_t andromem_dlsym_default(const char *name) {
	return (uintptr_t)dlsym(RTLD_DEFAULT, name);
}
*/
import "C"
import "unsafe"

// passthroughNames are the Bionic entries that are argument-compatible with
// their host libc namesakes: file I/O, memory, string, and time calls;
// their addresses are resolved directly against the process's own
// already-linked libc rather than shimmed. cgo makes a symbol walk of
// /proc/self/maps unnecessary here: libc is already mapped into this
// process, so dlsym(RTLD_DEFAULT, ...) finds the same address directly.
var passthroughNames = []string{
	"open", "close", "read", "write",
	"lstat", "fstat", "mkdir", "chmod", "umask", "ftruncate",
	"malloc", "free",
	"strncpy",
	"gettimeofday",
}

func passthroughSymbols() map[string]uintptr {
	out := make(map[string]uintptr, len(passthroughNames))
	for _, name := range passthroughNames {
		cname := C.CString(name)
		addr := uintptr(C.andromem_dlsym_default(cname))
		C.free(unsafe.Pointer(cname))
		if addr != 0 {
			out[name] = addr
		}
	}
	return out
}
