//go:build linux && cgo && (386 || amd64 || arm64 || arm)

package andromem

/*
#include <stdint.h>

typedef uintptr_t (*andromem_fn0)(void);

static uintptr_t andromem_call0(uintptr_t fn) {
	return ((andromem_fn0)fn)();
}
*/
import "C"

func cCall0(fn uintptr) uintptr {
	return uintptr(C.andromem_call0(C.uintptr_t(fn)))
}
