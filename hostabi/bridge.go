//go:build linux && cgo

package hostabi

/*
#include <stdint.h>
*/
import "C"

import "sync"

// DlopenHook lets the guest library's own dlopen/dlsym/dlclose calls
// re-enter the loader without hostabi importing the root package or
// elfimage. The root package supplies the concrete implementation at
// hostabi.NewTable time.
type DlopenHook interface {
	Open(path string) (uintptr, error)
	Sym(handle uintptr, name string) (uintptr, error)
	Close(handle uintptr) error
}

var (
	hookMu sync.Mutex
	hook   DlopenHook
)

// setDlopenHook installs the hook a given Table was constructed with. Only
// one hook is active at a time; a process that opens several libraries
// concurrently shares it, which is safe because each dlopen call produces
// an independent handle.
func setDlopenHook(h DlopenHook) {
	hookMu.Lock()
	hook = h
	hookMu.Unlock()
}

func currentHook() DlopenHook {
	hookMu.Lock()
	defer hookMu.Unlock()
	return hook
}

//export andromem_dlopen_bridge
func andromem_dlopen_bridge(path *C.char) C.uintptr_t {
	h := currentHook()
	if h == nil || path == nil {
		return 0
	}
	handle, err := h.Open(C.GoString(path))
	if err != nil {
		return 0
	}
	return C.uintptr_t(handle)
}

//export andromem_dlsym_bridge
func andromem_dlsym_bridge(handle C.uintptr_t, name *C.char) C.uintptr_t {
	h := currentHook()
	if h == nil || name == nil {
		return 0
	}
	addr, err := h.Sym(uintptr(handle), C.GoString(name))
	if err != nil {
		return 0
	}
	return C.uintptr_t(addr)
}

//export andromem_dlclose_bridge
func andromem_dlclose_bridge(handle C.uintptr_t) C.int {
	h := currentHook()
	if h == nil {
		return -1
	}
	if err := h.Close(uintptr(handle)); err != nil {
		return -1
	}
	return 0
}
