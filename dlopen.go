package andromem

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// dlopenHook lets a loaded library's own dlopen/dlsym/dlclose calls
// re-enter this package. Open returns an opaque handle; Sym and Close take
// that handle back. The default implementation constructs independent
// Library instances, never sharing global scope across loads.
type dlopenHook interface {
	Open(path string) (uintptr, error)
	Sym(handle uintptr, name string) (uintptr, error)
	Close(handle uintptr) error
}

var (
	handlesMu sync.RWMutex
	handles   = map[uintptr]*Library{}
	nextID    uint64
)

func registerHandle(l *Library) uintptr {
	id := atomic.AddUint64(&nextID, 1)
	handlesMu.Lock()
	handles[uintptr(id)] = l
	handlesMu.Unlock()
	return uintptr(id)
}

func unregisterHandle(l *Library) {
	handlesMu.Lock()
	delete(handles, l.handleID)
	handlesMu.Unlock()
}

func handleFor(id uintptr) (*Library, bool) {
	handlesMu.RLock()
	l, ok := handles[id]
	handlesMu.RUnlock()
	return l, ok
}

// defaultDlopenHook re-enters andromem's own façade: each dlopen opens a
// brand new Library rather than chaining into a shared global scope across
// multiple loaded libraries.
type defaultDlopenHook struct{}

func (defaultDlopenHook) Open(path string) (uintptr, error) {
	l, err := OpenLibrary(path)
	if err != nil {
		return 0, err
	}
	return l.handleID, nil
}

func (defaultDlopenHook) Sym(handle uintptr, name string) (uintptr, error) {
	l, ok := handleFor(handle)
	if !ok {
		return 0, fmt.Errorf("andromem: unknown dlopen handle %#x", handle)
	}
	return l.LookupSymbol(name)
}

func (defaultDlopenHook) Close(handle uintptr) error {
	l, ok := handleFor(handle)
	if !ok {
		return fmt.Errorf("andromem: unknown dlopen handle %#x", handle)
	}
	return l.Close()
}

// bridgeAdapter adapts a dlopenHook into hostabi.DlopenHook so hostabi never
// needs to import this package.
type bridgeAdapter struct{ hook dlopenHook }

func (b bridgeAdapter) Open(path string) (uintptr, error) { return b.hook.Open(path) }
func (b bridgeAdapter) Sym(handle uintptr, name string) (uintptr, error) {
	return b.hook.Sym(handle, name)
}
func (b bridgeAdapter) Close(handle uintptr) error { return b.hook.Close(handle) }
