// Package andromem loads Android-ABI ELF shared libraries into the current
// host process, resolving their relocations against a curated Bionic
// substitute host symbol table, without ever touching disk for the mapped
// image itself.
package andromem

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/soloaderhq/andromem/elfimage"
	"github.com/soloaderhq/andromem/hostabi"
)

// ErrLibraryClosed is returned by any Library method called after Close.
var ErrLibraryClosed = errors.New("andromem: library is closed")

var (
	logMu  sync.RWMutex
	logger = zap.NewNop()
)

// SetLogger redirects this package's log output. The default is a no-op
// logger, so a library consumer never sees unsolicited output unless it
// opts in.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func currentLogger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// Library is the loader façade: a loaded shared library still resident in
// process memory. The zero value is not usable; construct with OpenLibrary
// or OpenLibraryBytes.
type Library struct {
	mu       sync.RWMutex
	lib      *elfimage.LoadedLibrary
	closed   bool
	handleID uintptr
}

// OpenLibrary loads the ELF shared object at path into the current process.
func OpenLibrary(path string, opts ...Option) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("andromem: read library file: %w", err)
	}
	return OpenLibraryBytes(data, opts...)
}

// OpenLibraryBytes loads an ELF shared object already held in memory.
func OpenLibraryBytes(data []byte, opts ...Option) (*Library, error) {
	if len(data) == 0 {
		return nil, errors.New("andromem: empty library image")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.logger
	if log == nil {
		log = currentLogger()
	}

	view := elfimage.NewFileViewBytes(data)
	table := hostabi.NewTable(bridgeAdapter{hook: cfg.dlopenHook})

	loaded, err := elfimage.Load(view, table)
	if err != nil {
		log.Error("andromem: load failed", zap.Error(err))
		return nil, fmt.Errorf("andromem: load library: %w", err)
	}

	stats := loaded.Stats()
	log.Debug("andromem: loaded library",
		zap.Uintptr("base", loaded.ImageBase()),
		zap.Int("relocations_applied", stats.Applied),
		zap.Int("relocations_undefined", stats.Undefined),
	)
	if stats.Undefined > 0 {
		log.Warn("andromem: some relocations fell back to the undefined symbol sentinel",
			zap.Int("count", stats.Undefined))
	}

	l := &Library{lib: loaded}
	l.handleID = registerHandle(l)
	return l, nil
}

// MustOpenLibrary is OpenLibrary's panic-on-error convenience wrapper.
func MustOpenLibrary(path string, opts ...Option) *Library {
	l, err := OpenLibrary(path, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// LookupSymbol resolves name against the library's GNU hash table and
// returns an address inside the mapped image.
func (l *Library) LookupSymbol(name string) (uintptr, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, ErrLibraryClosed
	}
	addr, err := l.lib.LoadSymbol(name)
	if err != nil {
		return 0, fmt.Errorf("andromem: lookup symbol %q: %w", name, err)
	}
	return addr, nil
}

// CallExport resolves and calls a zero-argument exported function.
func (l *Library) CallExport(name string) error {
	addr, err := l.LookupSymbol(name)
	if err != nil {
		return err
	}
	cCall0(addr)
	return nil
}

// NeededLibraries returns the library's DT_NEEDED entries.
func (l *Library) NeededLibraries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil
	}
	return l.lib.NeededLibraries()
}

// ExportedSymbols enumerates every name reachable through the library's GNU
// hash table.
func (l *Library) ExportedSymbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil
	}
	return l.lib.ExportedSymbols()
}

// Close releases the library's image mapping and then its file mapping.
// Calling Close more than once is a no-op.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	unregisterHandle(l)

	if l.lib != nil {
		err := l.lib.Close()
		l.lib = nil
		if err != nil {
			return fmt.Errorf("andromem: close library: %w", err)
		}
	}
	return nil
}
