//go:build linux && cgo

package hostabi

/*
#include <errno.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <unistd.h>

static uintptr_t andromem___errno(void) {
	return (uintptr_t)&errno;
}

static uint32_t andromem_arc4random(void) {
	uint32_t v;
	if (getentropy(&v, sizeof(v)) != 0) {
		v = 0;
	}
	return v;
}

static const char andromem_no_sn[] = "no s/n number";

static int andromem___system_property_get(const char *name, char *value) {
	(void)name;
	memcpy(value, andromem_no_sn, sizeof(andromem_no_sn));
	return (int)(sizeof(andromem_no_sn) - 1);
}

// Every Bionic threading primitive this loader exposes is an inert stub
// that returns success without doing anything. All nine pthread_* dispatch
// slots share this one function's address.
static int andromem_pthread_stub(void) {
	return 0;
}

static uintptr_t andromem___errno_addr(void) {
	return (uintptr_t)andromem___errno;
}
static uintptr_t andromem_arc4random_addr(void) {
	return (uintptr_t)andromem_arc4random;
}
static uintptr_t andromem___system_property_get_addr(void) {
	return (uintptr_t)andromem___system_property_get;
}
static uintptr_t andromem_pthread_stub_addr(void) {
	return (uintptr_t)andromem_pthread_stub;
}

extern uintptr_t andromem_dlopen_bridge(char *path);
extern uintptr_t andromem_dlsym_bridge(uintptr_t handle, char *name);
extern int andromem_dlclose_bridge(uintptr_t handle);

static uintptr_t andromem_dlopen(const char *path, int mode) {
	(void)mode;
	return andromem_dlopen_bridge((char *)path);
}

static uintptr_t andromem_dlsym(uintptr_t handle, const char *name) {
	return andromem_dlsym_bridge(handle, (char *)name);
}

static int andromem_dlclose(uintptr_t handle) {
	return andromem_dlclose_bridge(handle);
}

static uintptr_t andromem_dlopen_addr(void) {
	return (uintptr_t)andromem_dlopen;
}
static uintptr_t andromem_dlsym_addr(void) {
	return (uintptr_t)andromem_dlsym;
}
static uintptr_t andromem_dlclose_addr(void) {
	return (uintptr_t)andromem_dlclose;
}
*/
import "C"

// customSymbols are the Bionic entries with behavior the host libc doesn't
// provide directly, so a small C shim stands in for them: system property
// lookup, errno, randomness, threading stubs, and dynamic loading. Each
// symbol gets one static C function plus a second static function that
// hands out its address as a uintptr, since Go cannot take the address of a
// cgo preamble function directly.
func customSymbols() map[string]uintptr {
	stub := uintptr(C.andromem_pthread_stub_addr())
	return map[string]uintptr{
		"__errno":                uintptr(C.andromem___errno_addr()),
		"arc4random":             uintptr(C.andromem_arc4random_addr()),
		"__system_property_get":  uintptr(C.andromem___system_property_get_addr()),
		"pthread_create":         stub,
		"pthread_once":           stub,
		"pthread_mutex_lock":     stub,
		"pthread_mutex_unlock":   stub,
		"pthread_rwlock_init":    stub,
		"pthread_rwlock_destroy": stub,
		"pthread_rwlock_rdlock":  stub,
		"pthread_rwlock_wrlock":  stub,
		"pthread_rwlock_unlock":  stub,
		"dlopen":                 uintptr(C.andromem_dlopen_addr()),
		"dlsym":                  uintptr(C.andromem_dlsym_addr()),
		"dlclose":                uintptr(C.andromem_dlclose_addr()),
	}
}
