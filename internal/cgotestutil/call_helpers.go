//go:build linux && cgo

// Package cgotestutil provides cgo-based call trampolines for exercising
// function pointers loaded by the andromem package's tests. It exists as a
// separate non-test package because cgo preprocessing is not applied to
// _test.go files.
package cgotestutil

/*
#include <stdint.h>

typedef int32_t (*andromem_test_fn_void_i)(void);
typedef int32_t (*andromem_test_fn_ii_i)(int32_t, int32_t);
typedef int32_t (*andromem_test_fn_i_i)(int32_t);
typedef int32_t (*andromem_test_fn_p_i)(void *);

static int32_t andromem_test_call_void_i(uintptr_t fn) {
	return ((andromem_test_fn_void_i)fn)();
}

static int32_t andromem_test_call_ii_i(uintptr_t fn, int32_t a, int32_t b) {
	return ((andromem_test_fn_ii_i)fn)(a, b);
}

static int32_t andromem_test_call_i_i(uintptr_t fn, int32_t a) {
	return ((andromem_test_fn_i_i)fn)(a);
}

static int32_t andromem_test_call_p_i(uintptr_t fn, void *p) {
	return ((andromem_test_fn_p_i)fn)(p);
}
*/
import "C"
import "unsafe"

// CallVoidInt invokes fn() -> int32.
func CallVoidInt(fn uintptr) int32 {
	return int32(C.andromem_test_call_void_i(C.uintptr_t(fn)))
}

// CallIntIntInt invokes fn(a, b) -> int32.
func CallIntIntInt(fn uintptr, a, b int32) int32 {
	return int32(C.andromem_test_call_ii_i(C.uintptr_t(fn), C.int32_t(a), C.int32_t(b)))
}

// CallIntInt invokes fn(a) -> int32.
func CallIntInt(fn uintptr, a int32) int32 {
	return int32(C.andromem_test_call_i_i(C.uintptr_t(fn), C.int32_t(a)))
}

// CallPtrInt invokes fn(p) -> int32.
func CallPtrInt(fn uintptr, buf []byte) int32 {
	return int32(C.andromem_test_call_p_i(C.uintptr_t(fn), unsafe.Pointer(&buf[0])))
}
