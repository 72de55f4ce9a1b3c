//go:build tinygo

package register

import (
	"runtime/volatile"
	"unsafe"
)

// At returns the memory-mapped register at addr.
func At(addr uintptr) Register {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}
