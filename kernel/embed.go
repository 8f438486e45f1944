// Package kernel provides the embedded OpenCL source of the sgemm kernel
package kernel

import _ "embed"

// EntryPoint is the name of the kernel function declared by Source.
const EntryPoint = "sgemm"

// Source contains the OpenCL C source of the row-slice matrix multiplication kernel
//
//go:embed kernel.cl
var Source []byte

// GetSource returns a copy of the embedded kernel source
func GetSource() []byte {
	return append([]byte(nil), Source...)
}
