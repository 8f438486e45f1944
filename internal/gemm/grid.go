package gemm

import "github.com/fxnlabs/multigemm/internal/accel"

// RoundUp returns the smallest multiple of l that is at least g, and never
// less than one block. l must be positive.
func RoundUp(g, l int) int {
	if g <= 0 {
		return l
	}
	return (g + l - 1) / l * l
}

// Grid is the launch geometry of one device.
type Grid struct {
	Global accel.NDRange
	Local  accel.NDRange
}

// NewGrid sizes the launch for a slice of rows×n outputs. Dimension 0 walks
// rows with blockSize rows per work group; dimension 1 walks groups of
// itemsPerThread columns with blockSize/itemsPerThread work items per group.
// Both global sizes are rounded up to a multiple of the local size.
func NewGrid(rows, n, blockSize, itemsPerThread int) Grid {
	local := accel.NDRange{blockSize, blockSize / itemsPerThread}
	raw := [2]int{rows, (n + itemsPerThread - 1) / itemsPerThread}
	global := make(accel.NDRange, len(local))
	for d := range local {
		global[d] = RoundUp(raw[d], local[d])
	}
	return Grid{Global: global, Local: local}
}
