package gemm

import "fmt"

// Partition assigns a contiguous range of rows to every device. Entry i is
// the row count of device i; rows are handed out in device order.
type Partition []int

// NewPartition splits m rows over ndev devices with
// rows[i] = m*(i+1)/ndev - m*i/ndev, which sums to m and keeps every share
// within one row of the others.
func NewPartition(m, ndev int) (Partition, error) {
	if m <= 0 || ndev <= 0 || ndev > m {
		return nil, newError(KindInvalidArgument, "partition", -1,
			fmt.Errorf("cannot split %d rows over %d devices", m, ndev))
	}
	p := make(Partition, ndev)
	for i := range p {
		p[i] = m*(i+1)/ndev - m*i/ndev
	}
	return p, nil
}

// Offset returns the first row of device i.
func (p Partition) Offset(i int) int {
	off := 0
	for _, r := range p[:i] {
		off += r
	}
	return off
}

// Sum returns the total number of rows.
func (p Partition) Sum() int {
	return p.Offset(len(p))
}

// Max returns the largest share.
func (p Partition) Max() int {
	out := 0
	for _, r := range p {
		out = max(out, r)
	}
	return out
}

// Min returns the smallest share.
func (p Partition) Min() int {
	if len(p) == 0 {
		return 0
	}
	out := p[0]
	for _, r := range p[1:] {
		out = min(out, r)
	}
	return out
}
