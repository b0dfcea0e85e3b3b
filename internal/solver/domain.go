package solver

import "math/bits"

// bitDomain is a finite integer domain stored as a bitset shifted by offset.
// Bounds are cached and size tracks the number of values.
type bitDomain struct {
	offset int
	words  []uint64
	lo, hi int
	size   int
}

func newRangeDomain(lb, ub int) bitDomain {
	if ub < lb {
		return bitDomain{offset: lb}
	}
	n := ub - lb + 1
	d := bitDomain{offset: lb, words: make([]uint64, (n+63)/64), lo: lb, hi: ub, size: n}
	for i := range d.words {
		d.words[i] = ^uint64(0)
	}
	if r := n % 64; r != 0 {
		d.words[len(d.words)-1] = (uint64(1) << r) - 1
	}
	return d
}

func newValuesDomain(values []int) bitDomain {
	if len(values) == 0 {
		return bitDomain{}
	}
	lb, ub := values[0], values[0]
	for _, v := range values {
		lb = min(lb, v)
		ub = max(ub, v)
	}
	n := ub - lb + 1
	d := bitDomain{offset: lb, words: make([]uint64, (n+63)/64)}
	for _, v := range values {
		i := v - lb
		d.words[i/64] |= 1 << (i % 64)
	}
	d.refresh()
	return d
}

func (d *bitDomain) empty() bool { return d.size == 0 }

func (d *bitDomain) fixed() bool { return d.size == 1 }

func (d *bitDomain) contains(v int) bool {
	i := v - d.offset
	if d.size == 0 || i < 0 || i >= len(d.words)*64 {
		return false
	}
	return d.words[i/64]&(1<<(i%64)) != 0
}

// refresh recomputes size and bounds from the words.
func (d *bitDomain) refresh() {
	d.size = 0
	first, last := -1, -1
	for i, w := range d.words {
		if w == 0 {
			continue
		}
		d.size += bits.OnesCount64(w)
		if first < 0 {
			first = i*64 + bits.TrailingZeros64(w)
		}
		last = i*64 + 63 - bits.LeadingZeros64(w)
	}
	if d.size > 0 {
		d.lo = d.offset + first
		d.hi = d.offset + last
	}
}

// remove drops v and reports whether the domain changed.
func (d *bitDomain) remove(v int) bool {
	if !d.contains(v) {
		return false
	}
	i := v - d.offset
	d.words[i/64] &^= 1 << (i % 64)
	d.size--
	if d.size > 0 && (v == d.lo || v == d.hi) {
		d.refresh()
	}
	return true
}

// restrict keeps the values in [lb, ub] and reports whether the domain changed.
func (d *bitDomain) restrict(lb, ub int) bool {
	if d.size == 0 || (lb <= d.lo && ub >= d.hi) {
		return false
	}
	n := len(d.words) * 64
	from, to := lb-d.offset, ub-d.offset
	if from > to || to < 0 || from >= n {
		clear(d.words)
		d.size = 0
		return true
	}
	from, to = max(from, 0), min(to, n-1)
	for i := range d.words {
		wlo, whi := i*64, i*64+63
		if whi < from || wlo > to {
			d.words[i] = 0
			continue
		}
		mask := ^uint64(0)
		if wlo < from {
			mask &= ^uint64(0) << (from - wlo)
		}
		if whi > to {
			mask &= ^uint64(0) >> (whi - to)
		}
		d.words[i] &= mask
	}
	d.refresh()
	return true
}

// fix keeps only v and reports whether the domain changed.
func (d *bitDomain) fix(v int) bool {
	if d.size == 1 && d.lo == v {
		return false
	}
	if !d.contains(v) {
		clear(d.words)
		d.size = 0
		return true
	}
	return d.restrict(v, v)
}

func (d *bitDomain) values() []int {
	out := make([]int, 0, d.size)
	for i, w := range d.words {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			out = append(out, d.offset+i*64+j)
			w &^= 1 << j
		}
	}
	return out
}

func (d bitDomain) clone() bitDomain {
	c := d
	c.words = append([]uint64(nil), d.words...)
	return c
}
