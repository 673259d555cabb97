package pe

import "math"

// Entropy returns the Shannon entropy of data in bits per byte, from 0 for a
// single repeated value up to 8 for uniformly distributed bytes. Zero-filled
// .bss style sections score 0; compressed payloads score above 7.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	n := float64(len(data))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
