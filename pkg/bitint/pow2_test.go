// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{-10, 1},
		{0, 1},
		{1, 1},
		{3, 4},
		{480, 512},
		{512, 512},
		{1000, 1024},
		{8193, 16384},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.n), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.n); got != tt.want {
				t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.n, got, tt.want)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n    int
		want bool
	}{
		{-2, false},
		{0, false},
		{1, true},
		{64, true},
		{480, false},
		{8192, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.n), func(t *testing.T) {
			if got := IsPowerOfTwo(tt.n); got != tt.want {
				t.Errorf("IsPowerOfTwo(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

// Every rounded size is a power of two no smaller than its input.
func TestNextPowerOfTwoIsPowerOfTwo(t *testing.T) {
	for n := 1; n <= 1<<14; n++ {
		p := NextPowerOfTwo(n)
		if !IsPowerOfTwo(p) || p < n || (p > 1 && p/2 >= n) {
			t.Fatalf("NextPowerOfTwo(%d) = %d", n, p)
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}
