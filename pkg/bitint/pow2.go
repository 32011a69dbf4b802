// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used for buffer sizing.

Both functions are O(1), allocate nothing and are safe on the audio thread.

	frames := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(frames)     // true

NextPowerOfTwo takes bits.Len of size-1 rather than size so that an exact
power of two maps to itself: Len(7) is 3 and 1<<3 is 8, while Len(8) would
give 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Zero and
// negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has one bit set, so clearing the lowest set bit with n&(n-1) leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
