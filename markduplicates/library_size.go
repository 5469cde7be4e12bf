package markduplicates

/**
* MIT License
*
* Copyright (c) 2017 Broad Institute
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

import (
	"fmt"
	"math"
)

// errNoDuplicates is returned by estimateLibrarySize when the library
// size cannot be estimated because every pair is unique.
var errNoDuplicates = fmt.Errorf("no duplicates")

// landerWaterman is zero when x is the number of distinct molecules in
// a library that yielded c distinct pairs out of n pairs:
//
//	C/X = 1 - exp(-N/X)
func landerWaterman(x, c, n float64) float64 {
	return c/x + math.Expm1(-n/x)
}

// estimateLibrarySize estimates the number of distinct molecules in a
// library from the number of read pairs and the number of unique read
// pairs, by bisecting landerWaterman over multiples of uniqueReadPairs.
func estimateLibrarySize(readPairs, uniqueReadPairs uint64) (uint64, error) {
	if readPairs == 0 || uniqueReadPairs >= readPairs {
		return 0, errNoDuplicates
	}
	n := float64(readPairs)
	c := float64(uniqueReadPairs)
	if c == 0 || landerWaterman(c, c, n) < 0 {
		return 0, fmt.Errorf("invalid values for pairs and unique pairs: %v, %v", readPairs, uniqueReadPairs)
	}

	lo, hi := 1.0, 100.0
	for landerWaterman(hi*c, c, n) >= 0 {
		hi *= 10
		if math.IsInf(hi, 1) {
			return 0, fmt.Errorf("could not bound library size for (%v, %v)", readPairs, uniqueReadPairs)
		}
	}
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		u := landerWaterman(mid*c, c, n)
		if u == 0 {
			break
		}
		if u > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return uint64(c * (lo + hi) / 2), nil
}
