// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernels

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// MinWelchSamples is the smallest input length Welch will operate on; a
// shorter input yields no usable spectral estimate.
const MinWelchSamples = 16

// Welch estimates the one-sided amplitude spectrum of y, sampled at fs
// Hz, using Welch's method: half-overlapping Hann-windowed segments
// averaged in the power domain, segment length the largest power of two
// <= len(y)/2 (floored at MinWelchSamples). Each bin is normalized by the
// squared window sum, so the peak bin of a pure sine of amplitude A reads
// about A/sqrt(2), its RMS amplitude. Returns ok=false when there are too
// few samples or fs is non-positive.
func Welch(y []float64, fs float64) (freqs, asd []float64, ok bool) {
	n := len(y)
	if n < MinWelchSamples || fs <= 0 {
		return nil, nil, false
	}

	nseg := largestPowerOfTwoLE(n / 2)
	if nseg < MinWelchSamples {
		nseg = MinWelchSamples
	}
	if nseg > n {
		nseg = n
	}
	hop := nseg / 2
	if hop < 1 {
		hop = 1
	}

	win := window.Hann(make([]float64, nseg))
	var winSum float64
	for _, w := range win {
		winSum += w
	}

	fft := fourier.NewFFT(nseg)
	numFreqs := nseg/2 + 1
	psdSum := make([]float64, numFreqs)

	seg := make([]float64, nseg)
	segCount := 0
	for start := 0; start+nseg <= n; start += hop {
		for i := 0; i < nseg; i++ {
			seg[i] = y[start+i] * win[i]
		}
		coeffs := fft.Coefficients(nil, seg)
		for k := 0; k < numFreqs; k++ {
			re, im := real(coeffs[k]), imag(coeffs[k])
			psdSum[k] += re*re + im*im
		}
		segCount++
	}
	if segCount == 0 {
		return nil, nil, false
	}

	freqs = make([]float64, numFreqs)
	asd = make([]float64, numFreqs)
	scale := 1.0 / (winSum * winSum * float64(segCount))
	nyquistIdx := numFreqs - 1
	for k := 0; k < numFreqs; k++ {
		psd := psdSum[k] * scale
		if k != 0 && !(nseg%2 == 0 && k == nyquistIdx) {
			psd *= 2 // one-sided spectrum: fold the negative-frequency half in
		}
		asd[k] = math.Sqrt(psd)
		freqs[k] = float64(k) * fs / float64(nseg)
	}
	return freqs, asd, true
}

func largestPowerOfTwoLE(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
