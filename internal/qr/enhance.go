package qr

import (
	"image"
	"image/color"
	"math"
	"sort"
)

// Enhance derives alternate rasters of img ordered by decode likelihood.
// The detector tries them in sequence and stops at the first hit, so the
// adaptive threshold goes right after the plain grayscale: it isolates
// finder patterns best under uneven lighting.
func Enhance(img image.Image) []*image.Gray {
	gray := Grayscale(img)
	return []*image.Gray{
		gray,
		adaptiveThreshold(gray, 11, 2),
		otsuThreshold(gray),
		equalizeHist(gray),
		medianBlur(gray, 3),
	}
}

// Grayscale converts any raster to 8-bit grayscale with a zero origin.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// adaptiveThreshold binarizes each pixel against the Gaussian-weighted
// mean of its block×block neighborhood minus a constant offset. Edges
// replicate the border pixel.
func adaptiveThreshold(src *image.Gray, block int, offset float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	kernel := gaussianKernel(block)
	mid := block / 2

	// Separable blur: horizontal pass into a float buffer, vertical pass
	// while thresholding.
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range kernel {
				acc += kv * float64(src.Pix[row+clamp(x+i-mid, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range kernel {
				acc += kv * tmp[clamp(y+i-mid, 0, h-1)*w+x]
			}
			if float64(src.Pix[y*src.Stride+x]) > acc-offset {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// gaussianKernel builds a normalized 1D Gaussian with the sigma OpenCV
// derives from the kernel size, so thresholding matches what the decode
// pipeline was tuned against.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	mid := size / 2
	var sum float64
	for i := range kernel {
		d := float64(i - mid)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// otsuThreshold binarizes at the global threshold that maximizes
// between-class variance.
func otsuThreshold(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	var hist [256]int
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			hist[src.Pix[row+x]]++
		}
	}

	total := float64(w * h)
	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	threshold := 0
	bestVariance := -1.0
	var sumB, weightB float64
	for t := 0; t < 256; t++ {
		weightB += float64(hist[t])
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF
		variance := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if variance > bestVariance {
			bestVariance = variance
			threshold = t
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			if int(src.Pix[row+x]) > threshold {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// equalizeHist spreads the intensity histogram across the full range.
func equalizeHist(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	var hist [256]int
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			hist[src.Pix[row+x]]++
		}
	}

	total := w * h
	var lut [256]uint8
	cdf := 0
	cdfMin := -1
	for i := 0; i < 256; i++ {
		cdf += hist[i]
		if cdfMin < 0 && cdf > 0 {
			cdfMin = cdf
		}
		if cdfMin > 0 && total > cdfMin {
			lut[i] = uint8(math.Round(float64(cdf-cdfMin) / float64(total-cdfMin) * 255))
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			dst.Pix[y*dst.Stride+x] = lut[src.Pix[row+x]]
		}
	}
	return dst
}

// medianBlur replaces each pixel with the median of its kernel×kernel
// neighborhood, replicating edge pixels.
func medianBlur(src *image.Gray, kernel int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	mid := kernel / 2
	window := make([]int, 0, kernel*kernel)

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -mid; dy <= mid; dy++ {
				sy := clamp(y+dy, 0, h-1)
				for dx := -mid; dx <= mid; dx++ {
					sx := clamp(x+dx, 0, w-1)
					window = append(window, int(src.Pix[sy*src.Stride+sx]))
				}
			}
			sort.Ints(window)
			dst.Pix[y*dst.Stride+x] = uint8(window[len(window)/2])
		}
	}
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
