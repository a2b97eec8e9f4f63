package sketch

import (
	"image"
)

const (
	edgeOn  = 255
	edgeOff = 0
)

// Canny marks edges of g with 255. Gradients come from a 3x3 Sobel operator
// with the L1 norm; low and high bound the hysteresis.
func Canny(g *image.Gray, low, high float64) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w < 3 || h < 3 {
		return out
	}

	at := func(x, y int) int32 {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return int32(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	gx := make([]int32, w*h)
	gy := make([]int32, w*h)
	mag := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs32(dx) + abs32(dy)
		}
	}

	const (
		none = iota
		weak
		strong
	)
	class := make([]uint8, w*h)
	lo, hi := int32(low), int32(high)

	// tan(22.5°) and tan(67.5°) in 15-bit fixed point
	const (
		tan22 = 13573
		shift = 15
	)

	var stack []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= lo {
				continue
			}
			ax, ay := int64(abs32(gx[i])), int64(abs32(gy[i]))
			t22 := ax * tan22
			t67 := t22 + ax<<(shift+1)
			ay <<= shift

			var n1, n2 int32
			switch {
			case ay < t22:
				// horizontal gradient
				n1, n2 = mag[i-1], mag[i+1]
			case ay > t67:
				n1, n2 = mag[i-w], mag[i+w]
			default:
				if (gx[i] < 0) != (gy[i] < 0) {
					n1, n2 = mag[i-w+1], mag[i+w-1]
				} else {
					n1, n2 = mag[i-w-1], mag[i+w+1]
				}
			}
			if m <= n1 || m < n2 {
				continue
			}
			if m > hi {
				class[i] = strong
				stack = append(stack, i)
			} else {
				class[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[i/w*out.Stride+i%w] = edgeOn
		for _, d := range []int{-w - 1, -w, -w + 1, -1, 1, w - 1, w, w + 1} {
			j := i + d
			if class[j] == weak {
				class[j] = strong
				stack = append(stack, j)
			}
		}
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
