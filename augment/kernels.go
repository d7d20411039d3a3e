package augment

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ezoic/atomtrain/core/tensor"
)

// sample is one image plane with its one-hot label planes.
type sample struct {
	img    []float64
	labels []float64
	c      int
	h, w   int
	rng    *rand.Rand
}

func (s *sample) plane(k int) []float64 {
	return s.labels[k*s.h*s.w : (k+1)*s.h*s.w]
}

// remap rebuilds every plane with src(y, x) = f(y, x); images are sampled
// bilinearly and labels with nearest neighbour so they stay one-hot.
func (s *sample) remap(f func(y, x int) (float64, float64)) {
	img := make([]float64, len(s.img))
	lbl := make([]float64, len(s.labels))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			sy, sx := f(y, x)
			img[y*s.w+x] = bilinear(s.img, s.h, s.w, sy, sx)
			ny := clampInt(int(math.Round(sy)), 0, s.h-1)
			nx := clampInt(int(math.Round(sx)), 0, s.w-1)
			for k := 0; k < s.c; k++ {
				lbl[k*s.h*s.w+y*s.w+x] = s.plane(k)[ny*s.w+nx]
			}
		}
	}
	copy(s.img, img)
	copy(s.labels, lbl)
}

// zoom crops a random window 1/z of the size and scales it back up.
func (s *sample) zoom(z float64) {
	ch, cw := float64(s.h)/z, float64(s.w)/z
	y0 := s.rng.Float64() * (float64(s.h) - ch)
	x0 := s.rng.Float64() * (float64(s.w) - cw)
	s.remap(func(y, x int) (float64, float64) {
		return y0 + float64(y)*ch/float64(s.h), x0 + float64(x)*cw/float64(s.w)
	})
}

// rotate applies a random flip and, for square images, a random multiple of 90°.
func (s *sample) rotate() {
	k := s.rng.IntN(4)
	if s.h != s.w {
		k = 2 * s.rng.IntN(2)
	}
	flip := s.rng.IntN(2) == 1
	h, w := float64(s.h-1), float64(s.w-1)
	s.remap(func(y, x int) (float64, float64) {
		fy, fx := float64(y), float64(x)
		if flip {
			fx = w - fx
		}
		switch k {
		case 1:
			return fx, h - fy
		case 2:
			return h - fy, w - fx
		case 3:
			return w - fx, fy
		}
		return fy, fx
	})
}

// background adds a random linear intensity ramp.
func (s *sample) background(amp float64) {
	lo, hi := floats.Min(s.img), floats.Max(s.img)
	scale := amp * math.Max(hi-lo, 1e-12)
	theta := s.rng.Float64() * 2 * math.Pi
	gy, gx := math.Sin(theta), math.Cos(theta)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			s.img[y*s.w+x] += scale * (gy*float64(y)/float64(s.h) + gx*float64(x)/float64(s.w))
		}
	}
}

// contrast applies a gamma curve to an image in [0, 1].
func (s *sample) contrast(gamma float64) {
	for i, v := range s.img {
		s.img[i] = math.Pow(math.Max(v, 0), gamma)
	}
}

// blur convolves the image with a separable Gaussian kernel.
func (s *sample) blur(sigma float64) {
	r := int(math.Ceil(2 * sigma))
	kernel := make([]float64, 2*r+1)
	for i := range kernel {
		d := float64(i - r)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	tmp := make([]float64, len(s.img))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			var acc float64
			for i, k := range kernel {
				acc += k * s.img[y*s.w+clampInt(x+i-r, 0, s.w-1)]
			}
			tmp[y*s.w+x] = acc
		}
	}
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			var acc float64
			for i, k := range kernel {
				acc += k * tmp[clampInt(y+i-r, 0, s.h-1)*s.w+x]
			}
			s.img[y*s.w+x] = acc
		}
	}
}

// poisson replaces every pixel v in [0, 1] by Poisson(v*lambda)/lambda.
func (s *sample) poisson(lambda float64) {
	src := rand.NewPCG(s.rng.Uint64(), s.rng.Uint64())
	for i, v := range s.img {
		rate := math.Max(v, 0) * lambda
		if rate == 0 {
			continue
		}
		p := distuv.Poisson{Lambda: rate, Src: src}
		s.img[i] = p.Rand() / lambda
	}
}

func (s *sample) gauss(std float64) {
	n := distuv.Normal{Mu: 0, Sigma: std, Src: rand.NewPCG(s.rng.Uint64(), s.rng.Uint64())}
	for i := range s.img {
		s.img[i] += n.Rand()
	}
}

func (s *sample) saltAndPepper(frac float64) {
	lo, hi := floats.Min(s.img), floats.Max(s.img)
	for i := range s.img {
		if s.rng.Float64() >= frac {
			continue
		}
		if s.rng.IntN(2) == 0 {
			s.img[i] = lo
		} else {
			s.img[i] = hi
		}
	}
}

// jitter shifts each scan line horizontally by up to maxShift pixels.
func (s *sample) jitter(maxShift int) {
	row := make([]float64, s.w)
	for y := 0; y < s.h; y++ {
		shift := s.rng.IntN(2*maxShift+1) - maxShift
		line := s.img[y*s.w : (y+1)*s.w]
		for x := range row {
			row[x] = line[clampInt(x-shift, 0, s.w-1)]
		}
		copy(line, row)
	}
}

// resizeBatch rescales every sample by f (same factor across the batch).
func resizeBatch(imgs, lbls *tensor.Tensor, f float64) (*tensor.Tensor, *tensor.Tensor) {
	n, c, h, w := imgs.Dim(0), lbls.Dim(1), imgs.Dim(1), imgs.Dim(2)
	nh := max(1, int(math.Round(float64(h)*f)))
	nw := max(1, int(math.Round(float64(w)*f)))
	outI := tensor.Zeros(n, nh, nw)
	outL := tensor.Zeros(n, c, nh, nw)
	sy, sx := float64(h)/float64(nh), float64(w)/float64(nw)
	for i := 0; i < n; i++ {
		src, dst := imgs.Sample(i).Values(), outI.Sample(i).Values()
		lsrc, ldst := lbls.Sample(i).Values(), outL.Sample(i).Values()
		for y := 0; y < nh; y++ {
			for x := 0; x < nw; x++ {
				fy, fx := (float64(y)+0.5)*sy-0.5, (float64(x)+0.5)*sx-0.5
				dst[y*nw+x] = bilinear(src, h, w, fy, fx)
				ny := clampInt(int(math.Round(fy)), 0, h-1)
				nx := clampInt(int(math.Round(fx)), 0, w-1)
				for k := 0; k < c; k++ {
					ldst[(k*nh+y)*nw+x] = lsrc[(k*h+ny)*w+nx]
				}
			}
		}
	}
	return outI, outL
}

func bilinear(img []float64, h, w int, y, x float64) float64 {
	y = math.Min(math.Max(y, 0), float64(h-1))
	x = math.Min(math.Max(x, 0), float64(w-1))
	y0, x0 := int(y), int(x)
	y1, x1 := min(y0+1, h-1), min(x0+1, w-1)
	dy, dx := y-float64(y0), x-float64(x0)
	top := img[y0*w+x0]*(1-dx) + img[y0*w+x1]*dx
	bot := img[y1*w+x0]*(1-dx) + img[y1*w+x1]*dx
	return top*(1-dy) + bot*dy
}

// normalize rescales v to [0, 1]. Constant images become zero.
func normalize(v []float64) {
	lo, hi := floats.Min(v), floats.Max(v)
	if hi-lo == 0 {
		for i := range v {
			v[i] = 0
		}
		return
	}
	floats.AddConst(-lo, v)
	floats.Scale(1/(hi-lo), v)
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
