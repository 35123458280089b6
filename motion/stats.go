package motion

import (
	"gocv.io/x/gocv"
)

// intensityStats returns the mean and variance of an 8-bit single channel Mat.
// It runs in OpenCV without copying pixels.
func intensityStats(m gocv.Mat) (mean, variance float64) {
	if m.Empty() {
		return 0, 0
	}
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()

	gocv.MeanStdDev(m, &meanMat, &stdMat)
	if meanMat.Empty() || stdMat.Empty() {
		return 0, 0
	}
	std := stdMat.GetDoubleAt(0, 0)
	return meanMat.GetDoubleAt(0, 0), std * std
}

// ema is an exponential moving average seeded by its first sample.
type ema struct {
	alpha  float64
	value  float64
	seeded bool
}

func newEMA(window int) ema {
	if window < 1 {
		window = 1
	}
	return ema{alpha: 2 / float64(window+1)}
}

func (e *ema) observe(v float64) {
	if !e.seeded {
		e.value = v
		e.seeded = true
		return
	}
	e.value += e.alpha * (v - e.value)
}
