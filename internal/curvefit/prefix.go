package curvefit

// prefix holds cumulative sums over a series so that the least-squares line
// of any contiguous index range is available in constant time. Frames and
// lengths are centred on their means before accumulation to limit
// cancellation in the sums of squares.
type prefix struct {
	x, y, xx, xy, yy []float64
	xOff, yOff       float64
}

func newPrefix(frames []int, lengths []float64) *prefix {
	n := len(frames)
	p := &prefix{
		x:  make([]float64, n+1),
		y:  make([]float64, n+1),
		xx: make([]float64, n+1),
		xy: make([]float64, n+1),
		yy: make([]float64, n+1),
	}
	for i := 0; i < n; i++ {
		p.xOff += float64(frames[i])
		p.yOff += lengths[i]
	}
	if n > 0 {
		p.xOff /= float64(n)
		p.yOff /= float64(n)
	}
	for i := 0; i < n; i++ {
		x := float64(frames[i]) - p.xOff
		y := lengths[i] - p.yOff
		p.x[i+1] = p.x[i] + x
		p.y[i+1] = p.y[i] + y
		p.xx[i+1] = p.xx[i] + x*x
		p.xy[i+1] = p.xy[i] + x*y
		p.yy[i+1] = p.yy[i] + y*y
	}
	return p
}

// moments returns the centred second moments of indices [i, j].
func (p *prefix) moments(i, j int) (cnt, sx, sy, sxx, sxy, syy float64) {
	cnt = float64(j - i + 1)
	sx = p.x[j+1] - p.x[i]
	sy = p.y[j+1] - p.y[i]
	sxx = p.xx[j+1] - p.xx[i] - sx*sx/cnt
	sxy = p.xy[j+1] - p.xy[i] - sx*sy/cnt
	syy = p.yy[j+1] - p.yy[i] - sy*sy/cnt
	return
}

// sse returns the residual sum of squares of the least-squares line through
// indices [i, j] inclusive. Ranges of one or two points fit exactly.
func (p *prefix) sse(i, j int) float64 {
	if j-i+1 <= 2 {
		return 0
	}
	_, _, _, sxx, sxy, syy := p.moments(i, j)
	var r float64
	if sxx <= 0 {
		r = syy
	} else {
		r = syy - sxy*sxy/sxx
	}
	if r < 0 {
		return 0
	}
	return r
}

// line returns the least-squares line through indices [i, j] in frame
// coordinates.
func (p *prefix) line(i, j int) (slope, intercept float64) {
	cnt, sx, sy, sxx, sxy, _ := p.moments(i, j)
	meanX := sx/cnt + p.xOff
	meanY := sy/cnt + p.yOff
	if sxx > 0 {
		slope = sxy / sxx
	}
	return slope, meanY - slope*meanX
}
