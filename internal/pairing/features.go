package pairing

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// Default featurization parameters.
const (
	DefaultMinOverlap         = 3
	DefaultGateDistance       = 11.0
	DefaultMinContactDistance = 4.0
	DefaultContactDistance    = 4.0
)

// Options controls featurization and candidate gating.
type Options struct {
	// MinOverlap is the minimum number of shared frames for a usable
	// feature vector.
	MinOverlap int
	// GateDistance excludes pairs whose mean separation over shared frames
	// exceeds it. Zero disables the gate.
	GateDistance float64
	// MinContactDistance excludes pairs that never come within it on any
	// shared frame. Zero disables the gate.
	MinContactDistance float64
	// ContactDistance is the separation under which a frame counts as
	// close contact.
	ContactDistance float64
}

// DefaultOptions returns the built-in featurization parameters.
func DefaultOptions() Options {
	return Options{
		MinOverlap:         DefaultMinOverlap,
		GateDistance:       DefaultGateDistance,
		MinContactDistance: DefaultMinContactDistance,
		ContactDistance:    DefaultContactDistance,
	}
}

// FeatureNames lists the feature columns in the order Values returns them.
var FeatureNames = []string{
	"mean_distance",
	"distance_variance",
	"displacement_correlation",
	"co_presence",
	"axis_drift",
	"min_distance",
	"max_distance",
	"length_change",
	"contact_run",
	"mean_intensity",
	"center_drift",
}

// Features are the numeric descriptors of one candidate pair, computed over
// the frames both tracks share.
type Features struct {
	MeanDistance            float64 `json:"mean_distance"`
	DistanceVariance        float64 `json:"distance_variance"`
	DisplacementCorrelation float64 `json:"displacement_correlation"`
	CoPresence              float64 `json:"co_presence"`
	AxisDrift               float64 `json:"axis_drift"`
	MinDistance             float64 `json:"min_distance"`
	MaxDistance             float64 `json:"max_distance"`
	LengthChange            float64 `json:"length_change"`
	ContactRun              float64 `json:"contact_run"`
	MeanIntensity           float64 `json:"mean_intensity"`
	CenterDrift             float64 `json:"center_drift"`
}

// Values returns the features in FeatureNames order.
func (f *Features) Values() []float64 {
	return []float64{
		f.MeanDistance,
		f.DistanceVariance,
		f.DisplacementCorrelation,
		f.CoPresence,
		f.AxisDrift,
		f.MinDistance,
		f.MaxDistance,
		f.LengthChange,
		f.ContactRun,
		f.MeanIntensity,
		f.CenterDrift,
	}
}

// FeatureVector is the featurization result for a pair. Features is nil when
// the tracks share fewer than MinOverlap frames.
type FeatureVector struct {
	Overlap  int       `json:"overlap"`
	Features *Features `json:"features,omitempty"`
}

// Insufficient reports whether the vector carries no features.
func (fv FeatureVector) Insufficient() bool { return fv.Features == nil }

// Joint is a frame observed in both tracks of a pair.
type Joint struct {
	Frame int
	A     tracks.Detection
	B     tracks.Detection
}

// Distance returns the Euclidean separation of the two detections.
func (j Joint) Distance() float64 {
	return math.Hypot(j.B.X-j.A.X, j.B.Y-j.A.Y)
}

// SharedFrames returns the frames present in both tracks, in frame order.
// Frames missing from either track are skipped, never interpolated.
func SharedFrames(a, b *tracks.Track) []Joint {
	var out []Joint
	i, j := 0, 0
	for i < len(a.Detections) && j < len(b.Detections) {
		fa, fb := a.Detections[i].Frame, b.Detections[j].Frame
		switch {
		case fa < fb:
			i++
		case fb < fa:
			j++
		default:
			out = append(out, Joint{Frame: fa, A: a.Detections[i], B: b.Detections[j]})
			i++
			j++
		}
	}
	return out
}

// Featurize computes the feature vector of a candidate pair. window is the
// movie length in frames; zero or negative uses the span of the two tracks.
// The result depends only on its inputs.
func Featurize(a, b *tracks.Track, window int, opts Options) FeatureVector {
	return featurizeJoints(SharedFrames(a, b), a, b, window, opts)
}

func featurizeJoints(joints []Joint, a, b *tracks.Track, window int, opts Options) FeatureVector {
	minOverlap := opts.MinOverlap
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	fv := FeatureVector{Overlap: len(joints)}
	if len(joints) < minOverlap {
		return fv
	}

	contact := opts.ContactDistance
	if contact <= 0 {
		contact = DefaultContactDistance
	}

	n := len(joints)
	dist := make([]float64, n)
	cx := make([]float64, n)
	cy := make([]float64, n)
	var intensity float64
	for i, j := range joints {
		dist[i] = j.Distance()
		cx[i] = (j.A.X + j.B.X) / 2
		cy[i] = (j.A.Y + j.B.Y) / 2
		intensity += j.A.Intensity + j.B.Intensity
	}

	f := &Features{}
	f.MeanDistance, f.DistanceVariance = stat.MeanVariance(dist, nil)
	f.MinDistance, f.MaxDistance = dist[0], dist[0]
	for _, d := range dist[1:] {
		f.MinDistance = math.Min(f.MinDistance, d)
		f.MaxDistance = math.Max(f.MaxDistance, d)
	}
	f.LengthChange = dist[n-1] - dist[0]
	f.DisplacementCorrelation = displacementCorrelation(joints)
	f.AxisDrift = stat.StdDev(axisAngles(joints), nil)
	f.ContactRun = float64(contactRun(joints, dist, contact))
	f.MeanIntensity = intensity / float64(2*n)
	f.CenterDrift = math.Sqrt(stat.Variance(cx, nil) + stat.Variance(cy, nil))

	if window <= 0 {
		first := min(a.FirstFrame(), b.FirstFrame())
		last := max(a.LastFrame(), b.LastFrame())
		window = last - first + 1
	}
	f.CoPresence = math.Min(1, float64(n)/float64(window))

	fv.Features = f
	return fv
}

// displacementCorrelation measures direction synchrony: the cosine between
// the concatenated frame-to-frame displacements of both tracks. Two
// stationary tracks move together perfectly; one stationary track does not
// move with anything.
func displacementCorrelation(joints []Joint) float64 {
	var dot, na, nb float64
	for i := 1; i < len(joints); i++ {
		dax := joints[i].A.X - joints[i-1].A.X
		day := joints[i].A.Y - joints[i-1].A.Y
		dbx := joints[i].B.X - joints[i-1].B.X
		dby := joints[i].B.Y - joints[i-1].B.Y
		dot += dax*dbx + day*dby
		na += dax*dax + day*day
		nb += dbx*dbx + dby*dby
	}
	switch {
	case na == 0 && nb == 0:
		return 1
	case na == 0 || nb == 0:
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

// axisAngles returns the unwrapped orientation of the undirected A-B axis.
// Coincident detections carry the previous orientation forward.
func axisAngles(joints []Joint) []float64 {
	out := make([]float64, len(joints))
	prev := 0.0
	for i, j := range joints {
		dx, dy := j.B.X-j.A.X, j.B.Y-j.A.Y
		if dx == 0 && dy == 0 {
			out[i] = prev
			continue
		}
		theta := math.Atan2(dy, dx)
		if i == 0 {
			out[i] = theta
			prev = theta
			continue
		}
		// The axis has no direction, so changes are taken modulo pi.
		delta := math.Remainder(theta-prev, math.Pi)
		out[i] = prev + delta
		prev = out[i]
	}
	return out
}

// contactRun returns the longest run of consecutive frames closer than
// contact. A gap in the shared frames ends a run.
func contactRun(joints []Joint, dist []float64, contact float64) int {
	best, run := 0, 0
	for i := range joints {
		if i > 0 && joints[i].Frame != joints[i-1].Frame+1 {
			run = 0
		}
		if dist[i] < contact {
			run++
			best = max(best, run)
		} else {
			run = 0
		}
	}
	return best
}
