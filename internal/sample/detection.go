package sample

import (
	"math/rand"
	"time"
)

// Detection labels recognized by the pipeline (spec.md §3).
const (
	LabelNormal      = "normal"
	LabelEyesClosed  = "eyes_closed"
	LabelDistracted  = "distracted"
	LabelSmoking     = "smoking"
	LabelPhoneUsage  = "phone_usage"
	LabelYawning     = "yawning"
	LabelDrowsy      = "drowsy"
)

// sampledLabels is the set DetectionWalk may transition into on a new
// detection event; yawning/drowsy are reachable in the data model but the
// walk itself (per spec.md §4.6) only samples from these four.
var sampledLabels = []string{LabelEyesClosed, LabelDistracted, LabelSmoking, LabelPhoneUsage}

// Detection is one detection-label observation.
type Detection struct {
	Label      string
	Confidence float64
	Time       time.Time
}

// DetectionWalk is a sticky random walk over detection labels: it stays on
// the current label with high probability, and automatically reverts a
// non-normal label back to normal after 3-5 ticks.
type DetectionWalk struct {
	current  string
	duration int
	rng      *rand.Rand
}

// NewDetectionWalk creates a walk starting at the normal label.
func NewDetectionWalk(rng *rand.Rand) *DetectionWalk {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &DetectionWalk{current: LabelNormal, rng: rng}
}

// Next advances the walk one tick and returns the resulting detection.
func (w *DetectionWalk) Next() Detection {
	if w.rng.Float64() < 0.9 {
		if w.current != LabelNormal {
			w.duration++
			if w.duration > 3+w.rng.Intn(3) { // 3-5 ticks
				w.current = LabelNormal
				w.duration = 0
			}
		}
	} else {
		w.current = sampledLabels[w.rng.Intn(len(sampledLabels))]
		w.duration = 0
	}

	confidence := 1.0
	if w.current != LabelNormal {
		confidence = 0.75 + w.rng.Float64()*0.24
	}

	return Detection{Label: w.current, Confidence: confidence, Time: time.Now()}
}
