package walk

import (
	"math"
	"sync"

	"github.com/RyuseiKamei/MeowChain/internal/shared/geo"
)

const (
	// Before the first averaged position exists the gate is wide open so
	// a session can bootstrap on a coarse fix. Once locked, only fixes
	// within accuracyFineM are trusted.
	accuracyCoarseM = 500.0
	accuracyFineM   = 20.0

	pairSize = 2
)

// Sampler turns a noisy stream of fixes into an outlier-resistant running
// distance and a route of averaged positions. All state is owned here and
// mutated only under the mutex; fixes are processed one at a time.
type Sampler struct {
	mu      sync.Mutex
	samples []geo.Point
	prevAvg *geo.Point
	totalM  float64
	route   []geo.Point
	locked  bool
}

func NewSampler() *Sampler {
	return &Sampler{samples: make([]geo.Point, 0, pairSize)}
}

// Observe runs one fix through the pipeline: accuracy gate, pairing,
// averaging, haversine delta, step validation, state update.
func (s *Sampler) Observe(f Fix) FixResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := accuracyCoarseM
	if s.locked {
		threshold = accuracyFineM
	}
	if f.AccuracyM > threshold {
		return FixResult{TotalM: s.totalM}
	}

	s.samples = append(s.samples, geo.Point{Lat: f.Lat, Lng: f.Lng})
	if len(s.samples) < pairSize {
		return FixResult{Accepted: true, TotalM: s.totalM}
	}

	avg := geo.Average(s.samples)
	s.samples = s.samples[:0]

	var delta float64
	if s.prevAvg != nil {
		delta = geo.ValidStep(geo.HaversineM(*s.prevAvg, avg))
		s.totalM += delta
	}

	// The reference always advances, even when the step was discarded,
	// so a teleport does not poison every following delta.
	s.prevAvg = &avg
	s.route = append(s.route, avg)

	firstLock := !s.locked
	s.locked = true

	return FixResult{
		Accepted:  true,
		Paired:    true,
		Average:   &avg,
		DeltaM:    delta,
		TotalM:    s.totalM,
		FirstLock: firstLock,
	}
}

// Reset returns the sampler to its session-start state.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = s.samples[:0]
	s.prevAvg = nil
	s.totalM = 0
	s.route = nil
	s.locked = false
}

func (s *Sampler) TotalM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalM
}

func (s *Sampler) Route() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geo.Point, len(s.route))
	copy(out, s.route)
	return out
}

// Final returns the session total rounded to one decimal place.
func (s *Sampler) Final() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return math.Round(s.totalM*10) / 10
}
