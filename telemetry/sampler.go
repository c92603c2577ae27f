package telemetry

import (
	"math/rand/v2"
	"sync"
)

// Sampler decides per event whether it is kept. Critical events always pass;
// everything else must meet the minimum level and then survive a uniform
// random draw against the sample rate.
type Sampler struct {
	mu       sync.Mutex
	minLevel LogLevel
	rate     float64
	rng      *rand.Rand
}

// NewSampler creates a sampler drawing from a randomly seeded source.
func NewSampler(minLevel LogLevel, rate float64) *Sampler {
	return NewSamplerWithSource(minLevel, rate, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewSamplerWithSource creates a sampler with a caller supplied source, so
// tests can make draws deterministic.
func NewSamplerWithSource(minLevel LogLevel, rate float64, src rand.Source) *Sampler {
	return &Sampler{
		minLevel: minLevel,
		rate:     rate,
		rng:      rand.New(src),
	}
}

// ShouldEmit applies the level gate and the sampling draw.
func (s *Sampler) ShouldEmit(level LogLevel, critical bool) bool {
	if critical || level == LevelCritical {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if level.Rank() < s.minLevel.Rank() {
		return false
	}
	if s.rate >= 1 {
		return true
	}
	if s.rate <= 0 {
		return false
	}
	return s.rng.Float64() < s.rate
}

// Update retargets the sampler after a configuration change.
func (s *Sampler) Update(minLevel LogLevel, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLevel = minLevel
	s.rate = rate
}

// MinLevel returns the current minimum level.
func (s *Sampler) MinLevel() LogLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLevel
}
