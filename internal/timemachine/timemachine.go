// Package timemachine maintains a fixed-capacity, time-bucketed history of
// price observations inside the extended region of a price account.
//
// Observations are assigned to buckets by floor division of the processing
// time, so any timestamp maps to exactly one bucket regardless of the order
// updates arrive in. The ring holds RingCapacity buckets; older history is
// overwritten as time advances.
package timemachine

// Collaborator-facing constants.
const (
	// ThirtyMinutes is the bucket granularity in seconds.
	ThirtyMinutes = 30 * 60

	// MaxSendLatency is the staleness threshold in seconds: the maximum
	// acceptable delay between an observation's origin time and its
	// processing time.
	MaxSendLatency = 25

	// RingCapacity is the number of bucket slots, covering 24 hours of
	// history at the thirty-minute granularity.
	RingCapacity = 48
)

// noOpenBucket marks a state with no open bucket yet.
const noOpenBucket = -1

// Bucket aggregates the observations of one time window.
type Bucket struct {
	// StartTime is the window start, a multiple of the granularity.
	StartTime int64

	// LastUpdate is the processing time of the newest observation.
	LastUpdate int64

	// PriceWeightSum accumulates price multiplied by the observation's
	// time weight. PriceWeightSum / WeightSum is the time-weighted
	// average price of the window.
	PriceWeightSum int64

	// ConfSum accumulates confidence intervals; ConfSum / Count is the
	// mean confidence.
	ConfSum uint64

	// WeightSum accumulates the time weights.
	WeightSum int64

	// Count is the number of observations aggregated.
	Count uint32

	// Closed marks a finalized bucket. Closing is irreversible.
	Closed bool
}

// AvgPrice returns the time-weighted average price of the bucket.
func (b *Bucket) AvgPrice() float64 {
	if b.WeightSum == 0 {
		return 0
	}
	return float64(b.PriceWeightSum) / float64(b.WeightSum)
}

// AvgConf returns the mean confidence interval of the bucket.
func (b *Bucket) AvgConf() float64 {
	if b.Count == 0 {
		return 0
	}
	return float64(b.ConfSum) / float64(b.Count)
}

// Observation is one accepted price update.
type Observation struct {
	Price      int64
	Conf       uint64
	OriginTime int64
}

// State is the time machine: the bucketing parameters and the ring of
// aggregates. It lives in the extended region of a price account and is
// installed with defaults by the account resize instruction.
type State struct {
	// Granularity is the bucket width in seconds.
	Granularity int64

	// Threshold is the maximum observation age in seconds before it is
	// excluded from aggregation.
	Threshold int64

	// OpenIndex is the ring slot of the open bucket, or -1. At most one
	// bucket is open at any time.
	OpenIndex int32

	Ring [RingCapacity]Bucket
}

// NewState returns the default state the resize instruction installs:
// thirty-minute buckets, the program's maximum send latency as staleness
// threshold, and an empty ring.
func NewState() *State {
	return &State{
		Granularity: ThirtyMinutes,
		Threshold:   MaxSendLatency,
		OpenIndex:   noOpenBucket,
	}
}

// Record folds an observation into the ring. now is the processing time in
// unix seconds; callers guarantee obs.OriginTime <= now.
//
// A stale observation (older than Threshold) is excluded from aggregation
// and reported via the stale return; it is not an error. Each bucket is
// finalized exactly once, the first time the window moves past it, and a
// copy is returned so callers can export it; a finalized bucket still
// occupying its slot is dropped silently when the ring wraps over it, and
// history beyond the ring span is not retained. Windows in which no
// observation arrived are skipped, never materialized.
func (s *State) Record(obs Observation, now int64) (finalized []Bucket, stale bool) {
	if now-obs.OriginTime > s.Threshold {
		return nil, true
	}

	windowStart := now / s.Granularity * s.Granularity
	idx := int32(now / s.Granularity % RingCapacity)
	b := &s.Ring[idx]

	// The processing clock regressed into an already finalized window.
	// Closing is irreversible, so the observation is excluded.
	if b.Closed && b.StartTime == windowStart {
		return nil, true
	}

	// The window advanced: whatever was open is done.
	if s.OpenIndex != noOpenBucket && s.OpenIndex != idx {
		open := &s.Ring[s.OpenIndex]
		if !open.Closed {
			open.Closed = true
			finalized = append(finalized, *open)
		}
	}

	if b.StartTime != windowStart {
		if b.Count > 0 && !b.Closed {
			b.Closed = true
			finalized = append(finalized, *b)
		}
		*b = Bucket{StartTime: windowStart, LastUpdate: windowStart}
	}
	s.OpenIndex = idx

	weight := now - b.LastUpdate
	if weight <= 0 {
		weight = 1
	}
	b.PriceWeightSum += obs.Price * weight
	b.ConfSum += obs.Conf
	b.WeightSum += weight
	b.Count++
	b.LastUpdate = now

	return finalized, false
}

// ClosedBuckets returns copies of all finalized buckets, ordered by window
// start time.
func (s *State) ClosedBuckets() []Bucket {
	var out []Bucket
	for i := range s.Ring {
		if s.Ring[i].Closed {
			out = append(out, s.Ring[i])
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].StartTime > out[j].StartTime; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
