package shaping

//
// Delivery statistics
//

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// maxDelaySamples bounds the number of queueing delays we keep around.
const maxDelaySamples = 1 << 14

// Stats collects the number of messages and bytes delivered by a [Pipe]
// and a bounded sample of queueing delays in milliseconds.
type Stats struct {
	Bytes    int64
	Messages int64

	delays []float64
	next   int
}

// NewStats creates an empty [Stats].
func NewStats() *Stats {
	return &Stats{delays: []float64{}}
}

// Observe records the delivery of a message.
func (s *Stats) Observe(size int, queued time.Duration) {
	s.Messages++
	s.Bytes += int64(size)
	sample := float64(queued) / float64(time.Millisecond)
	if len(s.delays) < maxDelaySamples {
		s.delays = append(s.delays, sample)
		return
	}
	s.delays[s.next] = sample
	s.next = (s.next + 1) % maxDelaySamples
}

// Summary summarizes the queueing delays.
type Summary struct {
	Messages int64
	Bytes    int64
	MeanMs   float64
	P50Ms    float64
	P90Ms    float64
	P99Ms    float64
}

// String implements fmt.Stringer.
func (s *Summary) String() string {
	return fmt.Sprintf(
		"%d messages, %d bytes, queueing delay mean=%.1fms p50=%.1fms p90=%.1fms p99=%.1fms",
		s.Messages, s.Bytes, s.MeanMs, s.P50Ms, s.P90Ms, s.P99Ms,
	)
}

// Summarize computes a [Summary]. It returns stats.EmptyInputErr
// when nothing has been delivered yet.
func (s *Stats) Summarize() (*Summary, error) {
	data := stats.Float64Data(s.delays)
	mean, err := data.Mean()
	if err != nil {
		return nil, err
	}
	out := &Summary{
		Messages: s.Messages,
		Bytes:    s.Bytes,
		MeanMs:   mean,
	}
	for _, entry := range []struct {
		percent float64
		dest    *float64
	}{
		{50, &out.P50Ms},
		{90, &out.P90Ms},
		{99, &out.P99Ms},
	} {
		value, err := data.Percentile(entry.percent)
		if err != nil {
			return nil, err
		}
		*entry.dest = value
	}
	return out, nil
}
