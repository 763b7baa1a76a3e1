package labelmatch

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
)

const (
	// MinThreshold is the lowest threshold a calibrated label may receive.
	MinThreshold = 0.75
	// MaxThreshold is the highest threshold any label may receive.
	MaxThreshold = 0.95
	// SingleWordMinThreshold is the floor for one-word labels.
	SingleWordMinThreshold = 0.80
	// SingleLabelThreshold is assigned to the only label of a one-label group.
	SingleLabelThreshold = 0.9

	longLabelWords     = 7
	longLabelThreshold = 0.85
	ceilingPercentile  = 0.9
	groupOffsetWeight  = 0.3
	lengthBoostPerWord = 0.03
	lengthBoostCap     = 0.10
)

// Calibrator recomputes per-label thresholds from the similarity structure inside each group.
type Calibrator struct {
	workers int
	logger  *log.Logger
}

// NewCalibrator returns a calibrator that processes up to workers groups at a time.
func NewCalibrator(workers int, logger *log.Logger) *Calibrator {
	if workers <= 0 {
		workers = 1
	}
	return &Calibrator{workers: workers, logger: logger}
}

// Calibrate returns a copy of cat with every label threshold recomputed.
// The input catalog is never modified; on error no partial result is returned.
func (c *Calibrator) Calibrate(ctx context.Context, cat *Catalog) (*Catalog, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	out := cat.Clone()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, group := range out.Groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			thresholds, err := GroupThresholds(group.Labels, out.Normalized)
			if err != nil {
				return fmt.Errorf("calibrate %s: %w", group.Key, err)
			}
			for i := range group.Labels {
				group.Labels[i].Threshold = thresholds[i]
			}
			c.logf("calibrated %s: %d labels", group.Key, len(group.Labels))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GroupThresholds computes one threshold per label, in label order.
func GroupThresholds(labels []LabelEntry, normalized bool) ([]float64, error) {
	switch len(labels) {
	case 0:
		return nil, fmt.Errorf("%w: group has no labels", ErrMalformedCatalog)
	case 1:
		return []float64{clamp(SingleLabelThreshold, MinThreshold, MaxThreshold)}, nil
	}
	sim := similarityFunc(normalized)
	perLabel := make([][]float64, len(labels))
	all := make([]float64, 0, len(labels)*(len(labels)-1))
	for i := range labels {
		perLabel[i] = make([]float64, 0, len(labels)-1)
		for j := range labels {
			if i == j {
				continue
			}
			if len(labels[i].Embedding) != len(labels[j].Embedding) {
				return nil, fmt.Errorf("%w: %q and %q differ in length", ErrDimensionMismatch, labels[i].Text, labels[j].Text)
			}
			s := sim(labels[i].Embedding, labels[j].Embedding)
			if math.IsNaN(s) {
				return nil, fmt.Errorf("%w: similarity between %q and %q is NaN", ErrMalformedCatalog, labels[i].Text, labels[j].Text)
			}
			perLabel[i] = append(perLabel[i], s)
			all = append(all, s)
		}
	}
	groupMean := mean(all)
	ceiling := GroupCeiling(all)
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = LabelThreshold(perLabel[i], groupMean, WordCount(l.Text), ceiling)
	}
	return out, nil
}

// GroupCeiling is the 90th percentile of the group's pairwise similarities,
// bounded to [MinThreshold, MaxThreshold]. A missing or zero percentile falls back to MaxThreshold.
func GroupCeiling(sims []float64) float64 {
	sorted := append([]float64(nil), sims...)
	sort.Float64s(sorted)
	p := MaxThreshold
	if idx := int(math.Floor(ceilingPercentile * float64(len(sorted)))); idx < len(sorted) && sorted[idx] != 0 {
		p = sorted[idx]
	}
	return clamp(p, MinThreshold, MaxThreshold)
}

// LabelThreshold derives one label's threshold from its similarities to its siblings.
func LabelThreshold(sims []float64, groupMean float64, wordCount int, ceiling float64) float64 {
	m := mean(sims)
	base := m - 0.5*stddev(sims, m)
	base += (m - groupMean) * groupOffsetWeight
	base *= 1 + math.Min(lengthBoostPerWord*float64(wordCount), lengthBoostCap)
	if wordCount == 1 {
		base = math.Max(base, SingleWordMinThreshold)
	}
	if wordCount > longLabelWords && base < longLabelThreshold {
		base = longLabelThreshold
	}
	return round3(clamp(base, MinThreshold, ceiling))
}

func (c *Calibrator) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation around m.
func stddev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var acc float64
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round3(v float64) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if err != nil {
		return v
	}
	return out
}
