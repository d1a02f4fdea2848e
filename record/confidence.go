package record

import (
	"math"
	"sort"

	"github.com/tsawler/sqextract/model"
)

// aggregate combines the confidences of fields. Failed fields count as
// zero; optional fields that were simply absent are left out. It returns 0
// when no field counts.
func aggregate(fields []*model.Field, opts Options) float64 {
	var confs, weights []float64
	for _, f := range fields {
		switch {
		case f == nil:
			continue
		case f.Status == model.StatusFailed:
			confs = append(confs, 0)
		case f.Resolved():
			confs = append(confs, f.Confidence)
		default:
			continue
		}
		w := 1.0
		if v, ok := opts.Weights[f.Name]; ok {
			w = v
		}
		weights = append(weights, w)
	}
	if len(confs) == 0 {
		return 0
	}

	switch opts.Aggregation {
	case AggregateMean:
		sum := 0.0
		for _, c := range confs {
			sum += c
		}
		return sum / float64(len(confs))
	case AggregateWeighted:
		sum, total := 0.0, 0.0
		for i, c := range confs {
			sum += c * weights[i]
			total += weights[i]
		}
		if total <= 0 {
			return 0
		}
		return sum / total
	default:
		low := math.Inf(1)
		for _, c := range confs {
			low = math.Min(low, c)
		}
		return low
	}
}

func sortedNames(row *model.Row) []string {
	names := make([]string, 0, len(row.Fields))
	for name := range row.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
