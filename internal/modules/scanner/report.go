// Package scanner implements the greedy per-item reprocessing profit scan.
package scanner

import (
	"fmt"
	"math"
	"time"
)

// bucketSize is the width of the profit buckets in the rendered report.
const bucketSize = 10000

// Opportunity is one profitable reprocessing candidate: buying the item and
// reprocessing it beats selling it directly by Profit per unit.
type Opportunity struct {
	TypeID int     `json:"type_id"`
	Name   string  `json:"name"`
	Profit float64 `json:"profit"`
}

// Report is the result of one scan. Opportunities are sorted ascending by
// profit.
type Report struct {
	ID            string        `json:"id"`
	GeneratedAt   time.Time     `json:"generated_at"`
	Opportunities []Opportunity `json:"opportunities"`
}

// Empty reports whether the scan found nothing profitable.
func (r *Report) Empty() bool {
	return len(r.Opportunities) == 0
}

// Lines renders the report as outline text: a dated title, a header per
// profit bucket transition, one line per opportunity. An empty report renders
// as no lines at all; the bucket label width is derived from the largest
// profit and is undefined on an empty set.
func (r *Report) Lines() []string {
	if r.Empty() {
		return nil
	}

	maxProfit := r.Opportunities[len(r.Opportunities)-1].Profit
	width := labelWidth(maxProfit)

	lines := make([]string, 0, len(r.Opportunities)+4)
	lines = append(lines, fmt.Sprintf("+ Reprocess %s", r.GeneratedAt.Format("2006-01-02")))

	lastBucket := -1
	for _, opp := range r.Opportunities {
		bucket := int(opp.Profit / bucketSize)
		if bucket != lastBucket {
			lastBucket = bucket
			lines = append(lines, fmt.Sprintf("++ %0*d-%0*d",
				width, bucket*bucketSize, width, (bucket+1)*bucketSize-1))
		}
		lines = append(lines, "-- "+opp.Name)
	}

	return lines
}

// labelWidth is the zero-pad width for bucket range labels:
// half the natural log of the top profit, floored, never below one.
func labelWidth(maxProfit float64) int {
	if maxProfit <= 1 {
		return 1
	}
	width := int(math.Floor(math.Log(maxProfit))) / 2
	if width < 1 {
		return 1
	}
	return width
}
