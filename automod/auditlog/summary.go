package auditlog

import (
	"context"
	"time"
)

// Event counts per action type over three windows.
type Summary struct {
	Today map[ActionType]int `json:"today"`
	Week  map[ActionType]int `json:"week"`
	Total map[ActionType]int `json:"total"`
}

func newCounts() map[ActionType]int {
	m := make(map[ActionType]int, len(AllActionTypes))
	for _, at := range AllActionTypes {
		m[at] = 0
	}
	return m
}

// Counts events by type: since local midnight of now, over the trailing seven days, and in total.
//
// The total window is computed by paging through the whole log, so this is meant for operator tooling rather than the message path.
func Summarize(ctx context.Context, log Log, now time.Time) (*Summary, error) {
	sum := Summary{
		Today: newCounts(),
		Week:  newCounts(),
		Total: newCounts(),
	}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.Add(-7 * 24 * time.Hour)

	const pageSize = 500
	offset := 0
	for {
		events, err := log.ListEvents(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, evt := range events {
			sum.Total[evt.ActionType]++
			if !evt.Timestamp.Before(weekAgo) {
				sum.Week[evt.ActionType]++
			}
			if !evt.Timestamp.Before(startOfDay) {
				sum.Today[evt.ActionType]++
			}
		}
		if len(events) < pageSize {
			break
		}
		offset += len(events)
	}
	return &sum, nil
}
