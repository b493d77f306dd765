package logstore

import (
	"sort"
	"time"
)

// TopicCount is one row of the trending report.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// TrendingTopics counts topics of entries newer than days ago and returns
// the topN most frequent, ties broken by first appearance.
func TrendingTopics(entries []Entry, now time.Time, days, topN int) []TopicCount {
	if days <= 0 {
		days = 2
	}
	if topN <= 0 {
		topN = 5
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	counts := make(map[string]int)
	var order []string
	for _, e := range entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		for _, topic := range e.Topics {
			if topic == "" {
				continue
			}
			if _, seen := counts[topic]; !seen {
				order = append(order, topic)
			}
			counts[topic]++
		}
	}

	out := make([]TopicCount, 0, len(order))
	for _, topic := range order {
		out = append(out, TopicCount{Topic: topic, Count: counts[topic]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
