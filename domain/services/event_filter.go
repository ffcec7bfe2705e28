package services

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
)

// Sort orders accepted by SortEvents
const (
	SortAscending  = "asc"
	SortDescending = "desc"
)

// UnknownGroupKey collects events whose group value is absent
const UnknownGroupKey = "unknown"

// FilterEvents returns the events matching every configured predicate.
// Empty filters return the input slice itself.
func FilterEvents(events []entities.DigestEvent, filters entities.EventFilters) []entities.DigestEvent {
	return FilterEventsAt(events, filters, time.Now())
}

// FilterEventsAt is FilterEvents with an explicit clock for maxAgeHours
func FilterEventsAt(events []entities.DigestEvent, filters entities.EventFilters, now time.Time) []entities.DigestEvent {
	if filters.IsEmpty() {
		return events
	}

	var cutoff *time.Time
	if filters.MaxAgeHours != nil {
		c := now.Add(-time.Duration(*filters.MaxAgeHours * float64(time.Hour)))
		cutoff = &c
	}

	matched := make([]entities.DigestEvent, 0, len(events))
	for i := range events {
		if matchesFilters(&events[i], filters, cutoff) {
			matched = append(matched, events[i])
		}
	}
	return matched
}

func matchesFilters(event *entities.DigestEvent, filters entities.EventFilters, cutoff *time.Time) bool {
	if len(filters.AccountIDs) > 0 && !containsString(filters.AccountIDs, event.AccountID) {
		return false
	}
	if len(filters.EventTypes) > 0 && !containsString(filters.EventTypes, event.EventType) {
		return false
	}
	if len(filters.SourceApplications) > 0 && !containsString(filters.SourceApplications, event.Source.Application) {
		return false
	}
	if len(filters.SourceEnvironments) > 0 && !containsString(filters.SourceEnvironments, event.Source.Environment) {
		return false
	}
	if len(filters.UserIDs) > 0 && (event.UserID == nil || !containsString(filters.UserIDs, *event.UserID)) {
		return false
	}
	if cutoff != nil && event.Timestamp.Before(*cutoff) {
		return false
	}

	if len(filters.FieldFilters) == 0 {
		return true
	}
	doc := event.Document()
	for _, ff := range filters.FieldFilters {
		if !matchesFieldFilter(doc, ff) {
			return false
		}
	}
	return true
}

func matchesFieldFilter(doc map[string]any, ff entities.FieldFilter) bool {
	value, ok := ResolvePath(doc, ff.Path)

	switch ff.Operator {
	case entities.OperatorExists:
		return ok
	case entities.OperatorNotExists:
		return !ok
	case entities.OperatorEquals:
		return ok && valuesEqual(value, ff.Value)
	case entities.OperatorNotEquals:
		return !ok || !valuesEqual(value, ff.Value)
	case entities.OperatorContains:
		return ok && containsValue(value, ff.Value)
	case entities.OperatorNotContains:
		return !ok || !containsValue(value, ff.Value)
	}
	// unknown operators never match
	return false
}

// ResolvePath walks a dot/bracket path such as "data.files[0].name".
// Any missing segment, out-of-range index or nil value reports absent.
func ResolvePath(root any, path string) (any, bool) {
	segments, ok := parsePath(path)
	if !ok {
		return nil, false
	}

	current := root
	for _, seg := range segments {
		if current == nil {
			return nil, false
		}
		next, found := step(current, seg)
		if !found {
			return nil, false
		}
		current = next
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

func parsePath(path string) ([]pathSegment, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}

	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open == -1 {
				segments = append(segments, pathSegment{key: part})
				break
			}
			if open > 0 {
				segments = append(segments, pathSegment{key: part[:open]})
			}
			end := strings.IndexByte(part[open:], ']')
			if end == -1 {
				return nil, false
			}
			idx, err := strconv.Atoi(part[open+1 : open+end])
			if err != nil || idx < 0 {
				return nil, false
			}
			segments = append(segments, pathSegment{index: idx, isIndex: true})
			part = part[open+end+1:]
		}
	}
	return segments, len(segments) > 0
}

func step(current any, seg pathSegment) (any, bool) {
	if seg.isIndex {
		switch v := current.(type) {
		case []any:
			if seg.index >= len(v) {
				return nil, false
			}
			return v[seg.index], true
		}
		rv := reflect.ValueOf(current)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && seg.index < rv.Len() {
			return rv.Index(seg.index).Interface(), true
		}
		return nil, false
	}

	switch v := current.(type) {
	case map[string]any:
		value, ok := v[seg.key]
		return value, ok
	case map[string]string:
		value, ok := v[seg.key]
		return value, ok
	}
	rv := reflect.ValueOf(current)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		value := rv.MapIndex(reflect.ValueOf(seg.key).Convert(rv.Type().Key()))
		if value.IsValid() {
			return value.Interface(), true
		}
	}
	return nil, false
}

func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	return reflect.DeepEqual(a, b)
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		if s, ok := needle.(string); ok {
			return strings.Contains(h, s)
		}
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
		return false
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return false
		}
		_, found := h[key]
		return found
	}

	rv := reflect.ValueOf(haystack)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if valuesEqual(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// SortEvents returns a sorted copy of events. sortBy defaults to "timestamp" and
// order to "desc". The sort is stable: events comparing equal keep their original
// relative order in both directions. Events missing the sort field go last.
func SortEvents(events []entities.DigestEvent, sortBy, order string) []entities.DigestEvent {
	if sortBy == "" {
		sortBy = "timestamp"
	}
	descending := order != SortAscending

	sorted := make([]entities.DigestEvent, len(events))
	copy(sorted, events)

	if sortBy == "timestamp" {
		sort.SliceStable(sorted, func(i, j int) bool {
			if descending {
				return sorted[i].Timestamp.After(sorted[j].Timestamp)
			}
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		return sorted
	}

	type keyed struct {
		event   entities.DigestEvent
		key     any
		present bool
	}
	items := make([]keyed, len(sorted))
	for i := range sorted {
		key, present := ResolvePath(sorted[i].Document(), sortBy)
		items[i] = keyed{event: sorted[i], key: key, present: present}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.present || !b.present {
			return a.present && !b.present
		}
		cmp := compareValues(a.key, b.key)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})

	for i := range items {
		sorted[i] = items[i].event
	}
	return sorted
}

func compareValues(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// GroupEvents partitions events by a well-known field or a nested path.
// Absent or empty values are grouped under "unknown".
func GroupEvents(events []entities.DigestEvent, groupBy string) map[string][]entities.DigestEvent {
	groups := make(map[string][]entities.DigestEvent)
	for i := range events {
		key := groupKey(&events[i], groupBy)
		if key == "" {
			key = UnknownGroupKey
		}
		groups[key] = append(groups[key], events[i])
	}
	return groups
}

func groupKey(event *entities.DigestEvent, groupBy string) string {
	switch groupBy {
	case "eventType":
		return event.EventType
	case "accountId":
		return event.AccountID
	case "userId":
		if event.UserID == nil {
			return ""
		}
		return *event.UserID
	case "source.application":
		return event.Source.Application
	case "source.environment":
		return event.Source.Environment
	case "date":
		if event.Timestamp.IsZero() {
			return ""
		}
		return event.Timestamp.UTC().Format("2006-01-02")
	}

	value, ok := ResolvePath(event.Document(), groupBy)
	if !ok {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// GetEventStats aggregates a batch in a single pass
func GetEventStats(events []entities.DigestEvent) entities.EventStats {
	stats := entities.EventStats{
		Total:         len(events),
		ByType:        make(map[string]int),
		ByAccount:     make(map[string]int),
		ByApplication: make(map[string]int),
	}

	for i := range events {
		e := &events[i]
		stats.ByType[e.EventType]++
		stats.ByAccount[e.AccountID]++
		stats.ByApplication[e.Source.Application]++

		if e.Timestamp.IsZero() {
			continue
		}
		ts := e.Timestamp
		if stats.TimeRange.Earliest == nil || ts.Before(*stats.TimeRange.Earliest) {
			earliest := ts
			stats.TimeRange.Earliest = &earliest
		}
		if stats.TimeRange.Latest == nil || ts.After(*stats.TimeRange.Latest) {
			latest := ts
			stats.TimeRange.Latest = &latest
		}
	}
	return stats
}
