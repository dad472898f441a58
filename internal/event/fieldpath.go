package event

import (
	"reflect"
	"strings"
)

// Lookup resolves a dotted field path against an event. Top-level segments
// address envelope fields (id, type, channel, priority, payload, metadata);
// deeper segments walk decoded JSON objects. A bare path with no matching
// envelope field is tried against the payload directly, so filters may write
// either "payload.agentId" or "agentId".
func Lookup(e *Event, path string) (any, bool) {
	if e == nil || path == "" {
		return nil, false
	}

	segs := strings.Split(path, ".")
	head, rest := segs[0], segs[1:]

	switch head {
	case "id":
		return terminal(e.ID, rest)
	case "type":
		return terminal(e.Type, rest)
	case "channel":
		return terminal(string(e.Channel), rest)
	case "priority":
		return terminal(string(e.Priority), rest)
	case "payload":
		if len(rest) == 0 {
			return e.Payload, true
		}
		return walk(e.Payload, rest)
	case "metadata":
		return lookupMetadata(&e.Metadata, rest)
	default:
		return walk(e.Payload, segs)
	}
}

// MatchFilter reports whether every filter key resolves on the event to a
// value equal to the expected one. An empty filter matches everything.
func MatchFilter(e *Event, filter map[string]any) bool {
	for path, want := range filter {
		got, ok := Lookup(e, path)
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func terminal(v string, rest []string) (any, bool) {
	if len(rest) != 0 {
		return nil, false
	}
	return v, true
}

func lookupMetadata(m *Metadata, rest []string) (any, bool) {
	if len(rest) != 1 {
		return nil, false
	}
	switch rest[0] {
	case "timestamp":
		return m.Timestamp, true
	case "userId":
		return m.UserID, true
	case "organizationId":
		return m.OrganizationID, true
	case "sessionId":
		return m.SessionID, true
	case "source":
		return m.Source, true
	case "schemaVersion":
		return m.SchemaVersion, true
	case "correlationId":
		return m.CorrelationID, true
	case "roomId":
		return m.RoomID, true
	}
	return nil, false
}

// walk descends through nested map[string]any values one segment at a time.
// Scalars and arrays terminate the walk; only exact map keys match.
func walk(current any, segs []string) (any, bool) {
	for _, seg := range segs {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// equalValue compares a resolved event value with a filter value. Numbers are
// normalized to float64 first since decoded JSON numbers arrive as float64
// while filters are written with Go int literals.
func equalValue(got, want any) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}

func asFloat(v any) (float64, bool) {
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
	case uint64:
		return float64(n), true
	}
	return 0, false
}
