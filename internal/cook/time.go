package cook

import "time"

// parseTimestampMS converts a TraceRecord's ISO-8601 timestamp to epoch
// milliseconds. An unparsable timestamp yields 0 rather than failing the
// whole record; lineage then orders such records before all timestamped
// ones, ties broken by id.
func parseTimestampMS(ts string) int64 {
	if ts == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return 0
		}
	}
	return t.UnixMilli()
}
