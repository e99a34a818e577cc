package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCounters(w io.Writer, title string, counters map[string]int64) {
	if len(counters) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		fmt.Fprintf(w, "  %-40s %d\n", name, counters[name])
	}
}
