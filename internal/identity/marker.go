// Package identity links sink tasks back to the assignments they were created from.
//
// The link is a human-readable marker embedded in the task body, so no engine-side
// storage is needed to recognise tasks created by earlier runs.
package identity

import (
	"strconv"
	"strings"
)

const (
	markerOpen  = "[Canvas ID:"
	markerClose = "]"
)

// Encode returns the marker for an assignment id, e.g. "[Canvas ID: 42]".
func Encode(assignmentID int64) string {
	return markerOpen + " " + strconv.FormatInt(assignmentID, 10) + markerClose
}

// Decode extracts the assignment id from the first marker found in body.
// It reports false when the marker is missing, unterminated, or does not hold a base-10 integer.
func Decode(body string) (int64, bool) {
	start := strings.Index(body, markerOpen)
	if start < 0 {
		return 0, false
	}
	rest := body[start+len(markerOpen):]
	end := strings.Index(rest, markerClose)
	if end < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Collect decodes every body and returns the set of ids found. Bodies without a
// valid marker are ignored.
func Collect(bodies []string) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(bodies))
	for _, body := range bodies {
		if id, ok := Decode(body); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}
