// Package sample defines the travel-time observation record and its
// append-only JSONL series store.
//
// A series file holds one JSON object per line, ordered on disk by
// whenever the record happened to be appended; Load re-sorts by query_time.
// Malformed or incomplete lines are skipped on load and preserved verbatim
// by Prune; un-parseable history is never silently deleted.
package sample
