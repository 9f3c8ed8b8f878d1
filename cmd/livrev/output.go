package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/livrev/livrev/internal/record"
)

// pendingTitleMaxLen bounds the title column of worklist output.
const pendingTitleMaxLen = 70

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that report an action.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// WorklistResponse lists records awaiting a decision.
type WorklistResponse struct {
	Pending []string `json:"pending"`
}

// outputPending renders a worklist of records awaiting verb, as IDs in JSON
// mode or as an ID/title table in human mode.
func outputPending(records map[string]*record.Record, pending []string, verb string) {
	if !humanOutput {
		outputJSON(WorklistResponse{Pending: pending})
		return
	}
	for _, id := range pending {
		title := ""
		if rec := records[id]; rec != nil {
			title = truncate(rec.GetField("title"), pendingTitleMaxLen)
		}
		outputHuman("%-20s %s\n", id, title)
	}
	outputHuman("%d records await %s\n", len(pending), verb)
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
