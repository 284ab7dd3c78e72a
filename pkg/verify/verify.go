// Package verify compares a participant's buffer against an exercise's hidden solution.
package verify

import "strings"

// Result is the outcome of a single comparison
type Result struct {
	Match bool `json:"match"`
}

// Verdict is the tri-state shown to a participant
type Verdict int

const (
	// Unknown means no check has run since the buffer last changed
	Unknown Verdict = iota
	Correct
	Incorrect
)

// Verify trims leading and trailing whitespace from both strings and
// compares them exactly. Interior whitespace is significant.
func Verify(content, solution string) Result {
	return Result{Match: strings.TrimSpace(content) == strings.TrimSpace(solution)}
}

// VerdictOf maps a comparison result onto the displayed verdict
func VerdictOf(r Result) Verdict {
	if r.Match {
		return Correct
	}
	return Incorrect
}

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unknown"
	}
}
