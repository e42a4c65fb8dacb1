package model

// Verdict is the decoded result of one risk assessment.
type Verdict struct {
	TokenValid    bool
	Action        string
	Score         float64
	Reasons       []string
	InvalidReason string
	// Bypassed marks a verdict synthesized without calling the service.
	Bypassed bool
}

// DecisionPolicy decides whether a verdict lets a request reach the
// credential check.
type DecisionPolicy struct {
	MinScore float64
}

// Decision is the policy outcome. Failures lists every unmet condition and
// is only meant for logs.
type Decision struct {
	Passed   bool
	Failures []string
}

// Evaluate passes iff the token is valid, the score reaches MinScore and the
// token was issued for expectedAction.
func (p DecisionPolicy) Evaluate(v Verdict, expectedAction string) Decision {
	var failures []string
	if !v.TokenValid {
		failures = append(failures, "invalid token")
	}
	if v.Score < p.MinScore {
		failures = append(failures, "score below threshold")
	}
	if v.Action != expectedAction {
		failures = append(failures, "action mismatch")
	}
	return Decision{Passed: len(failures) == 0, Failures: failures}
}
