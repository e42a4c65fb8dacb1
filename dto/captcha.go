package dto

// Wire types of the reCAPTCHA Enterprise REST assessments endpoint.

type AssessmentEvent struct {
	Token          string `json:"token"`
	SiteKey        string `json:"siteKey"`
	ExpectedAction string `json:"expectedAction"`
}

type CreateAssessmentRequest struct {
	Event AssessmentEvent `json:"event"`
}

type RiskAnalysis struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

type TokenProperties struct {
	Valid         bool   `json:"valid"`
	InvalidReason string `json:"invalidReason"`
	Hostname      string `json:"hostname"`
	Action        string `json:"action"`
	CreateTime    string `json:"createTime"`
}

// AssessmentResponse keeps the top-level sections as pointers so that a
// missing section is distinguishable from a zero one.
type AssessmentResponse struct {
	Name            string           `json:"name"`
	Event           *AssessmentEvent `json:"event"`
	RiskAnalysis    *RiskAnalysis    `json:"riskAnalysis"`
	TokenProperties *TokenProperties `json:"tokenProperties"`
}
