package model

import "time"

type ReportID string
type BatchID string

// Phase is a scan session lifecycle state.
type Phase string

const (
	PhaseInit          Phase = "INIT"
	PhaseNavigate      Phase = "NAVIGATE"
	PhasePreConsent    Phase = "PRE_CONSENT_CAPTURE"
	PhaseInteraction   Phase = "INTERACTION"
	PhaseConsentAccept Phase = "CONSENT_ACCEPT"
	PhasePostConsent   Phase = "POST_CONSENT_CAPTURE"
	PhaseDone          Phase = "DONE"
	PhaseFailed        Phase = "FAILED"
)

// CapturePhase tags a captured event relative to the consent decision.
type CapturePhase string

const (
	PreConsent  CapturePhase = "PRE_CONSENT"
	PostConsent CapturePhase = "POST_CONSENT"
)

// Verdict is the final compliance classification of one scan.
type Verdict string

const (
	VerdictCompliant    Verdict = "COMPLIANT"
	VerdictNonCompliant Verdict = "NON_COMPLIANT"
	VerdictNeedsReview  Verdict = "NEEDS_REVIEW"
)

// PhaseFunc receives phase transitions; the sole coupling point to UI layers.
type PhaseFunc func(phase Phase, label string)

// ScanConfig configures a single scan session. Immutable once the session starts.
type ScanConfig struct {
	URL              string        `json:"url"`
	Headless         bool          `json:"headless"`
	Timeout          time.Duration `json:"timeout"`
	FastMode         bool          `json:"fastMode"`
	SkipInteractions bool          `json:"skipInteractions"`
	Phases           []Phase       `json:"phases,omitempty"`
	OnPhase          PhaseFunc     `json:"-"`
}

// WantsPhase reports whether the phase selection includes p. An empty
// selection means every phase runs.
func (c ScanConfig) WantsPhase(p Phase) bool {
	if len(c.Phases) == 0 {
		return true
	}
	for _, x := range c.Phases {
		if x == p {
			return true
		}
	}
	return false
}

// NetworkEvent is one classified outgoing request. Immutable after creation.
type NetworkEvent struct {
	URL       string         `json:"url"`
	Method    string         `json:"method"`
	PostBody  string         `json:"postBody,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Vendor    string         `json:"vendor"`
	Category  string         `json:"category"`
	EventName string         `json:"eventName,omitempty"`
	EventType string         `json:"eventType,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Phase     CapturePhase   `json:"phase"`
}

// CookieRecord is a cookie snapshot entry.
type CookieRecord struct {
	Name    string       `json:"name"`
	Domain  string       `json:"domain"`
	Path    string       `json:"path"`
	Expires float64      `json:"expires"`
	Phase   CapturePhase `json:"phase"`
}

// ConsentPurposes are the structured consent flags a CMP exposes.
type ConsentPurposes struct {
	Necessary   bool `json:"necessary"`
	Preferences bool `json:"preferences"`
	Statistics  bool `json:"statistics"`
	Marketing   bool `json:"marketing"`
}

// CMPState is the outcome of one consent-platform probe. Latest value wins.
type CMPState struct {
	Detected       bool             `json:"detected"`
	Type           string           `json:"type,omitempty"`
	Consent        *ConsentPurposes `json:"consent,omitempty"`
	HasResponse    bool             `json:"hasResponse"`
	BlockedScripts []string         `json:"blockedScripts,omitempty"`
}

// Violation records one non-essential tracker event observed pre-consent.
type Violation struct {
	Vendor    string `json:"vendor"`
	Category  string `json:"category"`
	EventName string `json:"eventName,omitempty"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// PhaseEvents holds the two capture buffers of a completed session.
type PhaseEvents struct {
	PreConsent  []NetworkEvent `json:"preConsent"`
	PostConsent []NetworkEvent `json:"postConsent"`
}

// CookieSet holds the cookie snapshots of a completed session.
type CookieSet struct {
	PreConsent  []CookieRecord `json:"preConsent"`
	PostConsent []CookieRecord `json:"postConsent"`
}

// FormRecord summarises one form discovered during interaction.
type FormRecord struct {
	Index       int      `json:"index"`
	Type        string   `json:"type"`
	Visible     bool     `json:"visible"`
	FieldLabels []string `json:"fieldLabels,omitempty"`
}

// ReportSummary aggregates captured events for presentation.
type ReportSummary struct {
	TotalPreConsent  int            `json:"totalPreConsent"`
	TotalPostConsent int            `json:"totalPostConsent"`
	ByVendor         map[string]int `json:"byVendor"`
	ByCategory       map[string]int `json:"byCategory"`
}

// ComplianceReport is the consumer shape produced once per completed session.
type ComplianceReport struct {
	ReportID   ReportID      `json:"reportId"`
	URL        string        `json:"url"`
	CMP        CMPState      `json:"cmp"`
	Events     PhaseEvents   `json:"events"`
	Cookies    CookieSet     `json:"cookies"`
	Forms      []FormRecord  `json:"forms,omitempty"`
	Summary    ReportSummary `json:"summary"`
	Violations []Violation   `json:"violations"`
	Verdict    Verdict       `json:"verdict"`
	ScanMode   string        `json:"scanMode"`
	Failed     bool          `json:"failed,omitempty"`
	Error      string        `json:"error,omitempty"`
	ScannedAt  int64         `json:"scannedAt"`
	DurationMS int64         `json:"durationMs"`
}

// TargetStatus is the lifecycle state of one target inside a batch.
type TargetStatus string

const (
	TargetPending   TargetStatus = "pending"
	TargetRunning   TargetStatus = "running"
	TargetCompleted TargetStatus = "completed"
	TargetError     TargetStatus = "error"
)

// ScanResult is the per-target record inside a batch.
type ScanResult struct {
	URL        string       `json:"url"`
	Status     TargetStatus `json:"status"`
	Phase      Phase        `json:"phase,omitempty"`
	Label      string       `json:"label,omitempty"`
	StartedAt  int64        `json:"startedAt,omitempty"`
	FinishedAt int64        `json:"finishedAt,omitempty"`
	Error      string       `json:"error,omitempty"`
	ReportID   ReportID     `json:"reportId,omitempty"`
	CMP        string       `json:"cmp,omitempty"`
	Violations int          `json:"violations"`
	Verdict    Verdict      `json:"verdict,omitempty"`
	Trackers   int          `json:"trackers"`
}

// BatchMode selects how a bulk run summarises its targets.
type BatchMode string

const (
	ModeMultiSite BatchMode = "multi-site"
	ModeDeepScan  BatchMode = "deep-scan"
)

// DeepScanSummary is the aggregate cross-target summary of a deep-scan batch.
type DeepScanSummary struct {
	Vendors         []string `json:"vendors"`
	TotalViolations int      `json:"totalViolations"`
	NonCompliant    int      `json:"nonCompliant"`
}

// BulkBatch is the batch consumer shape. Mutated throughout a run via the
// batch store; completed never exceeds total and the batch unlocks exactly
// once, when completed reaches total.
type BulkBatch struct {
	BatchID     BatchID          `json:"batchId"`
	Mode        BatchMode        `json:"mode"`
	Status      string           `json:"status"`
	Total       int              `json:"total"`
	Completed   int              `json:"completed"`
	AvgScanTime int64            `json:"avgScanTime"`
	Summary     *DeepScanSummary `json:"summary,omitempty"`
	Results     []ScanResult     `json:"results"`
}

// ProgressEvent is one append-only progress notification fanned out to
// batch subscribers.
type ProgressEvent struct {
	BatchID   BatchID      `json:"batchId"`
	Index     int          `json:"index"`
	URL       string       `json:"url"`
	Status    TargetStatus `json:"status,omitempty"`
	Phase     Phase        `json:"phase,omitempty"`
	Label     string       `json:"label,omitempty"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Timestamp int64        `json:"timestamp"`
}
