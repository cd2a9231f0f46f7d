package core

import (
	"time"
)

// RecordStatus tracks where a record ended up in the pipeline
type RecordStatus string

const (
	StatusUnscored    RecordStatus = "unscored"
	StatusExcluded    RecordStatus = "excluded"
	StatusWhitelisted RecordStatus = "whitelisted"
	StatusClear       RecordStatus = "clear"
	StatusFlagged     RecordStatus = "flagged"
	StatusCased       RecordStatus = "cased"
)

// Decision is the aggregator's verdict for a record
type Decision string

const (
	DecisionClear Decision = "clear"
	DecisionFlag  Decision = "flag"
	DecisionCase  Decision = "case"
)

// Severity is the coarse risk tier assigned to a generated case
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// CaseStatus tracks the investigator workflow state of a case
type CaseStatus string

const (
	CaseOpen          CaseStatus = "open"
	CaseInvestigating CaseStatus = "investigating"
	CaseClosed        CaseStatus = "closed"
)

// SignalSource identifies which detector contributed a signal
type SignalSource string

const (
	SignalExclusion  SignalSource = "exclusion"
	SignalRules      SignalSource = "rules"
	SignalKeywords   SignalSource = "keywords"
	SignalAnomaly    SignalSource = "anomaly"
	SignalClassifier SignalSource = "advanced"
	SignalWhitelist  SignalSource = "whitelist"
)

// Attachment is one attachment on an email record
type Attachment struct {
	Name string
	Size int64
}

// EmailRecord represents one processed email message
type EmailRecord struct {
	ID          string
	Timestamp   time.Time
	Sender      string
	Recipients  []string
	Subject     string
	Body        string
	Attachments []Attachment

	// Optional directory attributes carried through from the export
	Leaver       string
	Termination  string
	Department   string
	BusinessUnit string

	// Derived by the pipeline before ML scoring
	KeywordHits int

	FinalScore float64
	Status     RecordStatus
}

// Signal is one contributing detection recorded in a result's audit trail
type Signal struct {
	Source SignalSource `json:"source"`
	Name   string       `json:"name"`
	Score  float64      `json:"score"`
	Detail string       `json:"detail,omitempty"`
}

// ScoreResult is the pipeline's per-record output emitted to consumers
type ScoreResult struct {
	RecordID    string       `json:"record_id"`
	FinalScore  float64      `json:"final_score"`
	Decision    Decision     `json:"decision"`
	Status      RecordStatus `json:"status"`
	Signals     []Signal     `json:"signals,omitempty"`
	AuditFlags  []string     `json:"audit_flags,omitempty"`
	CaseID      string       `json:"case_id,omitempty"`
	ErrorReason string       `json:"error_reason,omitempty"`
	ScoredAt    time.Time    `json:"scored_at"`
}

// Case is a generated investigation record for a high-risk email
type Case struct {
	ID          string     `json:"id"`
	RecordID    string     `json:"record_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Status      CaseStatus `json:"status"`
	Signals     []Signal   `json:"signals,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RuleType is the evaluation strategy of a security rule
type RuleType string

const (
	RuleKeywordMatch  RuleType = "keyword-match"
	RuleRegexPattern  RuleType = "regex-pattern"
	RuleFieldEquality RuleType = "field-equality"
	RuleComposite     RuleType = "composite"
)

// ExclusionRule drops matching records before any scoring, ahead of the
// whitelist. Used for known-noise traffic such as calendar responses and
// bounce notifications.
type ExclusionRule struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
	Enabled  bool   `yaml:"enabled"`
}

// Condition is one sub-condition of a composite rule
type Condition struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
}

// SecurityRule is an operator-configured detection rule. Rules are read-only
// to the pipeline and immutable for the duration of a batch.
type SecurityRule struct {
	ID            string      `yaml:"id"`
	Name          string      `yaml:"name"`
	Type          RuleType    `yaml:"type"`
	Pattern       string      `yaml:"pattern"`
	Fields        []string    `yaml:"fields"`
	Severity      float64     `yaml:"severity"`
	CaseSensitive bool        `yaml:"case_sensitive"`
	Conditions    []Condition `yaml:"conditions"`
	Enabled       bool        `yaml:"enabled"`
}

// RuleMatch records one security rule that fired for a record
type RuleMatch struct {
	RuleID   string
	Name     string
	Severity float64
}

// KeywordCategory groups risk keywords by threat class
type KeywordCategory string

const (
	CategoryFinancial         KeywordCategory = "financial"
	CategoryPhishing          KeywordCategory = "phishing"
	CategoryMalware           KeywordCategory = "malware"
	CategoryDataExfiltration  KeywordCategory = "data-exfiltration"
	CategorySocialEngineering KeywordCategory = "social-engineering"
)

// RiskKeyword is one weighted keyword or phrase
type RiskKeyword struct {
	Keyword  string          `yaml:"keyword"`
	Category KeywordCategory `yaml:"category"`
	Weight   float64         `yaml:"weight"`
}

// KeywordMatch records one risk keyword found in a record
type KeywordMatch struct {
	Keyword  string
	Category KeywordCategory
	Weight   float64
	Field    string
}

// WhitelistEntry is a trusted sender address or domain
type WhitelistEntry struct {
	Value string `yaml:"value"`
	Scope string `yaml:"scope"`
}

// ConfigSnapshot is the immutable per-batch bundle of detection
// configuration. It is loaded once before a batch starts so that re-running
// the batch against the same snapshot reproduces identical scores.
type ConfigSnapshot struct {
	Exclusions []ExclusionRule
	Rules      []SecurityRule
	Keywords   []RiskKeyword
	Whitelist  []WhitelistEntry

	// Dampening keywords halve the keyword signal for automated or
	// system-generated mail (notification digests, no-reply senders).
	Dampening []string
}

// BatchSummary reports the outcome counts for one processed batch
type BatchSummary struct {
	Total       int               `json:"total"`
	Scored      int               `json:"scored"`
	Excluded    int               `json:"excluded"`
	Whitelisted int               `json:"whitelisted"`
	Flagged     int               `json:"flagged"`
	Cased       int               `json:"cased"`
	Errored     int               `json:"errored"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// NewBatchSummary creates an empty batch summary
func NewBatchSummary() *BatchSummary {
	return &BatchSummary{Errors: make(map[string]string)}
}

// Add folds one record result into the summary
func (s *BatchSummary) Add(res *ScoreResult) {
	s.Total++
	switch res.Status {
	case StatusExcluded:
		s.Excluded++
	case StatusWhitelisted:
		s.Whitelisted++
	case StatusFlagged:
		s.Flagged++
		s.Scored++
	case StatusCased:
		s.Cased++
		s.Scored++
	default:
		s.Scored++
	}
	if res.ErrorReason != "" {
		s.Errored++
		s.Errors[res.RecordID] = res.ErrorReason
	}
}
