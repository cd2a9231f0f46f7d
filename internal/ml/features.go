package ml

import (
	"math"
	"strings"
	"unicode"

	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/utils"
)

// FeatureSchemaVersion ties this feature definition to the models trained
// against it. A model snapshot carrying a different version is refused at
// load time so training and scoring never skew apart.
const FeatureSchemaVersion = "v2"

// featureNames is the fixed feature order shared by both engines
var featureNames = []string{
	"recipient_count",
	"external_domain_ratio",
	"attachment_count",
	"attachment_bytes",
	"send_hour",
	"weekday",
	"subject_length",
	"subject_caps_ratio",
	"exclamation_count",
	"question_count",
	"keyword_hits",
	"sender_domain_length",
}

// FeatureCount is the length of the base feature vector
var FeatureCount = len(featureNames)

// FeatureNames returns the ordered feature names of the current schema
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// ExtractFeatures derives the fixed-order numeric feature vector from a
// record. The transformation is pure: identical records always produce
// identical vectors, which the determinism of the final score depends on.
func ExtractFeatures(record *core.EmailRecord) ([]float64, error) {
	if record.Timestamp.IsZero() {
		return nil, &core.FeatureExtractionError{Field: "timestamp", Reason: "missing or unparsable timestamp"}
	}
	senderDomain := utils.DomainOf(record.Sender)
	if senderDomain == "" {
		return nil, &core.FeatureExtractionError{Field: "sender", Reason: "address has no domain part"}
	}

	external := 0
	for _, r := range record.Recipients {
		if d := utils.DomainOf(r); d != "" && d != senderDomain {
			external++
		}
	}
	externalRatio := 0.0
	if len(record.Recipients) > 0 {
		externalRatio = float64(external) / float64(len(record.Recipients))
	}

	var attachmentBytes int64
	for _, a := range record.Attachments {
		attachmentBytes += a.Size
	}

	subject := record.Subject
	caps := 0
	letters := 0
	for _, r := range subject {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	capsRatio := 0.0
	if letters > 0 {
		capsRatio = float64(caps) / float64(letters)
	}

	return []float64{
		float64(len(record.Recipients)),
		externalRatio,
		float64(len(record.Attachments)),
		math.Log1p(float64(attachmentBytes)),
		float64(record.Timestamp.UTC().Hour()),
		float64(record.Timestamp.UTC().Weekday()),
		float64(len(subject)),
		capsRatio,
		float64(strings.Count(subject, "!")),
		float64(strings.Count(subject, "?")),
		float64(record.KeywordHits),
		float64(len(senderDomain)),
	}, nil
}
