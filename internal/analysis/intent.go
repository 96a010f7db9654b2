package analysis

import (
	"strings"
)

// Intent is the classified purpose of an assessment text relative to an
// existing trade.
type Intent string

const (
	IntentFresh         Intent = "FRESH"
	IntentMaintain      Intent = "MAINTAIN"
	IntentModifyReplace Intent = "MODIFY_REPLACE"
	IntentClose         Intent = "CLOSE"
	IntentUnknown       Intent = "UNKNOWN"
)

// IsClosure reports whether the intent ends the existing position.
// UNKNOWN is deliberately not a closure: an ambiguous assessment must
// never trigger an implicit destructive action.
func (i Intent) IsClosure() bool {
	return i == IntentModifyReplace || i == IntentClose
}

// IntentClassifier maps free-text position assessments to an Intent.
// Classification is pure: identical inputs always yield identical output,
// so callers compute the intent once per reconcile cycle and pass it down
// rather than re-invoking the classifier from dependent checks.
type IntentClassifier struct {
	table KeywordTable
}

// NewIntentClassifier creates a classifier using the default keyword table.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{table: DefaultKeywordTable()}
}

// NewIntentClassifierWithTable creates a classifier with a custom table.
func NewIntentClassifierWithTable(table KeywordTable) *IntentClassifier {
	return &IntentClassifier{table: table}
}

// TableVersion returns the keyword table version in use.
func (c *IntentClassifier) TableVersion() string {
	return c.table.Version
}

// Classify maps the raw context assessment plus the optional structured
// previous_position_status field to an Intent. The rules run in strict
// order; the first match wins:
//
//  1. Absent/null/non-string/empty assessment -> FRESH.
//  2. Explicit maintain marker -> MAINTAIN, unconditionally. This beats
//     any incidental "close" wording elsewhere in the text (e.g. "close
//     to resistance").
//  3. Explicit modify/replace marker -> MODIFY_REPLACE.
//  4. Closure scanning runs only when the text also carries an
//     existing-position indicator; without one the result is FRESH no
//     matter what closure-like words appear.
//  5. Within that branch: closure keyword -> CLOSE, maintenance wording
//     -> MAINTAIN, else UNKNOWN.
func (c *IntentClassifier) Classify(assessment interface{}, previousStatus string) Intent {
	// The structured field, when present, is authoritative.
	switch strings.ToLower(strings.TrimSpace(previousStatus)) {
	case "maintain":
		return IntentMaintain
	case "modify", "replace":
		return IntentModifyReplace
	case "close", "closed":
		return IntentClose
	}

	raw, ok := assessment.(string)
	if !ok {
		return IntentFresh
	}
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return IntentFresh
	}

	if containsAny(text, c.table.MaintainMarkers) {
		return IntentMaintain
	}

	if containsAny(text, c.table.ModifyReplaceMarkers) {
		return IntentModifyReplace
	}

	if !c.hasExistingPositionIndicator(text) {
		return IntentFresh
	}

	if containsAny(text, c.table.ClosureKeywords) {
		return IntentClose
	}
	if containsAny(text, c.table.MaintenanceKeywords) {
		return IntentMaintain
	}

	return IntentUnknown
}

// hasExistingPositionIndicator checks the gate that prevents closure false
// positives on brand-new analyses.
func (c *IntentClassifier) hasExistingPositionIndicator(text string) bool {
	if containsAny(text, c.table.ExistingPositionIndicators) {
		return true
	}
	for _, pair := range c.table.CancellationPairs {
		if strings.Contains(text, pair[0]) && strings.Contains(text, pair[1]) {
			return true
		}
	}
	return false
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
