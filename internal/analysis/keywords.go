package analysis

// KeywordTable holds the phrase lists the intent classifier scans for.
// Keeping them as versioned data (instead of literals inside the control
// flow) lets the precedence rules be tuned without touching orchestration.
type KeywordTable struct {
	Version string

	// MaintainMarkers are explicit structured markers that force MAINTAIN
	// regardless of any other wording in the text.
	MaintainMarkers []string

	// ModifyReplaceMarkers are explicit markers for a modify/replace cycle.
	ModifyReplaceMarkers []string

	// ExistingPositionIndicators gate all closure scanning: without at
	// least one of these the text is treated as a brand-new analysis.
	ExistingPositionIndicators []string

	// CancellationPairs are (verb, noun) pairs that count as an
	// existing-position indicator when both appear anywhere in the text,
	// e.g. "canceling ... setup".
	CancellationPairs [][2]string

	// ClosureKeywords mark a closed/invalidated position once the
	// existing-position gate has passed.
	ClosureKeywords []string

	// MaintenanceKeywords mark maintenance wording inside the
	// existing-position branch.
	MaintenanceKeywords []string
}

// DefaultKeywordTable returns the current production keyword table.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		Version: "v3",
		MaintainMarkers: []string{
			"previous position status: maintain",
			"position status: maintain",
		},
		ModifyReplaceMarkers: []string{
			"previous position status: modify",
			"previous position status: replace",
			"position assessment: replace",
			"trade modification",
			"trade cancellation",
		},
		ExistingPositionIndicators: []string{
			"previous position",
			"existing position",
			"active position",
			"open position",
			"position status:",
			"current trade",
			"existing trade",
		},
		CancellationPairs: [][2]string{
			{"canceling", "setup"},
			{"cancelling", "setup"},
			{"canceled", "setup"},
			{"cancelled", "setup"},
		},
		ClosureKeywords: []string{
			"closed",
			"invalidated",
			"failed breakout",
			"breakdown",
			"reversal",
			"cancel",
			"replace",
			"stopped out",
		},
		MaintenanceKeywords: []string{
			"maintain",
			"still valid",
			"remains valid",
			"remains intact",
			"holding",
			"keep the position",
			"unchanged",
		},
	}
}
