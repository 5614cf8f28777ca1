package safety

type MatchState string

const (
	MatchFound   MatchState = "MATCH_FOUND"
	NoMatchFound MatchState = "NO_MATCH_FOUND"
	Unknown      MatchState = "UNKNOWN"

	// NotAvailable marks a filter the classification response did not report on.
	NotAvailable MatchState = "N/A"
)

// NoConfidence is shown when a filter carries no confidence level.
const NoConfidence = "-"

// ParseOverallState maps a raw filterMatchState onto the three known values.
func ParseOverallState(raw string) MatchState {
	switch MatchState(raw) {
	case MatchFound:
		return MatchFound
	case NoMatchFound:
		return NoMatchFound
	default:
		return Unknown
	}
}

type Filter struct {
	Key  string
	Name string
}

// Filters is the canonical set reported on every run, in display order.
var Filters = []Filter{
	{Key: "dangerous", Name: "Dangerous Content"},
	{Key: "harassment", Name: "Harassment"},
	{Key: "sexually_explicit", Name: "Sexually Explicit"},
	{Key: "hate_speech", Name: "Hate Speech"},
	{Key: "pi_and_jailbreak", Name: "PI & Jailbreak"},
	{Key: "csam", Name: "CSAM (Child Safety)"},
	{Key: "malicious_uris", Name: "Malicious URIs"},
	{Key: "sdp", Name: "SDP (Sensitive Data)"},
}

type FilterResult struct {
	MatchState      MatchState `json:"match_state"`
	ConfidenceLevel string     `json:"confidence_level"`
}

// Passed reports whether the filter explicitly found nothing.
func (r FilterResult) Passed() bool {
	return r.MatchState == NoMatchFound
}

func MissingFilterResult() FilterResult {
	return FilterResult{MatchState: NotAvailable, ConfidenceLevel: NoConfidence}
}

type Verdict struct {
	OverallMatchState MatchState              `json:"overall_match_state"`
	FilterResults     map[string]FilterResult `json:"filter_results"`
}

// UnknownVerdict is what an unreadable classification response resolves to.
func UnknownVerdict() *Verdict {
	v := &Verdict{
		OverallMatchState: Unknown,
		FilterResults:     make(map[string]FilterResult, len(Filters)),
	}
	for _, f := range Filters {
		v.FilterResults[f.Key] = MissingFilterResult()
	}
	return v
}

func (v *Verdict) Blocked() bool {
	return v != nil && v.OverallMatchState == MatchFound
}

// Result returns the entry for a canonical filter key, falling back to the
// missing placeholders.
func (v *Verdict) Result(key string) FilterResult {
	if v == nil {
		return MissingFilterResult()
	}
	if r, ok := v.FilterResults[key]; ok {
		return r
	}
	return MissingFilterResult()
}
