package modelarmor

import (
	"fmt"
	"strings"

	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/valyala/fastjson"
)

// optionalString is a JSON string member that may be absent.
type optionalString struct {
	value string
	ok    bool
}

func (o optionalString) or(fallback string) string {
	if o.ok {
		return o.value
	}
	return fallback
}

func stringMember(v *fastjson.Value, key string) optionalString {
	if v == nil || v.Type() != fastjson.TypeObject {
		return optionalString{}
	}
	member := v.Get(key)
	if member == nil || member.Type() != fastjson.TypeString {
		return optionalString{}
	}
	b, err := member.StringBytes()
	if err != nil {
		return optionalString{}
	}
	return optionalString{value: string(b), ok: true}
}

func objectAt(v *fastjson.Value, keys ...string) *fastjson.Object {
	if v == nil {
		return nil
	}
	member := v.Get(keys...)
	if member == nil || member.Type() != fastjson.TypeObject {
		return nil
	}
	o, err := member.Object()
	if err != nil {
		return nil
	}
	return o
}

// ParseResponse resolves the verdict from a full sanitizeUserPrompt response
// body. It never fails: unreadable or partial payloads yield placeholders.
func ParseResponse(body []byte) *safety.Verdict {
	v, _ := parseResponse(body)
	return v
}

// ParseSanitizationResult does the same for the bare sanitizationResult object.
func ParseSanitizationResult(body []byte) *safety.Verdict {
	var p fastjson.Parser
	root, err := p.ParseBytes(body)
	if err != nil {
		return safety.UnknownVerdict()
	}
	return resolveVerdict(root)
}

func parseResponse(body []byte) (*safety.Verdict, error) {
	var p fastjson.Parser
	root, err := p.ParseBytes(body)
	if err != nil {
		return safety.UnknownVerdict(), fmt.Errorf("invalid model armor response: %w", err)
	}
	result := root.Get("sanitizationResult")
	if result == nil || result.Type() != fastjson.TypeObject {
		return safety.UnknownVerdict(), fmt.Errorf("model armor response has no sanitizationResult")
	}
	return resolveVerdict(result), nil
}

func resolveVerdict(result *fastjson.Value) *safety.Verdict {
	verdict := &safety.Verdict{
		OverallMatchState: safety.ParseOverallState(stringMember(result, "filterMatchState").value),
		FilterResults:     make(map[string]safety.FilterResult, len(safety.Filters)),
	}

	filterResults := objectAt(result, "filterResults")
	raiResults := objectAt(result, "filterResults", "rai", "raiFilterResult", "raiFilterTypeResults")

	for _, f := range safety.Filters {
		verdict.FilterResults[f.Key] = resolveFilter(f.Key, raiResults, filterResults)
	}
	return verdict
}

// resolveFilter applies, in order: exact key in the responsible-AI group,
// first top-level filter whose name contains the key, placeholders.
func resolveFilter(key string, raiResults, filterResults *fastjson.Object) safety.FilterResult {
	if raiResults != nil {
		if entry := raiResults.Get(key); entry != nil {
			return safety.FilterResult{
				MatchState:      safety.MatchState(stringMember(entry, "matchState").or(string(safety.NotAvailable))),
				ConfidenceLevel: stringMember(entry, "confidenceLevel").or(safety.NoConfidence),
			}
		}
	}

	entry := firstMatchingMember(filterResults, key)
	if entry == nil || entry.Type() != fastjson.TypeObject {
		return safety.MissingFilterResult()
	}

	// Only the match state falls back to the first nested entry; the
	// confidence level is read from the top-level entry alone.
	state := stringMember(entry, "matchState")
	if !state.ok {
		state = stringMember(firstMember(entry), "matchState")
	}
	confidence := stringMember(entry, "confidenceLevel")

	return safety.FilterResult{
		MatchState:      safety.MatchState(state.or(string(safety.NotAvailable))),
		ConfidenceLevel: confidence.or(safety.NoConfidence),
	}
}

func firstMatchingMember(o *fastjson.Object, key string) *fastjson.Value {
	if o == nil {
		return nil
	}
	var found *fastjson.Value
	o.Visit(func(name []byte, v *fastjson.Value) {
		if found == nil && strings.Contains(string(name), key) {
			found = v
		}
	})
	return found
}

func firstMember(v *fastjson.Value) *fastjson.Value {
	o, err := v.Object()
	if err != nil {
		return nil
	}
	var first *fastjson.Value
	o.Visit(func(_ []byte, member *fastjson.Value) {
		if first == nil {
			first = member
		}
	})
	return first
}
