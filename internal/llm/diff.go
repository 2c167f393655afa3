package llm

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/macconnolly/meetgraph/pkg/types"
)

// CompareStatesDeterministic performs a field-wise comparison of two state
// maps without an LLM. String values are compared after trimming and status
// normalization; other values use deep equality. A field present in only
// one state counts as a change: a newly set or newly cleared field is
// semantic movement, not noise.
func CompareStatesDeterministic(prior, candidate map[string]interface{}) (bool, []string) {
	keys := make(map[string]bool, len(prior)+len(candidate))
	for k := range prior {
		keys[k] = true
	}
	for k := range candidate {
		keys[k] = true
	}

	var changed []string
	for k := range keys {
		pv, pok := prior[k]
		cv, cok := candidate[k]
		if pok != cok {
			changed = append(changed, k)
			continue
		}
		if !valuesEqual(k, pv, cv) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return len(changed) > 0, changed
}

// valuesEqual compares two state values semantically. Status values are
// normalized so "done" and "completed" do not register as a change, and
// progress values compare on their percent figure so "30%" and
// "30% complete" agree.
func valuesEqual(field string, a, b interface{}) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch field {
		case "status":
			return types.NormalizeStatus(as) == types.NormalizeStatus(bs)
		case "progress":
			return normalizeProgress(as) == normalizeProgress(bs)
		}
		return strings.TrimSpace(as) == strings.TrimSpace(bs)
	}
	return reflect.DeepEqual(a, b)
}

var percentRe = regexp.MustCompile(`\d+\s*%`)

// normalizeProgress reduces a progress value to its percent figure when
// one is present, otherwise to the lowercased trimmed phrase.
func normalizeProgress(s string) string {
	if m := percentRe.FindString(s); m != "" {
		return strings.ReplaceAll(m, " ", "")
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// DescribeChange produces a templated reason for a transition from its
// changed fields. Used when the LLM reason is unavailable or empty.
func DescribeChange(prior, candidate map[string]interface{}, changedFields []string) string {
	if len(changedFields) == 0 {
		return ""
	}

	var parts []string
	for _, field := range changedFields {
		pv, pok := prior[field]
		cv, cok := candidate[field]
		switch {
		case !pok && cok:
			parts = append(parts, fmt.Sprintf("%s set to %v", field, cv))
		case pok && !cok:
			parts = append(parts, fmt.Sprintf("%s cleared (was %v)", field, pv))
		default:
			parts = append(parts, fmt.Sprintf("%s changed from %v to %v", field, pv, cv))
		}
	}
	return strings.Join(parts, "; ")
}
