// Package proposal turns raw rule proposals from proposal sources into
// validated rules and appends them to a working rule table.
package proposal

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"triagebot/internal/domain"
	"triagebot/internal/rules"
)

// Accepted key aliases, in preference order, after folding with foldKey.
var (
	patternKeys    = []string{"rule pattern", "pattern"}
	matchFieldKeys = []string{"match field"}
	failureKeys    = []string{"failure category", "category of issue"}
	categoryKeys   = []string{"category"}
	priorityKeys   = []string{"priority"}
	confidenceKeys = []string{"confidence"}
	createdByKeys  = []string{"created by"}
	hitCountKeys   = []string{"hit count"}
	projectKeys    = []string{"project key"}
	ticketKeys     = []string{"ticket"}
)

func foldKey(k string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(strings.ToLower(k), "_", " ")), " ")
}

// fields is a proposal with folded keys. When two raw keys fold to the same
// name the first non-empty one in sorted key order wins, so "Rule Pattern"
// beats "rule_pattern".
type fields map[string]any

func fold(p domain.Proposal) fields {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	f := make(fields, len(p))
	for _, k := range keys {
		fk := foldKey(k)
		if _, ok := f[fk]; ok {
			continue
		}
		if isEmpty(p[k]) {
			continue
		}
		f[fk] = p[k]
	}
	return f
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func (f fields) value(aliases []string) (any, bool) {
	for _, a := range aliases {
		if v, ok := f[a]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f fields) str(aliases []string, def string) string {
	v, ok := f.value(aliases)
	if !ok {
		return def
	}
	return toString(v)
}

func (f fields) integer(aliases []string, def int) int {
	v, ok := f.value(aliases)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || x < math.MinInt || x >= math.MaxInt {
			return def
		}
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		return def
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return def
}

func (f fields) float(aliases []string, def float64) float64 {
	v, ok := f.value(aliases)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		if n, err := x.Float64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return n
		}
	}
	return def
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Normalize validates a raw proposal and converts it into a rule with the
// given project and id. A proposal without a pattern, or whose pattern does
// not compile, is rejected. When the proposal's category is "unknown" it is
// inferred from fm if an existing rule maps the same failure category.
func Normalize(p domain.Proposal, projectKey, ruleID string, fm rules.FailureCategoryMap, log *zap.Logger) (domain.Rule, bool) {
	if log == nil {
		log = zap.NewNop()
	}
	f := fold(p)

	pattern := f.str(patternKeys, "")
	if pattern == "" {
		log.Debug("proposal rejected: no pattern", zap.Any("proposal", map[string]any(p)))
		return domain.Rule{}, false
	}
	re, err := rules.Compile(pattern)
	if err != nil {
		log.Warn("proposal rejected: invalid regex", zap.String("pattern", pattern), zap.Error(err))
		return domain.Rule{}, false
	}

	r := domain.Rule{
		ProjectKey:      projectKey,
		RuleID:          ruleID,
		Pattern:         pattern,
		MatchField:      f.str(matchFieldKeys, domain.DefaultMatchField),
		FailureCategory: f.str(failureKeys, domain.DefaultFailureCategory),
		Category:        f.str(categoryKeys, domain.UnknownCategory),
		Priority:        f.integer(priorityKeys, domain.DefaultPriority),
		Confidence:      f.float(confidenceKeys, domain.DefaultConfidence),
		CreatedBy:       f.str(createdByKeys, domain.DefaultCreatedBy),
		HitCount:        f.integer(hitCountKeys, 0),
		Re:              re,
	}

	if strings.EqualFold(r.Category, domain.UnknownCategory) && fm != nil {
		if inferred, ok := fm.Infer(projectKey, r.FailureCategory); ok {
			log.Info("inferred category from existing rules",
				zap.String("failure_category", r.FailureCategory),
				zap.String("category", inferred))
			r.Category = inferred
		}
	}
	return r, true
}

// ResolveProjectKey picks the project a proposal applies to: an explicit
// project key on the proposal, else the project of the proposal's ticket,
// else the only project present in the feedback table, else none.
func ResolveProjectKey(p domain.Proposal, projectByTicket map[string]string) string {
	f := fold(p)
	if explicit := f.str(projectKeys, ""); explicit != "" {
		return explicit
	}
	if ticket := f.str(ticketKeys, ""); ticket != "" {
		if project, ok := projectByTicket[ticket]; ok && project != "" {
			return project
		}
	}
	var only string
	for _, project := range projectByTicket {
		if project == "" {
			continue
		}
		if only != "" && only != project {
			return ""
		}
		only = project
	}
	return only
}
