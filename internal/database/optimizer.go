package database

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Complexity is a coarse query complexity class
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// DefaultRowCap is the LIMIT appended to unbounded reads
const DefaultRowCap = 1000

// NarrowProjection replaces wildcard projections. It assumes the target table
// has these columns; nothing here checks the schema.
const NarrowProjection = "id, created_at"

// QueryOptimization is the outcome of one optimization pass.
//
// EstimatedTimeReduction is (OriginalScore - OptimizedScore) * 10, floored at
// zero. It is a unit-less relative indicator derived from complexity scores,
// not a measured or predicted duration.
type QueryOptimization struct {
	OriginalQuery          string     `json:"original_query"`
	OptimizedQuery         string     `json:"optimized_query"`
	Suggestions            []string   `json:"suggestions"`
	EstimatedTimeReduction int        `json:"estimated_time_reduction"`
	Complexity             Complexity `json:"complexity"`
	OriginalScore          int        `json:"original_score"`
	OptimizedScore         int        `json:"optimized_score"`
}

// Changed reports whether the rewrite differs from the input
func (o QueryOptimization) Changed() bool {
	return o.OriginalQuery != o.OptimizedQuery
}

var (
	selectPattern    = regexp.MustCompile(`(?i)^\s*SELECT\b`)
	wildcardPattern  = regexp.MustCompile(`(?i)\bSELECT(\s+DISTINCT)?\s+\*`)
	qualifiedStar    = regexp.MustCompile(`\b\w+\.\*`)
	wherePattern     = regexp.MustCompile(`(?i)\bWHERE\b`)
	rowCapPattern    = regexp.MustCompile(`(?i)\bLIMIT\b|\bFETCH\s+(FIRST|NEXT)\b`)
	orderByPattern   = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	groupByPattern   = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	joinPattern      = regexp.MustCompile(`(?i)\bJOIN\b`)
	subqueryPattern  = regexp.MustCompile(`(?i)\(\s*SELECT\b`)
	aggregatePattern = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	likePattern      = regexp.MustCompile(`(?i)\bI?LIKE\b`)
	lockPattern      = regexp.MustCompile(`(?i)\bFOR\s+(NO\s+KEY\s+UPDATE|KEY\s+SHARE|UPDATE|SHARE)\b|\bLOCK\s+IN\s+SHARE\s+MODE\b`)
	tailPattern      = regexp.MustCompile(`(?i)\b(GROUP\s+BY|HAVING|WINDOW|ORDER\s+BY|LIMIT|OFFSET|FETCH|FOR\s+(NO\s+KEY\s+UPDATE|KEY\s+SHARE|UPDATE|SHARE)|LOCK\s+IN\s+SHARE\s+MODE)\b`)
)

// QueryOptimizer rewrites query text with a fixed, ordered rule set.
// It keeps no state between calls and is safe for concurrent use.
type QueryOptimizer struct {
	logger *zap.Logger
	rowCap int
}

// NewQueryOptimizer creates an optimizer; logger may be nil
func NewQueryOptimizer(logger *zap.Logger) *QueryOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryOptimizer{
		logger: logger,
		rowCap: DefaultRowCap,
	}
}

// Optimize applies every matching rule in order, each to the output of the previous one.
// Rules 2 and 3 only look at the outer query: clauses inside parentheses or quotes
// (subqueries, window definitions, literals) neither count nor move the insertion point.
//
// Rules:
//  1. wildcard projection: SELECT * becomes SELECT id, created_at (unsafe, see NarrowProjection)
//  2. read without filter: add WHERE 1=1, plus a row cap when none exists
//  3. read without row cap: append LIMIT
//  4. caller's filter without ORDER BY: advisory index suggestion, no rewrite
func (o *QueryOptimizer) Optimize(query string) QueryOptimization {
	original := query
	optimized := normalizeQuery(query)
	isRead := selectPattern.MatchString(optimized)
	var suggestions []string

	if wildcardPattern.MatchString(optimized) {
		optimized = wildcardPattern.ReplaceAllString(optimized, "SELECT${1} "+NarrowProjection)
		suggestions = append(suggestions,
			"Replace SELECT * with explicit columns; the rewrite assumes columns ("+NarrowProjection+
				") that must be validated against the table schema")
	}

	if isRead && findTopLevel(wherePattern, optimized) == nil {
		optimized = insertFilter(optimized, "WHERE 1=1")
		if findTopLevel(rowCapPattern, optimized) == nil {
			optimized = o.appendRowCap(optimized)
		}
		suggestions = append(suggestions,
			"Add a WHERE clause to avoid full table scans; a permissive filter and row cap were added")
	}

	if isRead && findTopLevel(rowCapPattern, optimized) == nil {
		optimized = o.appendRowCap(optimized)
		suggestions = append(suggestions,
			fmt.Sprintf("Add a LIMIT clause to bound the result set (LIMIT %d applied)", o.rowCap))
	}

	if wherePattern.MatchString(original) && !orderByPattern.MatchString(original) {
		suggestions = append(suggestions,
			"Consider adding an index on the columns used in the WHERE clause")
	}

	originalScore, _ := Analyze(original)
	optimizedScore, complexity := Analyze(optimized)

	result := QueryOptimization{
		OriginalQuery:          original,
		OptimizedQuery:         optimized,
		Suggestions:            suggestions,
		EstimatedTimeReduction: max(0, (originalScore-optimizedScore)*10),
		Complexity:             complexity,
		OriginalScore:          originalScore,
		OptimizedScore:         optimizedScore,
	}

	if result.Changed() {
		o.logger.Debug("Query rewritten",
			zap.String("original", original),
			zap.String("optimized", optimized),
			zap.Int("suggestions", len(suggestions)))
	}
	return result
}

// Analyze scores query complexity: +2 wildcard projection, +3 per join,
// +2 per subquery, +1 per aggregate, +2 grouping, +1 ordering, +1 per LIKE.
func Analyze(query string) (int, Complexity) {
	score := 0
	if wildcardPattern.MatchString(query) || qualifiedStar.MatchString(query) {
		score += 2
	}
	score += 3 * len(joinPattern.FindAllStringIndex(query, -1))
	score += 2 * len(subqueryPattern.FindAllStringIndex(query, -1))
	score += len(aggregatePattern.FindAllStringIndex(query, -1))
	if groupByPattern.MatchString(query) {
		score += 2
	}
	if orderByPattern.MatchString(query) {
		score++
	}
	score += len(likePattern.FindAllStringIndex(query, -1))

	switch {
	case score <= 3:
		return score, ComplexityLow
	case score <= 8:
		return score, ComplexityMedium
	default:
		return score, ComplexityHigh
	}
}

// normalizeQuery trims whitespace and trailing semicolons
func normalizeQuery(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), " \t\n\r;")
}

// insertFilter places clause before the first top-level trailing clause, or at the end
func insertFilter(query, clause string) string {
	return insertBefore(query, clause, tailPattern)
}

// appendRowCap adds LIMIT ahead of a locking clause, or at the end
func (o *QueryOptimizer) appendRowCap(query string) string {
	return insertBefore(query, fmt.Sprintf("LIMIT %d", o.rowCap), lockPattern)
}

func insertBefore(query, clause string, before *regexp.Regexp) string {
	loc := findTopLevel(before, query)
	if loc == nil {
		return query + " " + clause
	}
	return strings.TrimRight(query[:loc[0]], " ") + " " + clause + " " + query[loc[0]:]
}

// findTopLevel returns the first match of re that starts outside parentheses and quotes
func findTopLevel(re *regexp.Regexp, query string) []int {
	matches := re.FindAllStringIndex(query, -1)
	if len(matches) == 0 {
		return nil
	}
	mask := topLevelMask(query)
	for _, loc := range matches {
		if mask[loc[0]] {
			return loc
		}
	}
	return nil
}

// topLevelMask marks the bytes of query at parenthesis depth 0 and outside quoted text
func topLevelMask(query string) []bool {
	mask := make([]bool, len(query))
	depth := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		default:
			mask[i] = depth == 0
		}
	}
	return mask
}
