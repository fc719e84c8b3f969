package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptimize(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		want        string
		suggestions int
	}{
		{
			name:        "wildcard without filter",
			query:       "SELECT * FROM t",
			want:        "SELECT id, created_at FROM t WHERE 1=1 LIMIT 1000",
			suggestions: 2,
		},
		{
			name:        "distinct wildcard",
			query:       "SELECT DISTINCT * FROM t WHERE a = 1 ORDER BY a LIMIT 10",
			want:        "SELECT DISTINCT id, created_at FROM t WHERE a = 1 ORDER BY a LIMIT 10",
			suggestions: 1,
		},
		{
			name:        "filter inserted before ordering",
			query:       "SELECT name FROM users ORDER BY name",
			want:        "SELECT name FROM users WHERE 1=1 ORDER BY name LIMIT 1000",
			suggestions: 1,
		},
		{
			name:        "existing limit kept",
			query:       "SELECT name FROM users LIMIT 5",
			want:        "SELECT name FROM users WHERE 1=1 LIMIT 5",
			suggestions: 1,
		},
		{
			name:        "filter without limit or ordering",
			query:       "SELECT id FROM users WHERE active = true;",
			want:        "SELECT id FROM users WHERE active = true LIMIT 1000",
			suggestions: 2,
		},
		{
			name:        "already bounded",
			query:       "SELECT id FROM users WHERE id = 1 ORDER BY id LIMIT 5",
			want:        "SELECT id FROM users WHERE id = 1 ORDER BY id LIMIT 5",
			suggestions: 0,
		},
		{
			name:        "write with filter is advisory only",
			query:       "UPDATE users SET active = false WHERE id = 2",
			want:        "UPDATE users SET active = false WHERE id = 2",
			suggestions: 1,
		},
		{
			name:        "positional limit parameter",
			query:       "SELECT id FROM users WHERE org = $1 LIMIT $2",
			want:        "SELECT id FROM users WHERE org = $1 LIMIT $2",
			suggestions: 1,
		},
		{
			name:        "placeholder limit",
			query:       "SELECT id FROM users WHERE org = ? ORDER BY id LIMIT ?",
			want:        "SELECT id FROM users WHERE org = ? ORDER BY id LIMIT ?",
			suggestions: 0,
		},
		{
			name:        "parameter limit without filter",
			query:       "SELECT id FROM users LIMIT $1",
			want:        "SELECT id FROM users WHERE 1=1 LIMIT $1",
			suggestions: 1,
		},
		{
			name:        "limit all",
			query:       "SELECT id FROM users WHERE active ORDER BY id LIMIT ALL",
			want:        "SELECT id FROM users WHERE active ORDER BY id LIMIT ALL",
			suggestions: 0,
		},
		{
			name:        "fetch first",
			query:       "SELECT id FROM users WHERE active ORDER BY id FETCH FIRST 10 ROWS ONLY",
			want:        "SELECT id FROM users WHERE active ORDER BY id FETCH FIRST 10 ROWS ONLY",
			suggestions: 0,
		},
		{
			name:        "window ordering stays inside over",
			query:       "SELECT id, row_number() OVER (ORDER BY created_at) AS rn FROM events",
			want:        "SELECT id, row_number() OVER (ORDER BY created_at) AS rn FROM events WHERE 1=1 LIMIT 1000",
			suggestions: 1,
		},
		{
			name:        "locking clause stays last",
			query:       "SELECT id FROM users FOR UPDATE",
			want:        "SELECT id FROM users WHERE 1=1 LIMIT 1000 FOR UPDATE",
			suggestions: 1,
		},
		{
			name:        "row cap before share lock",
			query:       "SELECT id FROM users WHERE id > 10 ORDER BY id FOR SHARE",
			want:        "SELECT id FROM users WHERE id > 10 ORDER BY id LIMIT 1000 FOR SHARE",
			suggestions: 1,
		},
		{
			name:        "subquery limit does not cap outer read",
			query:       "SELECT id FROM users WHERE id IN (SELECT user_id FROM orders LIMIT 5) ORDER BY id",
			want:        "SELECT id FROM users WHERE id IN (SELECT user_id FROM orders LIMIT 5) ORDER BY id LIMIT 1000",
			suggestions: 1,
		},
		{
			name:        "keywords in literals ignored",
			query:       "SELECT 'order by' AS label FROM t",
			want:        "SELECT 'order by' AS label FROM t WHERE 1=1 LIMIT 1000",
			suggestions: 1,
		},
		{
			name:        "lower case keywords",
			query:       "select * from t",
			want:        "SELECT id, created_at from t WHERE 1=1 LIMIT 1000",
			suggestions: 2,
		},
	}

	o := NewQueryOptimizer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.Optimize(tt.query)
			assert.Equal(t, tt.query, got.OriginalQuery)
			assert.Equal(t, tt.want, got.OptimizedQuery)
			assert.Len(t, got.Suggestions, tt.suggestions)
		})
	}
}

func TestOptimizeRemovesWildcard(t *testing.T) {
	got := NewQueryOptimizer(nil).Optimize("SELECT * FROM t")

	assert.NotContains(t, got.OptimizedQuery, "*")
	assert.NotEmpty(t, got.Suggestions)
	assert.True(t, got.Changed())
	assert.Equal(t, 2, got.OriginalScore)
	assert.Equal(t, 0, got.OptimizedScore)
	assert.Equal(t, 20, got.EstimatedTimeReduction)
	assert.Equal(t, ComplexityLow, got.Complexity)
}

func TestOptimizeIndexSuggestionUsesOriginalText(t *testing.T) {
	// the rewrite adds WHERE 1=1, which must not trigger the index advice
	got := NewQueryOptimizer(nil).Optimize("SELECT id FROM t")
	for _, s := range got.Suggestions {
		assert.False(t, strings.Contains(s, "index"), s)
	}
}

func TestOptimizeNeverNegative(t *testing.T) {
	got := NewQueryOptimizer(nil).Optimize("SELECT a FROM t WHERE b = 1 ORDER BY a LIMIT 1")
	assert.Zero(t, got.EstimatedTimeReduction)
	assert.False(t, got.Changed())
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		score      int
		complexity Complexity
	}{
		{"empty", "", 0, ComplexityLow},
		{"plain", "SELECT id FROM t WHERE id = 1", 0, ComplexityLow},
		{"wildcard", "SELECT * FROM t", 2, ComplexityLow},
		{"qualified wildcard", "SELECT t.* FROM t ORDER BY id", 3, ComplexityLow},
		{"aggregates", "SELECT COUNT(*), SUM(x), AVG(y), MIN(z) FROM t", 4, ComplexityMedium},
		{
			"join with grouping",
			"SELECT u.name, COUNT(o.id) FROM users u JOIN orders o ON o.user_id = u.id " +
				"WHERE u.name LIKE 'a%' GROUP BY u.name ORDER BY 2",
			8, ComplexityMedium,
		},
		{
			"two joins",
			"SELECT a.id FROM a JOIN b ON a.id = b.a_id LEFT JOIN c ON c.id = b.c_id GROUP BY a.id ORDER BY a.id",
			9, ComplexityHigh,
		},
		{
			"subqueries",
			"SELECT id FROM t WHERE id IN (SELECT t_id FROM u) AND x IN ( select y FROM v)",
			4, ComplexityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, complexity := Analyze(tt.query)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.complexity, complexity)
		})
	}
}

func TestInsertFilter(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE 1=1", insertFilter("SELECT a FROM t", "WHERE 1=1"))
	assert.Equal(t, "SELECT a FROM t WHERE 1=1 GROUP BY a HAVING COUNT(*) > 1",
		insertFilter("SELECT a FROM t GROUP BY a HAVING COUNT(*) > 1", "WHERE 1=1"))
	assert.Equal(t, "SELECT a FROM t WHERE 1=1 OFFSET 10",
		insertFilter("SELECT a FROM t  OFFSET 10", "WHERE 1=1"))
	assert.Equal(t, "SELECT a, rank() OVER w FROM t WHERE 1=1 WINDOW w AS (ORDER BY a)",
		insertFilter("SELECT a, rank() OVER w FROM t WINDOW w AS (ORDER BY a)", "WHERE 1=1"))
	assert.Equal(t, "SELECT a FROM (SELECT a FROM t ORDER BY a) s WHERE 1=1",
		insertFilter("SELECT a FROM (SELECT a FROM t ORDER BY a) s", "WHERE 1=1"))
}

func TestFindTopLevel(t *testing.T) {
	assert.Nil(t, findTopLevel(rowCapPattern, "SELECT a FROM (SELECT a FROM t LIMIT 1) s"))
	assert.Nil(t, findTopLevel(wherePattern, `SELECT "where" FROM t`))
	assert.Equal(t, []int{9, 14}, findTopLevel(wherePattern, "SELECT a WHERE (b)"))
}
