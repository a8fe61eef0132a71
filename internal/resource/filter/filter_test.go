package filter

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsar-labs/pulse/internal/domain"
)

func testBuilder(columns ...string) *Builder {
	if len(columns) == 0 {
		columns = []string{"id", "name", "email", "age", "active", "deleted_at"}
	}
	return NewBuilder(columns, slog.Default())
}

func TestNodeUnmarshal(t *testing.T) {
	t.Run("leaf", func(t *testing.T) {
		var n Node
		require.NoError(t, json.Unmarshal([]byte(`{"field":"name","operator":"eq","value":"ana"}`), &n))
		require.NotNil(t, n.Leaf)
		assert.Nil(t, n.Group)
		assert.Equal(t, "name", n.Leaf.Field)
		assert.Equal(t, "eq", n.Leaf.Operator)
	})

	t.Run("group", func(t *testing.T) {
		raw := `{"operator":"or","conditions":[
			{"field":"age","operator":"gt","value":30},
			{"field":"active","operator":"eq","value":true}
		]}`
		var n Node
		require.NoError(t, json.Unmarshal([]byte(raw), &n))
		require.NotNil(t, n.Group)
		assert.Nil(t, n.Leaf)
		assert.Equal(t, OpOr, n.Group.Operator)
		assert.Len(t, n.Group.Conditions, 2)
	})

	t.Run("nested group", func(t *testing.T) {
		raw := `{"operator":"and","conditions":[
			{"field":"name","operator":"eq","value":"ana"},
			{"operator":"or","conditions":[
				{"field":"age","operator":"lt","value":18},
				{"field":"age","operator":"gt","value":65}
			]}
		]}`
		var n Node
		require.NoError(t, json.Unmarshal([]byte(raw), &n))
		require.NotNil(t, n.Group)
		require.NotNil(t, n.Group.Conditions[1].Group)
	})
}

func TestQueryNormalize(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantCode string
		check    func(t *testing.T, q *Query)
	}{
		{
			name:  "defaults",
			query: Query{},
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, OpAnd, q.Operator)
				assert.Equal(t, "asc", q.OrderDirection)
				assert.Equal(t, DefaultLimit, q.Limit)
			},
		},
		{
			name:     "bad operator",
			query:    Query{Operator: "xor"},
			wantCode: domain.ErrValidationFailed.Code,
		},
		{
			name:     "bad direction",
			query:    Query{OrderDirection: "sideways"},
			wantCode: domain.ErrValidationFailed.Code,
		},
		{
			name:     "limit too large",
			query:    Query{Limit: MaxLimit + 1},
			wantCode: domain.ErrInvalidLimit.Code,
		},
		{
			name:     "negative offset",
			query:    Query{Offset: -1},
			wantCode: domain.ErrInvalidOffset.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Normalize()
			if tt.wantCode != "" {
				var appErr *domain.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.wantCode, appErr.Code)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, &tt.query)
			}
		})
	}
}

func TestBuilderWhere_Comparisons(t *testing.T) {
	tests := []struct {
		operator string
		want     string
	}{
		{"eq", "name = $1"},
		{"ne", "name != $1"},
		{"gt", "name > $1"},
		{"gte", "name >= $1"},
		{"lt", "name < $1"},
		{"lte", "name <= $1"},
	}

	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			b := testBuilder()
			pb := &ParamBuilder{}
			q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "name", Operator: tt.operator, Value: "x"}}}}

			expr, err := b.Where(q, pb)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr)
			assert.Equal(t, []any{"x"}, pb.Params())
		})
	}
}

func TestBuilderWhere_TextOperators(t *testing.T) {
	b := testBuilder()

	t.Run("contains wraps with wildcards", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "name", Operator: "contains", Value: "an"}}}}
		expr, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, `name LIKE $1 ESCAPE '\'`, expr)
		assert.Equal(t, []any{"%an%"}, pb.Params())
	})

	t.Run("icontains uses ILIKE", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "name", Operator: "icontains", Value: "An"}}}}
		expr, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, `name ILIKE $1 ESCAPE '\'`, expr)
	})

	t.Run("startswith and endswith anchor the pattern", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{
			{Leaf: &Condition{Field: "name", Operator: "startswith", Value: "an"}},
			{Leaf: &Condition{Field: "name", Operator: "endswith", Value: "na"}},
		}}
		_, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, []any{"an%", "%na"}, pb.Params())
	})

	t.Run("escapes like metacharacters", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "name", Operator: "contains", Value: `50%_off\`}}}}
		_, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, []any{`%50\%\_off\\%`}, pb.Params())
	})

	t.Run("rejects non-string value", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "name", Operator: "contains", Value: 42}}}}
		_, err := b.Where(q, pb)
		assert.Error(t, err)
	})
}

func TestBuilderWhere_Membership(t *testing.T) {
	b := testBuilder()

	t.Run("in expands placeholders", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{
			Field: "age", Operator: "in", Value: []interface{}{1, 2, 3},
		}}}}
		expr, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, "age IN ($1, $2, $3)", expr)
		assert.Equal(t, []any{1, 2, 3}, pb.Params())
	})

	t.Run("not_in", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{
			Field: "age", Operator: "not_in", Value: []interface{}{18},
		}}}}
		expr, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, "age NOT IN ($1)", expr)
	})

	t.Run("empty in matches nothing", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{
			Field: "age", Operator: "in", Value: []interface{}{},
		}}}}
		expr, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, "FALSE", expr)
	})

	t.Run("empty not_in matches everything", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{
			Field: "age", Operator: "not_in", Value: []interface{}{},
		}}}}
		expr, err := b.Where(q, pb)
		require.NoError(t, err)
		assert.Equal(t, "", expr)
	})

	t.Run("rejects non-list value", func(t *testing.T) {
		pb := &ParamBuilder{}
		q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "age", Operator: "in", Value: "oops"}}}}
		_, err := b.Where(q, pb)
		assert.Error(t, err)
	})
}

func TestBuilderWhere_NullChecks(t *testing.T) {
	b := testBuilder()
	pb := &ParamBuilder{}
	q := &Query{
		Operator: OpOr,
		Conditions: []Node{
			{Leaf: &Condition{Field: "deleted_at", Operator: "is_null"}},
			{Leaf: &Condition{Field: "deleted_at", Operator: "is_not_null"}},
		},
	}

	expr, err := b.Where(q, pb)
	require.NoError(t, err)
	assert.Equal(t, "deleted_at IS NULL OR deleted_at IS NOT NULL", expr)
	assert.Empty(t, pb.Params())
}

func TestBuilderWhere_Groups(t *testing.T) {
	b := testBuilder()
	pb := &ParamBuilder{}
	q := &Query{
		Operator: OpAnd,
		Conditions: []Node{
			{Leaf: &Condition{Field: "active", Operator: "eq", Value: true}},
			{Group: &Group{
				Operator: OpOr,
				Conditions: []Node{
					{Leaf: &Condition{Field: "age", Operator: "lt", Value: 18}},
					{Leaf: &Condition{Field: "age", Operator: "gt", Value: 65}},
				},
			}},
		},
	}

	expr, err := b.Where(q, pb)
	require.NoError(t, err)
	assert.Equal(t, "active = $1 AND (age < $2 OR age > $3)", expr)
	assert.Equal(t, []any{true, 18, 65}, pb.Params())
}

func TestBuilderWhere_DropsUnknownFields(t *testing.T) {
	b := testBuilder("id", "name")
	pb := &ParamBuilder{}
	q := &Query{Conditions: []Node{
		{Leaf: &Condition{Field: "name", Operator: "eq", Value: "ana"}},
		{Leaf: &Condition{Field: "password_hash", Operator: "eq", Value: "x"}},
	}}

	expr, err := b.Where(q, pb)
	require.NoError(t, err)
	assert.Equal(t, "name = $1", expr)
	assert.Equal(t, []any{"ana"}, pb.Params())
}

func TestBuilderWhere_UnknownOperator(t *testing.T) {
	b := testBuilder()
	pb := &ParamBuilder{}
	q := &Query{Conditions: []Node{{Leaf: &Condition{Field: "name", Operator: "regex", Value: ".*"}}}}

	_, err := b.Where(q, pb)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.ErrInvalidOperator.Code, appErr.Code)
}

func TestBuilderWhere_EmptyConditions(t *testing.T) {
	b := testBuilder()
	pb := &ParamBuilder{}

	expr, err := b.Where(&Query{}, pb)
	require.NoError(t, err)
	assert.Equal(t, "", expr)
}

func TestBuilderOrder(t *testing.T) {
	b := testBuilder("id", "name", "age")

	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"default", Query{}, "ORDER BY id ASC"},
		{"known column", Query{OrderBy: "name", OrderDirection: "desc"}, "ORDER BY name DESC, id ASC"},
		{"ascending", Query{OrderBy: "age", OrderDirection: "asc"}, "ORDER BY age ASC, id ASC"},
		{"id itself", Query{OrderBy: "id", OrderDirection: "desc"}, "ORDER BY id DESC"},
		{"unknown column falls back", Query{OrderBy: "secret"}, "ORDER BY id ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Order(&tt.query))
		})
	}
}
