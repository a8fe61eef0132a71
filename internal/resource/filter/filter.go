package filter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsar-labs/pulse/internal/domain"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	OpAnd = "and"
	OpOr  = "or"
)

// Condition is a leaf predicate over a single column.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// Group combines nested nodes with a boolean operator.
type Group struct {
	Conditions []Node `json:"conditions"`
	Operator   string `json:"operator"`
}

// Node is either a leaf condition or a nested group.
type Node struct {
	Leaf  *Condition
	Group *Group
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var probe struct {
		Field      string          `json:"field"`
		Conditions json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Conditions != nil {
		var g Group
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		n.Group = &g
		return nil
	}

	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	n.Leaf = &c
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Group != nil {
		return json.Marshal(n.Group)
	}
	return json.Marshal(n.Leaf)
}

// Query is the structured filter accepted by the filter endpoints.
type Query struct {
	Conditions     []Node `json:"conditions"`
	Operator       string `json:"operator"`
	OrderBy        string `json:"order_by"`
	OrderDirection string `json:"order_direction"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}

// Normalize applies defaults and validates ranges.
func (q *Query) Normalize() error {
	if q.Operator == "" {
		q.Operator = OpAnd
	}
	if q.Operator != OpAnd && q.Operator != OpOr {
		return domain.NewValidationError("operator must be and or or")
	}
	if q.OrderDirection == "" {
		q.OrderDirection = "asc"
	}
	if q.OrderDirection != "asc" && q.OrderDirection != "desc" {
		return domain.NewValidationError("order_direction must be asc or desc")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return domain.ErrInvalidLimit
	}
	if q.Offset < 0 {
		return domain.ErrInvalidOffset
	}
	return nil
}

// ParamBuilder accumulates positional SQL parameters.
type ParamBuilder struct {
	params []any
	n      int
}

func (p *ParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *ParamBuilder) Params() []any {
	return p.params
}

// Builder turns a Query into a parameterized WHERE expression against
// an allow-list of columns. Conditions naming unknown columns are
// dropped with a warning rather than failing the whole query.
type Builder struct {
	columns map[string]bool
	logger  *slog.Logger
}

func NewBuilder(columns []string, logger *slog.Logger) *Builder {
	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}
	return &Builder{columns: allowed, logger: logger}
}

// Where builds the boolean expression for q's condition set. An empty
// or fully-dropped condition set returns "" (match all).
func (b *Builder) Where(q *Query, pb *ParamBuilder) (string, error) {
	return b.combine(q.Conditions, q.Operator, pb)
}

func (b *Builder) combine(nodes []Node, op string, pb *ParamBuilder) (string, error) {
	var parts []string
	for _, node := range nodes {
		switch {
		case node.Group != nil:
			groupOp := node.Group.Operator
			if groupOp == "" {
				groupOp = OpAnd
			}
			if groupOp != OpAnd && groupOp != OpOr {
				return "", domain.NewValidationError("group operator must be and or or")
			}
			expr, err := b.combine(node.Group.Conditions, groupOp, pb)
			if err != nil {
				return "", err
			}
			if expr != "" {
				parts = append(parts, "("+expr+")")
			}
		case node.Leaf != nil:
			expr, err := b.leaf(node.Leaf, pb)
			if err != nil {
				return "", err
			}
			if expr != "" {
				parts = append(parts, expr)
			}
		}
	}

	if len(parts) == 0 {
		return "", nil
	}

	joiner := " AND "
	if op == OpOr {
		joiner = " OR "
	}
	return strings.Join(parts, joiner), nil
}

func (b *Builder) leaf(c *Condition, pb *ParamBuilder) (string, error) {
	if !b.columns[c.Field] {
		b.logger.Warn("dropping condition on unknown field", "field", c.Field)
		return "", nil
	}

	switch c.Operator {
	case "eq":
		return fmt.Sprintf("%s = %s", c.Field, pb.Add(c.Value)), nil
	case "ne":
		return fmt.Sprintf("%s != %s", c.Field, pb.Add(c.Value)), nil
	case "gt":
		return fmt.Sprintf("%s > %s", c.Field, pb.Add(c.Value)), nil
	case "gte":
		return fmt.Sprintf("%s >= %s", c.Field, pb.Add(c.Value)), nil
	case "lt":
		return fmt.Sprintf("%s < %s", c.Field, pb.Add(c.Value)), nil
	case "lte":
		return fmt.Sprintf("%s <= %s", c.Field, pb.Add(c.Value)), nil
	case "contains":
		return b.like(c, pb, "LIKE", "%%%s%%")
	case "icontains":
		return b.like(c, pb, "ILIKE", "%%%s%%")
	case "startswith":
		return b.like(c, pb, "LIKE", "%s%%")
	case "endswith":
		return b.like(c, pb, "LIKE", "%%%s")
	case "in":
		return b.membership(c, pb, "IN")
	case "not_in":
		return b.membership(c, pb, "NOT IN")
	case "is_null":
		return fmt.Sprintf("%s IS NULL", c.Field), nil
	case "is_not_null":
		return fmt.Sprintf("%s IS NOT NULL", c.Field), nil
	default:
		return "", domain.ErrInvalidOperator.WithError(fmt.Errorf("operator %q", c.Operator))
	}
}

func (b *Builder) like(c *Condition, pb *ParamBuilder, op, pattern string) (string, error) {
	s, ok := c.Value.(string)
	if !ok {
		return "", domain.NewValidationError(fmt.Sprintf("%s requires a string value for field %s", c.Operator, c.Field))
	}
	value := fmt.Sprintf(pattern, escapeLike(s))
	return fmt.Sprintf(`%s %s %s ESCAPE '\'`, c.Field, op, pb.Add(value)), nil
}

func (b *Builder) membership(c *Condition, pb *ParamBuilder, op string) (string, error) {
	values, ok := c.Value.([]interface{})
	if !ok {
		return "", domain.NewValidationError(fmt.Sprintf("%s requires a list value for field %s", c.Operator, c.Field))
	}
	if len(values) == 0 {
		// An empty IN matches nothing; an empty NOT IN matches everything.
		if op == "IN" {
			return "FALSE", nil
		}
		return "", nil
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s %s (%s)", c.Field, op, strings.Join(placeholders, ", ")), nil
}

// Order builds the ORDER BY clause, tie-breaking by id ascending.
func (b *Builder) Order(q *Query) string {
	if q.OrderBy == "" || !b.columns[q.OrderBy] {
		if q.OrderBy != "" {
			b.logger.Warn("dropping order by unknown field", "field", q.OrderBy)
		}
		return "ORDER BY id ASC"
	}

	dir := "ASC"
	if q.OrderDirection == "desc" {
		dir = "DESC"
	}
	if q.OrderBy == "id" {
		return fmt.Sprintf("ORDER BY id %s", dir)
	}
	return fmt.Sprintf("ORDER BY %s %s, id ASC", q.OrderBy, dir)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
