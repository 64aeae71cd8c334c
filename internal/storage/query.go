package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	ferrors "finledger/internal/errors"
	"finledger/internal/schema"
)

// Op is a comparison operator in a query condition.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	// OpContains matches array fields holding Value, or string fields containing it
	OpContains Op = "contains"
)

// Cond is a single field condition. Conditions in a Query are ANDed.
type Cond struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Query is a declarative read over one table. Comparison follows SQLite
// ordering: missing/null < numbers < text; booleans compare as 0/1.
// Results are ordered by OrderBy (ties broken by id), or by id when OrderBy is empty.
type Query struct {
	Table   string `json:"table"`
	Where   []Cond `json:"where,omitempty"`
	OrderBy string `json:"orderBy,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	// UserID restricts results to records whose userId equals it
	UserID string `json:"userId,omitempty"`
}

// From starts a query on table.
func From(table string) Query {
	return Query{Table: table}
}

// Filter returns q with an added condition.
func (q Query) Filter(field string, op Op, value any) Query {
	where := make([]Cond, len(q.Where), len(q.Where)+1)
	copy(where, q.Where)
	q.Where = append(where, Cond{Field: field, Op: op, Value: value})
	return q
}

// Sort returns q ordered by field.
func (q Query) Sort(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// Take returns q limited to n records.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// ForUser returns q scoped to a user id.
func (q Query) ForUser(userID string) Query {
	q.UserID = userID
	return q
}

// Conditions returns Where plus the user scope as a condition.
func (q Query) Conditions() []Cond {
	if q.UserID == "" {
		return q.Where
	}
	out := make([]Cond, 0, len(q.Where)+1)
	out = append(out, q.Where...)
	return append(out, Cond{Field: "userId", Op: OpEq, Value: q.UserID})
}

// Validate checks field names and operators.
func (q Query) Validate() error {
	if !schema.ValidTableName(q.Table) {
		return ferrors.Newf(ferrors.UnknownTable, "invalid table name %q", q.Table)
	}
	for _, c := range q.Where {
		if !schema.ValidField(c.Field) {
			return ferrors.Newf(ferrors.ValidationFailed, "invalid query field %q", c.Field)
		}
		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
		default:
			return ferrors.Newf(ferrors.ValidationFailed, "invalid query operator %q", c.Op)
		}
	}
	if q.OrderBy != "" && !schema.ValidField(q.OrderBy) {
		return ferrors.Newf(ferrors.ValidationFailed, "invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return ferrors.Newf(ferrors.ValidationFailed, "negative limit %d", q.Limit)
	}
	return nil
}

// jsonPath converts a validated dotted field to a SQLite JSON path literal.
func jsonPath(field string) string {
	return "'$." + field + "'"
}

// buildSQL renders q as a SELECT over the doc table. Field paths are validated
// identifiers and inlined so the expression indexes can match; values are bound.
func buildSQL(q Query, count bool) (string, []any) {
	var sb strings.Builder
	if count {
		sb.WriteString("SELECT COUNT(*) FROM ")
	} else {
		sb.WriteString("SELECT doc FROM ")
	}
	sb.WriteString(quoteIdent(q.Table))

	where, args := whereSQL(q.Conditions())
	sb.WriteString(where)

	if count {
		return sb.String(), args
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY json_extract(doc, %s) %s, id ASC", jsonPath(q.OrderBy), dir)
	} else {
		fmt.Fprintf(&sb, " ORDER BY id %s", dir)
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return sb.String(), args
}

func whereSQL(conds []Cond) (string, []any) {
	if len(conds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		expr := "json_extract(doc, " + jsonPath(c.Field) + ")"
		v := sqlValue(c.Value)
		switch c.Op {
		case OpEq:
			clauses = append(clauses, expr+" = ?")
		case OpNe:
			// SQL "!=" drops NULLs; a missing field is "not equal" to any value
			clauses = append(clauses, "("+expr+" IS NULL OR "+expr+" != ?)")
		case OpGt:
			clauses = append(clauses, expr+" > ?")
		case OpGte:
			clauses = append(clauses, expr+" >= ?")
		case OpLt:
			clauses = append(clauses, expr+" < ?")
		case OpLte:
			clauses = append(clauses, expr+" <= ?")
		case OpContains:
			clauses = append(clauses, fmt.Sprintf(
				"(CASE json_type(doc, %[1]s) WHEN 'array' THEN EXISTS (SELECT 1 FROM json_each(doc, %[1]s) WHERE value = ?) WHEN 'text' THEN instr(%[2]s, ?) > 0 ELSE 0 END)",
				jsonPath(c.Field), expr))
			args = append(args, v)
		}
		args = append(args, v)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// sqlValue normalizes a condition value into something SQLite compares the way
// json_extract returns document values.
func sqlValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case decimal.Decimal:
		if x.IsInteger() {
			return x.IntPart()
		}
		f, _ := x.Float64()
		return f
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return float64(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Match reports whether rec satisfies every condition of q, using the same
// semantics as the SQL the store runs. Used by adapters that filter in memory.
func Match(q Query, rec Record) bool {
	for _, c := range q.Conditions() {
		if !matchCond(c, rec) {
			return false
		}
	}
	return true
}

func matchCond(c Cond, rec Record) bool {
	raw, ok := rec.Field(c.Field)
	want := sqlValue(c.Value)

	if c.Op == OpContains {
		if !ok {
			return false
		}
		switch x := raw.(type) {
		case []any:
			for _, el := range x {
				if compareValues(sqlValue(el), want) == 0 && sqlValue(el) != nil && want != nil {
					return true
				}
			}
			return false
		case string:
			s, isStr := want.(string)
			if !isStr {
				s = fmt.Sprint(want)
			}
			return strings.Contains(x, s)
		default:
			return false
		}
	}

	var got any
	if ok {
		got = scalar(raw)
	}
	if c.Op == OpNe {
		if got == nil {
			return true
		}
		if want == nil {
			return false
		}
		return compareValues(got, want) != 0
	}
	// NULL on either side never satisfies a comparison
	if got == nil || want == nil {
		return false
	}
	cmp := compareValues(got, want)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// scalar maps a decoded document value to what json_extract yields for it.
// Objects and arrays come back as JSON text.
func scalar(v any) any {
	switch x := v.(type) {
	case map[string]any, []any, Record:
		data, _ := json.Marshal(x)
		return string(data)
	default:
		return sqlValue(x)
	}
}

// compareValues orders nil < numbers < text.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	default:
		return strings.Compare(a.(string), b.(string))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	default:
		return 2
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// SortRecords orders records the way q's ORDER BY does.
func SortRecords(q Query, recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if q.OrderBy != "" {
			var a, b any
			if v, ok := recs[i].Field(q.OrderBy); ok {
				a = scalar(v)
			}
			if v, ok := recs[j].Field(q.OrderBy); ok {
				b = scalar(v)
			}
			if cmp := compareValues(a, b); cmp != 0 {
				if q.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return recs[i].ID() < recs[j].ID()
		}
		if q.Desc {
			return recs[i].ID() > recs[j].ID()
		}
		return recs[i].ID() < recs[j].ID()
	})
}

// Apply filters, sorts and limits recs in memory.
func Apply(q Query, recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if Match(q, r) {
			out = append(out, r)
		}
	}
	SortRecords(q, out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
