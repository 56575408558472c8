package gateway

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Op is a filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
)

// MaxInValues is the largest value list an "in" filter accepts. Callers with
// more values must chunk.
const MaxInValues = 10

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Filter restricts a query to documents whose field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	// Sort names the field results are ordered by, ascending. Ties and
	// unsorted queries fall back to document id.
	Sort string
}

// From starts a query over collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: Normalize(value)})
	return q
}

// OrderBy returns a copy of q sorted ascending by field.
func (q Query) OrderBy(field string) Query {
	q.Sort = field
	return q
}

// Validate checks the query against the gateway's capabilities.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: missing collection", ErrInvalidQuery)
	}
	if q.Sort != "" && !fieldPattern.MatchString(q.Sort) {
		return fmt.Errorf("%w: bad sort field %q", ErrInvalidQuery, q.Sort)
	}
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("%w: bad field %q", ErrInvalidQuery, f.Field)
		}
		switch f.Op {
		case OpEqual, OpArrayContains:
		case OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return fmt.Errorf("%w: %q filter needs a list", ErrInvalidQuery, f.Op)
			}
			if len(values) == 0 {
				return fmt.Errorf("%w: empty %q filter", ErrInvalidQuery, f.Op)
			}
			if len(values) > MaxInValues {
				return fmt.Errorf("%w: %d > %d", ErrTooManyValues, len(values), MaxInValues)
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

// Matches reports whether doc belongs to the result set of q. A nil doc
// never matches.
func (q Query) Matches(collection string, doc *Document) bool {
	if doc == nil || collection != q.Collection {
		return false
	}
	for _, f := range q.Filters {
		if !f.matches(doc.Fields) {
			return false
		}
	}
	return true
}

func (f Filter) matches(fields Fields) bool {
	v, ok := fields[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return Equal(v, f.Value)
	case OpIn:
		values, _ := f.Value.([]any)
		return containsValue(values, v)
	case OpArrayContains:
		values, ok := Normalize(v).([]any)
		return ok && containsValue(values, f.Value)
	default:
		return false
	}
}

// SortDocuments orders docs the way q's results are ordered.
func (q Query) SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if q.Sort != "" {
			if c := Compare(docs[i].Fields[q.Sort], docs[j].Fields[q.Sort]); c != 0 {
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
}

func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&sb, " %s %s %v", f.Field, f.Op, f.Value)
	}
	if q.Sort != "" {
		fmt.Fprintf(&sb, " order by %s", q.Sort)
	}
	return sb.String()
}
