package document

import "sort"

type Operator int

const (
	OpEqual Operator = iota
	OpArrayContains
)

type Direction int

const (
	Ascending Direction = iota
	Descending
)

type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Query selects documents of a single collection.
// Documents missing the OrderBy field are excluded, like in most document stores.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Operator, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: Normalize(value)})
	return q
}

func (q Query) Order(field string, direction Direction) Query {
	q.OrderBy = field
	q.Direction = direction
	return q
}

func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

func (q Query) Matches(d Document) bool {
	if q.OrderBy != "" && !d.Fields.Has(q.OrderBy) {
		return false
	}
	for _, f := range q.Filters {
		v, ok := d.Fields.Lookup(f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if !Equal(v, f.Value) {
				return false
			}
		case OpArrayContains:
			items, isArray := v.([]any)
			if !isArray || !containsValue(items, f.Value) {
				return false
			}
		}
	}
	return true
}

// Apply filters, sorts and limits a full collection scan.
// Ties on the order field are broken by document id.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			a, _ := out[i].Fields.Lookup(q.OrderBy)
			b, _ := out[j].Fields.Lookup(q.OrderBy)
			c = compareValues(a, b)
		}
		if c == 0 {
			switch {
			case out[i].ID < out[j].ID:
				c = -1
			case out[i].ID > out[j].ID:
				c = 1
			}
		}
		if q.Direction == Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
