// Package repository provides the query option DSL shared by all stores.
package repository

import "fmt"

// Option applies a modification to a Query.
type Option func(Query) Query

// Query holds conditions, ordering, and pagination for store lookups.
type Query struct {
	conditions []Condition
	orders     []Order
	limit      int
	offset     int
}

// Build creates a Query from a set of options.
func Build(options ...Option) Query {
	q := Query{}
	for _, opt := range options {
		q = opt(q)
	}
	return q
}

// Conditions returns the query conditions.
func (q Query) Conditions() []Condition {
	result := make([]Condition, len(q.conditions))
	copy(result, q.conditions)
	return result
}

// Orders returns the query ordering specifications.
func (q Query) Orders() []Order {
	result := make([]Order, len(q.orders))
	copy(result, q.orders)
	return result
}

// LimitValue returns the limit (0 means no limit).
func (q Query) LimitValue() int { return q.limit }

// OffsetValue returns the offset.
func (q Query) OffsetValue() int { return q.offset }

// Op identifies the comparison a Condition applies.
type Op int

// Op values.
const (
	OpEqual Op = iota
	OpIn
	OpLike
	OpGTE
	OpLT
)

// Condition represents a single query condition.
type Condition struct {
	field string
	op    Op
	value any
}

// Field returns the condition field name.
func (c Condition) Field() string { return c.field }

// Operator returns the comparison operator.
func (c Condition) Operator() Op { return c.op }

// Value returns the condition value.
func (c Condition) Value() any { return c.value }

// String returns a readable representation.
func (c Condition) String() string {
	return fmt.Sprintf("%s op=%d %v", c.field, c.op, c.value)
}

// Order represents a sort specification.
type Order struct {
	field     string
	ascending bool
}

// Field returns the order field name.
func (o Order) Field() string { return o.field }

// Ascending returns true for ASC, false for DESC.
func (o Order) Ascending() bool { return o.ascending }

// --- Generic options reused across all stores ---

// WithCondition adds a field = value equality condition.
// Domain packages use this to define their own typed options.
func WithCondition(field string, value any) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{field: field, op: OpEqual, value: value})
		return q
	}
}

// WithConditionIn adds a field IN (values) condition.
func WithConditionIn(field string, values any) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{field: field, op: OpIn, value: values})
		return q
	}
}

// WithLike adds a field LIKE pattern condition.
func WithLike(field, pattern string) Option {
	return func(q Query) Query {
		q.conditions = append(q.conditions, Condition{field: field, op: OpLike, value: pattern})
		return q
	}
}

// WithRange adds a half-open [from, to) range over a field. Either side may
// be nil to leave that bound unconstrained.
func WithRange(field string, from, to any) Option {
	return func(q Query) Query {
		if from != nil {
			q.conditions = append(q.conditions, Condition{field: field, op: OpGTE, value: from})
		}
		if to != nil {
			q.conditions = append(q.conditions, Condition{field: field, op: OpLT, value: to})
		}
		return q
	}
}

// WithOrder adds an ordering specification.
func WithOrder(field string, ascending bool) Option {
	return func(q Query) Query {
		q.orders = append(q.orders, Order{field: field, ascending: ascending})
		return q
	}
}

// WithLimit caps the number of returned rows.
func WithLimit(n int) Option {
	return func(q Query) Query {
		q.limit = n
		return q
	}
}

// WithOffset skips the first n rows.
func WithOffset(n int) Option {
	return func(q Query) Query {
		q.offset = n
		return q
	}
}
