package repository

import "time"

// WithID filters by the "id" column.
func WithID(id string) Option {
	return WithCondition("id", id)
}

// WithIDIn filters by the "id" column using IN.
func WithIDIn(ids []string) Option {
	return WithConditionIn("id", ids)
}

// WithUnit filters by the "unit" column.
func WithUnit(unit string) Option {
	return WithCondition("unit", unit)
}

// WithUnitIn filters by the "unit" column using IN.
func WithUnitIn(units []string) Option {
	return WithConditionIn("unit", units)
}

// WithUseCategoryIn filters by the "use_category" column using IN.
func WithUseCategoryIn(categories []string) Option {
	return WithConditionIn("use_category", categories)
}

// WithSKULike filters by the "sku" column using a LIKE pattern.
func WithSKULike(pattern string) Option {
	return WithLike("sku", pattern)
}

// WithCreatedBetween filters by created_at in the half-open range [from, to).
func WithCreatedBetween(from, to *time.Time) Option {
	return WithRange("created_at", timeOrNil(from), timeOrNil(to))
}

// WithUpdatedBetween filters by updated_at in the half-open range [from, to).
func WithUpdatedBetween(from, to *time.Time) Option {
	return WithRange("updated_at", timeOrNil(from), timeOrNil(to))
}

// WithSupplierID filters by the "supplier_id" column.
func WithSupplierID(id string) Option {
	return WithCondition("supplier_id", id)
}

// WithPricelistID filters by the "pricelist_id" column.
func WithPricelistID(id string) Option {
	return WithCondition("pricelist_id", id)
}

// WithRequestID filters by the "request_id" column.
func WithRequestID(id string) Option {
	return WithCondition("request_id", id)
}

// WithStatus filters by the "status" column.
func WithStatus(status string) Option {
	return WithCondition("status", status)
}

// WithDayBetween filters analytics buckets by day in [from, to).
func WithDayBetween(from, to string) Option {
	var f, t any
	if from != "" {
		f = from
	}
	if to != "" {
		t = to
	}
	return WithRange("day", f, t)
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
