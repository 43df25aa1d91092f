package option

import (
	"referralpay/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption is a gorm scope applied by repository queries.
type QueryOption func(*gorm.DB) *gorm.DB

// LockingUpdate adds SELECT ... FOR UPDATE. SQLite has no row locks and
// serializes writers on its own.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		col := clause.Column{Name: c.Field}
		switch c.Operator {
		case EQ:
			return db.Where(clause.Eq{Column: col, Value: c.Value})
		case NEQ:
			return db.Where(clause.Neq{Column: col, Value: c.Value})
		case GT:
			return db.Where(clause.Gt{Column: col, Value: c.Value})
		case GTE:
			return db.Where(clause.Gte{Column: col, Value: c.Value})
		case LT:
			return db.Where(clause.Lt{Column: col, Value: c.Value})
		case LTE:
			return db.Where(clause.Lte{Column: col, Value: c.Value})
		case IN:
			values, _ := c.Value.([]any)
			return db.Where(clause.IN{Column: col, Values: values})
		default:
			_ = db.AddError(gorm.ErrInvalidField)
			return db
		}
	}
}

// Equal matches one column explicitly. Unlike a struct condition it keeps
// zero values, so an empty key matches nothing instead of everything.
func Equal(field string, value any) QueryOption {
	return ApplyOperator(Condition{Field: field, Operator: EQ, Value: value})
}

// ApplyPagination applies keyset pagination over (created_at, id) in
// descending order. It fetches Limit+1 rows so callers can detect a next page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	p = p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		if p.Cursor != "" {
			cursor, err := pagination.DecodeCursor(p.Cursor)
			if err != nil {
				_ = db.AddError(err)
				return db
			}
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		return db.Order("created_at DESC").Order("id DESC").Limit(p.Limit + 1)
	}
}
