package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ErrCrossTenantWrite is returned when a row tagged for another tenant is written
var ErrCrossTenantWrite = errors.New("row belongs to another tenant")

const (
	tenantField = "TenantID"
	filterName  = "tenancy:tenant_filter"
)

// installTenantFilter registers callbacks on db so that every statement on a
// model with a TenantID field is restricted to tenantID. Reads, updates and
// deletes get a tenant_id predicate; creates are tagged with tenantID.
func installTenantFilter(db *gorm.DB, tenantID int64) error {
	where := func(tx *gorm.DB) { scopeStatement(tx, tenantID) }
	write := func(tx *gorm.DB) { tagRows(tx, tenantID) }

	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register(filterName+":query", where); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register(filterName+":row", where); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register(filterName+":update_guard", write); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register(filterName+":update", where); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register(filterName+":delete", where); err != nil {
		return err
	}
	return cb.Create().Before("gorm:create").Register(filterName+":create", write)
}

func tenantFieldOf(tx *gorm.DB) *schema.Field {
	if tx.Error != nil || tx.Statement.Schema == nil {
		return nil
	}
	return tx.Statement.Schema.LookUpField(tenantField)
}

func scopeStatement(tx *gorm.DB, tenantID int64) {
	field := tenantFieldOf(tx)
	if field == nil {
		return
	}
	tx.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: tx.Statement.Table, Name: field.DBName},
			Value:  tenantID,
		},
	}})
}

// tagRows sets TenantID on untagged rows and rejects rows tagged for another tenant
func tagRows(tx *gorm.DB, tenantID int64) {
	field := tenantFieldOf(tx)
	if field == nil {
		return
	}

	ctx := tx.Statement.Context
	rv := reflect.Indirect(tx.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := tagRow(ctx, field, reflect.Indirect(rv.Index(i)), tenantID); err != nil {
				_ = tx.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := tagRow(ctx, field, rv, tenantID); err != nil {
			_ = tx.AddError(err)
		}
	}
}

func tagRow(ctx context.Context, field *schema.Field, rv reflect.Value, tenantID int64) error {
	if rv.Kind() != reflect.Struct {
		return nil
	}
	v, zero := field.ValueOf(ctx, rv)
	if !zero {
		if id, ok := v.(int64); ok && id != tenantID {
			return fmt.Errorf("%w: row tenant %d, session tenant %d", ErrCrossTenantWrite, id, tenantID)
		}
		return nil
	}
	if !rv.CanAddr() {
		return nil
	}
	return field.Set(ctx, rv, tenantID)
}
