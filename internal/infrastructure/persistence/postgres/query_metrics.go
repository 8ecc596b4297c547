package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/covenantwatch/internal/domain/service"
)

const startKey = "covenantwatch:query_start"

// RegisterQueryMetrics times every gorm statement and reports it as
// "<operation>:<table>" through metrics.RecordDBQuery.
func RegisterQueryMetrics(db *gorm.DB, metrics service.Metrics) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			metrics.RecordDBQuery(op+":"+tx.Statement.Table, time.Since(start))
		}
	}

	cb := db.Callback()
	registrations := []error{
		cb.Create().Before("gorm:create").Register("covenantwatch:before_create", before),
		cb.Create().After("gorm:create").Register("covenantwatch:after_create", after("create")),
		cb.Query().Before("gorm:query").Register("covenantwatch:before_query", before),
		cb.Query().After("gorm:query").Register("covenantwatch:after_query", after("query")),
		cb.Update().Before("gorm:update").Register("covenantwatch:before_update", before),
		cb.Update().After("gorm:update").Register("covenantwatch:after_update", after("update")),
		cb.Delete().Before("gorm:delete").Register("covenantwatch:before_delete", before),
		cb.Delete().After("gorm:delete").Register("covenantwatch:after_delete", after("delete")),
		cb.Row().Before("gorm:row").Register("covenantwatch:before_row", before),
		cb.Row().After("gorm:row").Register("covenantwatch:after_row", after("row")),
		cb.Raw().Before("gorm:raw").Register("covenantwatch:before_raw", before),
		cb.Raw().After("gorm:raw").Register("covenantwatch:after_raw", after("raw")),
	}
	for _, err := range registrations {
		if err != nil {
			return err
		}
	}
	return nil
}
