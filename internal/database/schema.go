package database

import (
	"fmt"
	"strings"

	"graph-loader/internal/mapping"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnsureSchema creates the target table for a schema if it does not exist.
// Merge semantics depend on a unique key over the schema's key columns, so
// the key constraint is part of the table definition.
func EnsureSchema(db *gorm.DB, schema *mapping.EntitySchema, log *logrus.Entry) error {
	ddl := buildCreateTable(schema)
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("failed to create table %s: %w", schema.Table, err)
	}
	log.Infof("Table %s created or already exists", schema.Table)
	return nil
}

func buildCreateTable(schema *mapping.EntitySchema) string {
	key := make(map[string]bool, len(schema.Key))
	for _, k := range schema.Key {
		key[k] = true
	}

	var defs []string
	for _, f := range schema.Fields {
		defs = append(defs, fmt.Sprintf("`%s` %s", f.Target, columnDDL(f, key[f.Target])))
	}

	var quoted []string
	for _, k := range schema.Key {
		quoted = append(quoted, fmt.Sprintf("`%s`", k))
	}
	defs = append(defs, fmt.Sprintf("UNIQUE KEY `uk_%s` (%s)", schema.Table, strings.Join(quoted, ", ")))

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", schema.Table, strings.Join(defs, ", "))
}

// columnDDL maps a field type to a MySQL column type. Key columns must be
// indexable, so string keys get a bounded VARCHAR instead of TEXT.
func columnDDL(f mapping.Field, isKey bool) string {
	switch f.Type {
	case mapping.TypeInt:
		return "BIGINT"
	case mapping.TypeFloat:
		return "DOUBLE"
	case mapping.TypeBool:
		return "TINYINT(1)"
	default:
		if isKey {
			n := f.MaxLen
			if n <= 0 || n > 255 {
				n = 255
			}
			return fmt.Sprintf("VARCHAR(%d) NOT NULL", n)
		}
		if f.MaxLen > 0 && f.MaxLen <= 255 {
			return fmt.Sprintf("VARCHAR(%d)", f.MaxLen)
		}
		return "TEXT"
	}
}

// CountRows returns the number of rows currently in table.
func CountRows(db *gorm.DB, table string) (int64, error) {
	var n int64
	if err := db.Raw(countRowsQuery(table)).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return n, nil
}

func countRowsQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s`", table)
}

// buildMergeQuery builds an INSERT ... ON DUPLICATE KEY UPDATE query so the
// same batch can be replayed without creating duplicate rows.
func buildMergeQuery(schema *mapping.EntitySchema) string {
	key := make(map[string]bool, len(schema.Key))
	for _, k := range schema.Key {
		key[k] = true
	}

	var columnNames []string
	var placeholders []string
	var updateParts []string

	for _, f := range schema.Fields {
		columnNames = append(columnNames, fmt.Sprintf("`%s`", f.Target))
		placeholders = append(placeholders, "?")
		if !key[f.Target] {
			updateParts = append(updateParts, fmt.Sprintf("`%s` = VALUES(`%s`)", f.Target, f.Target))
		}
	}

	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		schema.Table,
		strings.Join(columnNames, ", "),
		strings.Join(placeholders, ", "))

	if len(updateParts) > 0 {
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(updateParts, ", ")
	} else {
		// key-only tables (relationship endpoints) just need idempotence
		first := schema.Fields[0].Target
		query += fmt.Sprintf(" ON DUPLICATE KEY UPDATE `%s` = `%s`", first, first)
	}

	return query
}
