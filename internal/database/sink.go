package database

import (
	"context"
	"fmt"
	"sync"

	"graph-loader/internal/executor"
	"graph-loader/internal/mapping"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SQLSink writes record batches into MySQL through merge inserts. It
// implements executor.Sink: each RunTransaction call is one transaction, so
// a failed batch leaves no partial rows and can be retried as a unit.
type SQLSink struct {
	db       *gorm.DB
	registry *mapping.Registry
	log      *logrus.Entry

	mu      sync.Mutex
	queries map[string]string // schema name -> merge query
}

func NewSQLSink(db *gorm.DB, registry *mapping.Registry, log *logrus.Entry) *SQLSink {
	return &SQLSink{
		db:       db,
		registry: registry,
		log:      log,
		queries:  make(map[string]string),
	}
}

// RunTransaction upserts one batch atomically. op names the registered
// schema the rows belong to. Errors come back classified as transient or
// permanent for the retry loop.
func (s *SQLSink) RunTransaction(ctx context.Context, op any, batch []map[string]any) error {
	name, ok := op.(string)
	if !ok {
		return executor.Permanent(fmt.Errorf("unsupported operation type %T", op))
	}
	schema, err := s.registry.Lookup(name)
	if err != nil {
		return executor.Permanent(err)
	}
	if len(batch) == 0 {
		return nil
	}

	query := s.mergeQuery(schema)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range batch {
			args := make([]any, len(schema.Fields))
			for i, f := range schema.Fields {
				args[i] = row[f.Target]
			}
			if err := tx.Exec(query, args...).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *SQLSink) mergeQuery(schema *mapping.EntitySchema) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[schema.Name]
	if !ok {
		q = buildMergeQuery(schema)
		s.queries[schema.Name] = q
	}
	return q
}
