package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/assertions"
	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"github.com/abdul-hamid-achik/hitplan/packages/db"
	"go.uber.org/zap"
)

// SQL runs a statement against a pooled database. Statements returning rows
// store them under Capture as a list of objects; other statements store the
// affected row count. Checks run against columns of the first row and make
// the step a validation.
type SQL struct {
	base
	Pool      *db.Pool
	Database  string
	Statement string
	Capture   string
	Checks    []assertions.Assertion

	failures []string
}

func NewSQL(name string, pool *db.Pool, database, statement string) *SQL {
	if name == "" {
		name = "sql: " + statement
	}
	return &SQL{base: base{name: name}, Pool: pool, Database: database, Statement: statement}
}

func (s *SQL) Validates() bool { return len(s.Checks) > 0 }

func (s *SQL) Clone() step.Step {
	c := *s
	c.Checks = append([]assertions.Assertion(nil), s.Checks...)
	c.failures = nil
	return &c
}

func (s *SQL) ResolveExpressions(resolve func(string) string) {
	s.Database = resolve(s.Database)
	s.Statement = resolve(s.Statement)
	for i := range s.Checks {
		if v, ok := s.Checks[i].Expected.(string); ok {
			s.Checks[i].Expected = resolve(v)
		}
	}
}

func (s *SQL) Execute(ctx context.Context, sc step.Context, log *zap.Logger) (bool, error) {
	if s.Pool == nil {
		return false, errors.New("sql step has no database pool")
	}
	client, err := s.Pool.Get(ctx, s.Database)
	if err != nil {
		return false, err
	}

	if !returnsRows(s.Statement) {
		n, err := client.Exec(ctx, s.Statement)
		if err != nil {
			return false, err
		}
		log.Debug("statement executed", zap.Int64("affected", n))
		if s.Capture != "" {
			sc.Set(s.Capture, n)
		}
		return s.check(nil, log), nil
	}

	res, err := client.Query(ctx, s.Statement)
	if err != nil {
		return false, err
	}
	log.Debug("query executed", zap.Int("rows", len(res.Rows)))
	if s.Capture != "" {
		rows := make([]any, len(res.Rows))
		for i, r := range res.Rows {
			rows[i] = r
		}
		sc.Set(s.Capture, rows)
	}
	return s.check(res, log), nil
}

func (s *SQL) check(res *db.Result, log *zap.Logger) bool {
	s.failures = s.failures[:0]
	if len(s.Checks) == 0 {
		return true
	}
	if res == nil || len(res.Rows) == 0 {
		s.failures = append(s.failures, "query returned no rows")
		return false
	}
	ev := assertions.NewEvaluator(res.Value)
	for _, r := range ev.EvaluateAll(s.Checks) {
		if r.Passed {
			continue
		}
		if _, found := res.Value(r.Subject); !found && r.Operator != string(assertions.OpNotExists) {
			r.Message = fmt.Sprintf("column %q not found in result", r.Subject)
		}
		log.Debug("column check failed", zap.String("column", r.Subject), zap.String("message", r.Message))
		s.failures = append(s.failures, r.Subject+": "+r.Message)
	}
	return len(s.failures) == 0
}

func (s *SQL) Explain() string {
	return strings.Join(s.failures, "; ")
}

func returnsRows(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "VALUES", "EXPLAIN":
		return true
	}
	return strings.Contains(strings.ToUpper(stmt), " RETURNING ")
}
