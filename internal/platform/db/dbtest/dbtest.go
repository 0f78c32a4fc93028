// Package dbtest opens gorm over go-sqlmock with the postgres dialect, so
// store tests can assert the SQL the production stores generate.
package dbtest

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recorder keeps every statement that matched an expectation.
type Recorder struct {
	mu    sync.Mutex
	stmts []string
}

func (r *Recorder) add(sql string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, sql)
}

// Statements returns the matched statements in execution order.
func (r *Recorder) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stmts...)
}

// Last returns the most recent matched statement, or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stmts) == 0 {
		return ""
	}
	return r.stmts[len(r.stmts)-1]
}

// New returns a gorm handle with the production error translation and no
// implicit transactions around writes. An expectation matches when the
// executed SQL contains its text.
func New(t testing.TB) (*gorm.DB, sqlmock.Sqlmock, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	matcher := sqlmock.QueryMatcherFunc(func(expected, actual string) error {
		if !strings.Contains(actual, expected) {
			return fmt.Errorf("sql %q does not contain %q", actual, expected)
		}
		rec.add(actual)
		return nil
	})
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		TranslateError:         true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return gdb, mock, rec
}
