// Package store is the staging store: named tables written whole from frames
// and read back with read-only SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"pedestrian_staging/logger"
	"pedestrian_staging/pipeerr"
)

// Mode controls what Write does when the table already exists
type Mode int

const (
	// ModeFail refuses to touch an existing table
	ModeFail Mode = iota
	// ModeReplace drops and recreates the table
	ModeReplace
	// ModeAppend inserts additional rows, creating the table if missing
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModeAppend:
		return "append"
	default:
		return "fail"
	}
}

// ParseMode converts "fail", "replace" or "append" into a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail":
		return ModeFail, nil
	case "replace":
		return ModeReplace, nil
	case "append":
		return ModeAppend, nil
	default:
		return ModeFail, fmt.Errorf("unknown write mode %q", s)
	}
}

const defaultBatchSize = 500

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store stages frames into a relational database through gorm
type Store struct {
	db        *gorm.DB
	batchSize int
}

// New creates a store on top of an open gorm connection
func New(db *gorm.DB) *Store {
	return &Store{db: db, batchSize: defaultBatchSize}
}

// SetBatchSize sets how many rows go into one INSERT
func (s *Store) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// DB returns the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Quote returns name quoted as an identifier for the connected dialect
func (s *Store) Quote(name string) string {
	var b strings.Builder
	s.db.Dialector.QuoteTo(&b, name)
	return b.String()
}

// HasTable reports whether table exists
func (s *Store) HasTable(ctx context.Context, table string) (bool, error) {
	if err := checkIdentifier(table); err != nil {
		return false, &pipeerr.StoreError{Table: table, Op: "inspect", Err: err}
	}
	return s.db.WithContext(ctx).Migrator().HasTable(table), nil
}

// Count returns the number of rows in table
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if err := checkIdentifier(table); err != nil {
		return 0, &pipeerr.StoreError{Table: table, Op: "count", Err: err}
	}
	var n int64
	if err := s.db.WithContext(ctx).Table(table).Count(&n).Error; err != nil {
		return 0, &pipeerr.StoreError{Table: table, Op: "count", Err: err}
	}
	return n, nil
}

// Write stores frame as table according to mode.
// With ModeFail an existing table is left untouched and ErrTableExists is returned.
func (s *Store) Write(ctx context.Context, table string, frame *Frame, mode Mode) error {
	if err := checkIdentifier(table); err != nil {
		return &pipeerr.StoreError{Table: table, Op: "write", Err: err}
	}
	if frame == nil || len(frame.Columns) == 0 {
		return &pipeerr.StoreError{Table: table, Op: "write", Err: fmt.Errorf("frame has no columns")}
	}
	for _, c := range frame.Columns {
		if err := checkIdentifier(c.Name); err != nil {
			return &pipeerr.StoreError{Table: table, Op: "write", Err: fmt.Errorf("column: %w", err)}
		}
	}

	db := s.db.WithContext(ctx)
	exists := db.Migrator().HasTable(table)
	if exists && mode == ModeFail {
		return &pipeerr.StoreError{Table: table, Op: "write", Err: pipeerr.ErrTableExists}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if exists && mode == ModeReplace {
			if err := tx.Migrator().DropTable(table); err != nil {
				return fmt.Errorf("failed to drop table: %w", err)
			}
		}
		if !exists || mode == ModeReplace {
			if err := tx.Exec(createTableSQL(tx, table, frame.Columns)).Error; err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
		return s.insert(tx, table, frame)
	})
	if err != nil {
		return &pipeerr.StoreError{Table: table, Op: "write", Err: err}
	}

	logger.Debugf("Staged %d rows into %s (mode=%s)\n", frame.Len(), table, mode)
	return nil
}

func (s *Store) insert(tx *gorm.DB, table string, frame *Frame) error {
	if frame.Len() == 0 {
		return nil
	}
	records := frame.Records()
	if err := tx.Table(table).CreateInBatches(records, s.batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert rows: %w", err)
	}
	return nil
}

// Query runs a single read-only statement and returns its result with the
// column order and names produced by the query. The statement runs inside a
// read-only transaction so the database enforces what the lexical check misses.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*Frame, error) {
	if err := checkReadOnly(query); err != nil {
		return nil, &pipeerr.StoreError{Op: "query", Err: err}
	}

	var frame *Frame
	err := s.readOnly(ctx, func(tx *gorm.DB) error {
		rows, err := tx.Raw(query, args...).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		frame, err = scanFrame(rows)
		return err
	})
	if err != nil {
		return nil, &pipeerr.StoreError{Op: "query", Err: err}
	}
	return frame, nil
}

// readOnly runs fn in a transaction that cannot modify data. SQLite drivers
// ignore the read-only transaction option, so query_only is toggled on the
// pinned connection instead. That transaction outlives ctx so the flag is
// always cleared before the connection returns to the pool.
func (s *Store) readOnly(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db.Dialector.Name() != "sqlite" {
		return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{ReadOnly: true})
	}
	return s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("PRAGMA query_only = ON").Error; err != nil {
			return err
		}
		defer tx.Exec("PRAGMA query_only = OFF")
		return fn(tx.WithContext(ctx))
	})
}

func scanFrame(rows *sql.Rows) (*Frame, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	frame := &Frame{Columns: make([]Column, len(names))}
	kindKnown := make([]bool, len(names))
	for i, name := range names {
		frame.Columns[i] = Column{Name: name, Kind: KindText}
	}

	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
			if !kindKnown[i] && values[i] != nil {
				frame.Columns[i].Kind = kindOfValue(values[i])
				kindKnown[i] = true
			}
		}
		frame.Rows = append(frame.Rows, values)
	}
	return frame, rows.Err()
}

func createTableSQL(tx *gorm.DB, table string, columns []Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	tx.Dialector.QuoteTo(&b, table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		tx.Dialector.QuoteTo(&b, c.Name)
		b.WriteByte(' ')
		b.WriteString(columnType(tx.Dialector.Name(), c.Kind))
	}
	b.WriteString(")")
	return b.String()
}

func columnType(dialect string, kind Kind) string {
	switch kind {
	case KindInteger:
		return "BIGINT"
	case KindReal:
		switch dialect {
		case "postgres":
			return "DOUBLE PRECISION"
		case "mysql":
			return "DOUBLE"
		default:
			return "REAL"
		}
	default:
		return "TEXT"
	}
}

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// writeKeywords are statements a read-only query may not contain, including
// data-modifying clauses inside a WITH.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"RENAME": true, "GRANT": true, "REVOKE": true, "ATTACH": true, "DETACH": true,
	"PRAGMA": true, "VACUUM": true, "REINDEX": true, "COPY": true, "CALL": true,
	"LOCK": true, "SET": true, "LOAD": true, "HANDLER": true, "INTO": true,
}

// checkReadOnly accepts exactly one SELECT or WITH statement. Keywords are
// matched outside string literals, quoted identifiers and comments.
func checkReadOnly(query string) error {
	words, statements := sqlWords(query)
	if len(words) == 0 {
		return pipeerr.ErrNotReadOnly
	}
	if statements > 1 {
		return fmt.Errorf("%w: multiple statements", pipeerr.ErrNotReadOnly)
	}
	if words[0] != "SELECT" && words[0] != "WITH" {
		return pipeerr.ErrNotReadOnly
	}
	for _, w := range words[1:] {
		if writeKeywords[w] {
			return fmt.Errorf("%w: contains %s", pipeerr.ErrNotReadOnly, w)
		}
	}
	return nil
}

// sqlWords returns the upper-cased bare words of query and the number of
// non-empty statements separated by semicolons.
func sqlWords(query string) ([]string, int) {
	var (
		words      []string
		word       strings.Builder
		statements int
		pending    bool
	)
	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
			pending = true
		}
	}

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush()
			pending = true
			for i++; i < len(query); i++ {
				if query[i] == c {
					if i+1 < len(query) && query[i+1] == c {
						i++
						continue
					}
					break
				}
			}
		case c == '[':
			flush()
			pending = true
			for i++; i < len(query) && query[i] != ']'; i++ {
			}
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			flush()
			for i < len(query) && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			flush()
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query)
			} else {
				i += end + 3
			}
		case c == ';':
			flush()
			if pending {
				statements++
				pending = false
			}
		case c == '_' || c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z':
			word.WriteByte(c)
		default:
			flush()
			if c > ' ' {
				pending = true
			}
		}
	}
	flush()
	if pending {
		statements++
	}
	return words, statements
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

func kindOfValue(v any) Kind {
	switch v.(type) {
	case int64, bool:
		return KindInteger
	case float64:
		return KindReal
	default:
		return KindText
	}
}
