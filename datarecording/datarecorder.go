// Package datarecording stores rows of plain structs into SQLite databases.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 100000

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of the
	// sample entry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry of the type that the table was created
	// with.
	InsertData(tableName string, entry any) error

	// ListTables returns the names of the tables created by the recorder.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush() error

	// Close flushes and closes the database. Closing twice is allowed.
	Close() error
}

// DefaultName returns a fresh database name that does not collide with
// earlier runs.
func DefaultName() string {
	return "rvbench_" + xid.New().String()
}

// New creates a DataRecorder that writes to <name>.sqlite3. An empty name
// gets a generated one. It refuses to reuse an existing file.
func New(name string) (DataRecorder, error) {
	if name == "" {
		name = DefaultName()
	}

	filename := strings.TrimSuffix(name, ".sqlite3") + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	w := newWriter(db)
	w.filename = filename

	w.exitID = atexit.Register(func() { _ = w.finish() })

	return w, nil
}


func newWriter(db *sql.DB) *sqliteWriter {
	return &sqliteWriter{
		DB:        db,
		batchSize: DefaultBatchSize,
		tables:    make(map[string]*table),
	}
}

// Filename returns the file that a recorder created by New writes to.
func Filename(r DataRecorder) string {
	w, ok := r.(*sqliteWriter)
	if !ok {
		return ""
	}

	return w.filename
}

type table struct {
	structType reflect.Type
	insertSQL  string
	entries    []any
}

// sqliteWriter is the writer that writes data into SQLite database
type sqliteWriter struct {
	*sql.DB

	filename   string
	exitID     atexit.HandlerID
	tables     map[string]*table
	order      []string
	batchSize  int
	entryCount int
	closed     bool
}

func isAllowedType(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkStructFields(entry any) error {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("entry must be a struct, got %T", entry)
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			return fmt.Errorf("field %s is not exported", field.Name)
		}

		if !isAllowedType(field.Type.Kind()) {
			return fmt.Errorf("field %s has unsupported type %s",
				field.Name, field.Type)
		}
	}

	return nil
}

func (t *sqliteWriter) CreateTable(tableName string, sampleEntry any) error {
	if _, exists := t.tables[tableName]; exists {
		return fmt.Errorf("table %s already exists", tableName)
	}

	if err := checkStructFields(sampleEntry); err != nil {
		return err
	}

	names := structs.Names(sampleEntry)
	fields := strings.Join(names, ", \n\t")

	createTableSQL := `CREATE TABLE ` + tableName +
		` (` + "\n\t" + fields + "\n" + `);`
	if _, err := t.Exec(createTableSQL); err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}

	placeholders := make([]string, len(names))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	t.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		insertSQL: "INSERT INTO " + tableName +
			" VALUES (" + strings.Join(placeholders, ", ") + ")",
	}
	t.order = append(t.order, tableName)

	return nil
}

func (t *sqliteWriter) InsertData(tableName string, entry any) error {
	table, exists := t.tables[tableName]
	if !exists {
		return fmt.Errorf("table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != table.structType {
		return fmt.Errorf("table %s expects %s, got %T",
			tableName, table.structType, entry)
	}

	table.entries = append(table.entries, entry)

	t.entryCount++
	if t.entryCount >= t.batchSize {
		return t.Flush()
	}

	return nil
}

func (t *sqliteWriter) ListTables() []string {
	tables := make([]string, len(t.order))
	copy(tables, t.order)

	return tables
}

func (t *sqliteWriter) Flush() error {
	if t.entryCount == 0 {
		return nil
	}

	tx, err := t.Begin()
	if err != nil {
		return err
	}

	for _, name := range t.order {
		if err := t.flushTable(tx, t.tables[name]); err != nil {
			return errors.Join(
				fmt.Errorf("flushing table %s: %w", name, err),
				tx.Rollback())
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, table := range t.tables {
		table.entries = nil
	}
	t.entryCount = 0

	return nil
}

func (t *sqliteWriter) flushTable(tx *sql.Tx, table *table) error {
	if len(table.entries) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(table.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range table.entries {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return err
		}
	}

	return nil
}

func (t *sqliteWriter) Close() error {
	if t.exitID != 0 {
		_ = t.exitID.Cancel()
		t.exitID = 0
	}

	return t.finish()
}

func (t *sqliteWriter) finish() error {
	if t.closed {
		return nil
	}
	t.closed = true

	return errors.Join(t.Flush(), t.DB.Close())
}
