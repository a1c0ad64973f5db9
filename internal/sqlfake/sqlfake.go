// Package sqlfake is an in-process database/sql driver that behaves like a
// database server catalog. Tests use it to observe provisioning without a
// real server.
package sqlfake

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
)

var createDatabase = regexp.MustCompile("(?is)^\\s*CREATE\\s+DATABASE\\s+[\\[\"`]?([^\\]\"`\\s;]+)")

// Statement is one statement received by the server.
type Statement struct {
	DSN   string
	SQL   string
	Query bool
}

type failure struct {
	substr    string
	remaining int
	err       error
}

// Server is a fake catalog shared by every connection opened through it.
type Server struct {
	mu         sync.Mutex
	databases  map[string]int64
	nextID     int64
	statements []Statement
	failures   []*failure
	creates    int
	opens      int
}

// NewServer returns a server that already hosts databases.
func NewServer(databases ...string) *Server {
	s := &Server{databases: make(map[string]int64), nextID: 5}
	for _, name := range databases {
		s.addDatabase(name)
	}
	return s
}

// Open has the signature of sql.Open and ignores the driver name.
func (s *Server) Open(driverName, dsn string) (*sql.DB, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return sql.OpenDB(&connector{server: s, dsn: dsn}), nil
}

// FailWhenContains makes the next times statements containing substr fail
// with err. A negative times fails forever.
func (s *Server) FailWhenContains(substr string, times int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{substr: strings.ToLower(substr), remaining: times, err: err})
}

// HasDatabase reports whether name exists, compared case-insensitively.
func (s *Server) HasDatabase(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.databases[strings.ToLower(name)]
	return ok
}

// Creates returns the number of CREATE DATABASE statements executed.
func (s *Server) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// Opens returns the number of Open calls.
func (s *Server) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Statements returns every executed statement in order.
func (s *Server) Statements() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Statement, len(s.statements))
	copy(out, s.statements)
	return out
}

// Executed returns the SQL text of every Exec call in order.
func (s *Server) Executed() []string {
	var out []string
	for _, st := range s.Statements() {
		if !st.Query {
			out = append(out, st.SQL)
		}
	}
	return out
}

func (s *Server) addDatabase(name string) {
	s.databases[strings.ToLower(name)] = s.nextID
	s.nextID++
}

func (s *Server) record(dsn, query string, isQuery bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statements = append(s.statements, Statement{DSN: dsn, SQL: query, Query: isQuery})

	lower := strings.ToLower(query)
	for _, f := range s.failures {
		if f.remaining == 0 || !strings.Contains(lower, f.substr) {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return f.err
	}
	return nil
}

func (s *Server) exec(dsn, query string) error {
	if err := s.record(dsn, query, false); err != nil {
		return err
	}

	if m := createDatabase.FindStringSubmatch(query); m != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.databases[strings.ToLower(m[1])]; ok {
			return fmt.Errorf("database %q already exists", m[1])
		}
		s.addDatabase(m[1])
		s.creates++
	}
	return nil
}

func (s *Server) lookup(dsn, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.record(dsn, query, true); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return &rows{}, nil
	}
	name, ok := args[0].Value.(string)
	if !ok {
		return nil, errors.New("sqlfake: lookup argument must be a string")
	}

	s.mu.Lock()
	id, exists := s.databases[strings.ToLower(name)]
	s.mu.Unlock()

	// DB_ID always returns one row, NULL when absent.
	if strings.Contains(strings.ToUpper(query), "DB_ID(") {
		if !exists {
			return &rows{values: [][]driver.Value{{nil}}}, nil
		}
		return &rows{values: [][]driver.Value{{id}}}, nil
	}
	if !exists {
		return &rows{}, nil
	}
	return &rows{values: [][]driver.Value{{name}}}, nil
}

type connector struct {
	server *Server
	dsn    string
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return &conn{server: c.server, dsn: c.dsn}, nil
}

func (c *connector) Driver() driver.Driver {
	return fakeDriver{server: c.server}
}

type fakeDriver struct {
	server *Server
}

func (d fakeDriver) Open(name string) (driver.Conn, error) {
	return &conn{server: d.server, dsn: name}, nil
}

type conn struct {
	server *Server
	dsn    string
}

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("sqlfake: prepared statements are not supported")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) { return tx{}, nil }

func (c *conn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := c.server.exec(c.dsn, query); err != nil {
		return nil, err
	}
	return driver.RowsAffected(0), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.server.lookup(c.dsn, query, args)
}

type tx struct{}

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }

type rows struct {
	values [][]driver.Value
	pos    int
}

func (r *rows) Columns() []string { return []string{"value"} }

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.pos])
	r.pos++
	return nil
}
