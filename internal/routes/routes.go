// Package routes implements the static route table mapping logical call
// names to per-protocol call descriptors.
package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrNotFound is returned by Lookup for an unknown route name. Callers
// must treat it as fatal misconfiguration, not a retryable error.
var ErrNotFound = errors.New("route not found")

// ReturnShape declares how a route's raw result should be presented.
type ReturnShape string

// Valid return shapes.
const (
	ShapeObject ReturnShape = "object"
	ShapeArray  ReturnShape = "array"
	ShapeText   ReturnShape = "text"
	ShapeVoid   ReturnShape = "void"
)

func (s ReturnShape) valid() bool {
	switch s {
	case ShapeObject, ShapeArray, ShapeText, ShapeVoid:
		return true
	}
	return false
}

// WAMPDescriptor describes how to execute a route over the message-RPC
// protocol.
type WAMPDescriptor struct {
	RPC    string   `json:"rpc"`
	Args   []string `json:"args"`
	KwArgs []string `json:"kargs"`
}

// RESTDescriptor describes how to execute a route over HTTP. URL may embed
// $field placeholders substituted from call arguments.
type RESTDescriptor struct {
	URL    string   `json:"url"`
	Method string   `json:"type"`
	Params []string `json:"params"`
	Body   []string `json:"body"`
}

// SQLDescriptor describes how to execute a route against the embedded
// database. Parameters bind positionally in Args order.
type SQLDescriptor struct {
	Query string   `json:"query"`
	Args  []string `json:"args"`
}

// Entry is one route table entry.
type Entry struct {
	Name   string          `json:"-"`
	Return ReturnShape     `json:"return"`
	WAMP   *WAMPDescriptor `json:"wamp,omitempty"`
	REST   *RESTDescriptor `json:"rest,omitempty"`
	SQLite *SQLDescriptor  `json:"sqlite,omitempty"`
}

// Table is the loaded-once route table. Immutable after load.
type Table struct {
	entries map[string]*Entry
}

type routesFile struct {
	Routes map[string]*Entry `json:"routes"`
}

// Parse decodes and validates a route table document.
func Parse(data []byte) (*Table, error) {
	var doc routesFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode route table: %w", err)
	}
	if doc.Routes == nil {
		return nil, errors.New("route table missing \"routes\" mapping")
	}

	for name, entry := range doc.Routes {
		entry.Name = name
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("route %q: %w", name, err)
		}
	}

	return &Table{entries: doc.Routes}, nil
}

// LoadFile reads and parses a route table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return Parse(data)
}

func (e *Entry) validate() error {
	if e.Return == "" {
		e.Return = ShapeObject
	}
	if !e.Return.valid() {
		return fmt.Errorf("unknown return shape %q", e.Return)
	}
	if e.WAMP == nil && e.REST == nil && e.SQLite == nil {
		return errors.New("no protocol descriptor defined")
	}
	if e.Return == ShapeText && e.SQLite != nil && e.WAMP == nil && e.REST == nil {
		return errors.New("return shape \"text\" is invalid when sqlite is the only descriptor")
	}
	if e.WAMP != nil && e.WAMP.RPC == "" {
		return errors.New("wamp descriptor missing rpc endpoint")
	}
	if e.REST != nil && e.REST.URL == "" {
		return errors.New("rest descriptor missing url")
	}
	if e.SQLite != nil && e.SQLite.Query == "" {
		return errors.New("sqlite descriptor missing query")
	}
	return nil
}

// Lookup resolves a logical call name to its route entry.
func (t *Table) Lookup(name string) (*Entry, error) {
	entry, ok := t.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return entry, nil
}

// Names returns all route names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of routes in the table.
func (t *Table) Len() int { return len(t.entries) }

// Protocols lists the protocol ids an entry declares a descriptor for.
func (e *Entry) Protocols() []string {
	var protos []string
	if e.WAMP != nil {
		protos = append(protos, "wamp")
	}
	if e.REST != nil {
		protos = append(protos, "rest")
	}
	if e.SQLite != nil {
		protos = append(protos, "sqlite")
	}
	return protos
}
