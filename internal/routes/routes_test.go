package routes

import (
	"errors"
	"testing"
)

const sampleTable = `{
	"routes": {
		"getUser": {
			"return": "object",
			"rest": {"url": "/users/$id", "type": "GET", "params": ["id"]},
			"wamp": {"rpc": "users.get", "args": ["id"]}
		},
		"listUsers": {
			"return": "array",
			"sqlite": {"query": "SELECT * FROM users WHERE active = ?", "args": ["active"]}
		},
		"ping": {
			"return": "text",
			"wamp": {"rpc": "system.ping"}
		}
	}
}`

func TestParseAndLookup(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Len = %d, want 3", table.Len())
	}

	entry, err := table.Lookup("getUser")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry.Name != "getUser" {
		t.Errorf("Name = %q, want getUser", entry.Name)
	}
	if entry.Return != ShapeObject {
		t.Errorf("Return = %q, want object", entry.Return)
	}
	if entry.REST == nil || entry.REST.URL != "/users/$id" {
		t.Errorf("unexpected rest descriptor: %+v", entry.REST)
	}
	if entry.WAMP == nil || entry.WAMP.RPC != "users.get" {
		t.Errorf("unexpected wamp descriptor: %+v", entry.WAMP)
	}
}

func TestLookupUnknownRoute(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	_, err = table.Lookup("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(missing) = %v, want ErrNotFound", err)
	}
}

func TestLookupIsCaseSensitive(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := table.Lookup("getuser"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(getuser) = %v, want ErrNotFound", err)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "no descriptors",
			doc:  `{"routes": {"bad": {"return": "object"}}}`,
		},
		{
			name: "unknown return shape",
			doc:  `{"routes": {"bad": {"return": "blob", "wamp": {"rpc": "x"}}}}`,
		},
		{
			name: "text shape on sqlite-only entry",
			doc:  `{"routes": {"bad": {"return": "text", "sqlite": {"query": "SELECT 1"}}}}`,
		},
		{
			name: "wamp without rpc",
			doc:  `{"routes": {"bad": {"return": "void", "wamp": {}}}}`,
		},
		{
			name: "rest without url",
			doc:  `{"routes": {"bad": {"return": "void", "rest": {"type": "GET"}}}}`,
		},
		{
			name: "missing routes mapping",
			doc:  `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Errorf("Parse accepted invalid document")
			}
		})
	}
}

func TestTextShapeWithSecondaryDescriptor(t *testing.T) {
	// The text restriction applies only when sqlite is the sole
	// descriptor; a text route served elsewhere may still carry one.
	doc := `{"routes": {"banner": {
		"return": "text",
		"rest": {"url": "/banner", "type": "GET"},
		"sqlite": {"query": "SELECT body FROM banners LIMIT 1"}
	}}}`

	table, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entry, err := table.Lookup("banner")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry.Return != ShapeText || entry.SQLite == nil {
		t.Errorf("entry = %+v, want text shape with sqlite descriptor kept", entry)
	}
}

func TestDefaultReturnShape(t *testing.T) {
	table, err := Parse([]byte(`{"routes": {"r": {"wamp": {"rpc": "x"}}}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entry, err := table.Lookup("r")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry.Return != ShapeObject {
		t.Errorf("default Return = %q, want object", entry.Return)
	}
}

func TestNamesSorted(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	names := table.Names()
	want := []string{"getUser", "listUsers", "ping"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestProtocols(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	entry, _ := table.Lookup("getUser")
	protos := entry.Protocols()
	if len(protos) != 2 || protos[0] != "wamp" || protos[1] != "rest" {
		t.Errorf("Protocols = %v, want [wamp rest]", protos)
	}
}
