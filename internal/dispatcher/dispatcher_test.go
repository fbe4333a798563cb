package dispatcher

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/config"
	"github.com/dataway-dev/dataway/internal/routes"
)

// fakeAdapter records the entry it was asked to execute and returns a
// canned result.
type fakeAdapter struct {
	lastEntry *routes.Entry
	lastArgs  map[string]any
	result    any
	err       error
}

func (f *fakeAdapter) Configure(params adapter.ConnectionParams) {}

func (f *fakeAdapter) Execute(ctx context.Context, entry *routes.Entry, args map[string]any) (any, error) {
	f.lastEntry = entry
	f.lastArgs = args
	return f.result, f.err
}

func (f *fakeAdapter) Close() error { return nil }

func testTable(t *testing.T) *routes.Table {
	t.Helper()
	doc := `{
		"routes": {
			"getUser": {
				"return": "object",
				"wamp": {"rpc": "svc.getUser"},
				"rest": {"url": "/users/$id", "type": "GET", "params": ["id"]}
			},
			"listUsers": {
				"return": "array",
				"wamp": {"rpc": "svc.listUsers"}
			}
		}
	}`
	table, err := routes.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return table
}

func TestInvokeDelegatesToAdapter(t *testing.T) {
	fake := &fakeAdapter{result: map[string]any{"id": 1}}
	d := New(testTable(t), config.ProtocolWAMP, fake, zap.NewNop())

	result, err := d.Invoke(context.Background(), "getUser", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if fake.lastEntry == nil || fake.lastEntry.Name != "getUser" {
		t.Errorf("adapter saw entry %v, want getUser", fake.lastEntry)
	}
	obj, ok := result.(map[string]any)
	if !ok || obj["id"] != 1 {
		t.Errorf("result = %v, want object with id 1", result)
	}
}

func TestInvokeUnknownRoute(t *testing.T) {
	d := New(testTable(t), config.ProtocolWAMP, &fakeAdapter{}, zap.NewNop())
	_, err := d.Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, routes.ErrNotFound) {
		t.Errorf("Invoke = %v, want ErrNotFound", err)
	}
}

func TestInvokeProtocolNotSupported(t *testing.T) {
	// listUsers has no rest descriptor.
	d := New(testTable(t), config.ProtocolREST, &fakeAdapter{}, zap.NewNop())
	_, err := d.Invoke(context.Background(), "listUsers", nil)
	if !errors.Is(err, ErrProtocolNotSupported) {
		t.Errorf("Invoke = %v, want ErrProtocolNotSupported", err)
	}
}

func TestInvokeNilArgs(t *testing.T) {
	fake := &fakeAdapter{result: []map[string]any{}}
	d := New(testTable(t), config.ProtocolWAMP, fake, zap.NewNop())

	if _, err := d.Invoke(context.Background(), "listUsers", nil); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if fake.lastArgs == nil {
		t.Error("adapter saw nil args, want empty map")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		shape routes.ReturnShape
		value any
		want  any
	}{
		{"void discards result", routes.ShapeVoid, map[string]any{"x": 1}, nil},
		{"text passes string", routes.ShapeText, "hello", "hello"},
		{"text converts bytes", routes.ShapeText, []byte("hi"), "hi"},
		{"text formats number", routes.ShapeText, 42, "42"},
		{"text keeps structure", routes.ShapeText, map[string]any{"x": 1}, map[string]any{"x": 1}},
		{"array passes slice", routes.ShapeArray, []any{1, 2}, []any{1, 2}},
		{"array converts row slice", routes.ShapeArray,
			[]map[string]any{{"a": 1}}, []any{map[string]any{"a": 1}}},
		{"array wraps scalar", routes.ShapeArray, "solo", []any{"solo"}},
		{"array passes nil", routes.ShapeArray, nil, nil},
		{"object passes map", routes.ShapeObject, map[string]any{"a": 1}, map[string]any{"a": 1}},
		{"object takes first element", routes.ShapeObject,
			[]any{map[string]any{"a": 1}, map[string]any{"a": 2}}, map[string]any{"a": 1}},
		{"object empty slice", routes.ShapeObject, []any{}, nil},
		{"object passes nil", routes.ShapeObject, nil, nil},
		{"object keeps scalar", routes.ShapeObject, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.shape, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%s, %v) = %v, want %v", tt.shape, tt.value, got, tt.want)
			}
		})
	}
}
