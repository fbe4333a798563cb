// Package dispatcher implements the call facade consumed by application
// code: route lookup, protocol selection, adapter delegation, and
// return-shape normalization.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/config"
	"github.com/dataway-dev/dataway/internal/logging"
	"github.com/dataway-dev/dataway/internal/routes"
)

// ErrProtocolNotSupported is returned when a route defines no descriptor
// for the configured active protocol. This is programmer error, never
// retried.
var ErrProtocolNotSupported = errors.New("route does not support the active protocol")

// Dispatcher resolves logical call names and delegates execution to the
// active protocol adapter.
type Dispatcher struct {
	table    *routes.Table
	protocol config.Protocol
	active   adapter.Adapter
	logger   *zap.Logger
}

// New constructs a dispatcher bound to the one adapter selected by
// configuration.
func New(table *routes.Table, protocol config.Protocol, active adapter.Adapter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{table: table, protocol: protocol, active: active, logger: logger}
}

// Protocol reports the configured active protocol.
func (d *Dispatcher) Protocol() config.Protocol { return d.protocol }

// Invoke resolves the named route, executes it over the active protocol,
// and normalizes the raw result to the route's declared return shape.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	entry, err := d.table.Lookup(name)
	if err != nil {
		return nil, err
	}

	if err := d.supports(entry); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}

	d.logger.Debug("invoking route",
		logging.Route(name),
		logging.Protocol(string(d.protocol)),
		logging.Shape(string(entry.Return)))

	raw, err := d.active.Execute(ctx, entry, args)
	if err != nil {
		return nil, err
	}
	return Normalize(entry.Return, raw), nil
}

// supports checks the route against the active protocol, exhaustively over
// the protocol variants.
func (d *Dispatcher) supports(entry *routes.Entry) error {
	var ok bool
	switch d.protocol {
	case config.ProtocolWAMP:
		ok = entry.WAMP != nil
	case config.ProtocolREST:
		ok = entry.REST != nil
	case config.ProtocolSQLite:
		ok = entry.SQLite != nil
	default:
		return fmt.Errorf("unknown protocol %q", d.protocol)
	}
	if !ok {
		return fmt.Errorf("%w: route %q over %s", ErrProtocolNotSupported, entry.Name, d.protocol)
	}
	return nil
}

// Normalize attempts a best-effort conversion of a raw adapter result into
// the declared return shape. Conversion is advisory: on failure the raw
// value is returned unchanged rather than raising an error.
func Normalize(shape routes.ReturnShape, value any) any {
	switch shape {
	case routes.ShapeVoid:
		return nil
	case routes.ShapeText:
		return normalizeText(value)
	case routes.ShapeArray:
		return normalizeArray(value)
	case routes.ShapeObject:
		return normalizeObject(value)
	}
	return value
}

func normalizeText(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case []byte:
		return string(v)
	case bool, int, int64, uint64, float32, float64:
		return fmt.Sprintf("%v", v)
	}
	return value
}

func normalizeArray(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	}
	return []any{value}
}

func normalizeObject(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	case []map[string]any:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	}
	return value
}
