// Package rest implements the stateless HTTP protocol adapter.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/adapter"
	"github.com/dataway-dev/dataway/internal/logging"
	"github.com/dataway-dev/dataway/internal/routes"
)

const defaultTimeout = 30 * time.Second

// Adapter executes REST descriptors against a configured base URL. It
// holds no connection state; Configure only records credentials used for
// basic authentication on outgoing requests.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	params adapter.ConnectionParams
}

// New constructs a REST adapter. An empty baseURL leaves the adapter
// unconfigured; every call fails until the configuration is corrected.
func New(baseURL string, logger *zap.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
		params:     adapter.Anonymous(),
	}
}

// Configure records the credentials attached to subsequent requests. It
// may be called concurrently with in-flight Execute calls.
func (a *Adapter) Configure(params adapter.ConnectionParams) {
	a.mu.Lock()
	a.params = params
	a.mu.Unlock()
}

func (a *Adapter) connectionParams() adapter.ConnectionParams {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.params
}

// Close implements adapter.Adapter. The REST adapter holds no connection.
func (a *Adapter) Close() error { return nil }

// Execute builds and issues the HTTP request described by the route's REST
// descriptor: $field placeholders in the URL are substituted from args
// (consumed fields are excluded from the query string), body-listed fields
// are sent as a JSON payload, and params-listed fields not consumed by the
// URL become query parameters.
func (a *Adapter) Execute(ctx context.Context, entry *routes.Entry, args map[string]any) (any, error) {
	desc := entry.REST
	if desc == nil {
		return nil, fmt.Errorf("route %q has no rest descriptor", entry.Name)
	}
	if a.baseURL == "" && !strings.Contains(desc.URL, "://") {
		return nil, adapter.ErrNotConfigured
	}

	path, consumed := SubstituteURL(desc.URL, args)

	target := path
	if !strings.Contains(path, "://") {
		target = a.baseURL + path
	}

	query := url.Values{}
	for _, field := range desc.Params {
		if consumed[field] {
			continue
		}
		if value, ok := args[field]; ok {
			query.Set(field, fmt.Sprintf("%v", value))
		}
	}
	if encoded := query.Encode(); encoded != "" {
		if strings.Contains(target, "?") {
			target += "&" + encoded
		} else {
			target += "?" + encoded
		}
	}

	var body io.Reader
	if len(desc.Body) > 0 {
		payload := make(map[string]any, len(desc.Body))
		for _, field := range desc.Body {
			if value, ok := args[field]; ok {
				payload[field] = value
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := strings.ToUpper(desc.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if params := a.connectionParams(); !params.Anonymous && params.Principal != "" {
		req.SetBasicAuth(params.Principal, params.Secret)
	}

	a.logger.Debug("executing rest call",
		logging.Route(entry.Name),
		logging.Method(method),
		logging.URL(target))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		a.logger.Warn("rest call failed",
			logging.Route(entry.Name),
			logging.Status(resp.StatusCode))
		return nil, fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return decodeResponse(resp.Header.Get("Content-Type"), raw), nil
}

// decodeResponse parses JSON payloads into structured values and returns
// everything else as text.
func decodeResponse(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var value any
		if err := json.Unmarshal(raw, &value); err == nil {
			return value
		}
	}
	return string(raw)
}

// SubstituteURL replaces $field placeholders in template with same-named
// arg values and reports which fields were consumed.
func SubstituteURL(template string, args map[string]any) (string, map[string]bool) {
	consumed := make(map[string]bool)

	var out strings.Builder
	for i := 0; i < len(template); {
		if template[i] != '$' {
			out.WriteByte(template[i])
			i++
			continue
		}

		j := i + 1
		for j < len(template) && isFieldChar(template[j]) {
			j++
		}
		field := template[i+1 : j]
		if value, ok := args[field]; field != "" && ok {
			out.WriteString(fmt.Sprintf("%v", value))
			consumed[field] = true
		} else {
			out.WriteString(template[i:j])
		}
		i = j
	}
	return out.String(), consumed
}

func isFieldChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
