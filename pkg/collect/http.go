package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/queuecap/pkg/forecast"
)

// HTTPCollector is a generic collector that can call any REST API endpoint
// and extract an arrival-rate series using JSON path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body with variables: {{.WindowSeconds}}, {{.Start}}, {{.End}}, {{.Step}}
//   - Custom headers including authentication (Bearer tokens, API keys, etc.)
//   - JSON path extraction for timestamps and rates using gjson syntax
//   - Flexible timestamp parsing (RFC3339, Unix seconds, Unix milliseconds)
//
// Example configuration for a job-queue metrics API:
//
//	c := &HTTPCollector{
//	    URL:    "https://queue.example.com/api/stats",
//	    Method: "POST",
//	    Headers: map[string]string{
//	        "Authorization": "Bearer {{.Token}}",
//	        "Content-Type":  "application/json",
//	    },
//	    Body:          `{"queue": "payments", "window": "{{.WindowSeconds}}s"}`,
//	    RatePath:      "points.#.enqueue_rate",
//	    TimestampPath: "points.#.ts",
//	}
type HTTPCollector struct {
	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	// Values can use template variables like {{.Token}}.
	Headers map[string]string

	// Body is the request body template (for POST/PUT). Supports variables:
	//   {{.WindowSeconds}} - the collection window in seconds
	//   {{.Start}}         - start time as Unix timestamp
	//   {{.End}}           - end time as Unix timestamp
	//   {{.Step}}          - step size in seconds
	//   {{.StartRFC3339}}  - start time as RFC3339 string
	//   {{.EndRFC3339}}    - end time as RFC3339 string
	Body string

	// RatePath is the gjson path to extract rate values from the response.
	// Use "#" for arrays, e.g. "points.#.enqueue_rate".
	RatePath string

	// TimestampPath is the gjson path to extract timestamps. Must return
	// the same number of elements as RatePath.
	TimestampPath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in Body and Headers
	// templates. Use this to pass tokens, API keys, etc.
	TemplateVars map[string]string
}

func (h *HTTPCollector) Name() string { return "http" }

// Series calls the configured endpoint and extracts the arrival-rate series
// using the configured JSON paths.
func (h *HTTPCollector) Series(ctx context.Context, window time.Duration) ([]forecast.Sample, error) {
	if h.URL == "" {
		return nil, errors.New("http collector: URL is required")
	}
	if h.RatePath == "" || h.TimestampPath == "" {
		return nil, errors.New("http collector: RatePath and TimestampPath are required")
	}

	step := h.StepSeconds
	if step <= 0 {
		step = 60
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-window)

	templateData := map[string]any{
		"WindowSeconds": int(window.Seconds()),
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range h.Headers {
		rendered, err := renderTemplate(v, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %q: %w", k, err)
		}
		req.Header.Set(k, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http collector: status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	rates := gjson.GetBytes(payload, h.RatePath)
	timestamps := gjson.GetBytes(payload, h.TimestampPath)
	if !rates.Exists() || !timestamps.Exists() {
		return nil, fmt.Errorf("json paths matched nothing (rate=%q ts=%q)", h.RatePath, h.TimestampPath)
	}

	rateArray := rates.Array()
	tsArray := timestamps.Array()
	if len(rateArray) != len(tsArray) {
		return nil, fmt.Errorf("rate count (%d) != timestamp count (%d)", len(rateArray), len(tsArray))
	}
	if len(rateArray) == 0 {
		return nil, ErrNoData
	}

	samples := make([]forecast.Sample, 0, len(rateArray))
	for i := range rateArray {
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		samples = append(samples, forecast.Sample{
			Time: ts.UTC(),
			Rate: rateArray[i].Float(),
		})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})

	return samples, nil
}

func (h *HTTPCollector) parseTimestamp(value gjson.Result) (time.Time, error) {
	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// renderTemplate renders a text template with the given data. Plain strings
// without template markers pass through untouched.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
