package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// maxTraceLines caps pretty-printed bodies unless -v is set.
const maxTraceLines = 30

var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func disableColors() {
	for _, c := range []*string{&colorReset, &colorRed, &colorGreen, &colorYellow, &colorCyan, &colorGray, &colorBold} {
		*c = ""
	}
}

// relayError is a non-2xx answer from the relay.
type relayError struct {
	Status  int
	Code    string
	Message string
}

func (e *relayError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// doRequest sends body as JSON and decodes the response object. The
// create-order endpoint answers 502 with a structured body, which is returned
// to the caller rather than treated as a failure.
func doRequest(method, path string, body any) (map[string]any, error) {
	var payload []byte
	var reader io.Reader
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, strings.TrimRight(baseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	trace(colorYellow, "▶ "+method+" "+path, payload)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	trace(statusColor(resp.StatusCode), fmt.Sprintf("◀ %d (%v)", resp.StatusCode, time.Since(start).Round(time.Millisecond)), raw)

	var result map[string]any
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusBadGateway {
		rerr := &relayError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if eb, ok := result["error"].(map[string]any); ok && decodeErr == nil {
			rerr.Code, _ = eb["code"].(string)
			if msg, ok := eb["message"].(string); ok {
				rerr.Message = msg
			}
		}
		return nil, rerr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("parsing response: %w", decodeErr)
	}
	return result, nil
}

func statusColor(status int) string {
	switch {
	case status >= 500:
		return colorRed
	case status >= 400:
		return colorYellow
	default:
		return colorGreen
	}
}

// trace prints a request or response line followed by its indented body.
func trace(color, title string, body []byte) {
	if quiet {
		return
	}
	fmt.Printf("\n%s%s%s%s\n", colorBold, color, title, colorReset)
	if len(body) == 0 {
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "  ", "  "); err != nil {
		fmt.Printf("  %s\n", body)
		return
	}
	lines := strings.Split("  "+pretty.String(), "\n")
	if !verbose && len(lines) > maxTraceLines {
		hidden := len(lines) - maxTraceLines
		lines = append(lines[:maxTraceLines], fmt.Sprintf("  %s… %d more lines (-v shows all)%s", colorGray, hidden, colorReset))
	}
	fmt.Println(strings.Join(lines, "\n"))
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

// formatCents renders minor units as a decimal amount. JSON numbers decode as float64.
func formatCents(v any) string {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", val/100)
	case int64:
		return fmt.Sprintf("%.2f", float64(val)/100)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
