package assist

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockGenerator simulates network latency and returns a placeholder
// snippet. No real API call is made.
type MockGenerator struct {
	Delay time.Duration
}

func (m *MockGenerator) Generate(ctx context.Context, description string) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	short := description
	if len(short) > 80 {
		short = short[:80]
	}
	return fmt.Sprintf(
		"// AUTO-GENERATED PLACEHOLDER\n// Task: %s\n\nfunc solution() {\n\tpanic(\"not implemented\")\n}\n",
		short,
	), nil
}

// MockReviewer simulates a reviewer that checks the generated artifact
// for obvious placeholder markers.
type MockReviewer struct {
	Delay time.Duration
}

func (m *MockReviewer) Review(ctx context.Context, description, artifact string) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var issues []string
	if strings.Contains(artifact, "PLACEHOLDER") {
		issues = append(issues, "- Contains placeholder markers")
	}
	if strings.Contains(artifact, "panic(") {
		issues = append(issues, "- Panics instead of returning an error")
	}

	if len(issues) > 0 {
		return "Review checklist:\n" + strings.Join(issues, "\n"), nil
	}
	short := description
	if len(short) > 50 {
		short = short[:50]
	}
	return fmt.Sprintf("Reviewed: %s\nIssues: none", short), nil
}
