// Package cli provides output formatting and an HTTP client for the kotae command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text", "json" or "" (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer to w in the given format.
// Unknown formats are treated as text.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "─────────────────────────────────────────────────────────")
	fmt.Fprintln(w, "Context:")
	fmt.Fprintln(w, indent(resp.Context, "  "))
	return nil
}

// WriteStatus writes server status to w in the given format.
func WriteStatus(w io.Writer, resp *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, "Kotae Status")
	fmt.Fprintln(w, "============")
	fmt.Fprintf(w, "Passages:   %d\n", resp.Passages)
	fmt.Fprintf(w, "Dimensions: %d\n", resp.Dimensions)
	fmt.Fprintf(w, "Index:      %s\n", resp.IndexType)
	fmt.Fprintf(w, "Embedder:   %s\n", resp.Embedder)
	fmt.Fprintf(w, "Generator:  %s\n", resp.Generator)
	if j := resp.Journal; j != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Journal:    %s\n", j.Path)
		fmt.Fprintf(w, "  Ingestions: %d\n", j.Ingestions)
		fmt.Fprintf(w, "  Answers:    %d\n", j.Answers)
		if j.SizeBytes > 0 {
			fmt.Fprintf(w, "  Size:       %s\n", FormatBytes(j.SizeBytes))
		}
	} else {
		fmt.Fprintln(w, "Journal:    disabled")
	}
	return nil
}

// WriteDirectories writes the watched directories, one per line.
func WriteDirectories(w io.Writer, dirs []string, format OutputFormat) error {
	if format == OutputJSON {
		if dirs == nil {
			dirs = []string{}
		}
		return writeJSON(w, map[string][]string{"directories": dirs})
	}
	if len(dirs) == 0 {
		fmt.Fprintln(w, "No watched directories.")
		return nil
	}
	for _, d := range dirs {
		fmt.Fprintln(w, d)
	}
	return nil
}

// FormatBytes renders n as a human-readable size (B, KB, MB, GB).
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
