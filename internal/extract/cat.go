package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat/odtxt"
)

// extractODT reads OpenDocument text through lu4p/cat. Each <text:p> becomes one line.
func extractODT(content []byte) (string, error) {
	text, err := odtxt.BytesToStr(content)
	if err != nil {
		return "", fmt.Errorf("extract ODT: %w", err)
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
