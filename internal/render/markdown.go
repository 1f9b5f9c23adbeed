package render

import (
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
)

// previewWidth is the word-wrap width of the terminal preview.
const previewWidth = 120

// inlineHTML matches the tags a PR comment renders but a terminal cannot:
// the logo image and the block separators.
var inlineHTML = regexp.MustCompile(`<img[^>]*/?>|<br\s*/?>`)

// ColorsEnabled returns whether terminal colors should be used.
// It returns false if the NO_COLOR environment variable is set (any value)
// or if TERM is set to "dumb".
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// RenderPreview renders an impact report for terminal display. Without
// colors the report is returned unmodified so it can be pasted as is.
func RenderPreview(report string) (string, error) {
	if report == "" {
		return "", nil
	}
	if !ColorsEnabled() {
		return report, nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(previewWidth),
	)
	if err != nil {
		return report, err
	}
	rendered, err := r.Render(previewSource(report))
	if err != nil {
		return report, err
	}
	return strings.TrimSpace(rendered), nil
}

// previewSource drops the inline HTML of a report.
func previewSource(report string) string {
	return inlineHTML.ReplaceAllString(report, "")
}
