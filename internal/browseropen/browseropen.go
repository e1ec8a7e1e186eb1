// Package browseropen wraps github.com/pkg/browser with the
// print-then-open convention the teacher's login flows use
// (sdk/auth/github_copilot.go): always print the URL first so headless
// sessions and SSH users can copy it manually, then best-effort launch a
// local browser.
package browseropen

import (
	"fmt"
	"os"

	"github.com/pkg/browser"
)

// Open prints url and attempts to open it in the user's default browser,
// unless noBrowser is set (e.g. `login --no-browser`, or a DISPLAY-less
// remote session). Errors are logged to stderr, never returned: a failed
// browser launch is not fatal to the login flow.
func Open(url string, noBrowser bool) {
	fmt.Printf("Open this URL to continue: %s\n", url)
	if noBrowser {
		return
	}
	if err := browser.OpenURL(url); err != nil {
		fmt.Fprintf(os.Stderr, "could not launch browser automatically: %v\n", err)
	}
}
