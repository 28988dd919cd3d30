package boundary

import (
	"fmt"
	"io"
)

// The built-in fallbacks share one contract: a plain, non-technical
// message and nothing derived from the raw error. Section and page
// fallbacks additionally show the support reference so a user can quote
// it; operators look the reference up on the dashboard.

// InlineFallback replaces a small widget. No reference; there is no room
// for one and the surrounding section usually carries its own boundary.
func InlineFallback(w io.Writer, f Failure) {
	io.WriteString(w, `<span class="error-fallback-inline" role="alert">Unavailable</span>`)
}

// SectionFallback replaces a card or panel. This is the default.
func SectionFallback(w io.Writer, f Failure) {
	fmt.Fprintf(w, `<div class="error-fallback-section" role="alert">`+
		`<p>Something went wrong loading this section.</p>`+
		`<button data-boundary-retry>Try again</button>`+
		`<p class="error-reference">Reference: %s</p>`+
		`</div>`, f.Reference)
}

// PageFallback replaces the full viewport for failures caught at the
// outermost boundary.
func PageFallback(w io.Writer, f Failure) {
	fmt.Fprintf(w, `<main class="error-fallback-page" role="alert">`+
		`<h1>Something went wrong</h1>`+
		`<p>The page could not be displayed. Please try again, or contact support and quote the reference below.</p>`+
		`<button data-boundary-retry>Reload</button>`+
		`<p class="error-reference">Reference: %s</p>`+
		`</main>`, f.Reference)
}
