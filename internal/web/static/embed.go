package static

import _ "embed"

//go:embed index.html
var indexHTML []byte

// Index returns the embedded gallery browser page.
func Index() []byte {
	return indexHTML
}
