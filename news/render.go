package news

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var sanitizer = bluemonday.UGCPolicy()

// RenderDescription turns the model's markdown summary into HTML safe
// to embed in the app's news cards.
func RenderDescription(markdown string) string {
	html := blackfriday.Run([]byte(markdown))
	return string(sanitizer.SanitizeBytes(html))
}
