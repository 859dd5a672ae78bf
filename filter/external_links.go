package filter

import (
	"context"
	"regexp"
	"strings"
)

var externalLinkRegex = regexp.MustCompile(`\(?\[[^\]]*\]\([^)]*\)\)?`)

// ExternalLinkFilter strips markdown links the model produces, since
// broadcast messages must not point readers outside the app. Like
// AssetLinkFilter it buffers partial links across stream chunks.
type ExternalLinkFilter struct {
	buffer    string
	buffering bool
}

func (f *ExternalLinkFilter) ProcessChunk(_ context.Context, chunk string) string {
	if chunk == "" { // empty chunk - end of stream
		f.buffering = false
		ret := f.buffer
		f.buffer = ""
		return externalLinkRegex.ReplaceAllString(ret, "")
	}
	if externalLinkRegex.MatchString(chunk) { // complete link inside one chunk
		f.buffering = false
		ret := f.buffer + chunk
		f.buffer = ""
		return externalLinkRegex.ReplaceAllString(ret, "")
	}
	if strings.Contains(chunk, "[") {
		if f.buffering { // second [ while buffering: flush what we had
			ret := f.buffer
			f.buffer = chunk
			return ret
		}
		f.buffering = true
		f.buffer += chunk
		return ""
	}
	if strings.Contains(chunk, "]") && !strings.Contains(chunk, "](") { // not a link after all
		f.buffering = false
		ret := f.buffer
		f.buffer = ""
		return ret + chunk
	}
	if strings.Contains(chunk, ")") && f.buffering { // link closed across chunks
		ret := f.buffer + chunk
		ret = externalLinkRegex.ReplaceAllString(ret, "")
		f.buffering = false
		f.buffer = ""
		return ret
	}
	if f.buffering {
		f.buffer += chunk
		return ""
	}
	return chunk
}
