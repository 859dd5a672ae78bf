package filter

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/abarbosa/fintalk/log"
)

var (
	assetLinkRegex = regexp.MustCompile(`\{([^}]+)\}`)
	tickerRegex    = regexp.MustCompile(`^[A-Z]{3,6}[0-9]{0,2}(-[A-Z]{3})?$`)
)

// AssetLinkFilter rewrites {Display Name|TICKER} spans the model emits
// into app-internal asset links. Spans may arrive split across stream
// chunks, so unmatched braces are buffered until the closing one shows
// up.
type AssetLinkFilter struct {
	buffer    string
	buffering bool
}

func (f *AssetLinkFilter) ProcessChunk(ctx context.Context, chunk string) string {
	if chunk == "" { // empty chunk - end of stream
		f.buffering = false
		ret := f.buffer
		f.buffer = ""
		return ret
	}
	if assetLinkRegex.MatchString(chunk) { // complete span inside one chunk
		f.buffering = false
		ret := f.buffer + chunk
		f.buffer = ""
		return convertAssetLinks(ctx, ret)
	}
	if strings.Contains(chunk, "{") {
		if f.buffering { // second { while buffering: flush what we had
			ret := f.buffer
			f.buffer = chunk
			return ret
		}
		f.buffering = true
		f.buffer += chunk
		return ""
	}
	if strings.Contains(chunk, "}") && f.buffering { // span closed across chunks
		ret := f.buffer + chunk
		ret = convertAssetLinks(ctx, ret)
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

// convertAssetLinks turns {Name|TICKER} into a markdown link pointing
// at the in-app asset page. Spans that do not carry a plausible ticker
// degrade to their display text.
func convertAssetLinks(ctx context.Context, text string) string {
	return assetLinkRegex.ReplaceAllStringFunc(text, func(match string) string {
		logger := log.LoggerFromContext(ctx)
		content := match[1 : len(match)-1]

		parts := strings.Split(content, "|")
		if len(parts) != 2 {
			logger.Info("invalid asset link", slog.String("match", match))
			return ""
		}

		name := parts[0]
		ticker := strings.ToUpper(strings.TrimSpace(parts[1]))
		if !tickerRegex.MatchString(ticker) {
			logger.Info("asset ticker not recognized", slog.String("ticker", ticker))
			return name
		}
		return "[" + name + "](assets/" + ticker + ")"
	})
}
