package fintalk

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/template"
	_ "time/tzdata"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/abarbosa/fintalk/auth"
	"github.com/abarbosa/fintalk/chat"
	"github.com/abarbosa/fintalk/contract"
	"github.com/abarbosa/fintalk/filter"
	"github.com/abarbosa/fintalk/log"
	"github.com/abarbosa/fintalk/news"
	"github.com/abarbosa/fintalk/quote"
	"github.com/abarbosa/fintalk/store"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ErrorMsgLogField = "errorMsg"
	bodyLogField     = "body"
	userIDLogField   = "userID"
	symbolLogField   = "symbol"

	gcloudFuncSourceDir = "serverless_function_source_code"
	analystModel        = "gpt-4o"

	botName   = "FinTalk Bot"
	botAvatar = "https://fintalk.app/bot-avatar.png"
)

var openaiAPIKey = os.Getenv("OPENAI_API_KEY")

func init() {
	functions.HTTP("Publish", Publish)
	fixDir()
}

// in GCP Functions, source code is placed in a directory named
// "serverless_function_source_code"; need to change the dir to get
// access to the prompt template file
func fixDir() {
	fileInfo, err := os.Stat(gcloudFuncSourceDir)
	if err == nil && fileInfo.IsDir() {
		_ = os.Chdir(gcloudFuncSourceDir)
	}
}

// traceFromRequest builds the Cloud Trace resource name from the
// request's X-Cloud-Trace-Context header, so log entries group under
// the request trace in the console.
func traceFromRequest(r *http.Request) string {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	header := r.Header.Get("X-Cloud-Trace-Context")
	if projectID == "" || header == "" {
		return ""
	}
	traceID, _, _ := strings.Cut(header, "/")
	if traceID == "" {
		return ""
	}
	return "projects/" + projectID + "/traces/" + traceID
}

// Publish turns a market headline into a broadcast message on the bot
// channel: analysis text from the model, sentiment classification, and
// a sanitized HTML description, written to the chats collection as the
// bot identity.
func Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if trace := traceFromRequest(r); trace != "" {
		ctx = log.WithTrace(ctx, trace)
	}
	logger := log.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "publish function called")

	if r.Method != http.MethodPost {
		logger.ErrorContext(ctx, "invalid method: "+r.Method)
		http.Error(w, "Method Not Implemented", http.StatusNotImplemented)
		return
	}

	identity, err := auth.Authenticate(r)
	if err != nil {
		logger.ErrorContext(ctx, "error while authenticating", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	logger = logger.With(slog.String(userIDLogField, identity.UID))

	data, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(ctx, "error while reading request body", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	logger.InfoContext(ctx, "incoming request", slog.String(bodyLogField, string(data)))

	var msg contract.PublishRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.ErrorContext(ctx, "error while decoding request", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(msg.Headline) == "" {
		logger.ErrorContext(ctx, "empty headline")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	logger = logger.With(slog.String(symbolLogField, msg.Symbol))
	ctx = log.WithLogger(ctx, logger)

	var stock *quote.Stock
	if msg.Symbol != "" {
		stock, err = quote.FetchStock(ctx, msg.Symbol)
		if err != nil {
			logger.ErrorContext(ctx, "error while fetching quote", slog.String(ErrorMsgLogField, err.Error()))
		}
	}

	analysis, err := generateAnalysis(ctx, msg.Headline, stock)
	if err != nil {
		logger.ErrorContext(ctx, "error while generating analysis", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	classification, err := news.Classify(ctx, analysis)
	if err != nil {
		logger.ErrorContext(ctx, "error while classifying analysis", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	st, err := store.NewFirestore(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "error while connecting to firestore", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer st.Close()

	messageID, err := st.Add(ctx, chat.BroadcastCollection, map[string]any{
		"text":        analysis,
		"title":       classification.Title,
		"description": news.RenderDescription(classification.Description),
		"score":       classification.Score,
		"tier":        classification.Tier,
		"createdAt":   store.ServerTimestamp(),
		"user": map[string]any{
			"_id":    chat.BotUserID,
			"name":   botName,
			"avatar": botAvatar,
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "error while writing broadcast message", slog.String(ErrorMsgLogField, err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	logger.InfoContext(ctx, "broadcast message published", slog.String("messageID", messageID))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(contract.PublishResponse{MessageID: messageID}); err != nil {
		logger.ErrorContext(ctx, "error while encoding response", slog.String(ErrorMsgLogField, err.Error()))
	}
}

// generateAnalysis streams the model output through the link filters so
// the stored text never carries external links or raw asset spans.
func generateAnalysis(ctx context.Context, headline string, stock *quote.Stock) (string, error) {
	prompt, err := template.New("analysis.tmpl").ParseFiles("prompts/analysis.tmpl")
	if err != nil {
		return "", err
	}

	var promptStr strings.Builder
	err = prompt.Execute(
		&promptStr,
		struct {
			Headline string
			Stock    *quote.Stock
		}{
			Headline: headline,
			Stock:    stock,
		},
	)
	if err != nil {
		return "", err
	}

	client, err := openai.New(
		openai.WithModel(analystModel),
		openai.WithToken(openaiAPIKey),
	)
	if err != nil {
		return "", err
	}

	alf := &filter.AssetLinkFilter{}
	elf := &filter.ExternalLinkFilter{}
	var out strings.Builder

	_, err = client.GenerateContent(
		ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, promptStr.String()),
			llms.TextParts(llms.ChatMessageTypeHuman, headline),
		},
		llms.WithStreamingFunc(func(cctx context.Context, chunk []byte) error {
			out.WriteString(alf.ProcessChunk(cctx, elf.ProcessChunk(cctx, string(chunk))))
			return nil
		}),
		llms.WithMaxTokens(800),
	)
	if err != nil {
		return "", err
	}
	// flush whatever the filters still buffer
	out.WriteString(alf.ProcessChunk(ctx, elf.ProcessChunk(ctx, "")))
	out.WriteString(alf.ProcessChunk(ctx, ""))

	return strings.TrimSpace(out.String()), nil
}
