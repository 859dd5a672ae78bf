package contract

// PublishRequest asks the bot to turn a market headline into a
// broadcast message. Symbol optionally anchors the analysis to one
// asset so the current quote can be included.
type PublishRequest struct {
	Headline string `json:"headline"`
	Symbol   string `json:"symbol"`
}

type PublishResponse struct {
	MessageID string `json:"message_id"`
}
