package chat

import "time"

// Firestore collections the conversation screens read and write.
const (
	BroadcastCollection = "chats"
	GroupCollection     = "groupConversations"
	PrivateCollection   = "privateChats"
	UserCollection      = "users"

	messagesSubcollection = "messages"

	// BotUserID marks broadcast messages; the bot is not a real account.
	BotUserID = 0
)

// User-visible placeholder strings, kept in the product language.
const (
	NoMessagesPlaceholder  = "Não há mensagens"
	NameLoadingPlaceholder = "Carregando..."
	UnnamedUserPlaceholder = "Usuário sem nome"

	botConversationName = "Chat Bot"
)

// Kind tells which source a conversation came from.
type Kind string

const (
	KindPrivate   Kind = "private"
	KindGroup     Kind = "group"
	KindBroadcast Kind = "broadcast"
)

// Sender is the denormalized author snapshot stored on every message.
type Sender struct {
	ID     any    `firestore:"_id"`
	Name   string `firestore:"name"`
	Avatar string `firestore:"avatar"`
}

// Message is one entry of a conversation's messages subcollection.
// Title, Description, Score and Tier are only set on broadcast items.
type Message struct {
	ID          string
	Sender      Sender
	Text        string
	Image       string
	Title       string
	Description string
	Score       float64
	Tier        string
	CreatedAt   time.Time
}

// LastMessage is the snapshot shown on the conversation list.
type LastMessage struct {
	SenderName string
	Text       string
	SentAt     time.Time
}

// Conversation is one display-ready row of the unified list. Preview
// already carries the placeholder states, so screens render it as-is.
type Conversation struct {
	ID           string
	Kind         Kind
	Name         string
	Participants []string
	LastMessage  *LastMessage
	Preview      string
}
