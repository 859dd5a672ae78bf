package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abarbosa/fintalk/store"
)

var (
	ErrSelfChat       = errors.New("cannot start a conversation with yourself")
	ErrEmptyGroupName = errors.New("group name is required")
	ErrNoParticipants = errors.New("a group needs at least one participant")
	ErrNotAFriend     = errors.New("participant is not in your friend list")
	ErrUserNotFound   = errors.New("user not found")
)

// Service writes conversations and messages. Reads of the unified list
// live in Aggregator; this half covers the user actions.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// SendMessage appends a message to a conversation's subcollection. The
// timestamp is assigned by the store at commit, so ordering across
// senders follows commit order.
func (s *Service) SendMessage(ctx context.Context, kind Kind, convID string, sender Sender, text, image string) error {
	collection := GroupCollection
	if kind == KindPrivate {
		collection = PrivateCollection
	}
	data := map[string]any{
		"text":      text,
		"createdAt": store.ServerTimestamp(),
		"user": map[string]any{
			"_id":    sender.ID,
			"name":   sender.Name,
			"avatar": sender.Avatar,
		},
	}
	if image != "" {
		data["image"] = image
	}
	_, err := s.store.Add(ctx, collection+"/"+convID+"/"+messagesSubcollection, data)
	if err != nil {
		return fmt.Errorf("sending message to %s: %w", convID, err)
	}
	return nil
}

// StartPrivateChat returns the chat shared with friendEmail, creating
// it when none exists yet. The second result tells whether a new chat
// was created.
func (s *Service) StartPrivateChat(ctx context.Context, userEmail, friendEmail string) (string, bool, error) {
	friendEmail = strings.ToLower(strings.TrimSpace(friendEmail))
	if friendEmail == "" {
		return "", false, ErrUserNotFound
	}
	if friendEmail == userEmail {
		return "", false, ErrSelfChat
	}

	existing, err := s.store.GetAll(ctx, store.Query{
		Path:    PrivateCollection,
		Filters: []store.Filter{{Path: "participants", Op: store.OpArrayContains, Value: userEmail}},
	})
	if err != nil {
		return "", false, err
	}
	for _, doc := range existing {
		for _, p := range stringSlice(doc.Data["participants"]) {
			if p == friendEmail {
				return doc.ID, false, nil
			}
		}
	}

	id, err := s.store.Add(ctx, PrivateCollection, map[string]any{
		"participants": []any{userEmail, friendEmail},
		"createdAt":    store.ServerTimestamp(),
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// CreateGroup creates a group conversation owned by the creator. Every
// participant must be on the creator's friend list; the creator is
// always included.
func (s *Service) CreateGroup(ctx context.Context, creatorUID, creatorEmail, name string, participantEmails []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyGroupName
	}
	if len(participantEmails) == 0 {
		return "", ErrNoParticipants
	}

	friendIDs, err := s.friendIDs(ctx, creatorUID)
	if err != nil {
		return "", err
	}

	participants := []any{creatorEmail}
	seen := map[string]bool{creatorEmail: true}
	for _, email := range participantEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || seen[email] {
			continue
		}
		uid, err := s.userIDByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		if !friendIDs[uid] {
			return "", fmt.Errorf("%w: %s", ErrNotAFriend, email)
		}
		seen[email] = true
		participants = append(participants, email)
	}

	return s.store.Add(ctx, GroupCollection, map[string]any{
		"groupName":    name,
		"participants": participants,
		"createdBy":    creatorEmail,
		"createdAt":    store.ServerTimestamp(),
	})
}

// AddParticipant array-unions an email into the group, mirroring the
// group menu action.
func (s *Service) AddParticipant(ctx context.Context, groupID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrUserNotFound
	}
	return s.store.Update(ctx, GroupCollection, groupID, []store.Update{
		{Path: "participants", Kind: store.UpdateArrayUnion, Value: email},
	})
}

func (s *Service) friendIDs(ctx context.Context, uid string) (map[string]bool, error) {
	doc, err := s.store.Get(ctx, UserCollection, uid)
	if err != nil {
		return nil, err
	}
	ids := map[string]bool{}
	for _, id := range stringSlice(doc.Data["friendlist"]) {
		ids[id] = true
	}
	return ids, nil
}

func (s *Service) userIDByEmail(ctx context.Context, email string) (string, error) {
	docs, err := s.store.GetAll(ctx, store.Query{
		Path:    UserCollection,
		Filters: []store.Filter{{Path: "email", Op: store.OpEqual, Value: email}},
		Limit:   1,
	})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if uid, ok := docs[0].Data["userid"].(string); ok && uid != "" {
		return uid, nil
	}
	return docs[0].ID, nil
}
