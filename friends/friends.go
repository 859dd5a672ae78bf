package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abarbosa/fintalk/store"
)

const userCollection = "users"

var (
	ErrSelfRequest  = errors.New("cannot send a friend request to yourself")
	ErrUserNotFound = errors.New("user not found")
)

// Profile is the subset of a user document shown on friend screens.
type Profile struct {
	UID    string
	Name   string
	Email  string
	Avatar string
}

// Service manages the friend graph stored on user documents: a
// friendRequests array of pending requester UIDs and a friendlist array
// of accepted peer UIDs.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Request sends a friend request from the given user to the account
// registered under toEmail.
func (s *Service) Request(ctx context.Context, fromUID, fromEmail, toEmail string) error {
	toEmail = strings.ToLower(strings.TrimSpace(toEmail))
	if toEmail == "" {
		return ErrUserNotFound
	}
	if toEmail == strings.ToLower(fromEmail) {
		return ErrSelfRequest
	}

	receiverID, err := s.uidByEmail(ctx, toEmail)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, userCollection, receiverID, []store.Update{
		{Path: "friendRequests", Kind: store.UpdateArrayUnion, Value: fromUID},
	})
}

// Accept turns a pending request into a mutual friendship. Both user
// documents change in one atomic commit, so the requester can never end
// up friended on one side only.
func (s *Service) Accept(ctx context.Context, userUID, requesterUID string) error {
	return s.store.ApplyAll(ctx, []store.Write{
		{
			Collection: userCollection,
			DocID:      userUID,
			Updates: []store.Update{
				{Path: "friendlist", Kind: store.UpdateArrayUnion, Value: requesterUID},
				{Path: "friendRequests", Kind: store.UpdateArrayRemove, Value: requesterUID},
			},
		},
		{
			Collection: userCollection,
			DocID:      requesterUID,
			Updates: []store.Update{
				{Path: "friendlist", Kind: store.UpdateArrayUnion, Value: userUID},
			},
		},
	})
}

// Reject drops a pending request without touching either friend list.
func (s *Service) Reject(ctx context.Context, userUID, requesterUID string) error {
	return s.store.Update(ctx, userCollection, userUID, []store.Update{
		{Path: "friendRequests", Kind: store.UpdateArrayRemove, Value: requesterUID},
	})
}

// Pending lists the profiles behind the user's pending requests.
func (s *Service) Pending(ctx context.Context, userUID string) ([]Profile, error) {
	return s.resolveList(ctx, userUID, "friendRequests")
}

// List lists the user's accepted friends.
func (s *Service) List(ctx context.Context, userUID string) ([]Profile, error) {
	return s.resolveList(ctx, userUID, "friendlist")
}

func (s *Service) resolveList(ctx context.Context, userUID, field string) ([]Profile, error) {
	doc, err := s.store.Get(ctx, userCollection, userUID)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userUID, err)
	}

	ids, _ := doc.Data[field].([]any)
	profiles := make([]Profile, 0, len(ids))
	for _, id := range ids {
		uid, ok := id.(string)
		if !ok {
			continue
		}
		friendDoc, err := s.store.Get(ctx, userCollection, uid)
		if err != nil {
			// A dangling UID degrades to a missing row, not a failure.
			continue
		}
		profiles = append(profiles, decodeProfile(uid, friendDoc))
	}
	return profiles, nil
}

func (s *Service) uidByEmail(ctx context.Context, email string) (string, error) {
	docs, err := s.store.GetAll(ctx, store.Query{
		Path:    userCollection,
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

func decodeProfile(uid string, doc store.Document) Profile {
	p := Profile{UID: uid}
	p.Name, _ = doc.Data["name"].(string)
	p.Email, _ = doc.Data["email"].(string)
	p.Avatar, _ = doc.Data["avatar"].(string)
	return p
}
