package engine

import (
	"context"
	"strings"

	"fieldline/internal/cache"
	"fieldline/internal/domain"
	"fieldline/internal/mutation"
)

// SendPrivateMessage appends the message to the conversation with peerID
// before it is posted.
func (e Engine) SendPrivateMessage(ctx context.Context, peerID, content string) (*mutation.Handle[domain.ChatMessage], error) {
	if strings.TrimSpace(peerID) == "" {
		return nil, FieldError{Field: "peer"}
	}
	return e.send(ctx, cache.PrivateKey(peerID), domain.MessageInput{RecipientID: peerID, Content: content})
}

func (e Engine) SendChannelMessage(ctx context.Context, channel, content string) (*mutation.Handle[domain.ChatMessage], error) {
	if strings.TrimSpace(channel) == "" {
		return nil, FieldError{Field: "channel"}
	}
	return e.send(ctx, cache.ChannelKey(channel), domain.MessageInput{Channel: channel, Content: content})
}

func (e Engine) send(ctx context.Context, key string, in domain.MessageInput) (*mutation.Handle[domain.ChatMessage], error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, FieldError{Field: "content"}
	}
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	return mutation.Submit(ctx, e.Pipeline, e.Store.Conversation(key), "",
		func(ref domain.Ref, _ domain.ChatMessage) domain.ChatMessage {
			return domain.ChatMessage{
				ID:          ref.ID,
				SenderID:    u.ID,
				SenderName:  u.DisplayName(),
				RecipientID: in.RecipientID,
				Channel:     in.Channel,
				Content:     in.Content,
				CreatedAt:   now,
			}
		},
		func(ctx context.Context) (domain.ChatMessage, error) {
			return e.Client.SendMessage(ctx, in)
		})
}

// DeleteMessage removes message id from the conversation stored under key.
func (e Engine) DeleteMessage(ctx context.Context, key, id string) (*mutation.Handle[struct{}], error) {
	return mutation.Delete(ctx, e.Pipeline, e.Store.Conversation(key), id, func(ctx context.Context) error {
		return e.Client.DeleteMessage(ctx, id)
	})
}

// UpdateProfile saves profile changes. When the roster holds the user the
// change is shown there before the backend confirms it.
func (e Engine) UpdateProfile(ctx context.Context, in domain.ProfileInput) (*mutation.Handle[domain.User], error) {
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	if _, ok := e.Store.Users.Get(u.ID); !ok {
		v, err := e.Session.UpdateProfile(ctx, in)
		return mutation.Completed(domain.Confirmed(u.ID), v, err), nil
	}
	return mutation.Submit(ctx, e.Pipeline, e.Store.Users, u.ID,
		func(_ domain.Ref, cur domain.User) domain.User {
			if in.Name != nil {
				cur.Name = *in.Name
			}
			if in.Phone != nil {
				cur.Phone = *in.Phone
			}
			if in.Status != nil {
				cur.Status = *in.Status
			}
			return cur
		},
		func(ctx context.Context) (domain.User, error) {
			return e.Session.UpdateProfile(ctx, in)
		})
}
