// Package gmail reads bill candidates from a user's mailbox through the
// Gmail API.
package gmail

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const me = "me"

// Client is a read-only Gmail client for one user.
type Client struct {
	svc *gm.Service
}

// NewClient builds a client authorized by ts. Extra options are passed to
// the API service, mainly for tests.
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListMessageIDs returns up to limit message ids matching query, newest first.
func (c *Client) ListMessageIDs(ctx context.Context, query string, limit int64) ([]string, error) {
	ids := make([]string, 0, limit)
	call := c.svc.Users.Messages.List(me).Q(query).MaxResults(limit).Context(ctx)

	err := call.Pages(ctx, func(resp *gm.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			if int64(len(ids)) >= limit {
				return errStopPaging
			}
			ids = append(ids, m.Id)
		}
		if int64(len(ids)) >= limit {
			return errStopPaging
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return ids, nil
}

var errStopPaging = errors.New("stop paging")

// GetMessage fetches a full message including its MIME tree.
func (c *Client) GetMessage(ctx context.Context, id string) (*gm.Message, error) {
	msg, err := c.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// Attachment downloads and decodes one attachment body.
func (c *Client) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := c.svc.Users.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get attachment %s of %s: %w", attachmentID, messageID, err)
	}
	data, err := DecodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}
