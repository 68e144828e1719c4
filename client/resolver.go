package client

import (
	"context"
	"time"
)

// resolveAttachments is the enrichment step for push-delivered messages:
// when the payload arrived without attachments, fetch them; on failure,
// render text-only. Attachments are best-effort enrichment, never a
// delivery precondition.
func resolveAttachments(api *Client, msg Message) Message {
	if len(msg.Attachments) > 0 {
		return msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	atts, err := api.AttachmentsFor(ctx, msg.ID)
	if err != nil {
		msg.Attachments = []Attachment{}
		return msg
	}
	msg.Attachments = atts
	return msg
}
