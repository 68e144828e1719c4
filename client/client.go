// Package client is the Go SDK for the live-chat service: a REST client
// for the durable surface, a transport session for push events, and the
// widget/console state machines built on both.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client is the REST client for the chat API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a new client.
func New(baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// NewWithToken creates a new client that sends a bearer token on every
// request (customer or agent credentials from the auth collaborator).
func NewWithToken(baseURL, token string) (*Client, error) {
	c, err := New(baseURL)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

// APIError carries the server's error code so callers can branch on it
// without matching message strings.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("livechat: http %d", e.StatusCode)
	}
	return fmt.Sprintf("livechat: http %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsAlreadyClaimed reports whether err is the expected claim-race loss.
func IsAlreadyClaimed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "FAILED_PRECONDITION"
}

// IsNotFound reports whether err is a not-found rejection.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "NOT_FOUND"
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, out)
}

// StartConversation creates a waiting conversation. Guest identification
// is required unless the client carries customer credentials.
func (c *Client) StartConversation(ctx context.Context, guestName, guestEmail string) (*Conversation, error) {
	in := map[string]string{"guest_name": guestName, "guest_email": guestEmail}
	var out Conversation
	if err := c.post(ctx, "/api/chat/conversations", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var out Conversation
	if err := c.get(ctx, "/api/chat/conversations/"+id.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns all messages of a conversation in creation order.
func (c *Client) History(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	var out []Message
	if err := c.get(ctx, "/api/chat/conversations/"+conversationID.String()+"/messages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID uuid.UUID, text string) (*Message, error) {
	in := map[string]any{"conversation_id": conversationID, "message": text}
	var out Message
	if err := c.post(ctx, "/api/chat/messages", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FileUpload is one file to attach to an outgoing message.
type FileUpload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// SendMessageWithAttachments posts a message and its files in a single
// multipart request. The server persists message and attachments
// atomically, so a rejected file fails the whole message.
func (c *Client) SendMessageWithAttachments(ctx context.Context, conversationID uuid.UUID, text string, files []FileUpload) (*Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("conversation_id", conversationID.String()); err != nil {
		return nil, err
	}
	if err := mw.WriteField("message", text); err != nil {
		return nil, err
	}
	for _, f := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments"; filename=%q`, f.Name))
		hdr.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/messages/with-attachments", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Message
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachmentsFor is the fallback fetch for push events that arrived
// without inlined attachments.
func (c *Client) AttachmentsFor(ctx context.Context, messageID uuid.UUID) ([]Attachment, error) {
	var out []Attachment
	if err := c.get(ctx, "/api/chat/messages/"+messageID.String()+"/attachments", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListWaiting(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.get(ctx, "/api/chat/conversations/waiting", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMyActive(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.get(ctx, "/api/chat/conversations/my-active", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Claim attempts the atomic hand-off of a waiting conversation. Losing
// the race returns an error satisfying IsAlreadyClaimed.
func (c *Client) Claim(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	var out Conversation
	if err := c.post(ctx, "/api/chat/conversations/"+conversationID.String()+"/claim", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CloseConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	var out Conversation
	if err := c.post(ctx, "/api/chat/conversations/"+conversationID.String()+"/close", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CustomerDetails fetches the sidebar bundle for an authenticated
// customer id.
func (c *Client) CustomerDetails(ctx context.Context, customerID uuid.UUID) (*CustomerDetails, error) {
	var out CustomerDetails
	if err := c.get(ctx, "/api/chat/customers/"+customerID.String()+"/details", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
