package agentrelay

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	NotificationMethodPrefix = "notifications/"
	// MethodStreamEnd marks the end of a notification stream.
	MethodStreamEnd = "notifications/stream_end"
)

// NotificationSource is one subscription to a remote tool's notifications.
// Next blocks until a notification is available; it returns io.EOF once the
// stream has ended and any other error when the transport failed.
type NotificationSource interface {
	Next(ctx context.Context) (Notification, error)
	Close() error
}

// Notifier hands out notification subscriptions. A subscription is not
// restartable; callers subscribe again for every run.
type Notifier interface {
	Subscribe(ctx context.Context) (NotificationSource, error)
}

// ContentPart is one typed part of a structured notification message.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TypedData is the flat {type, text} notification payload.
type TypedData struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Notification is a payload received from the tool channel. At most one of
// Content and Data is set; a notification with neither carries no text.
type Notification struct {
	Method  string
	Content []ContentPart
	Data    *TypedData
	Raw     json.RawMessage
}

// IsStreamEnd reports whether n is the explicit end-of-stream marker.
func (n Notification) IsStreamEnd() bool {
	return n.Method == MethodStreamEnd
}

// ParseNotification decodes a JSON-RPC notification. Shapes it does not
// recognize are kept as Raw only.
func ParseNotification(raw []byte) Notification {
	n := Notification{
		Method: gjson.GetBytes(raw, "method").String(),
		Raw:    append(json.RawMessage(nil), raw...),
	}
	params := gjson.GetBytes(raw, "params")
	if content := params.Get("content"); content.IsArray() {
		for _, part := range content.Array() {
			if !part.IsObject() {
				continue
			}
			n.Content = append(n.Content, ContentPart{
				Type: part.Get("type").String(),
				Text: part.Get("text").String(),
			})
		}
		if len(n.Content) > 0 {
			return n
		}
	}
	if data := params.Get("data"); data.IsObject() {
		n.Data = &TypedData{
			Type: data.Get("type").String(),
			Text: data.Get("text").String(),
		}
	}
	return n
}

// TextFragments normalizes a notification into the text fragments relayed to
// the UI. Content parts win over flat data; unrecognized shapes yield nil.
func TextFragments(n Notification) []string {
	var fragments []string
	for _, part := range n.Content {
		if part.Type == "text" && part.Text != "" {
			fragments = append(fragments, part.Text)
		}
	}
	if len(fragments) > 0 {
		return fragments
	}
	if n.Data != nil && n.Data.Type == "text" && n.Data.Text != "" {
		return []string{n.Data.Text}
	}
	return nil
}

// IsNotificationMethod reports whether method belongs to the notifications/
// namespace of JSON-RPC.
func IsNotificationMethod(method string) bool {
	return strings.HasPrefix(method, NotificationMethodPrefix)
}
