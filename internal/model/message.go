package model

import (
	"net/mail"
	"strings"
	"time"
)

// Header is a single mailbox message header.
type Header struct {
	Name  string
	Value string
}

// MessagePart is a node of a MIME tree. Leaf parts carry decoded Data;
// multipart containers carry Parts.
type MessagePart struct {
	MimeType string
	Data     string
	Parts    []MessagePart
}

// Message is a fetched mailbox message in a provider-independent shape.
type Message struct {
	InternalDate time.Time
	ID           string
	ThreadID     string
	Snippet      string
	Headers      []Header
	Labels       []string
	Body         MessagePart
	HistoryID    uint64
}

// Header returns the first header value named name, case-insensitively.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Subject returns the Subject header.
func (m *Message) Subject() string {
	return m.Header("Subject")
}

// From splits the From header into display name and lower-cased address.
func (m *Message) From() (name, address string) {
	return ParseAddress(m.Header("From"))
}

// ParseAddress splits "Name <addr>" into its parts. Unparseable values are
// returned as the address with an empty name.
func ParseAddress(value string) (name, address string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(value); err == nil {
		return addr.Name, strings.ToLower(addr.Address)
	}
	if i := strings.LastIndex(value, "<"); i >= 0 {
		if j := strings.LastIndex(value, ">"); j > i {
			name = strings.Trim(strings.TrimSpace(value[:i]), `"`)
			return name, strings.ToLower(strings.TrimSpace(value[i+1 : j]))
		}
	}
	return "", strings.ToLower(value)
}

// BodyText returns the most useful textual body: the first text/plain part,
// then the first text/html part, then the snippet.
func (m *Message) BodyText() string {
	if text := findPart(m.Body, "text/plain"); text != "" {
		return text
	}
	if html := findPart(m.Body, "text/html"); html != "" {
		return html
	}
	return m.Snippet
}

func findPart(part MessagePart, mimeType string) string {
	if strings.HasPrefix(strings.ToLower(part.MimeType), mimeType) && strings.TrimSpace(part.Data) != "" {
		return part.Data
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}
