package mailbox

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"google.golang.org/api/gmail/v1"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

func convertMessage(msg *gmail.Message) *model.Message {
	out := &model.Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		HistoryID:    msg.HistoryId,
		Snippet:      msg.Snippet,
		Labels:       msg.LabelIds,
		InternalDate: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			out.Headers = append(out.Headers, model.Header{Name: h.Name, Value: h.Value})
		}
		out.Body = convertPart(msg.Payload)
	}
	return out
}

func convertPart(part *gmail.MessagePart) model.MessagePart {
	out := model.MessagePart{MimeType: strings.ToLower(part.MimeType)}
	if part.Body != nil && part.Body.Data != "" {
		out.Data = decodeBody(part.Body.Data, headerValue(part.Headers, "Content-Type"))
	}
	for _, child := range part.Parts {
		if child != nil {
			out.Parts = append(out.Parts, convertPart(child))
		}
	}
	return out
}

// decodeBody decodes base64url part data and converts it to UTF-8 using the
// part's declared charset.
func decodeBody(data, contentType string) string {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return toUTF8(raw, contentType)
}

// toUTF8 converts raw bytes declared with contentType's charset. Unknown or
// missing charsets leave the bytes untouched.
func toUTF8(raw []byte, contentType string) string {
	if contentType == "" {
		return string(raw)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(raw)
	}
	label := strings.ToLower(params["charset"])
	if label == "" || label == "utf-8" || label == "us-ascii" {
		return string(raw)
	}
	r, err := charset.Reader(label, bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
