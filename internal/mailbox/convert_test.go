package mailbox

import (
	"encoding/base64"
	"testing"

	"google.golang.org/api/gmail/v1"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		contentType string
		want        string
	}{
		{"padded", base64.URLEncoding.EncodeToString([]byte("hola!")), "", "hola!"},
		{"unpadded", base64.RawURLEncoding.EncodeToString([]byte("hola!")), "", "hola!"},
		{"latin1", base64.URLEncoding.EncodeToString([]byte("Se\xf1or")), "text/plain; charset=iso-8859-1", "Señor"},
		{"windows-1252", base64.URLEncoding.EncodeToString([]byte("\x93hola\x94")), "text/plain; charset=windows-1252", "“hola”"},
		{"unknown charset kept", base64.URLEncoding.EncodeToString([]byte("abc")), "text/plain; charset=x-made-up", "abc"},
		{"invalid base64", "!!!", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeBody(tt.data, tt.contentType); got != tt.want {
				t.Errorf("decodeBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertMessageNestedParts(t *testing.T) {
	html := base64.URLEncoding.EncodeToString([]byte("<p>Monto USD 5.00</p>"))
	msg := &gmail.Message{
		Id:           "m1",
		InternalDate: 1700000000000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "Pago"}},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "TEXT/HTML", Body: &gmail.MessagePartBody{Data: html}},
					},
				},
				nil,
			},
		},
	}

	out := convertMessage(msg)
	if out.Subject() != "Pago" {
		t.Errorf("Subject = %q", out.Subject())
	}
	if out.BodyText() != "<p>Monto USD 5.00</p>" {
		t.Errorf("BodyText = %q", out.BodyText())
	}
	if out.InternalDate.UnixMilli() != 1700000000000 {
		t.Errorf("InternalDate = %v", out.InternalDate)
	}
}
