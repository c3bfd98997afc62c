package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

var (
	afterUnixRe = regexp.MustCompile(`\bafter:(\d{9,})\b`)
	afterDateRe = regexp.MustCompile(`\bafter:(\d{4})/(\d{2})/(\d{2})\b`)
)

// DirectoryMailbox serves raw .eml files from a directory. Message ids are the
// file names without extension. It has no change history, so it only supports
// listing and fetching.
type DirectoryMailbox struct {
	dir string
}

var _ service.Mailbox = (*DirectoryMailbox)(nil)

// NewDirectoryMailbox opens dir, which must exist.
func NewDirectoryMailbox(dir string) (*DirectoryMailbox, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open mail directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirectoryMailbox{dir: dir}, nil
}

// ListMessageIDs returns ids newest first. Only the after: terms of query are
// honored; other terms are ignored.
func (d *DirectoryMailbox) ListMessageIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mail directory: %w", err)
	}

	after, hasAfter := parseAfter(query)

	type candidate struct {
		date time.Time
		id   string
	}
	var found []candidate
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		msg, err := d.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		if hasAfter && !msg.InternalDate.After(after) {
			continue
		}
		found = append(found, candidate{id: id, date: msg.InternalDate})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].date.Equal(found[j].date) {
			return found[i].id > found[j].id
		}
		return found[i].date.After(found[j].date)
	})

	ids := make([]string, 0, len(found))
	for _, c := range found {
		if maxResults > 0 && len(ids) >= maxResults {
			break
		}
		ids = append(ids, c.id)
	}
	return ids, nil
}

// GetMessage parses <dir>/<id>.eml.
func (d *DirectoryMailbox) GetMessage(_ context.Context, id string) (*model.Message, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("invalid message id %q", id)
	}

	path := filepath.Join(d.dir, id+".eml")
	f, err := os.Open(path) // #nosec G304 - id is validated above
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("message %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open message %s: %w", id, err)
	}
	defer func() { _ = f.Close() }()

	msg, err := ParseEML(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}
	msg.ID = id
	return msg, nil
}

// DiffHistory is not available for a directory.
func (d *DirectoryMailbox) DiffHistory(context.Context, uint64) ([]service.HistoryRecord, error) {
	return nil, ErrUnsupported
}

// CurrentHistoryID is not available for a directory.
func (d *DirectoryMailbox) CurrentHistoryID(context.Context) (uint64, error) {
	return 0, ErrUnsupported
}

// Watch is not available for a directory.
func (d *DirectoryMailbox) Watch(context.Context, string, []string) (service.WatchResponse, error) {
	return service.WatchResponse{}, ErrUnsupported
}

// ParseEML reads one RFC 5322 message. Transfer encodings and charsets are
// decoded; the Date header becomes InternalDate.
func ParseEML(r io.Reader) (*model.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	defer func() { _ = mr.Close() }()

	out := &model.Message{}
	fields := mr.Header.Fields()
	for fields.Next() {
		value, textErr := fields.Text()
		if textErr != nil {
			value = fields.Value()
		}
		out.Headers = append(out.Headers, model.Header{Name: fields.Key(), Value: value})
	}
	if date, dateErr := mr.Header.Date(); dateErr == nil {
		out.InternalDate = date.UTC()
	}
	if id, idErr := mr.Header.MessageID(); idErr == nil {
		out.ThreadID = id
	}

	root := model.MessagePart{MimeType: "multipart/mixed"}
	for {
		part, partErr := mr.NextPart()
		if errors.Is(partErr, io.EOF) {
			break
		}
		if partErr != nil && !message.IsUnknownCharset(partErr) {
			return nil, partErr
		}
		if part == nil {
			continue
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mimeType, _, ctErr := inline.ContentType()
		if ctErr != nil || mimeType == "" {
			mimeType = "text/plain"
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			return nil, readErr
		}
		root.Parts = append(root.Parts, model.MessagePart{MimeType: strings.ToLower(mimeType), Data: string(body)})
	}
	out.Body = root

	if len(root.Parts) > 0 {
		out.Snippet = snippet(root.Parts[0].Data)
	}
	return out, nil
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// parseAfter extracts the lower time bound from a search query.
func parseAfter(query string) (time.Time, bool) {
	if m := afterUnixRe.FindStringSubmatch(query); m != nil {
		secs, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return time.Unix(secs, 0), true
		}
	}
	if m := afterDateRe.FindStringSubmatch(query); m != nil {
		t, err := time.ParseInLocation("2006/01/02", m[1]+"/"+m[2]+"/"+m[3], dedup.Location())
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
