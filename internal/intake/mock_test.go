package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

// MockGateway implements mailbox.Gateway and mailbox.Mover for testing.
type MockGateway struct {
	IDs      []string
	Messages map[string]*model.MailMessage

	// Error injection
	SearchErr   error
	FetchErr    map[string]error
	MarkReadErr error
	MoveErr     error

	// Call tracking
	LastQuery  string
	LastMax    int64
	Fetched    []string
	MarkedRead []string
	Moved      []string
}

func (m *MockGateway) Search(_ context.Context, query string, max int64) ([]string, error) {
	m.LastQuery = query
	m.LastMax = max
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.IDs, nil
}

func (m *MockGateway) Fetch(_ context.Context, id string) (*model.MailMessage, error) {
	m.Fetched = append(m.Fetched, id)
	if err := m.FetchErr[id]; err != nil {
		return nil, err
	}
	msg, ok := m.Messages[id]
	if !ok {
		return nil, mailbox.ErrNotFound
	}
	return msg, nil
}

func (m *MockGateway) FetchAttachment(context.Context, string, string) (string, error) {
	return "", errors.New("no attachments in mock")
}

func (m *MockGateway) MarkRead(_ context.Context, id string) error {
	m.MarkedRead = append(m.MarkedRead, id)
	return m.MarkReadErr
}

func (m *MockGateway) Move(_ context.Context, id, label string) error {
	m.Moved = append(m.Moved, id+"->"+label)
	return m.MoveErr
}

// MockActor records confirmations and returns scripted results per link.
type MockActor struct {
	Results map[string]bool
	Errs    map[string]error
	Panic   bool
	Calls   []string
}

func (a *MockActor) Confirm(_ context.Context, url string, _ time.Duration) (bool, error) {
	a.Calls = append(a.Calls, url)
	if a.Panic {
		panic("browser crashed")
	}
	if err := a.Errs[url]; err != nil {
		return false, err
	}
	if ok, found := a.Results[url]; found {
		return ok, nil
	}
	return true, nil
}

// MockRecorder keeps records in memory.
type MockRecorder struct {
	Records []model.ResultRecord
	Err     error
}

func (r *MockRecorder) Record(rec model.ResultRecord) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	r.Records = append(r.Records, rec)
	return "mem://" + rec.MessageID, nil
}

func htmlMessage(id string, ts int64, html string) *model.MailMessage {
	return &model.MailMessage{
		ID:           id,
		InternalDate: ts,
		Headers:      model.Headers{"subject": "Update your household " + id},
		Body: model.Part{Kind: model.PartMultipart, ContentType: "multipart/alternative", Children: []model.Part{
			{Kind: model.PartInline, ContentType: "text/html", Data: base64.URLEncoding.EncodeToString([]byte(html))},
		}},
	}
}

func linkHTML(link string) string {
	return "<a href='" + link + "'>go</a>"
}
