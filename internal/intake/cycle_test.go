package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rsm23/netflix-home-auto-confirm/internal/mailbox"
	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

const updateLink = "https://x/update-primary-location/abc"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCycle(gw *MockGateway, actor *MockActor, rec Recorder) *Cycle {
	return &Cycle{
		Gateway:  gw,
		Actor:    actor,
		Recorder: rec,
		Logger:   quietLogger(),
		Now:      func() time.Time { return time.UnixMilli(5_000) },
	}
}

func TestRunOnce_RoundTrip(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 100, linkHTML(updateLink))},
	}
	actor := &MockActor{}
	rec := &MockRecorder{}
	sess := &Session{Anchor: model.AnchorAt(50)}

	res, err := newCycle(gw, actor, rec).RunOnce(context.Background(), sess, Options{Query: "from:x"})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Code != CodeActioned || !res.Actioned {
		t.Fatalf("want actioned got %+v", res)
	}
	if !res.NextAnchor.Set || res.NextAnchor.Millis <= 100 {
		t.Fatalf("next anchor must be after the message, got %s", res.NextAnchor)
	}
	if len(actor.Calls) != 1 || actor.Calls[0] != updateLink {
		t.Fatalf("actor calls %v", actor.Calls)
	}
	if sess.LastLink != updateLink {
		t.Fatalf("last link not updated: %q", sess.LastLink)
	}
	if len(gw.MarkedRead) != 1 || gw.MarkedRead[0] != "m1" {
		t.Fatalf("marked read %v", gw.MarkedRead)
	}
	if gw.LastQuery != "from:x" || gw.LastMax != DefaultBatchSize {
		t.Fatalf("search got query=%q max=%d", gw.LastQuery, gw.LastMax)
	}
	if len(rec.Records) != 1 || rec.Records[0].MessageID != "m1" || rec.Records[0].Requester != "" {
		t.Fatalf("records %+v", rec.Records)
	}
	if sess.Anchor.Millis != 50 {
		t.Fatalf("cycle must not move the session anchor itself, got %s", sess.Anchor)
	}
}

func TestRunOnce_AnchorSkip(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 100, linkHTML(updateLink))},
	}
	actor := &MockActor{}
	res, err := newCycle(gw, actor, nil).RunOnce(context.Background(), &Session{Anchor: model.AnchorAt(150)}, Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Code != CodeNoCandidates || res.Actioned || res.NextAnchor.Set {
		t.Fatalf("want no-candidates got %+v", res)
	}
	if len(actor.Calls) != 0 {
		t.Fatalf("stale message reached the actor: %v", actor.Calls)
	}
}

func TestRunOnce_EqualTimestampIsStale(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 100, linkHTML(updateLink))},
	}
	actor := &MockActor{}
	res, _ := newCycle(gw, actor, nil).RunOnce(context.Background(), &Session{Anchor: model.AnchorAt(100)}, Options{})
	if res.Actioned || len(actor.Calls) != 0 {
		t.Fatalf("message at the anchor must be skipped, got %+v calls=%v", res, actor.Calls)
	}
}

func TestRunOnce_NoCandidates(t *testing.T) {
	gw := &MockGateway{}
	res, err := newCycle(gw, &MockActor{}, nil).RunOnce(context.Background(), &Session{}, Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Code != CodeNoCandidates || res.Actioned || res.NextAnchor.Set {
		t.Fatalf("want no-candidates got %+v", res)
	}
}

func TestRunOnce_NoLink(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 200, `<a href="https://x/help">help</a>`)},
	}
	sess := &Session{Anchor: model.AnchorAt(100), LastLink: "prev"}
	res, err := newCycle(gw, &MockActor{}, nil).RunOnce(context.Background(), sess, Options{OpenOnce: true})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Code != CodeNoLink || res.Actioned {
		t.Fatalf("want no-link got %+v", res)
	}
	if sess.LastLink != "prev" || sess.Anchor.Millis != 100 {
		t.Fatalf("absence must leave state alone, got %+v", sess)
	}
	if len(gw.MarkedRead) != 0 {
		t.Fatalf("nothing should be marked read, got %v", gw.MarkedRead)
	}
}

func TestRunOnce_FirstSuccessWins(t *testing.T) {
	gw := &MockGateway{
		IDs: []string{"m1", "m2", "m3"},
		Messages: map[string]*model.MailMessage{
			"m1": htmlMessage("m1", 300, linkHTML("https://x/update-primary-location/one")),
			"m2": htmlMessage("m2", 200, "<p>nothing</p>"),
			"m3": htmlMessage("m3", 100, linkHTML("https://x/update-primary-location/three")),
		},
	}
	actor := &MockActor{}
	res, _ := newCycle(gw, actor, nil).RunOnce(context.Background(), &Session{}, Options{})
	if !res.Actioned || res.MessageID != "m1" {
		t.Fatalf("want m1 actioned got %+v", res)
	}
	if len(actor.Calls) != 1 {
		t.Fatalf("only the first candidate may be actioned, calls=%v", actor.Calls)
	}
	if len(gw.Fetched) != 1 {
		t.Fatalf("scan must stop after success, fetched=%v", gw.Fetched)
	}
}

func TestRunOnce_RelativeHrefFallsThroughToNextCandidate(t *testing.T) {
	gw := &MockGateway{
		IDs: []string{"m1", "m2"},
		Messages: map[string]*model.MailMessage{
			"m1": htmlMessage("m1", 300, linkHTML("/account/update-primary-location/abc")),
			"m2": htmlMessage("m2", 200, linkHTML("https://x/update-primary-location/real")),
		},
	}
	actor := &MockActor{}
	res, err := newCycle(gw, actor, nil).RunOnce(context.Background(), &Session{Anchor: model.AnchorAt(100)}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Actioned || res.MessageID != "m2" || res.Link != "https://x/update-primary-location/real" {
		t.Fatalf("want m2 actioned got %+v", res)
	}
	if len(actor.Calls) != 1 || actor.Calls[0] != "https://x/update-primary-location/real" {
		t.Fatalf("actor calls %v", actor.Calls)
	}
	if len(gw.MarkedRead) != 1 || gw.MarkedRead[0] != "m2" {
		t.Fatalf("marked read %v", gw.MarkedRead)
	}
}

func TestRunOnce_DedupSkipsLastLink(t *testing.T) {
	gw := &MockGateway{
		IDs: []string{"m1", "m2"},
		Messages: map[string]*model.MailMessage{
			"m1": htmlMessage("m1", 300, linkHTML(updateLink)),
			"m2": htmlMessage("m2", 200, linkHTML("https://x/update-primary-location/other")),
		},
	}
	actor := &MockActor{}
	sess := &Session{LastLink: updateLink}
	res, _ := newCycle(gw, actor, nil).RunOnce(context.Background(), sess, Options{OpenOnce: true})
	if !res.Actioned || res.MessageID != "m2" {
		t.Fatalf("want m2 actioned got %+v", res)
	}
	for _, c := range actor.Calls {
		if c == updateLink {
			t.Fatalf("deduplicated link reached the actor: %v", actor.Calls)
		}
	}
	if sess.LastLink != "https://x/update-primary-location/other" {
		t.Fatalf("last link %q", sess.LastLink)
	}
}

func TestRunOnce_DedupDisabledActsAgain(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 300, linkHTML(updateLink))},
	}
	actor := &MockActor{}
	res, _ := newCycle(gw, actor, nil).RunOnce(context.Background(), &Session{LastLink: updateLink}, Options{})
	if !res.Actioned || len(actor.Calls) != 1 {
		t.Fatalf("without open-once the link is actioned, got %+v", res)
	}
}

func TestRunOnce_DedupOnlyCandidateGivesNoLink(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 300, linkHTML(updateLink))},
	}
	actor := &MockActor{}
	res, _ := newCycle(gw, actor, nil).RunOnce(context.Background(), &Session{LastLink: updateLink}, Options{OpenOnce: true})
	if res.Code != CodeNoLink || len(actor.Calls) != 0 {
		t.Fatalf("want no-link without actor call, got %+v calls=%v", res, actor.Calls)
	}
}

func TestRunOnce_ActorFailureMovesOn(t *testing.T) {
	first := "https://x/update-primary-location/fails"
	second := "https://x/update-primary-location/errors"
	third := "https://x/update-primary-location/works"
	gw := &MockGateway{
		IDs: []string{"m1", "m2", "m3"},
		Messages: map[string]*model.MailMessage{
			"m1": htmlMessage("m1", 300, linkHTML(first)),
			"m2": htmlMessage("m2", 200, linkHTML(second)),
			"m3": htmlMessage("m3", 100, linkHTML(third)),
		},
	}
	actor := &MockActor{
		Results: map[string]bool{first: false},
		Errs:    map[string]error{second: errors.New("button not found")},
	}
	sess := &Session{}
	res, err := newCycle(gw, actor, nil).RunOnce(context.Background(), sess, Options{})
	if err != nil {
		t.Fatalf("actor failures must not abort the cycle: %v", err)
	}
	if !res.Actioned || res.MessageID != "m3" {
		t.Fatalf("want m3 actioned got %+v", res)
	}
	if len(gw.MarkedRead) != 1 || gw.MarkedRead[0] != "m3" {
		t.Fatalf("only the actioned message is marked read, got %v", gw.MarkedRead)
	}
	if sess.LastLink != third {
		t.Fatalf("last link %q", sess.LastLink)
	}
}

func TestRunOnce_ActorPanicIsFailure(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 300, linkHTML(updateLink))},
	}
	res, err := newCycle(gw, &MockActor{Panic: true}, nil).RunOnce(context.Background(), &Session{}, Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Actioned || res.Code != CodeNoLink {
		t.Fatalf("want no-link got %+v", res)
	}
}

func TestRunOnce_SearchFailureAborts(t *testing.T) {
	authErr := &mailbox.AuthError{Provider: "gmail", Message: "token revoked"}
	gw := &MockGateway{SearchErr: authErr}
	res, err := newCycle(gw, &MockActor{}, nil).RunOnce(context.Background(), &Session{}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !mailbox.IsAuthError(err) {
		t.Fatalf("auth error lost in wrapping: %v", err)
	}
	if res.Code != CodeFailed || res.Actioned {
		t.Fatalf("want failed got %+v", res)
	}
}

func TestRunOnce_FetchFailureSkipsCandidate(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1", "m2"},
		FetchErr: map[string]error{"m1": errors.New("503")},
		Messages: map[string]*model.MailMessage{"m2": htmlMessage("m2", 300, linkHTML(updateLink))},
	}
	res, err := newCycle(gw, &MockActor{}, nil).RunOnce(context.Background(), &Session{}, Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Actioned || res.MessageID != "m2" {
		t.Fatalf("want m2 actioned got %+v", res)
	}
}

func TestRunOnce_BestEffortSideEffects(t *testing.T) {
	gw := &MockGateway{
		IDs:         []string{"m1"},
		Messages:    map[string]*model.MailMessage{"m1": htmlMessage("m1", 300, linkHTML(updateLink))},
		MarkReadErr: errors.New("403"),
		MoveErr:     errors.New("label quota"),
	}
	c := newCycle(gw, &MockActor{}, &MockRecorder{Err: errors.New("disk full")})
	c.Label = "Household"
	res, err := c.RunOnce(context.Background(), &Session{}, Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Actioned || res.Code != CodeActioned || !res.NextAnchor.Set {
		t.Fatalf("side-effect failures must not change the outcome, got %+v", res)
	}
	if len(gw.Moved) != 1 || gw.Moved[0] != "m1->Household" {
		t.Fatalf("moved %v", gw.Moved)
	}
}

func TestRunOnce_WritesRecordFile(t *testing.T) {
	dir := t.TempDir()
	doc := `<table><tr><td>Demande effectuée par Jean</td></tr></table>` + linkHTML(updateLink)
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 300, doc)},
	}
	res, err := newCycle(gw, &MockActor{}, FileRecorder{Dir: dir}).RunOnce(context.Background(), &Session{}, Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := filepath.Join(dir, "requester_5000.txt")
	if res.RecordPath != want {
		t.Fatalf("record path want %s got %s", want, res.RecordPath)
	}
	b, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("want 4 lines got %d: %q", len(lines), b)
	}
	if lines[0] != "Subject: Update your household m1" || lines[1] != "Message-ID: m1" || lines[3] != "Demande effectuée par Jean" {
		t.Fatalf("unexpected record %q", b)
	}
}

// The next anchor is the action time, not the message time, so mail that
// arrived while the actor was busy is judged stale on the following tick.
func TestRunOnce_NextAnchorIsActionTime(t *testing.T) {
	gw := &MockGateway{
		IDs:      []string{"m1"},
		Messages: map[string]*model.MailMessage{"m1": htmlMessage("m1", 100, linkHTML(updateLink))},
	}
	cycle := newCycle(gw, &MockActor{}, nil)
	sess := &Session{Anchor: model.AnchorAt(50)}

	res, err := cycle.RunOnce(context.Background(), sess, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.NextAnchor.Millis != 5_000 {
		t.Fatalf("want anchor 5000 got %s", res.NextAnchor)
	}

	sess.Anchor = sess.Anchor.Advance(res.NextAnchor)
	gw.IDs = []string{"m2"}
	gw.Messages["m2"] = htmlMessage("m2", 4_000, linkHTML(updateLink+"2"))
	res, err = cycle.RunOnce(context.Background(), sess, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != CodeNoCandidates {
		t.Fatalf("want %s got %s", CodeNoCandidates, res.Code)
	}
}
