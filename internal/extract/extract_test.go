package extract

import (
	"testing"

	"github.com/rsm23/netflix-home-auto-confirm/internal/model"
)

func htmlPart(s string) model.ContentPart {
	return model.ContentPart{ContentType: "text/html; charset=utf-8", Data: []byte(s)}
}

func textPart(s string) model.ContentPart {
	return model.ContentPart{ContentType: "text/plain", Data: []byte(s)}
}

func TestLink_HTMLBeatsPlainText(t *testing.T) {
	parts := []model.ContentPart{
		textPart("open https://x/update-primary-location/from-text now"),
		htmlPart(`<p><a href="https://x/help">help</a> <a href="https://x/update-primary-location/from-html?a=1&amp;b=2">go</a></p>`),
	}
	got, ok := Link(parts, LinkPolicy{})
	if !ok {
		t.Fatal("expected a link")
	}
	if got != "https://x/update-primary-location/from-html?a=1&b=2" {
		t.Fatalf("got %q", got)
	}
}

func TestLink_SingleQuotedHref(t *testing.T) {
	parts := []model.ContentPart{htmlPart("<a href='https://x/update-primary-location/abc'>go</a>")}
	got, ok := Link(parts, LinkPolicy{})
	if !ok || got != "https://x/update-primary-location/abc" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestLink_RelativeHrefIgnored(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
		ok   bool
	}{
		{"relative only", `<a href="/account/update-primary-location/abc">go</a>`, "", false},
		{"scheme relative", `<a href="//x/update-primary-location/abc">go</a>`, "", false},
		{"non-http scheme", `<a href="mailto:update-primary-location@x">go</a>`, "", false},
		{
			"falls through to absolute",
			`<a href="/account/update-primary-location/abc">a</a><a href="HTTPS://x/update-primary-location/real">b</a>`,
			"HTTPS://x/update-primary-location/real", true,
		},
	}
	for _, tc := range tests {
		got, ok := Link([]model.ContentPart{htmlPart(tc.doc)}, LinkPolicy{})
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: got %q ok=%v, want %q ok=%v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLink_PlainTextFallbackTrimsPunctuation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Click (https://x.test/update-primary-location/t1).", "https://x.test/update-primary-location/t1"},
		{"<https://x.test/set-primary?id=9>", "https://x.test/set-primary?id=9"},
		{`"HTTPS://X.TEST/Update-Primary/z",`, "HTTPS://X.TEST/Update-Primary/z"},
		{"first https://x.test/other then https://x.test/update-primary-location/2]", "https://x.test/update-primary-location/2"},
	}
	for _, tc := range tests {
		got, ok := Link([]model.ContentPart{textPart(tc.in)}, LinkPolicy{})
		if !ok || got != tc.want {
			t.Errorf("Link(%q) = %q,%v; want %q", tc.in, got, ok, tc.want)
		}
	}
}

func TestLink_AbsenceIsNotAnError(t *testing.T) {
	parts := []model.ContentPart{
		htmlPart(`<a href="https://x/account">account</a>`),
		textPart("nothing to see https://x/help"),
		{ContentType: "image/png", Data: []byte{0x89, 0x50}},
	}
	if got, ok := Link(parts, LinkPolicy{}); ok {
		t.Fatalf("expected absence, got %q", got)
	}
	if _, ok := Link(nil, LinkPolicy{}); ok {
		t.Fatal("expected absence for no parts")
	}
}

func TestLink_CustomSubstrings(t *testing.T) {
	parts := []model.ContentPart{htmlPart(`<a href="https://x/update-primary-location/a">a</a><a href="https://x/Confirm-Device/b">b</a>`)}
	got, ok := Link(parts, LinkPolicy{Substrings: []string{"confirm-device"}})
	if !ok || got != "https://x/Confirm-Device/b" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestLink_InvalidUTF8IsDropped(t *testing.T) {
	p := model.ContentPart{ContentType: "text/plain", Data: []byte("go \xff\xfehttps://x/update-primary/1 \xff")}
	got, ok := Link([]model.ContentPart{p}, LinkPolicy{})
	if !ok || got != "https://x/update-primary/1" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestRequester_FirstMatchingCell(t *testing.T) {
	doc := `<html><body><table>
<tr><td>Bonjour</td></tr>
<tr><td>  Demande effectuée par
    <b>Jean</b>   depuis   <span>Paris</span></td></tr>
<tr><td>Demande effectuée par quelqu'un d'autre</td></tr>
</table></body></html>`
	got, ok := Requester([]model.ContentPart{textPart("Demande effectuée par texte"), htmlPart(doc)}, nil)
	if !ok {
		t.Fatal("expected requester")
	}
	if got != "Demande effectuée par Jean depuis Paris" {
		t.Fatalf("got %q", got)
	}
}

func TestRequester_TextPartsIgnored(t *testing.T) {
	if got, ok := Requester([]model.ContentPart{textPart("Requested by Alice")}, nil); ok {
		t.Fatalf("plain text must not match, got %q", got)
	}
}

func TestRequester_DeclaredCharset(t *testing.T) {
	p := model.ContentPart{
		ContentType: "text/html; charset=iso-8859-1",
		Data:        []byte("<table><tr><td>Demande effectu\xe9e par Marie</td></tr></table>"),
	}
	got, ok := Requester([]model.ContentPart{p}, nil)
	if !ok || got != "Demande effectuée par Marie" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestRequester_EnglishMarker(t *testing.T) {
	p := htmlPart(`<table><tr><th>Requested by Bob on a TV</th></tr></table>`)
	got, ok := Requester([]model.ContentPart{p}, []string{"requested by"})
	if !ok || got != "Requested by Bob on a TV" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}
