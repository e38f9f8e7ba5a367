package mailer

import (
	"strings"
	"testing"
)

func TestBuildMIME(t *testing.T) {
	msg := Message{
		To:       "ada@example.com",
		From:     "reports@acme.example.com",
		FromName: "Acme Reports",
		Subject:  "Workflow Report",
		BodyHTML: "<p>hello</p>",
	}

	raw := string(buildMIME(msg))

	headers, body, found := strings.Cut(raw, "\r\n\r\n")
	if !found {
		t.Fatal("no header/body separator")
	}
	for _, want := range []string{
		"From: Acme Reports <reports@acme.example.com>",
		"To: ada@example.com",
		"Subject: Workflow Report",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q:\n%s", want, headers)
		}
	}
	if !strings.Contains(body, "<p>hello</p>") {
		t.Errorf("body = %q", body)
	}
}

func TestBuildMIME_DefaultFromName(t *testing.T) {
	raw := string(buildMIME(Message{To: "a@x.com", From: "r@x.com", Subject: "s"}))
	if !strings.Contains(raw, "From: Workflow Reports <r@x.com>") {
		t.Errorf("missing default from name:\n%s", raw)
	}
}

func TestBuildMIME_EncodesUnicodeSubject(t *testing.T) {
	raw := string(buildMIME(Message{To: "a@x.com", From: "r@x.com", Subject: "Fällige Aufgaben"}))
	if strings.Contains(raw, "Subject: Fällige Aufgaben") {
		t.Errorf("non-ASCII subject not encoded:\n%s", raw)
	}
	if !strings.Contains(raw, "Subject: =?utf-8?") {
		t.Errorf("subject not q-encoded:\n%s", raw)
	}
}
