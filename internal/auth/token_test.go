package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseShareToken(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	issued, err := IssueShareToken(secret, ShareClaims{
		ReportID:   "rpt_1",
		DocumentID: "doc-1",
		JTI:        "jti-1",
		Exp:        now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueShareToken() error = %v", err)
	}
	claims, err := ParseShareToken(secret, issued, now)
	if err != nil {
		t.Fatalf("ParseShareToken() error = %v", err)
	}
	if claims.ReportID != "rpt_1" || claims.DocumentID != "doc-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseShareTokenRejects(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	valid, _ := IssueShareToken(secret, ShareClaims{ReportID: "rpt_1", JTI: "j", Exp: now.Add(time.Hour).Unix()})
	expired, _ := IssueShareToken(secret, ShareClaims{ReportID: "rpt_1", JTI: "j", Exp: now.Add(-time.Minute).Unix()})
	missing, _ := IssueShareToken(secret, ShareClaims{JTI: "j", Exp: now.Add(time.Hour).Unix()})
	payload, _, _ := strings.Cut(valid, ".")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"no signature", payload, ErrInvalidToken},
		{"extra part", valid + ".x", ErrInvalidToken},
		{"tampered payload", "e30." + strings.SplitN(valid, ".", 2)[1], ErrInvalidToken},
		{"wrong secret", mustIssue(t, []byte("other"), now), ErrInvalidToken},
		{"missing report", missing, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseShareToken(secret, tt.token, now); !errors.Is(err, tt.want) {
				t.Fatalf("ParseShareToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func mustIssue(t *testing.T, secret []byte, now time.Time) string {
	t.Helper()
	token, err := IssueShareToken(secret, ShareClaims{ReportID: "rpt_1", JTI: "j", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueShareToken() error = %v", err)
	}
	return token
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestCheckAPIToken(t *testing.T) {
	if !CheckAPIToken("", "anything") {
		t.Fatal("empty configured token should allow")
	}
	if !CheckAPIToken("s3cret", "s3cret") {
		t.Fatal("matching token rejected")
	}
	if CheckAPIToken("s3cret", "s3cre") || CheckAPIToken("s3cret", "") {
		t.Fatal("mismatched token accepted")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte(`[[{"ty":"is","ibi":1,"s":"a"},1,"u1"]]`), []byte(`{"u1":{"name":"Ada"}}`))
	b := Fingerprint([]byte("[ [ {\"ty\": \"is\", \"ibi\": 1, \"s\": \"a\"}, 1, \"u1\" ] ]"), []byte(`{ "u1": { "name": "Ada" } }`))
	if a != b {
		t.Fatalf("whitespace changed fingerprint: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if Fingerprint([]byte("ab"), []byte("c")) == Fingerprint([]byte("a"), []byte("bc")) {
		t.Fatal("part boundaries should affect the fingerprint")
	}
	if Fingerprint([]byte(`[1]`)) == Fingerprint([]byte(`[2]`)) {
		t.Fatal("different input produced the same fingerprint")
	}
}
