package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

func TestSignupRejectsShortPassword(t *testing.T) {
	a := &AuthHandler{Secret: []byte("test-secret")}
	c, _ := newContext(t, http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"a@b.c","password":"short"}`))

	if code := httpCode(t, a.signup(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	st, mock, done := mockStore(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2)`)).
		WithArgs("a@b.c", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	a := &AuthHandler{Store: st, Secret: []byte("test-secret")}
	c, _ := newContext(t, http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"a@b.c","password":"longenough"}`))

	if code := httpCode(t, a.signup(c)); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	st, mock, done := mockStore(t)
	defer done()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	a := &AuthHandler{Store: st, Secret: []byte("test-secret")}
	c, _ := newContext(t, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"battery-staple"}`))

	if code := httpCode(t, a.login(c)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestLoginIssuesCookieAndToken(t *testing.T) {
	st, mock, done := mockStore(t)
	defer done()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	a := &AuthHandler{Store: st, Secret: []byte("test-secret"), SessionTTL: time.Hour}
	c, rec := newContext(t, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"correct-horse"}`))

	if err := a.login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in response")
	}
	if sub := subjectFromToken(resp.Token, a.Secret); sub != "user-1" {
		t.Fatalf("token subject = %q, want user-1", sub)
	}

	cookies := rec.Result().Cookies()
	var found *http.Cookie
	for _, ck := range cookies {
		if ck.Name == "auth" {
			found = ck
		}
	}
	if found == nil {
		t.Fatalf("expected auth cookie, got %v", cookies)
	}
	if !found.HttpOnly || found.Value != resp.Token {
		t.Fatalf("unexpected cookie: %+v", found)
	}
}

func TestExtendSessionReissuesCookie(t *testing.T) {
	a := &AuthHandler{Secret: []byte("test-secret"), SessionTTL: time.Hour}
	c, rec := newContext(t, http.MethodPost, "/api/auth/extend-session", nil)
	c.Set("user_id", "user-1")

	if err := a.extendSession(c); err != nil {
		t.Fatalf("extendSession: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var found bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "auth" && ck.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fresh auth cookie")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	a := &AuthHandler{Secret: []byte("test-secret")}
	c, rec := newContext(t, http.MethodPost, "/api/auth/logout", nil)

	if err := a.logout(c); err != nil {
		t.Fatalf("logout: %v", err)
	}
	var cleared bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "auth" && ck.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected auth cookie cleared")
	}
}

func TestSubjectFromTokenRejectsBadSecret(t *testing.T) {
	a := &AuthHandler{Secret: []byte("secret-a"), SessionTTL: time.Hour}
	c, _ := newContext(t, http.MethodPost, "/api/auth/login", nil)
	signed, err := a.issueCookie(c, "user-1")
	if err != nil {
		t.Fatalf("issueCookie: %v", err)
	}
	if sub := subjectFromToken(signed, []byte("secret-b")); sub != "" {
		t.Fatalf("expected empty subject for wrong secret, got %q", sub)
	}
}
