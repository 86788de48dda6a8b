package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReissueSuccess(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour).Truncate(time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token/reissue" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Refresh-Token"); got != "refresh-1" {
			t.Errorf("missing refresh token header, got %q", got)
		}
		w.Header().Set("access-token", "access-2")
		w.Header().Set("refresh-token", "refresh-2")
		w.Header().Set("refresh-token-expiration", "1767225600000")
		_ = expiry
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	triple, err := c.Reissue(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if triple.AccessToken != "access-2" || triple.RefreshToken != "refresh-2" {
		t.Fatalf("unexpected triple: %+v", triple)
	}
	if triple.RefreshExpiry.UnixMilli() != 1767225600000 {
		t.Fatalf("unexpected expiry %v", triple.RefreshExpiry)
	}
}

func TestReissueMissingHeaders(t *testing.T) {
	cases := []struct {
		name string
		omit string
	}{
		{"no access token", "access-token"},
		{"no refresh token", "refresh-token"},
		{"no expiration", "refresh-token-expiration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				headers := map[string]string{
					"access-token":             "a",
					"refresh-token":            "r",
					"refresh-token-expiration": "1767225600000",
				}
				delete(headers, tc.omit)
				for k, v := range headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			c := New(srv.URL, srv.Client())
			if _, err := c.Reissue(context.Background(), "refresh-1"); !errors.Is(err, ErrReissueFailed) {
				t.Fatalf("expected ErrReissueFailed, got %v", err)
			}
		})
	}
}

func TestReissueServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if _, err := c.Reissue(context.Background(), "stale"); !errors.Is(err, ErrReissueFailed) {
		t.Fatalf("expected ErrReissueFailed, got %v", err)
	}
}

func TestFetchProfileDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"userId":"kim","userName":"Kim","partName":"Cardiology"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	profile, err := c.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.UserID != "kim" || profile.PartName != "Cardiology" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestEnvelopeFailureSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"FORBIDDEN","message":"nope"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if _, err := c.FetchProfile(context.Background()); err == nil {
		t.Fatal("expected error for unsuccessful envelope")
	}
}

func TestListRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"chatroomSeq":1,"chatroomName":"oncall","lastMessage":"hi","lastMessageTime":"2026-08-01T10:00:00Z"},
			{"chatroomSeq":2,"chatroomName":"ward-3","lastMessage":"ok","lastMessageTime":"2026-08-02T10:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	rooms, err := c.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[1].Name != "ward-3" {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
}

func TestVisitReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/chatroom/9/visit" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if err := c.Visit(context.Background(), 9); err == nil {
		t.Fatal("expected error for 500 visit")
	}
}
