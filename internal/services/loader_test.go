package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tu "github.com/desertthunder/tubeq/internal/testing"
)

func TestLoaderService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		srv := NewLoaderService("", nil)

		if srv.baseURL != defaultLoaderURL {
			t.Errorf("expected default baseURL, got %s", srv.baseURL)
		}
		if srv.httpClient != http.DefaultClient {
			t.Error("expected http.DefaultClient to be used")
		}
	})

	t.Run("Fetch", func(t *testing.T) {
		t.Run("Successful Request", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/download" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}

				var body map[string]string
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("failed to decode body: %v", err)
				}
				if body["url"] != "https://youtu.be/abc" {
					t.Errorf("unexpected url %q", body["url"])
				}

				w.WriteHeader(http.StatusOK)
				w.Write([]byte("/media/abc.mp4\n"))
			}))
			defer server.Close()

			path, err := NewLoaderService(server.URL+"/", nil).Fetch(context.Background(), "https://youtu.be/abc")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if path != "/media/abc.mp4" {
				t.Errorf("expected /media/abc.mp4, got %q", path)
			}
		})

		tc := []struct {
			name   string
			status int
			want   FetchErrorKind
		}{
			{name: "Unauthorized", status: http.StatusUnauthorized, want: FetchUnauthorized},
			{name: "Not Found", status: http.StatusNotFound, want: FetchUnavailable},
			{name: "Too Large", status: http.StatusRequestEntityTooLarge, want: FetchTooLarge},
			{name: "Bad Request", status: http.StatusBadRequest, want: FetchMalformed},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				}))
				defer server.Close()

				_, err := NewLoaderService(server.URL, nil).Fetch(context.Background(), "https://youtu.be/abc")
				var fe *FetchError
				if !errors.As(err, &fe) {
					t.Fatalf("expected FetchError, got %v", err)
				}
				if fe.Kind != tt.want || fe.Status != tt.status {
					t.Errorf("got kind %s status %d, want %s", fe.Kind, fe.Status, tt.want)
				}
			})
		}

		t.Run("Server Error Is Internal", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "extractor crashed", http.StatusInternalServerError)
			}))
			defer server.Close()

			_, err := NewLoaderService(server.URL, nil).Fetch(context.Background(), "https://youtu.be/abc")
			if err == nil {
				t.Fatal("expected error")
			}
			if code := ErrorCode(err); code != "INTERNAL_ERROR" {
				t.Errorf("expected INTERNAL_ERROR, got %s", code)
			}
		})

		t.Run("Empty Path", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			if _, err := NewLoaderService(server.URL, nil).Fetch(context.Background(), "u"); err == nil {
				t.Fatal("expected error for empty path")
			}
		})

		t.Run("Transport Error", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}

			if _, err := NewLoaderService("http://loader", client).Fetch(context.Background(), "u"); err == nil {
				t.Fatal("expected transport error")
			}
		})

		t.Run("Body Read Error", func(t *testing.T) {
			resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
			client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}

			if _, err := NewLoaderService("http://loader", client).Fetch(context.Background(), "u"); err == nil {
				t.Fatal("expected read error")
			}
		})
	})

	t.Run("List", func(t *testing.T) {
		t.Run("Successful Request", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/get/playlist" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if got := r.URL.Query().Get("url"); got != "https://www.youtube.com/playlist?list=PL1" {
					t.Errorf("unexpected url query %q", got)
				}

				json.NewEncoder(w).Encode(map[string][]string{"video_ids": {"a", "b", "c"}})
			}))
			defer server.Close()

			ids, err := NewLoaderService(server.URL, nil).List(context.Background(), "https://www.youtube.com/playlist?list=PL1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(ids) != 3 || ids[0] != "a" {
				t.Errorf("unexpected ids %v", ids)
			}
		})

		t.Run("Invalid JSON", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			}))
			defer server.Close()

			if _, err := NewLoaderService(server.URL, nil).List(context.Background(), "u"); err == nil {
				t.Fatal("expected decode error")
			}
		})

		t.Run("Bad Request", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			}))
			defer server.Close()

			_, err := NewLoaderService(server.URL, nil).List(context.Background(), "u")
			if code := ErrorCode(err); code != "BAD_REQUEST" {
				t.Errorf("expected BAD_REQUEST, got %s (%v)", code, err)
			}
		})
	})
}
