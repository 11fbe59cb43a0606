package services

import (
	"errors"
	"testing"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	registry, err := RegistryFromConfig(shared.DefaultConfig().Platforms, nil)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return registry
}

func TestRegistry(t *testing.T) {
	registry := testRegistry(t)

	t.Run("Names", func(t *testing.T) {
		names := registry.Names()
		if len(names) != 2 || names[0] != "vk" || names[1] != "youtube" {
			t.Errorf("expected [vk youtube], got %v", names)
		}
	})

	t.Run("ResolveVideo", func(t *testing.T) {
		tc := []struct {
			name string
			url  string
			want models.VideoKey
		}{
			{name: "watch url", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: models.VideoKey{Platform: "youtube", ID: "dQw4w9WgXcQ"}},
			{name: "watch url with playlist", url: "https://youtube.com/watch?list=PL1&v=dQw4w9WgXcQ", want: models.VideoKey{Platform: "youtube", ID: "dQw4w9WgXcQ"}},
			{name: "short link", url: " https://youtu.be/dQw4w9WgXcQ ", want: models.VideoKey{Platform: "youtube", ID: "dQw4w9WgXcQ"}},
			{name: "shorts", url: "https://www.youtube.com/shorts/abcdefghijk", want: models.VideoKey{Platform: "youtube", ID: "abcdefghijk"}},
			{name: "vk", url: "https://vk.com/video-22822305_456241864", want: models.VideoKey{Platform: "vk", ID: "-22822305_456241864"}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				got, err := registry.ResolveVideo(tt.url)
				if err != nil {
					t.Fatalf("ResolveVideo() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("ResolveVideo() = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("ResolveVideo NotFound", func(t *testing.T) {
		for _, raw := range []string{"", "not a url", "ftp://youtu.be/dQw4w9WgXcQ", "https://example.com/watch?v=dQw4w9WgXcQ", "https://www.youtube.com/playlist?list=PL1"} {
			if _, err := registry.ResolveVideo(raw); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("ResolveVideo(%q) error = %v, want ErrNotFound", raw, err)
			}
		}
	})

	t.Run("ResolvePlaylist", func(t *testing.T) {
		got, err := registry.ResolvePlaylist("https://www.youtube.com/playlist?list=PLabc_123")
		if err != nil {
			t.Fatalf("ResolvePlaylist() error = %v", err)
		}
		if got != (models.PlaylistKey{Platform: "youtube", ID: "PLabc_123"}) {
			t.Errorf("unexpected key %v", got)
		}

		if _, err := registry.ResolvePlaylist("https://youtu.be/dQw4w9WgXcQ"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a video url, got %v", err)
		}
	})

	t.Run("canonical urls", func(t *testing.T) {
		url, err := registry.VideoURL(models.VideoKey{Platform: "youtube", ID: "abc"})
		if err != nil || url != "https://www.youtube.com/watch?v=abc" {
			t.Errorf("VideoURL() = %q, %v", url, err)
		}

		url, err = registry.PlaylistURL(models.PlaylistKey{Platform: "vk", ID: "-1_2"})
		if err != nil || url != "https://vk.com/video/playlist/-1_2" {
			t.Errorf("PlaylistURL() = %q, %v", url, err)
		}

		if _, err := registry.VideoURL(models.VideoKey{Platform: "rutube", ID: "x"}); !errors.Is(err, shared.ErrUnknownPlatform) {
			t.Errorf("expected ErrUnknownPlatform, got %v", err)
		}
	})

	t.Run("Fetcher", func(t *testing.T) {
		if _, err := registry.Fetcher("youtube"); err != nil {
			t.Errorf("Fetcher() error = %v", err)
		}
		if _, err := registry.Fetcher("rutube"); !errors.Is(err, shared.ErrUnknownPlatform) {
			t.Errorf("expected ErrUnknownPlatform, got %v", err)
		}
	})
}

func TestNewPlatform(t *testing.T) {
	t.Run("first capture group without name", func(t *testing.T) {
		p, err := NewPlatform("example", shared.PlatformConfig{VideoPatterns: []string{`^https://example\.com/v/(\w+)$`}}, nil)
		if err != nil {
			t.Fatalf("NewPlatform() error = %v", err)
		}

		got, err := NewRegistry(p).ResolveVideo("https://example.com/v/abc")
		if err != nil || got.ID != "abc" {
			t.Errorf("ResolveVideo() = %v, %v", got, err)
		}
	})

	t.Run("invalid patterns", func(t *testing.T) {
		for _, pattern := range []string{`(`, `^https://example\.com/v/\w+$`} {
			_, err := NewPlatform("example", shared.PlatformConfig{VideoPatterns: []string{pattern}}, nil)
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("NewPlatform(%q) error = %v, want ErrInvalidConfig", pattern, err)
			}
		}
	})
}

func TestErrorCode(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want models.ErrorCode
	}{
		{name: "nil", err: nil, want: models.CodeNone},
		{name: "unavailable", err: &FetchError{Kind: FetchUnavailable}, want: models.CodeNotFound},
		{name: "unauthorized", err: &FetchError{Kind: FetchUnauthorized}, want: models.CodeUnauthorized},
		{name: "too large", err: &FetchError{Kind: FetchTooLarge}, want: models.CodeTooLarge},
		{name: "malformed", err: &FetchError{Kind: FetchMalformed}, want: models.CodeBadRequest},
		{name: "wrapped", err: errors.Join(errors.New("ctx"), &FetchError{Kind: FetchTooLarge}), want: models.CodeTooLarge},
		{name: "other", err: errors.New("boom"), want: models.CodeInternalError},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode() = %s, want %s", got, tt.want)
			}
		})
	}
}
