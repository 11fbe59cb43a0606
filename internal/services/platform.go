package services

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

// Platform is one supported video site.
type Platform struct {
	Name             string
	Fetcher          Fetcher
	videoURL         string
	playlistURL      string
	videoPatterns    []*regexp.Regexp
	playlistPatterns []*regexp.Regexp
}

// NewPlatform compiles the URL patterns of cfg and binds fetcher to the platform.
func NewPlatform(name string, cfg shared.PlatformConfig, fetcher Fetcher) (*Platform, error) {
	p := &Platform{
		Name:        name,
		Fetcher:     fetcher,
		videoURL:    cfg.VideoURL,
		playlistURL: cfg.PlaylistURL,
	}

	var err error
	if p.videoPatterns, err = compilePatterns(name, cfg.VideoPatterns); err != nil {
		return nil, err
	}
	if p.playlistPatterns, err = compilePatterns(name, cfg.PlaylistPatterns); err != nil {
		return nil, err
	}
	return p, nil
}

func compilePatterns(name string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: platform %s pattern %q: %v", shared.ErrInvalidConfig, name, pattern, err)
		}
		if re.NumSubexp() == 0 {
			return nil, fmt.Errorf("%w: platform %s pattern %q has no capture group", shared.ErrInvalidConfig, name, pattern)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// matchID returns the native id captured by the first matching pattern.
func matchID(patterns []*regexp.Regexp, raw string) (string, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if i := re.SubexpIndex("id"); i > 0 && m[i] != "" {
			return m[i], true
		}
		if m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// Registry resolves URLs to platform identities.
//
// Platforms are tried in name order so a URL matching several platforms resolves deterministically.
type Registry struct {
	platforms []*Platform
	byName    map[string]*Platform
}

// NewRegistry builds a registry from already constructed platforms.
func NewRegistry(platforms ...*Platform) *Registry {
	r := &Registry{byName: make(map[string]*Platform, len(platforms))}
	for _, p := range platforms {
		r.platforms = append(r.platforms, p)
		r.byName[p.Name] = p
	}
	sort.Slice(r.platforms, func(i, j int) bool { return r.platforms[i].Name < r.platforms[j].Name })
	return r
}

// RegistryFromConfig builds one [LoaderService] backed platform per config entry.
func RegistryFromConfig(cfg map[string]shared.PlatformConfig, client *http.Client) (*Registry, error) {
	platforms := make([]*Platform, 0, len(cfg))
	for name, pc := range cfg {
		p, err := NewPlatform(name, pc, NewLoaderService(pc.LoaderURL, client))
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return NewRegistry(platforms...), nil
}

// Names returns the registered platform names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.platforms))
	for _, p := range r.platforms {
		names = append(names, p.Name)
	}
	return names
}

// ResolveVideo extracts the video identity from raw.
// Returns [shared.ErrNotFound] when no platform recognizes it.
func (r *Registry) ResolveVideo(raw string) (models.VideoKey, error) {
	raw, err := normalizeURL(raw)
	if err != nil {
		return models.VideoKey{}, err
	}

	for _, p := range r.platforms {
		if id, ok := matchID(p.videoPatterns, raw); ok {
			return models.VideoKey{Platform: p.Name, ID: id}, nil
		}
	}
	return models.VideoKey{}, fmt.Errorf("%w: no platform recognizes video url %q", shared.ErrNotFound, raw)
}

// ResolvePlaylist extracts the playlist identity from raw.
// Returns [shared.ErrNotFound] when no platform recognizes it.
func (r *Registry) ResolvePlaylist(raw string) (models.PlaylistKey, error) {
	raw, err := normalizeURL(raw)
	if err != nil {
		return models.PlaylistKey{}, err
	}

	for _, p := range r.platforms {
		if id, ok := matchID(p.playlistPatterns, raw); ok {
			return models.PlaylistKey{Platform: p.Name, ID: id}, nil
		}
	}
	return models.PlaylistKey{}, fmt.Errorf("%w: no platform recognizes playlist url %q", shared.ErrNotFound, raw)
}

// VideoURL rebuilds the canonical URL of a video.
func (r *Registry) VideoURL(key models.VideoKey) (string, error) {
	p, err := r.platform(key.Platform)
	if err != nil {
		return "", err
	}
	if p.videoURL == "" {
		return "", fmt.Errorf("%w: platform %s has no video url template", shared.ErrInvalidConfig, p.Name)
	}
	return fmt.Sprintf(p.videoURL, key.ID), nil
}

// PlaylistURL rebuilds the canonical URL of a playlist.
func (r *Registry) PlaylistURL(key models.PlaylistKey) (string, error) {
	p, err := r.platform(key.Platform)
	if err != nil {
		return "", err
	}
	if p.playlistURL == "" {
		return "", fmt.Errorf("%w: platform %s has no playlist url template", shared.ErrInvalidConfig, p.Name)
	}
	return fmt.Sprintf(p.playlistURL, key.ID), nil
}

// Fetcher returns the fetch capability of a platform.
func (r *Registry) Fetcher(platform string) (Fetcher, error) {
	p, err := r.platform(platform)
	if err != nil {
		return nil, err
	}
	if p.Fetcher == nil {
		return nil, fmt.Errorf("%w: platform %s has no fetcher", shared.ErrInvalidConfig, p.Name)
	}
	return p.Fetcher, nil
}

func (r *Registry) platform(name string) (*Platform, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownPlatform, name)
	}
	return p, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not a web url %q", shared.ErrNotFound, raw)
	}
	return raw, nil
}
