// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/tubeq/internal/models"
)

// MockFetcher is a test double for [services.Fetcher].
//
// Fetch answers from Paths or Errors keyed by url; List answers from Listings or Errors.
// Unknown urls fail with an internal error. Block, when set, is waited on before every call.
type MockFetcher struct {
	Paths    map[string]string
	Listings map[string][]string
	Errors   map[string]error
	Block    chan struct{}
	Panic    bool

	mu          sync.Mutex
	fetchCalls  []string
	listCalls   []string
	inFlight    int
	maxInFlight int
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	m.enter(&m.fetchCalls, url)
	defer m.leave()

	if m.Panic {
		panic("fetcher exploded")
	}
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	if err, ok := m.Errors[url]; ok {
		return "", err
	}
	if path, ok := m.Paths[url]; ok {
		return path, nil
	}
	return "", errors.New("mock fetcher: unknown url " + url)
}

func (m *MockFetcher) List(ctx context.Context, url string) ([]string, error) {
	m.enter(&m.listCalls, url)
	defer m.leave()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err, ok := m.Errors[url]; ok {
		return nil, err
	}
	if ids, ok := m.Listings[url]; ok {
		return ids, nil
	}
	return nil, errors.New("mock fetcher: unknown playlist " + url)
}

func (m *MockFetcher) wait(ctx context.Context) error {
	if m.Block == nil {
		return nil
	}
	select {
	case <-m.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockFetcher) enter(calls *[]string, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, url)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
}

func (m *MockFetcher) leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

// FetchCalls returns the urls passed to Fetch.
func (m *MockFetcher) FetchCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetchCalls...)
}

// ListCalls returns the urls passed to List.
func (m *MockFetcher) ListCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.listCalls...)
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (m *MockFetcher) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// MockNotifier is a test double for [services.Notifier] recording every notification.
type MockNotifier struct {
	Err error

	mu   sync.Mutex
	sent []models.Notification
}

func (m *MockNotifier) Notify(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.Err
}

// Sent returns the recorded notifications.
func (m *MockNotifier) Sent() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.sent...)
}

// MockStore is a test double for [services.ArtifactStore] returning "store://{platform}/{id}".
type MockStore struct {
	Err error

	mu   sync.Mutex
	puts []string
}

func (m *MockStore) Put(_ context.Context, key models.VideoKey, localPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, localPath)
	if m.Err != nil {
		return "", m.Err
	}
	return "store://" + key.Platform + "/" + key.ID, nil
}

// Puts returns the local paths passed to Put.
func (m *MockStore) Puts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}

// LockedBuffer is a [bytes.Buffer] safe for concurrent writers, such as child loggers that
// each hold their own lock.
type LockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// MustWriteFile writes size bytes to dir/name and returns the path.
func MustWriteFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
