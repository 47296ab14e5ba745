package identifiers

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/juju/errors"
)

const id = "device_identifiers.json"

func fakeEmbedded() fstest.MapFS {
	return fstest.MapFS{id: {Data: []byte("embedded")}}
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/v4.x/config/"+id {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolveOfflineShortCircuits(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, id), []byte("offline"), 0644); err != nil {
		t.Fatal(err)
	}
	srv, hits := newServer(t, http.StatusOK, "online")

	r := New(Options{CacheDir: dir, UseCache: true, AllowUpdates: false, BaseURL: srv.URL, Ref: "v4.x"},
		WithEmbedded(fakeEmbedded()))
	res, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceLocal || string(res.Content) != "offline" {
		t.Fatalf("got %s %q, want local offline content", res.Source, res.Content)
	}
	if hits.Load() != 0 {
		t.Fatal("online tier should not be contacted")
	}
}

func TestResolveOfflineWinsEvenWithUpdatesAllowed(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, id), []byte("offline"), 0644)
	srv, hits := newServer(t, http.StatusOK, "online")

	r := New(Options{CacheDir: dir, UseCache: true, AllowUpdates: true, BaseURL: srv.URL, Ref: "v4.x"},
		WithEmbedded(fakeEmbedded()))
	res, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceLocal || hits.Load() != 0 {
		t.Fatalf("source = %s, hits = %d; offline tier must short-circuit", res.Source, hits.Load())
	}
}

func TestResolveOnlineWritesBackToCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	srv, _ := newServer(t, http.StatusOK, "online")

	r := New(Options{CacheDir: dir, UseCache: true, AllowUpdates: true, BaseURL: srv.URL + "/", Ref: "v4.x"},
		WithEmbedded(fakeEmbedded()))
	res, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceRemote || string(res.Content) != "online" {
		t.Fatalf("got %s %q, want remote online content", res.Source, res.Content)
	}

	cached, err := os.ReadFile(filepath.Join(dir, id))
	if err != nil {
		t.Fatalf("expected cache write-back: %v", err)
	}
	if string(cached) != "online" {
		t.Fatalf("cached = %q", cached)
	}

	res, err = r.Resolve(context.Background(), id)
	if err != nil || res.Source != SourceLocal {
		t.Fatalf("second resolve should come from cache, got %v %v", res, err)
	}
}

func TestResolveOnlineWithoutCacheDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	srv, _ := newServer(t, http.StatusOK, "online")

	r := New(Options{CacheDir: dir, UseCache: false, AllowUpdates: true, BaseURL: srv.URL, Ref: "v4.x"},
		WithEmbedded(fakeEmbedded()))
	if _, err := r.Resolve(context.Background(), id); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, id)); !os.IsNotExist(err) {
		t.Fatalf("cache file should not exist, stat err = %v", err)
	}
}

func TestResolveFallsBackToEmbeddedOnHTTPError(t *testing.T) {
	srv, hits := newServer(t, http.StatusInternalServerError, "boom")

	r := New(Options{CacheDir: t.TempDir(), UseCache: false, AllowUpdates: true, BaseURL: srv.URL, Ref: "v4.x"},
		WithEmbedded(fakeEmbedded()))
	res, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceEmbedded || string(res.Content) != "embedded" {
		t.Fatalf("got %s %q, want embedded content", res.Source, res.Content)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestResolveWriteBackFailureIsNotFatal(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	srv, _ := newServer(t, http.StatusOK, "online")

	// CacheDir below a regular file can be neither read nor created.
	r := New(Options{CacheDir: filepath.Join(blocker, "config"), UseCache: true, AllowUpdates: true, BaseURL: srv.URL, Ref: "v4.x"},
		WithEmbedded(fakeEmbedded()))
	res, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceRemote {
		t.Fatalf("source = %s, want remote", res.Source)
	}
}

func TestResolveAllTiersFail(t *testing.T) {
	r := New(Options{UseCache: false, AllowUpdates: false}, WithEmbedded(fstest.MapFS{}))
	_, err := r.Resolve(context.Background(), id)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected the embedded not-found error as cause, got %v", err)
	}
}

func TestResolveRejectsPathIdentifiers(t *testing.T) {
	r := New(Options{}, WithEmbedded(fakeEmbedded()))
	for _, bad := range []string{"", "..", "../secret.json", `sub\file.json`} {
		if _, err := r.Resolve(context.Background(), bad); !errors.Is(err, errors.NotValid) {
			t.Fatalf("Resolve(%q) = %v, want NotValid", bad, err)
		}
	}
}

func TestEmbeddedListsAreWellFormed(t *testing.T) {
	fsys := Embedded()
	for _, name := range []string{
		"device_identifiers.json",
		"driver_identifiers.json",
		"driver_package_identifiers.json",
	} {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("embedded %s: %v", name, err)
		}
		var entries []map[string]any
		if err := json.Unmarshal(data, &entries); err != nil {
			t.Fatalf("embedded %s is not a JSON array: %v", name, err)
		}
		for i, e := range entries {
			if _, ok := e["friendly_name"].(string); !ok {
				t.Fatalf("%s entry %d has no friendly_name", name, i)
			}
		}
	}
}

func TestSourceString(t *testing.T) {
	if SourceLocal.String() != "local" || SourceRemote.String() != "remote" || SourceEmbedded.String() != "embedded" {
		t.Fatal("unexpected Source names")
	}
}
