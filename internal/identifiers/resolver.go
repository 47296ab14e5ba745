// Package identifiers resolves the identifier lists that drive each cleanup
// module. A list comes from the local cache, the online repository or the
// copy compiled into the binary, in that order.
package identifiers

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/httputil"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
)

var log = logging.L("identifiers")

//go:embed config/*.json
var embedded embed.FS

// Embedded returns the identifier lists compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "config")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source tells where a resolved resource came from.
type Source int

const (
	SourceEmbedded Source = iota
	SourceLocal
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "embedded"
	}
}

// Resource is a resolved identifier list.
type Resource struct {
	Identifier string
	Source     Source
	Content    []byte
}

// Options configures the resolution tiers.
type Options struct {
	// CacheDir holds the offline copies, one file per identifier.
	CacheDir string
	// UseCache enables reading from and writing back to CacheDir.
	UseCache bool
	// AllowUpdates enables the online tier.
	AllowUpdates bool
	// BaseURL and Ref locate the online lists at <BaseURL>/<Ref>/config/<id>.
	BaseURL string
	Ref     string
	Timeout time.Duration
	Retry   httputil.RetryConfig
}

// Resolver implements the offline, online, embedded cascade.
type Resolver struct {
	opts     Options
	client   *http.Client
	embedded fs.FS
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the HTTP client used by the online tier.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithEmbedded replaces the compiled-in fallback set.
func WithEmbedded(fsys fs.FS) Option {
	return func(r *Resolver) { r.embedded = fsys }
}

func New(opts Options, options ...Option) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	r := &Resolver{
		opts:     opts,
		client:   &http.Client{Timeout: opts.Timeout},
		embedded: Embedded(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// URL returns the online location of identifier.
func (r *Resolver) URL(identifier string) string {
	return strings.TrimRight(r.opts.BaseURL, "/") + "/" + r.opts.Ref + "/config/" + identifier
}

// CachePath returns the offline location of identifier.
func (r *Resolver) CachePath(identifier string) string {
	return filepath.Join(r.opts.CacheDir, identifier)
}

// Resolve returns the first identifier list produced by the enabled tiers.
// Offline and online failures are logged and skipped; if the embedded tier
// also fails its error is returned.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Resource, error) {
	if err := validIdentifier(identifier); err != nil {
		return nil, errors.Trace(err)
	}

	res, err := r.offline(identifier)
	if err == nil {
		log.Info("resolved identifiers", logging.KeyIdentifier, identifier, "source", res.Source)
		return res, nil
	}
	r.skip("offline", identifier, err)

	res, err = r.online(ctx, identifier)
	if err == nil {
		log.Info("resolved identifiers", logging.KeyIdentifier, identifier, "source", res.Source)
		return res, nil
	}
	r.skip("online", identifier, err)

	res, err = r.builtin(identifier)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot resolve %q from any source", identifier)
	}
	log.Info("resolved identifiers", logging.KeyIdentifier, identifier, "source", res.Source)
	return res, nil
}

func (r *Resolver) skip(tier, identifier string, err error) {
	if errors.Is(err, errors.NotSupported) {
		log.Debug("tier disabled", "tier", tier, logging.KeyIdentifier, identifier)
		return
	}
	log.Warn("tier failed, falling back", "tier", tier, logging.KeyIdentifier, identifier, logging.KeyError, err)
}

func (r *Resolver) offline(identifier string) (*Resource, error) {
	if !r.opts.UseCache {
		return nil, errors.NotSupportedf("getting a resource from 'offline'")
	}

	path := r.CachePath(identifier)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot read %q", path)
	}
	return &Resource{Identifier: identifier, Source: SourceLocal, Content: content}, nil
}

func (r *Resolver) online(ctx context.Context, identifier string) (*Resource, error) {
	if !r.opts.AllowUpdates {
		return nil, errors.NotSupportedf("getting a resource from 'online'")
	}

	url := r.URL(identifier)
	content, err := httputil.Fetch(ctx, r.client, url, r.opts.Retry)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot get resource from %q", url)
	}

	if r.opts.UseCache {
		r.writeBack(identifier, content)
	}
	return &Resource{Identifier: identifier, Source: SourceRemote, Content: content}, nil
}

func (r *Resolver) writeBack(identifier string, content []byte) {
	path := r.CachePath(identifier)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Warn("cannot create identifier cache", "path", filepath.Dir(path), logging.KeyError, err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		log.Warn("cannot write identifier cache", "path", path, logging.KeyError, err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		log.Warn("cannot write identifier cache", "path", path, logging.KeyError, err)
	}
}

func (r *Resolver) builtin(identifier string) (*Resource, error) {
	if r.embedded == nil {
		return nil, errors.NotFoundf("embedded resource %q", identifier)
	}
	content, err := fs.ReadFile(r.embedded, identifier)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFoundf("embedded resource %q", identifier)
		}
		return nil, errors.Annotatef(err, "cannot read embedded resource %q", identifier)
	}
	return &Resource{Identifier: identifier, Source: SourceEmbedded, Content: content}, nil
}

func validIdentifier(identifier string) error {
	if identifier == "" || identifier == "." || identifier == ".." ||
		strings.ContainsAny(identifier, `/\:`) {
		return errors.NotValidf("identifier %q", identifier)
	}
	return nil
}
