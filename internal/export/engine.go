// Package export runs filter queries against the matcher and turns the
// resulting feature stream into a downloadable artifact.
package export

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/filters"
)

const (
	ContentTypeGeoJSON = "application/geo+json"
	ContentTypeZip     = "application/zip"
)

type Matcher interface {
	Count(ctx context.Context, f filters.Filters) (int64, error)
	Stream(ctx context.Context, f filters.Filters, limit int, fn func(feature []byte) error) error
}

// Artifact is a finished export on local disk. The engine's caller owns it
// and must call Cleanup once it has been handed off.
type Artifact struct {
	Dir         string
	Path        string
	Filename    string
	ContentType string
	Features    int64
	Size        int64
}

func (a *Artifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

type Engine struct {
	matcher     Matcher
	dataset     string
	tmpDir      string
	maxFeatures int
	logger      *zap.Logger
}

type Option func(*Engine)

// WithDataset sets the artifact base name (<dataset>.geojson).
func WithDataset(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.dataset = name
		}
	}
}

func WithTempDir(dir string) Option {
	return func(e *Engine) { e.tmpDir = dir }
}

// WithMaxFeatures enables a hard cap; 0 disables it.
func WithMaxFeatures(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxFeatures = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(m Matcher, opts ...Option) *Engine {
	e := &Engine{
		matcher: m,
		dataset: "landslides",
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Count(ctx context.Context, f filters.Filters) (int64, error) {
	return e.matcher.Count(ctx, f)
}

// Export streams matching features into <dataset>.geojson, or straight into a
// single-entry <dataset>.geojson.zip when compress is set.
func (e *Engine) Export(ctx context.Context, f filters.Filters, compress bool) (*Artifact, error) {
	start := time.Now()

	dir, err := os.MkdirTemp(e.tmpDir, "export-*")
	if err != nil {
		return nil, apperr.Internal("export failed", err)
	}

	art := &Artifact{Dir: dir, Filename: e.dataset + ".geojson", ContentType: ContentTypeGeoJSON}
	if compress {
		art.Filename += ".zip"
		art.ContentType = ContentTypeZip
	}
	art.Path = filepath.Join(dir, art.Filename)

	if err := e.write(ctx, f, compress, art); err != nil {
		_ = art.Cleanup()
		return nil, err
	}

	if st, err := os.Stat(art.Path); err == nil {
		art.Size = st.Size()
	}

	e.logger.Info("export written",
		zap.String("filename", art.Filename),
		zap.Int64("features", art.Features),
		zap.Int64("bytes", art.Size),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return art, nil
}

func (e *Engine) write(ctx context.Context, f filters.Filters, compress bool, art *Artifact) (err error) {
	file, err := os.Create(art.Path)
	if err != nil {
		return apperr.Internal("export failed", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = apperr.Internal("export failed", cerr)
		}
	}()

	var (
		dst io.Writer = file
		zw  *zip.Writer
	)
	if compress {
		zw = zip.NewWriter(file)
		entry, zerr := zw.CreateHeader(&zip.FileHeader{
			Name:     e.dataset + ".geojson",
			Method:   zip.Deflate,
			Modified: time.Now().UTC(),
		})
		if zerr != nil {
			return apperr.Internal("export failed", zerr)
		}
		dst = entry
	}

	fw, err := NewFeatureWriter(dst)
	if err != nil {
		return apperr.Internal("export failed", err)
	}

	if err := e.stream(ctx, f, fw); err != nil {
		return err
	}
	art.Features = fw.Count()

	if err := fw.Close(); err != nil {
		return apperr.Internal("export failed", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return apperr.Internal("export failed", err)
		}
	}
	return nil
}

// stream feeds the matcher output into fw, enforcing the optional cap. The
// matcher is asked for one row past the cap so an overflow is detectable.
func (e *Engine) stream(ctx context.Context, f filters.Filters, fw *FeatureWriter) error {
	limit := 0
	if e.maxFeatures > 0 {
		limit = e.maxFeatures + 1
	}

	err := e.matcher.Stream(ctx, f, limit, func(feature []byte) error {
		if e.maxFeatures > 0 && fw.Count() >= int64(e.maxFeatures) {
			return apperr.TooManyResults(e.maxFeatures)
		}
		if werr := fw.Write(feature); werr != nil {
			return apperr.Internal("export failed", werr)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal("export failed", err)
}
