package export_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/export"
	"geo-export-service/internal/filters"
)

type fakeMatcher struct {
	features  [][]byte
	count     int64
	err       error
	lastLimit int
}

func (m *fakeMatcher) Count(ctx context.Context, f filters.Filters) (int64, error) {
	return m.count, m.err
}

func (m *fakeMatcher) Stream(ctx context.Context, f filters.Filters, limit int, fn func([]byte) error) error {
	m.lastLimit = limit
	if m.err != nil {
		return m.err
	}
	for i, feat := range m.features {
		if limit > 0 && i >= limit {
			break
		}
		if err := fn(feat); err != nil {
			return err
		}
	}
	return nil
}

func features(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf(`{"type":"Feature","properties":{"id":%d},"geometry":null}`, i))
	}
	return out
}

type collection struct {
	Type     string `json:"type"`
	Features []struct {
		Properties struct {
			ID int `json:"id"`
		} `json:"properties"`
	} `json:"features"`
}

func TestExport_ProducesValidCollection(t *testing.T) {
	for _, n := range []int{0, 1, 2, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			eng := export.NewEngine(&fakeMatcher{features: features(n)}, export.WithTempDir(t.TempDir()))

			art, err := eng.Export(context.Background(), filters.Filters{}, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer art.Cleanup()

			if art.Filename != "landslides.geojson" || art.ContentType != export.ContentTypeGeoJSON {
				t.Fatalf("unexpected artifact: %+v", art)
			}
			if art.Features != int64(n) {
				t.Fatalf("expected %d features, got %d", n, art.Features)
			}

			raw, err := os.ReadFile(art.Path)
			if err != nil {
				t.Fatalf("read artifact: %v", err)
			}
			var fc collection
			if err := json.Unmarshal(raw, &fc); err != nil {
				t.Fatalf("artifact is not valid JSON: %v\n%s", err, raw)
			}
			if fc.Type != "FeatureCollection" || len(fc.Features) != n {
				t.Fatalf("expected FeatureCollection with %d features, got %s/%d", n, fc.Type, len(fc.Features))
			}
			for i, feat := range fc.Features {
				if feat.Properties.ID != i {
					t.Fatalf("feature order not preserved at %d: got id %d", i, feat.Properties.ID)
				}
			}
		})
	}
}

func TestExport_EmptyIsExactDocument(t *testing.T) {
	eng := export.NewEngine(&fakeMatcher{}, export.WithTempDir(t.TempDir()))

	art, err := eng.Export(context.Background(), filters.Filters{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer art.Cleanup()

	raw, _ := os.ReadFile(art.Path)
	if string(raw) != `{"type":"FeatureCollection","features":[]}` {
		t.Fatalf("unexpected empty document: %s", raw)
	}
}

func TestExport_CompressedMatchesRaw(t *testing.T) {
	m := &fakeMatcher{features: features(7)}
	eng := export.NewEngine(m, export.WithTempDir(t.TempDir()))

	plain, err := eng.Export(context.Background(), filters.Filters{}, false)
	if err != nil {
		t.Fatalf("plain export: %v", err)
	}
	defer plain.Cleanup()

	zipped, err := eng.Export(context.Background(), filters.Filters{}, true)
	if err != nil {
		t.Fatalf("compressed export: %v", err)
	}
	defer zipped.Cleanup()

	if zipped.Filename != "landslides.geojson.zip" || zipped.ContentType != export.ContentTypeZip {
		t.Fatalf("unexpected artifact: %+v", zipped)
	}

	zr, err := zip.OpenReader(zipped.Path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 1 || zr.File[0].Name != "landslides.geojson" {
		t.Fatalf("expected a single landslides.geojson entry, got %d entries", len(zr.File))
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	inner, _ := io.ReadAll(rc)
	rc.Close()

	raw, _ := os.ReadFile(plain.Path)
	if string(inner) != string(raw) {
		t.Fatalf("decompressed entry differs from uncompressed export")
	}
}

func TestExport_WithDataset(t *testing.T) {
	eng := export.NewEngine(&fakeMatcher{}, export.WithTempDir(t.TempDir()), export.WithDataset("quakes"))

	art, err := eng.Export(context.Background(), filters.Filters{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer art.Cleanup()

	if art.Filename != "quakes.geojson.zip" {
		t.Fatalf("expected quakes.geojson.zip, got %s", art.Filename)
	}
}

func TestExport_FeatureCap(t *testing.T) {
	m := &fakeMatcher{features: features(5)}
	tmp := t.TempDir()
	eng := export.NewEngine(m, export.WithTempDir(tmp), export.WithMaxFeatures(3))

	_, err := eng.Export(context.Background(), filters.Filters{}, false)
	if apperr.KindOf(err) != apperr.KindTooManyResults {
		t.Fatalf("expected too_many_results, got %v", err)
	}
	if m.lastLimit != 4 {
		t.Fatalf("expected matcher limit 4, got %d", m.lastLimit)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be cleaned up, found %d entries", len(entries))
	}
}

func TestExport_AtCapSucceeds(t *testing.T) {
	eng := export.NewEngine(&fakeMatcher{features: features(3)}, export.WithTempDir(t.TempDir()), export.WithMaxFeatures(3))

	art, err := eng.Export(context.Background(), filters.Filters{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer art.Cleanup()
	if art.Features != 3 {
		t.Fatalf("expected 3 features, got %d", art.Features)
	}
}

func TestExport_MatcherErrorPassesThrough(t *testing.T) {
	upstream := apperr.Upstream(errors.New("syntax error"))
	eng := export.NewEngine(&fakeMatcher{err: upstream}, export.WithTempDir(t.TempDir()))

	_, err := eng.Export(context.Background(), filters.Filters{}, false)
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestArtifact_Cleanup(t *testing.T) {
	eng := export.NewEngine(&fakeMatcher{features: features(1)}, export.WithTempDir(t.TempDir()))

	art, err := eng.Export(context.Background(), filters.Filters{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := art.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(art.Path)); !os.IsNotExist(err) {
		t.Fatalf("expected artifact dir removed, stat err=%v", err)
	}
}
