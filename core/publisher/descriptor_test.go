package publisher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeDataFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write data file: %v", err)
	}
}

func TestParseVectorRequest(t *testing.T) {
	root := t.TempDir()
	writeDataFile(t, root, "vector/faults/fault_lines.shp")
	parser := NewRequestParser(root)

	raw := []byte(`{"workspace":"geology","store_name":"fault_lines","data_path":"vector/faults/fault_lines.shp"}`)
	desc, err := parser.Parse("geology/_publish.json", raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if desc.Kind != KindVector {
		t.Fatalf("expected vector kind, got %s", desc.Kind)
	}
	if desc.TriggerKey != "geology/_publish.json" {
		t.Fatalf("trigger key not carried: %s", desc.TriggerKey)
	}
	if desc.LayerName() != "fault_lines" {
		t.Fatalf("unexpected layer name %s", desc.LayerName())
	}
}

func TestParseRasterRequest(t *testing.T) {
	root := t.TempDir()
	writeDataFile(t, root, "raster/heat/uhi_2024.tiff")
	parser := NewRequestParser(root)

	raw := []byte(`{"workspace":"climate","store_name":"uhi","data_path":"raster/heat/uhi_2024.tiff","coverage_name":"uhi_index"}`)
	desc, err := parser.Parse("climate/_publish.json", raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if desc.Kind != KindRaster {
		t.Fatalf("expected raster kind, got %s", desc.Kind)
	}
	if desc.LayerName() != "uhi_index" {
		t.Fatalf("coverage_name should win the layer name, got %s", desc.LayerName())
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	parser := NewRequestParser(t.TempDir())
	_, err := parser.Parse("k", []byte(`{"workspace": "geo`))
	if !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
}

func TestParseRejectsMissingFields(t *testing.T) {
	parser := NewRequestParser(t.TempDir())
	cases := []string{
		`{"store_name":"s","data_path":"a.shp"}`,
		`{"workspace":"w","data_path":"a.shp"}`,
		`{"workspace":"w","store_name":"s"}`,
		`{"workspace":"","store_name":"s","data_path":"a.shp"}`,
		`["workspace","store_name"]`,
	}
	for _, raw := range cases {
		if _, err := parser.Parse("k", []byte(raw)); !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("expected ErrMalformedRequest for %s, got %v", raw, err)
		}
	}
}

func TestParseRejectsUnsupportedExtension(t *testing.T) {
	root := t.TempDir()
	writeDataFile(t, root, "tables/stats.csv")
	parser := NewRequestParser(root)

	raw := []byte(`{"workspace":"w","store_name":"s","data_path":"tables/stats.csv"}`)
	if _, err := parser.Parse("k", raw); !errors.Is(err, ErrUnsupportedDataType) {
		t.Fatalf("expected ErrUnsupportedDataType, got %v", err)
	}
}

func TestParseRejectsMissingDataFile(t *testing.T) {
	parser := NewRequestParser(t.TempDir())
	raw := []byte(`{"workspace":"geology","store_name":"fault_lines","data_path":"vector/faults/fault_lines.shp"}`)
	if _, err := parser.Parse("k", raw); !errors.Is(err, ErrDataNotFound) {
		t.Fatalf("expected ErrDataNotFound, got %v", err)
	}
}

func TestKindForPathIsCaseInsensitive(t *testing.T) {
	if k, ok := kindForPath("DATA/UPPER.SHP"); !ok || k != KindVector {
		t.Fatalf("expected vector for .SHP, got %s ok=%v", k, ok)
	}
	if k, ok := kindForPath("scan.TIF"); !ok || k != KindRaster {
		t.Fatalf("expected raster for .TIF, got %s ok=%v", k, ok)
	}
	if _, ok := kindForPath("doc.geojson"); ok {
		t.Fatalf(".geojson is not a supported extension")
	}
}
