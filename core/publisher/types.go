package publisher

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Kind identifies the publish strategy for a dataset.
type Kind string

const (
	KindVector Kind = "vector"
	KindRaster Kind = "raster"
)

// Failure taxonomy for one publish attempt. The orchestrator dispatches on
// these with errors.Is; everything is caught at the per-item boundary.
var (
	ErrMalformedRequest    = errors.New("malformed publish request")
	ErrUnsupportedDataType = errors.New("unsupported data type")
	ErrDataNotFound        = errors.New("data file not found")
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrStoreConflict       = errors.New("store already exists")
	ErrServerUnavailable   = errors.New("geospatial server unavailable")
	ErrUnexpectedResponse  = errors.New("unexpected server response")
	ErrMarkingFailed       = errors.New("failed to mark trigger done")
)

// RequestDescriptor is the parsed, validated form of one trigger file.
// It is immutable after parsing and lives for a single publish attempt.
type RequestDescriptor struct {
	Workspace string `json:"workspace"`
	StoreName string `json:"store_name"`
	DataPath  string `json:"data_path"`

	// Optional request fields.
	Analysis         string `json:"analysis,omitempty"`
	CoverageName     string `json:"coverage_name,omitempty"`
	StyleName        string `json:"style_name,omitempty"`
	SLDPath          string `json:"sld_path,omitempty"`
	OverrideStyle    bool   `json:"override_style,omitempty"`
	WriteOnCatalogue bool   `json:"write_on_catalogue,omitempty"`

	// TriggerKey is the bucket key of the trigger object, kept so the
	// rename to the done suffix can target it.
	TriggerKey string `json:"-"`
	// Kind is derived from the DataPath extension.
	Kind Kind `json:"-"`
}

// LayerName is the name the published layer gets on the server: for
// shapefiles GeoServer names the feature type after the file, for rasters
// the coverage name wins.
func (d *RequestDescriptor) LayerName() string {
	switch d.Kind {
	case KindRaster:
		if d.CoverageName != "" {
			return d.CoverageName
		}
	}
	base := path.Base(strings.ReplaceAll(d.DataPath, "\\", "/"))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// LayerServer is the GeoServer REST surface the publish strategies drive.
type LayerServer interface {
	WorkspaceExists(ctx context.Context, workspace string) (bool, error)
	CreateVectorStore(ctx context.Context, workspace, store, serverPath string) error
	PublishFeatureType(ctx context.Context, workspace, store, name string) error
	CreateCoverageStore(ctx context.Context, workspace, store, serverPath string) error
	PublishCoverage(ctx context.Context, workspace, store, name string) error
	EnsureStyle(ctx context.Context, workspace, style string, sld []byte, override bool) error
	AssignDefaultStyle(ctx context.Context, workspace, layer, style string) error
	LayerBBox(ctx context.Context, workspace, layer string) (string, error)
}

// CatalogResource describes one published layer for catalog registration.
type CatalogResource struct {
	Workspace string
	LayerName string
	DataPath  string
	SLDPath   string
	StyleName string
	BBox      string
}

// CatalogBundle groups the resources of one trigger into a catalog dataset.
type CatalogBundle struct {
	Topic     string
	City      string
	Date      string
	Resources []CatalogResource
}

// Catalog registers published datasets in an external open-data catalog.
type Catalog interface {
	PublishDataset(ctx context.Context, bundle CatalogBundle) error
}
