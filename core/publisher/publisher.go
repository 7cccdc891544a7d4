package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/geodatahub/geopublisher/core/infra/logging"
)

// GeoPublisher publishes one descriptor as a store plus layer, selecting the
// strategy by dataset kind. The whole operation is atomic from the caller's
// point of view: either the layer is available or an error describes how far
// the server got.
type GeoPublisher struct {
	server    LayerServer
	localRoot string
	dataRoot  string
}

// NewGeoPublisher builds a publisher. localRoot is the mirror directory this
// process reads, dataRoot is the same directory as mounted by GeoServer; the
// two are congruent by deployment contract.
func NewGeoPublisher(server LayerServer, localRoot, dataRoot string) *GeoPublisher {
	return &GeoPublisher{server: server, localRoot: localRoot, dataRoot: dataRoot}
}

// Publish runs the store-then-layer sequence for the descriptor and returns
// the published layer name. ErrStoreConflict comes back unwrapped so the
// caller can treat it as success-equivalent.
func (p *GeoPublisher) Publish(ctx context.Context, desc *RequestDescriptor) (string, error) {
	exists, err := p.server.WorkspaceExists(ctx, desc.Workspace)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrWorkspaceNotFound, desc.Workspace)
	}

	serverPath := p.serverPath(desc.DataPath)
	layerName := desc.LayerName()

	switch desc.Kind {
	case KindVector:
		if err := p.server.CreateVectorStore(ctx, desc.Workspace, desc.StoreName, serverPath); err != nil {
			return "", err
		}
		if err := p.server.PublishFeatureType(ctx, desc.Workspace, desc.StoreName, layerName); err != nil {
			if errors.Is(err, ErrStoreConflict) {
				break // feature type already published
			}
			return "", fmt.Errorf("store %s/%s created but layer not exposed: %w",
				desc.Workspace, desc.StoreName, err)
		}
	case KindRaster:
		if err := p.server.CreateCoverageStore(ctx, desc.Workspace, desc.StoreName, serverPath); err != nil {
			return "", err
		}
		if err := p.server.PublishCoverage(ctx, desc.Workspace, desc.StoreName, layerName); err != nil {
			if errors.Is(err, ErrStoreConflict) {
				break // coverage already published
			}
			return "", fmt.Errorf("store %s/%s created but coverage not exposed: %w",
				desc.Workspace, desc.StoreName, err)
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDataType, desc.DataPath)
	}

	p.applyStyle(ctx, desc, layerName)
	return layerName, nil
}

// LayerBBox returns the published layer extent for catalog registration.
func (p *GeoPublisher) LayerBBox(ctx context.Context, workspace, layer string) (string, error) {
	return p.server.LayerBBox(ctx, workspace, layer)
}

// applyStyle uploads and assigns an SLD when the request carries one.
// Style problems never fail the publish; the layer is already available.
func (p *GeoPublisher) applyStyle(ctx context.Context, desc *RequestDescriptor, layerName string) {
	if desc.StyleName == "" || desc.SLDPath == "" {
		return
	}
	local := filepath.Join(p.localRoot, filepath.FromSlash(desc.SLDPath))
	sld, err := os.ReadFile(local)
	if err != nil {
		logging.Warn("publisher", "sld file missing, skipping style",
			"style", desc.StyleName, "path", local)
		return
	}
	if err := p.server.EnsureStyle(ctx, desc.Workspace, desc.StyleName, sld, desc.OverrideStyle); err != nil {
		logging.Warn("publisher", "style upload failed",
			"style", desc.StyleName, "workspace", desc.Workspace, "error", err)
		return
	}
	if err := p.server.AssignDefaultStyle(ctx, desc.Workspace, layerName, desc.StyleName); err != nil {
		logging.Warn("publisher", "style assignment failed",
			"style", desc.StyleName, "layer", layerName, "error", err)
	}
}

func (p *GeoPublisher) serverPath(rel string) string {
	return path.Join(p.dataRoot, path.Clean("/"+filepath.ToSlash(rel)))
}
