package geoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geodatahub/geopublisher/core/publisher"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSLD  = "application/vnd.ogc.sld+xml"
)

// Client drives the GeoServer REST configuration API. It implements
// publisher.LayerServer.
type Client struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
}

// NewClient builds a client for a GeoServer base URL such as
// http://geoserver:8080/geoserver.
func NewClient(baseURL, user, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Ping verifies the REST endpoint answers with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, c.restURL("/about/version.json"), contentTypeJSON, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", publisher.ErrUnexpectedResponse, status, truncate(body))
	}
	return nil
}

func (c *Client) WorkspaceExists(ctx context.Context, workspace string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.restURL("/workspaces/"+workspace+".json"), contentTypeJSON, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: workspace check status %d: %s", publisher.ErrUnexpectedResponse, status, truncate(body))
	}
}

// CreateVectorStore registers a shapefile-backed datastore pointing at the
// data file as GeoServer sees it on the shared volume.
func (c *Client) CreateVectorStore(ctx context.Context, workspace, store, serverPath string) error {
	payload := map[string]any{
		"dataStore": map[string]any{
			"name":    store,
			"enabled": true,
			"connectionParameters": map[string]any{
				"entry": []map[string]string{
					{"@key": "url", "$": "file:" + serverPath},
					{"@key": "namespace", "$": "urn:geoserver:" + workspace},
				},
			},
		},
	}
	return c.create(ctx, c.restURL("/workspaces/"+workspace+"/datastores"), payload,
		fmt.Sprintf("datastore %s/%s", workspace, store))
}

// PublishFeatureType exposes the named feature type of a datastore as a layer.
func (c *Client) PublishFeatureType(ctx context.Context, workspace, store, name string) error {
	payload := map[string]any{
		"featureType": map[string]any{
			"name":       name,
			"nativeName": name,
			"enabled":    true,
		},
	}
	return c.create(ctx, c.restURL("/workspaces/"+workspace+"/datastores/"+store+"/featuretypes.json"), payload,
		fmt.Sprintf("feature type %s/%s", workspace, name))
}

// CreateCoverageStore registers a GeoTIFF coverage store with the same
// shared-volume path resolution as vector stores.
func (c *Client) CreateCoverageStore(ctx context.Context, workspace, store, serverPath string) error {
	payload := map[string]any{
		"coverageStore": map[string]any{
			"name":      store,
			"type":      "GeoTIFF",
			"enabled":   true,
			"workspace": workspace,
			"url":       "file:" + serverPath,
		},
	}
	return c.create(ctx, c.restURL("/workspaces/"+workspace+"/coveragestores.json"), payload,
		fmt.Sprintf("coveragestore %s/%s", workspace, store))
}

// PublishCoverage exposes the named coverage of a coverage store as a layer.
func (c *Client) PublishCoverage(ctx context.Context, workspace, store, name string) error {
	payload := map[string]any{
		"coverage": map[string]any{
			"name":       name,
			"nativeName": name,
			"enabled":    true,
		},
	}
	return c.create(ctx, c.restURL("/workspaces/"+workspace+"/coveragestores/"+store+"/coverages.json"), payload,
		fmt.Sprintf("coverage %s/%s", workspace, name))
}

// EnsureStyle creates the workspace style, or refreshes it when override is
// set and the style already exists.
func (c *Client) EnsureStyle(ctx context.Context, workspace, style string, sld []byte, override bool) error {
	status, _, err := c.do(ctx, http.MethodGet, c.restURL("/workspaces/"+workspace+"/styles/"+style+".json"), contentTypeJSON, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		if !override {
			return nil
		}
		status, body, err := c.do(ctx, http.MethodPut, c.restURL("/workspaces/"+workspace+"/styles/"+style), contentTypeSLD, sld)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: style update status %d: %s", publisher.ErrUnexpectedResponse, status, truncate(body))
		}
		return nil
	}
	status, body, err := c.do(ctx, http.MethodPost, c.restURL("/workspaces/"+workspace+"/styles?name="+style), contentTypeSLD, sld)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%w: style create status %d: %s", publisher.ErrUnexpectedResponse, status, truncate(body))
	}
	return nil
}

// AssignDefaultStyle sets the default style of a published layer.
func (c *Client) AssignDefaultStyle(ctx context.Context, workspace, layer, style string) error {
	payload := map[string]any{
		"layer": map[string]any{
			"defaultStyle": map[string]string{"name": workspace + ":" + style},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	status, respBody, err := c.do(ctx, http.MethodPut, c.restURL("/layers/"+workspace+":"+layer), contentTypeJSON, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: style assignment status %d: %s", publisher.ErrUnexpectedResponse, status, truncate(respBody))
	}
	return nil
}

// LayerBBox reads the lat/lon extent of a published layer. Any trouble
// falls back to the world extent; the bbox is catalog garnish, not publish
// state.
func (c *Client) LayerBBox(ctx context.Context, workspace, layer string) (string, error) {
	const world = "-180.0,-90.0,180.0,90.0"
	status, body, err := c.do(ctx, http.MethodGet, c.restURL("/layers/"+workspace+":"+layer+".json"), contentTypeJSON, nil)
	if err != nil || status != http.StatusOK {
		return world, nil
	}
	var layerDoc struct {
		Layer struct {
			Resource struct {
				Href string `json:"href"`
			} `json:"resource"`
		} `json:"layer"`
	}
	if err := json.Unmarshal(body, &layerDoc); err != nil || layerDoc.Layer.Resource.Href == "" {
		return world, nil
	}
	status, body, err = c.do(ctx, http.MethodGet, layerDoc.Layer.Resource.Href, contentTypeJSON, nil)
	if err != nil || status != http.StatusOK {
		return world, nil
	}
	var resDoc map[string]struct {
		LatLonBoundingBox *struct {
			MinX float64 `json:"minx"`
			MinY float64 `json:"miny"`
			MaxX float64 `json:"maxx"`
			MaxY float64 `json:"maxy"`
		} `json:"latLonBoundingBox"`
	}
	if err := json.Unmarshal(body, &resDoc); err != nil {
		return world, nil
	}
	for _, res := range resDoc {
		if res.LatLonBoundingBox != nil {
			bb := res.LatLonBoundingBox
			return fmt.Sprintf("%g,%g,%g,%g", bb.MinX, bb.MinY, bb.MaxX, bb.MaxY), nil
		}
	}
	return world, nil
}

// create POSTs a JSON resource and maps the GeoServer status codes onto the
// publish failure taxonomy.
func (c *Client) create(ctx context.Context, url string, payload any, what string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	status, respBody, err := c.do(ctx, http.MethodPost, url, contentTypeJSON, body)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		return nil
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", publisher.ErrStoreConflict, what)
	case status == http.StatusInternalServerError && bytes.Contains(respBody, []byte("already exists")):
		// GeoServer reports duplicate stores as a 500 with this phrase.
		return fmt.Errorf("%w: %s", publisher.ErrStoreConflict, what)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", publisher.ErrWorkspaceNotFound, what)
	default:
		return fmt.Errorf("%w: %s status %d: %s", publisher.ErrUnexpectedResponse, what, status, truncate(respBody))
	}
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", publisher.ErrServerUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", publisher.ErrServerUnavailable, err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) restURL(path string) string {
	return c.baseURL + "/rest" + path
}

func truncate(body []byte) string {
	const max = 300
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
