package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/geodatahub/geopublisher/core/infra/logging"
	"github.com/geodatahub/geopublisher/core/publisher"
)

// Client registers published layers in an IDRA open-data catalog as DCAT-AP
// datasets with one distribution per access method. It implements
// publisher.Catalog.
type Client struct {
	baseURL            string
	geoServerPublicURL string
	minioProxyURL      string
	bucket             string
	datasetTemplates   []Template
	distTemplates      []Template
	client             *http.Client
	now                func() time.Time
}

// Options configures the catalog client.
type Options struct {
	BaseURL                  string
	GeoServerPublicURL       string
	MinioProxyURL            string
	Bucket                   string
	DatasetTemplatePath      string
	DistributionTemplatePath string
}

// NewClient builds an IDRA client. Template files are optional; without
// them datasets get generated titles and descriptions.
func NewClient(opts Options) (*Client, error) {
	datasetTmpls, err := LoadTemplates(opts.DatasetTemplatePath)
	if err != nil {
		return nil, err
	}
	distTmpls, err := LoadTemplates(opts.DistributionTemplatePath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:            strings.TrimRight(opts.BaseURL, "/"),
		geoServerPublicURL: strings.TrimRight(opts.GeoServerPublicURL, "/"),
		minioProxyURL:      strings.TrimRight(opts.MinioProxyURL, "/"),
		bucket:             opts.Bucket,
		datasetTemplates:   datasetTmpls,
		distTemplates:      distTmpls,
		client:             &http.Client{Timeout: 30 * time.Second},
		now:                time.Now,
	}, nil
}

// PublishDataset upserts one dataset for the bundle topic plus a
// distribution per access method of every resource.
func (c *Client) PublishDataset(ctx context.Context, bundle publisher.CatalogBundle) error {
	tctx := map[string]string{
		"city":     bundle.City,
		"date":     bundle.Date,
		"date_dmy": reverseDate(bundle.Date),
		"KPI":      bundle.Topic,
	}

	datasetID := fmt.Sprintf("%s_%s_%s",
		bundle.City,
		strings.ReplaceAll(bundle.Topic, " ", "_"),
		c.now().Format("20060102-150405"))

	title := fmt.Sprintf("%s %s %s", bundle.City, bundle.Topic, tctx["date_dmy"])
	description := fmt.Sprintf("Dataset for %s in %s", bundle.Topic, bundle.City)
	var keywords []string
	var authorName, authorEmail, theme, publisherName string

	if tmpl := findDatasetTemplate(bundle.Topic, c.datasetTemplates); tmpl != nil {
		if tmpl.DatasetTitle != "" {
			title = expand(tmpl.DatasetTitle, tctx)
		}
		if tmpl.Description != "" {
			description = expand(tmpl.Description, tctx)
		}
		for _, kw := range tmpl.Keywords {
			keywords = append(keywords, expand(kw, tctx))
		}
		authorName = tmpl.AuthorName
		authorEmail = tmpl.AuthorEmail
		theme = tmpl.Theme
		publisherName = tmpl.Publisher
	}

	var distIDs []string
	addDistribution := func(resource publisher.CatalogResource, suffix, accessURL, format, titleSuffix string) {
		distID := fmt.Sprintf("%s_%s_%s", datasetID, resource.LayerName, suffix)
		tmpl := matchDistribution(path.Base(resource.DataPath), c.distTemplates)

		distTitle := path.Base(resource.DataPath)
		distDesc := description
		var license string
		if tmpl != nil {
			if tmpl.DatasetTitle != "" {
				distTitle = expand(tmpl.DatasetTitle, tctx)
			}
			if tmpl.Description != "" {
				distDesc = expand(tmpl.Description, tctx)
			}
			license = tmpl.License
		}
		if titleSuffix != "" {
			distTitle += " (" + titleSuffix + ")"
		}

		body := map[string]any{
			"id":          distID,
			"title":       distTitle,
			"description": distDesc,
			"downloadURL": accessURL,
			"accessURL":   accessURL,
			"format":      format,
		}
		if license != "" {
			body["license"] = license
		}
		if err := c.upsert(ctx, "distributiondcatap", distID, body); err != nil {
			logging.Warn("catalog", "distribution upsert failed", "id", distID, "error", err)
			return
		}
		distIDs = append(distIDs, distID)
	}

	for _, resource := range bundle.Resources {
		rawURL := c.minioProxyURL + "/browser/" + c.bucket + "/" + resource.DataPath
		addDistribution(resource, "raw_data", rawURL, "application/octet-stream", "Raw Data")

		if resource.SLDPath != "" {
			sldURL := c.minioProxyURL + "/browser/" + c.bucket + "/" + resource.SLDPath
			addDistribution(resource, "style", sldURL, "text/xml", "SLD Style")
		}

		addDistribution(resource, "wms", c.wmsURL(resource), "image/png", "WMS Visualization")
	}

	spatial := ""
	if len(bundle.Resources) > 0 {
		spatial = bundle.Resources[0].BBox
	}
	datasetBody := map[string]any{
		"id":                  bundle.City + ":" + datasetID,
		"title":               title,
		"description":         description,
		"datasetDescription":  []string{description},
		"datasetDistribution": distIDs,
		"spatial":             spatial,
		"temporal":            bundle.Date,
		"keyword":             keywords,
		"author":              authorName,
		"author_email":        authorEmail,
	}
	if theme != "" {
		datasetBody["theme"] = []string{theme}
	}
	if publisherName != "" {
		datasetBody["publisher_name"] = publisherName
	}
	return c.upsert(ctx, "dataset", bundle.City+":"+datasetID, datasetBody)
}

// upsert skips resources that already exist and tolerates creation
// conflicts, so re-registration after a retried publish stays quiet.
func (c *Client) upsert(ctx context.Context, endpoint, id string, payload any) error {
	base := c.baseURL + "/api/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if resp, err := c.client.Do(req); err == nil {
		status := resp.StatusCode
		resp.Body.Close()
		if status == http.StatusOK {
			logging.Info("catalog", "resource exists, skipping", "id", id)
			return nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("catalog create %s: status %d", id, resp.StatusCode)
	}
}

func (c *Client) wmsURL(resource publisher.CatalogResource) string {
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("version", "1.1.1")
	q.Set("request", "GetMap")
	q.Set("layers", resource.Workspace+":"+resource.LayerName)
	q.Set("styles", resource.StyleName)
	q.Set("bbox", resource.BBox)
	q.Set("width", "768")
	q.Set("height", "330")
	q.Set("srs", "EPSG:4326")
	q.Set("format", "image/png")
	return c.geoServerPublicURL + "/" + resource.Workspace + "/wms?" + q.Encode()
}

// reverseDate flips YYYY-MM-DD into DD-MM-YYYY for display titles.
func reverseDate(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}
