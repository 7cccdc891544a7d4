package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultMinioEndpoint      = "minio:9000"
	defaultMinioAccessKey     = "minioadmin"
	defaultMinioSecretKey     = "minioadmin"
	defaultMinioBucket        = "geodata"
	defaultMinioProxyURL      = "http://localhost:9090"
	defaultGeoServerURL       = "http://geoserver:8080/geoserver"
	defaultGeoServerUser      = "admin"
	defaultGeoServerPassword  = "geoserver"
	defaultGeoServerDataRoot  = "/opt/geoserver_data"
	defaultTargetDir          = "/data"
	defaultIntervalSeconds    = 30
	defaultMetricsAddr        = ":9090"
	defaultPolicyConfig       = "config/policy.yaml"
	defaultDatasetTemplates   = "config/dataset_templates.json"
	defaultDistribTemplates   = "config/distribution_templates.json"
	envMinioEndpoint          = "MINIO_ENDPOINT"
	envMinioAccessKey         = "MINIO_ACCESS_KEY"
	envMinioSecretKey         = "MINIO_SECRET_KEY"
	envMinioBucket            = "MINIO_BUCKET"
	envMinioSecure            = "MINIO_SECURE"
	envMinioProxyURL          = "MINIO_PROXY_URL"
	envGeoServerURL           = "GEOSERVER_URL"
	envGeoServerUser          = "GEOSERVER_USER"
	envGeoServerPassword      = "GEOSERVER_PASSWORD"
	envGeoServerPublicURL     = "GEOSERVER_PUBLIC_URL"
	envGeoServerDataRoot      = "GEOSERVER_DATA_ROOT"
	envIdraURL                = "IDRA_URL"
	envTargetDir              = "TARGET_DIR"
	envPublishInterval        = "PUBLISH_INTERVAL_SECONDS"
	envAttemptsRedisURL       = "ATTEMPTS_REDIS_URL"
	envMetricsAddr            = "METRICS_ADDR"
	envPolicyConfigPath       = "POLICY_CONFIG_PATH"
	envDatasetTemplatePath    = "DATASET_TEMPLATE_PATH"
	envDistributionTemplPath  = "DISTRIBUTION_TEMPLATE_PATH"
)

// Config holds runtime configuration for the publisher daemon.
type Config struct {
	MinioEndpoint            string
	MinioAccessKey           string
	MinioSecretKey           string
	MinioBucket              string
	MinioSecure              bool
	MinioProxyURL            string
	GeoServerURL             string
	GeoServerUser            string
	GeoServerPassword        string
	GeoServerPublicURL       string
	GeoServerDataRoot        string
	IdraURL                  string
	TargetDir                string
	PublishIntervalSeconds   int
	AttemptsRedisURL         string
	MetricsAddr              string
	PolicyConfigPath         string
	DatasetTemplatePath      string
	DistributionTemplatePath string
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		MinioEndpoint:            getEnv(envMinioEndpoint, defaultMinioEndpoint),
		MinioAccessKey:           getEnv(envMinioAccessKey, defaultMinioAccessKey),
		MinioSecretKey:           getEnv(envMinioSecretKey, defaultMinioSecretKey),
		MinioBucket:              getEnv(envMinioBucket, defaultMinioBucket),
		MinioSecure:              strings.EqualFold(os.Getenv(envMinioSecure), "true"),
		MinioProxyURL:            getEnv(envMinioProxyURL, defaultMinioProxyURL),
		GeoServerURL:             getEnv(envGeoServerURL, defaultGeoServerURL),
		GeoServerUser:            getEnv(envGeoServerUser, defaultGeoServerUser),
		GeoServerPassword:        getEnv(envGeoServerPassword, defaultGeoServerPassword),
		GeoServerDataRoot:        getEnv(envGeoServerDataRoot, defaultGeoServerDataRoot),
		IdraURL:                  os.Getenv(envIdraURL),
		TargetDir:                getEnv(envTargetDir, defaultTargetDir),
		PublishIntervalSeconds:   defaultIntervalSeconds,
		AttemptsRedisURL:         os.Getenv(envAttemptsRedisURL),
		MetricsAddr:              getEnv(envMetricsAddr, defaultMetricsAddr),
		PolicyConfigPath:         getEnv(envPolicyConfigPath, defaultPolicyConfig),
		DatasetTemplatePath:      getEnv(envDatasetTemplatePath, defaultDatasetTemplates),
		DistributionTemplatePath: getEnv(envDistributionTemplPath, defaultDistribTemplates),
	}
	cfg.GeoServerPublicURL = getEnv(envGeoServerPublicURL, cfg.GeoServerURL)

	if raw := os.Getenv(envPublishInterval); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.PublishIntervalSeconds = secs
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
