// Package config assembles the service configuration from defaults, an
// optional TOML file and DATASTORY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Source drivers.
const (
	PrimaryAPI       = "api"
	PrimaryWarehouse = "warehouse"
)

// Default endpoints for the WPRDC Allegheny County fatal accidental overdoses dataset.
const (
	DefaultAPIURL = "https://data.wprdc.org/api/3/action/datastore_search?" +
		"resource_id=1c59b26a-1684-4bfb-92f7-205b947530cf&limit=50000"
	DefaultDetailsURL    = "https://data.wprdc.org/dataset/allegheny-county-fatal-accidental-overdoses"
	DefaultBoundariesURL = "https://raw.githubusercontent.com/OpenDataDE/State-zip-code-GeoJSON/master/" +
		"pa_pennsylvania_zip_codes_geo.min.json"
)

// Duration wraps time.Duration so TOML files can use strings like "60s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Source    SourceConfig    `toml:"source"`
	Blob      BlobConfig      `toml:"blob"`
	Warehouse WarehouseConfig `toml:"warehouse"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SourceConfig configures the Data Source Adapter.
type SourceConfig struct {
	Primary           string   `toml:"primary"`
	APIURL            string   `toml:"api_url"`
	APITimeout        Duration `toml:"api_timeout"`
	DetailsURL        string   `toml:"details_url"`
	Name              string   `toml:"name"`
	MinYear           int      `toml:"min_year"`
	BoundariesURL     string   `toml:"boundaries_url"`
	BoundariesTimeout Duration `toml:"boundaries_timeout"`
}

// BlobConfig selects the store holding the offline snapshot, boundaries and dictionary.
type BlobConfig struct {
	Driver        string   `toml:"driver"`
	FSRoot        string   `toml:"fs_root"`
	S3            S3Config `toml:"s3"`
	SnapshotKey   string   `toml:"snapshot_key"`
	BoundariesKey string   `toml:"boundaries_key"`
	DictionaryKey string   `toml:"dictionary_key"`
}

// S3Config holds S3 / MinIO parameters when Blob.Driver is s3.
type S3Config struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// WarehouseConfig configures the optional SQL record source.
type WarehouseConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// PipelineConfig tunes the filter and aggregation pipeline.
type PipelineConfig struct {
	TopCombinations int `toml:"top_combinations"`
	CacheSize       int `toml:"cache_size"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8501"},
		Source: SourceConfig{
			Primary:           PrimaryAPI,
			APIURL:            DefaultAPIURL,
			APITimeout:        Duration{60 * time.Second},
			DetailsURL:        DefaultDetailsURL,
			Name:              "WPRDC: Allegheny County Fatal Accidental Overdoses",
			MinYear:           2008,
			BoundariesURL:     DefaultBoundariesURL,
			BoundariesTimeout: Duration{60 * time.Second},
		},
		Blob: BlobConfig{
			Driver:        "fs",
			FSRoot:        "data",
			SnapshotKey:   "Fatal-Accidental-Overdoses.csv",
			BoundariesKey: "pa_pennsylvania_zip_codes_geo.min.json",
			DictionaryKey: "data-dictionary.csv",
		},
		Warehouse: WarehouseConfig{
			Driver:     "sqlite",
			SQLitePath: "datastory.db",
		},
		Pipeline: PipelineConfig{TopCombinations: 15, CacheSize: 256},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds a Config. When path is empty DATASTORY_CONFIG is consulted; a
// missing file is only an error when a path was given explicitly.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		if v, ok := lookup("DATASTORY_CONFIG"); ok && v != "" {
			path, explicit = v, true
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment:
//
//	DATASTORY_ADDR, DATASTORY_SOURCE (api|warehouse), DATASTORY_API_URL, DATASTORY_API_TIMEOUT,
//	DATASTORY_MIN_YEAR, DATASTORY_BOUNDARIES_URL,
//	DATASTORY_BLOB_DRIVER (fs|s3|memory), DATASTORY_BLOB_FS_ROOT, DATASTORY_BLOB_S3_BUCKET,
//	DATASTORY_BLOB_S3_REGION, DATASTORY_BLOB_S3_ENDPOINT, DATASTORY_BLOB_S3_PATH_STYLE,
//	DATASTORY_WAREHOUSE_DRIVER (sqlite|postgres|memory), DATASTORY_SQLITE_PATH, DATASTORY_POSTGRES_DSN,
//	DATASTORY_TOP_COMBINATIONS, DATASTORY_LOG_LEVEL, DATASTORY_LOG_FORMAT
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DATASTORY_ADDR", &cfg.Server.Addr)
	str("DATASTORY_SOURCE", &cfg.Source.Primary)
	str("DATASTORY_API_URL", &cfg.Source.APIURL)
	str("DATASTORY_BOUNDARIES_URL", &cfg.Source.BoundariesURL)
	str("DATASTORY_BLOB_DRIVER", &cfg.Blob.Driver)
	str("DATASTORY_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("DATASTORY_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("DATASTORY_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("DATASTORY_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("DATASTORY_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver)
	str("DATASTORY_SQLITE_PATH", &cfg.Warehouse.SQLitePath)
	str("DATASTORY_POSTGRES_DSN", &cfg.Warehouse.PostgresDSN)
	str("DATASTORY_LOG_LEVEL", &cfg.Log.Level)
	str("DATASTORY_LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("DATASTORY_BLOB_S3_PATH_STYLE"); ok && v != "" {
		cfg.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("DATASTORY_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DATASTORY_API_TIMEOUT: %w", err)
		}
		cfg.Source.APITimeout = Duration{d}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"DATASTORY_MIN_YEAR", &cfg.Source.MinYear},
		{"DATASTORY_TOP_COMBINATIONS", &cfg.Pipeline.TopCombinations},
	}
	for _, in := range ints {
		v, ok := lookup(in.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", in.key, err)
		}
		*in.dst = n
	}
	return nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr required"))
	}
	switch c.Source.Primary {
	case PrimaryAPI:
		if c.Source.APIURL == "" {
			errs = append(errs, errors.New("source.api_url required for api source"))
		}
	case PrimaryWarehouse:
	default:
		errs = append(errs, fmt.Errorf("unknown source.primary %q", c.Source.Primary))
	}
	if c.Source.APITimeout.Duration <= 0 {
		errs = append(errs, errors.New("source.api_timeout must be positive"))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob.driver %q", c.Blob.Driver))
	}
	switch c.Warehouse.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown warehouse.driver %q", c.Warehouse.Driver))
	}
	if c.Pipeline.TopCombinations <= 0 {
		errs = append(errs, errors.New("pipeline.top_combinations must be positive"))
	}
	if c.Pipeline.CacheSize <= 0 {
		errs = append(errs, errors.New("pipeline.cache_size must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
