package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/02loveslollipop/sensorthings-metadata/internal/catalog"
	"github.com/02loveslollipop/sensorthings-metadata/internal/sta"
)

const (
	defaultEndpoint         = "http://localhost:8018/istsos4/v1.1"
	defaultRequestTimeout   = 30 * time.Second
	defaultRetries          = 3
	defaultStateFile        = "metadata_state.json"
	defaultSTACCollectionID = "istsos-datastreams"
	defaultHarvestInterval  = 5 * time.Minute
	defaultRunlogPath       = "harvest_runs.db"
	defaultInfluxBucket     = "sta_harvester"
)

// Config holds runtime configuration for the harvester.
type Config struct {
	Endpoint string
	Expand   string
	PageSize int

	Token    string
	Username string
	Password string
	AuthMode string

	RequestTimeout time.Duration
	Retries        int

	Incremental bool
	StateFile   string

	MetadataOutput string
	STACOutput     string
	DCATOutput     string

	STACCollectionID string
	STACRootHref     string

	HarvestInterval time.Duration

	// RunlogPath is the SQLite run history; empty disables it.
	RunlogPath   string
	DatabaseURL  string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	RedisAddr    string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Endpoint:         defaultEndpoint,
		RequestTimeout:   defaultRequestTimeout,
		Retries:          defaultRetries,
		Incremental:      true,
		StateFile:        defaultStateFile,
		STACCollectionID: defaultSTACCollectionID,
		HarvestInterval:  defaultHarvestInterval,
		RunlogPath:       defaultRunlogPath,
		InfluxBucket:     defaultInfluxBucket,
	}

	if v := env("METADATA_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	cfg.Expand = env("METADATA_EXPAND")

	if v := env("METADATA_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid METADATA_PAGE_SIZE: %s", v)
		}
		cfg.PageSize = n
	}

	cfg.Token = env("METADATA_TOKEN")
	cfg.Username = env("METADATA_USERNAME")
	cfg.Password = os.Getenv("METADATA_PASSWORD")
	cfg.AuthMode = strings.ToLower(env("METADATA_AUTH_MODE"))

	if v := env("METADATA_TIMEOUT"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid METADATA_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	if v := env("METADATA_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid METADATA_RETRIES: %s", v)
		}
		cfg.Retries = n
	}

	if v := env("METADATA_INCREMENTAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid METADATA_INCREMENTAL: %w", err)
		}
		cfg.Incremental = b
	}
	if v := env("METADATA_STATE_FILE"); v != "" {
		cfg.StateFile = v
	}

	cfg.MetadataOutput = env("METADATA_OUTPUT")
	cfg.STACOutput = env("STAC_OUTPUT")
	cfg.DCATOutput = env("DCAT_OUTPUT")

	if v := env("STAC_COLLECTION_ID"); v != "" {
		cfg.STACCollectionID = v
	}
	cfg.STACRootHref = env("STAC_ROOT_HREF")

	if v := env("HARVEST_INTERVAL"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HARVEST_INTERVAL: %w", err)
		}
		cfg.HarvestInterval = d
	} else if v := env("HARVEST_INTERVAL_SECONDS"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HARVEST_INTERVAL_SECONDS: %w", err)
		}
		cfg.HarvestInterval = d
	}

	if v, ok := os.LookupEnv("RUNLOG_PATH"); ok {
		cfg.RunlogPath = strings.TrimSpace(v)
	}
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.InfluxURL = env("INFLUXDB_URL")
	cfg.InfluxToken = env("INFLUXDB_TOKEN")
	cfg.InfluxOrg = env("INFLUXDB_ORG")
	if v := env("INFLUXDB_BUCKET"); v != "" {
		cfg.InfluxBucket = v
	}
	cfg.RedisAddr = env("REDIS_ADDR")

	cfg.LogLevel = env("LOG_LEVEL")
	cfg.LogFormat = env("LOG_FORMAT")

	return cfg, cfg.Validate()
}

// Validate checks settings that Load cannot check field by field.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid METADATA_ENDPOINT: %q", c.Endpoint)
	}
	if c.Token == "" && (c.Username == "") != (c.Password == "") {
		return errors.New("both METADATA_USERNAME and METADATA_PASSWORD are required for credential login")
	}
	switch c.AuthMode {
	case "", sta.AuthLogin, sta.AuthBasic:
	default:
		return fmt.Errorf("invalid METADATA_AUTH_MODE: %s", c.AuthMode)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("METADATA_TIMEOUT must be positive")
	}
	if c.InfluxURL != "" && c.InfluxOrg == "" {
		return errors.New("INFLUXDB_ORG is required when INFLUXDB_URL is set")
	}
	return nil
}

// STAOptions returns the entity client options.
func (c Config) STAOptions() sta.Options {
	retries := c.Retries
	if retries == 0 {
		retries = -1
	}
	return sta.Options{
		Endpoint:   c.Endpoint,
		Expand:     c.Expand,
		PageSize:   c.PageSize,
		Timeout:    c.RequestTimeout,
		RetryCount: retries,
	}
}

// Credentials returns the upstream credentials.
func (c Config) Credentials() sta.Credentials {
	return sta.Credentials{
		Token:    c.Token,
		Username: c.Username,
		Password: c.Password,
		Mode:     c.AuthMode,
	}
}

// STACOptions returns the STAC projection options. The root href defaults to
// {endpoint}/stac.
func (c Config) STACOptions() catalog.STACOptions {
	root := c.STACRootHref
	if root == "" {
		root = catalog.DefaultRootHref(c.Endpoint)
	}
	return catalog.STACOptions{CollectionID: c.STACCollectionID, RootHref: root}
}

// ParseDuration accepts Go durations ("90s", "5m") and bare seconds ("30",
// "2.5").
func ParseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %s", v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
