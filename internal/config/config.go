package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths  PathsConfig  `yaml:"paths" mapstructure:"paths"`
	Crime  CrimeConfig  `yaml:"crime" mapstructure:"crime"`
	Census CensusConfig `yaml:"census" mapstructure:"census"`
	Tiger  TigerConfig  `yaml:"tiger" mapstructure:"tiger"`
	Join   JoinConfig   `yaml:"join" mapstructure:"join"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates pipeline inputs and outputs on disk.
type PathsConfig struct {
	CrimeCSV  string `yaml:"crime_csv" mapstructure:"crime_csv"`
	CrimeDir  string `yaml:"crime_dir" mapstructure:"crime_dir"`
	CensusCSV string `yaml:"census_csv" mapstructure:"census_csv"`
	CensusDir string `yaml:"census_dir" mapstructure:"census_dir"`
	TractDir  string `yaml:"tract_dir" mapstructure:"tract_dir"`
	Output    string `yaml:"output" mapstructure:"output"`
	Report    string `yaml:"report" mapstructure:"report"`
}

// CrimeConfig configures the Socrata crime dataset and its column names.
type CrimeConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	ResourceID string `yaml:"resource_id" mapstructure:"resource_id"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	DateColumn string `yaml:"date_column" mapstructure:"date_column"`
	LatColumn  string `yaml:"lat_column" mapstructure:"lat_column"`
	LonColumn  string `yaml:"lon_column" mapstructure:"lon_column"`
}

// CensusConfig configures the ACS 5-year API download.
type CensusConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Dataset     string `yaml:"dataset" mapstructure:"dataset"`
	Years       []int  `yaml:"years" mapstructure:"years"`
	StateFIPS   string `yaml:"state_fips" mapstructure:"state_fips"`
	CountyFIPS  string `yaml:"county_fips" mapstructure:"county_fips"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// TigerConfig configures the TIGER/Line tract shapefile download.
type TigerConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Year       int    `yaml:"year" mapstructure:"year"`
	StateFIPS  string `yaml:"state_fips" mapstructure:"state_fips"`
	CountyFIPS string `yaml:"county_fips" mapstructure:"county_fips"`
}

// BBoxConfig is the open bounding box a crime point must fall in to be
// spatially matched.
type BBoxConfig struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// JoinConfig configures the spatial and temporal join.
type JoinConfig struct {
	CutoffYear    int        `yaml:"cutoff_year" mapstructure:"cutoff_year"`
	DefaultYear   int        `yaml:"default_year" mapstructure:"default_year"`
	SurveyYears   []int      `yaml:"survey_years" mapstructure:"survey_years"`
	BufferDegrees float64    `yaml:"buffer_degrees" mapstructure:"buffer_degrees"`
	Sentinel      float64    `yaml:"sentinel" mapstructure:"sentinel"`
	BBox          BBoxConfig `yaml:"bbox" mapstructure:"bbox"`
}

// StoreConfig configures where the joined table is persisted.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRIMECENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("census.api_key", "CRIMECENSUS_CENSUS_API_KEY", "CENSUS_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind census key")
	}

	// Defaults
	v.SetDefault("paths.crime_dir", "data/downloads/seattle")
	v.SetDefault("paths.census_csv", "data/joined/king_county_census_combined.csv")
	v.SetDefault("paths.census_dir", "data/downloads/seattle")
	v.SetDefault("paths.tract_dir", "data/downloads/seattle/census_shapefiles")
	v.SetDefault("paths.output", "data/joined/spd_census_joined.csv")
	v.SetDefault("paths.report", "data/joined/spd_census_report.yaml")
	v.SetDefault("crime.base_url", "https://data.seattle.gov")
	v.SetDefault("crime.resource_id", "tazs-3rd5")
	v.SetDefault("crime.id_column", "Offense ID")
	v.SetDefault("crime.date_column", "Offense Date")
	v.SetDefault("crime.lat_column", "Latitude")
	v.SetDefault("crime.lon_column", "Longitude")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.dataset", "acs/acs5")
	v.SetDefault("census.years", []int{2010, 2015, 2016, 2017, 2018, 2019, 2020, 2021, 2022, 2023})
	v.SetDefault("census.state_fips", "53")
	v.SetDefault("census.county_fips", "033")
	v.SetDefault("census.concurrency", 3)
	v.SetDefault("tiger.base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("tiger.year", 2020)
	v.SetDefault("tiger.state_fips", "53")
	v.SetDefault("tiger.county_fips", "033")
	v.SetDefault("join.cutoff_year", 2015)
	v.SetDefault("join.default_year", 2020)
	v.SetDefault("join.buffer_degrees", 0.0001)
	v.SetDefault("join.sentinel", -1.0)
	v.SetDefault("join.bbox.min_lat", 47.0)
	v.SetDefault("join.bbox.max_lat", 48.0)
	v.SetDefault("join.bbox.min_lon", -123.0)
	v.SetDefault("join.bbox.max_lon", -121.0)
	v.SetDefault("store.driver", "csv")
	v.SetDefault("store.table", "spd_census_joined")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of "fetch",
// "census", "join".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "fetch":
		if c.Crime.BaseURL == "" || c.Crime.ResourceID == "" {
			errs = append(errs, "crime.base_url and crime.resource_id are required")
		}
		if c.Tiger.Year <= 0 {
			errs = append(errs, "tiger.year must be > 0")
		}
	case "census":
		if c.Census.APIKey == "" {
			errs = append(errs, "census.api_key is required (or set CENSUS_API_KEY)")
		}
		if len(c.Census.Years) == 0 {
			errs = append(errs, "census.years must not be empty")
		}
		if c.Census.Concurrency < 1 || c.Census.Concurrency > 10 {
			errs = append(errs, "census.concurrency must be between 1 and 10")
		}
	case "join":
		b := c.Join.BBox
		if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
			errs = append(errs, "join.bbox min must be below max")
		}
		if c.Join.BufferDegrees < 0 {
			errs = append(errs, "join.buffer_degrees must be >= 0")
		}
		if c.Join.DefaultYear <= 0 {
			errs = append(errs, "join.default_year must be > 0")
		}
		switch c.Store.Driver {
		case "csv", "sqlite", "xlsx":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not one of csv, sqlite, postgres, xlsx", c.Store.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
