// Package conf defines the settings for the iaswatch pipeline and loads them
// from a YAML config file, environment variables and command line flags.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// InputSettings names the flat input tables produced by the collection jobs.
type InputSettings struct {
	MonthlyFile       string `mapstructure:"monthlyfile"`       // monthly activity table (platform, species, country, month, count)
	DailyFile         string `mapstructure:"dailyfile"`         // daily activity table, used for the popularity metric
	IntroductionsFile string `mapstructure:"introductionsfile"` // EASIN-reported invasion years
	TraitsFile        string `mapstructure:"traitsfile"`        // species -> taxonomic group, habitat
	SynonymsFile      string `mapstructure:"synonymsfile"`      // raw scientific name -> canonical name
}

// SQLiteSettings controls optional persistence of run results.
type SQLiteSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// OutputSettings controls where result tables are written.
type OutputSettings struct {
	Directory string         `mapstructure:"directory"` // directory for CSV outputs
	SQLite    SQLiteSettings `mapstructure:"sqlite"`
}

// PlatformSettings captures data-provenance decisions about the source
// platforms. These are configuration, not algorithm: the statistical core
// never compares platform names directly.
type PlatformSettings struct {
	// ReferencePlatform is the ground-truth occurrence source excluded from
	// the fused mined-activity signal.
	ReferencePlatform string `mapstructure:"referenceplatform"`
	// Passthrough lists platforms whose values are already a bounded
	// fraction upstream and must not be min-max normalized again.
	Passthrough []string `mapstructure:"passthrough"`
	// ValidatePassthrough rejects passthrough groups with values outside
	// [0,1] instead of trusting the upstream scale.
	ValidatePassthrough bool `mapstructure:"validatepassthrough"`
}

// FilterSettings are the minimum-data preconditions applied to every group
// before any statistical step.
type FilterSettings struct {
	MinPoints          int  `mapstructure:"minpoints"`
	MinUniqueDates     int  `mapstructure:"minuniquedates"`
	RequireVariability bool `mapstructure:"requirevariability"`
}

// SmootherSettings configures the trend fit.
type SmootherSettings struct {
	MinMonths int `mapstructure:"minmonths"` // minimum series length for a trend fit
	MaxBasis  int `mapstructure:"maxbasis"`  // cap on spline basis dimension
}

// DetectorSettings configures the changepoint detector.
type DetectorSettings struct {
	SlopeFrac float64 `mapstructure:"slopefrac"` // slope threshold as fraction of fit amplitude
	AccelFrac float64 `mapstructure:"accelfrac"` // acceleration threshold as fraction of fit amplitude
	Policy    string  `mapstructure:"policy"`    // block selection policy: "first" or "strongest"
}

// AnomalySettings configures the GESD point-anomaly pass.
type AnomalySettings struct {
	Alpha           float64 `mapstructure:"alpha"`           // GESD significance level
	MaxOutlierFrac  float64 `mapstructure:"maxoutlierfrac"`  // max outliers as fraction of series length
	SeasonalPeriod  int     `mapstructure:"seasonalperiod"`  // months per seasonal cycle
	MinObservations int     `mapstructure:"minobservations"` // minimum points for decomposition
}

// SweepSettings configures the threshold grid search.
type SweepSettings struct {
	SlopeGrid []float64 `mapstructure:"slopegrid"`
	AccelGrid []float64 `mapstructure:"accelgrid"`
}

// RuntimeSettings holds process-level knobs.
type RuntimeSettings struct {
	Workers int    `mapstructure:"workers"` // worker pool size; 0 means NumCPU
	Debug   bool   `mapstructure:"debug"`
	LogFile string `mapstructure:"logfile"` // optional rotating JSON log file
}

// Settings is the root configuration for a pipeline run.
type Settings struct {
	Input     InputSettings    `mapstructure:"input"`
	Output    OutputSettings   `mapstructure:"output"`
	Platforms PlatformSettings `mapstructure:"platforms"`
	Filter    FilterSettings   `mapstructure:"filter"`
	Smoother  SmootherSettings `mapstructure:"smoother"`
	Detector  DetectorSettings `mapstructure:"detector"`
	Anomaly   AnomalySettings  `mapstructure:"anomaly"`
	Sweep     SweepSettings    `mapstructure:"sweep"`
	Runtime   RuntimeSettings  `mapstructure:"runtime"`
}

// Load reads the configuration, creating a default config file if none
// exists, and validates the result.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// initViper initializes viper with the config file search paths and the
// environment variable prefix.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("IASWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config file into the first
// config search path and points viper at it.
func createDefaultConfig(configPath string) error {
	configFilePath := filepath.Join(configPath, "config.yaml")

	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configFilePath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the list of directories searched for the
// config file, most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "iaswatch"),
	}, nil
}
