package conf

import "github.com/spf13/viper"

// setDefaults registers the default configuration values with viper.
// These match the embedded config.yaml.
func setDefaults() {
	// Input tables
	viper.SetDefault("input.monthlyfile", "data/activity_monthly.csv")
	viper.SetDefault("input.dailyfile", "data/activity_daily.csv")
	viper.SetDefault("input.introductionsfile", "data/introductions.csv")
	viper.SetDefault("input.traitsfile", "data/species_traits.csv")
	viper.SetDefault("input.synonymsfile", "data/synonyms.csv")

	// Outputs
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("output.sqlite.enabled", false)
	viper.SetDefault("output.sqlite.path", "iaswatch.db")

	// Platform provenance
	viper.SetDefault("platforms.referenceplatform", "GBIF")
	viper.SetDefault("platforms.passthrough", []string{"Facebook"})
	viper.SetDefault("platforms.validatepassthrough", true)

	// Group preconditions
	viper.SetDefault("filter.minpoints", 3)
	viper.SetDefault("filter.minuniquedates", 3)
	viper.SetDefault("filter.requirevariability", true)

	// Trend smoothing
	viper.SetDefault("smoother.minmonths", 24)
	viper.SetDefault("smoother.maxbasis", 9)

	// Changepoint detection
	viper.SetDefault("detector.slopefrac", 0.05)
	viper.SetDefault("detector.accelfrac", 0.05)
	viper.SetDefault("detector.policy", PolicyStrongest)

	// Point anomalies
	viper.SetDefault("anomaly.alpha", 0.25)
	viper.SetDefault("anomaly.maxoutlierfrac", 0.2)
	viper.SetDefault("anomaly.seasonalperiod", 12)
	viper.SetDefault("anomaly.minobservations", 24)

	// Threshold sweep
	viper.SetDefault("sweep.slopegrid", []float64{0.01, 0.02, 0.05, 0.1, 0.15, 0.2, 0.3})
	viper.SetDefault("sweep.accelgrid", []float64{0.01, 0.02, 0.05, 0.1, 0.15, 0.2, 0.3})

	// Runtime
	viper.SetDefault("runtime.workers", 0)
	viper.SetDefault("runtime.debug", false)
	viper.SetDefault("runtime.logfile", "")
}
