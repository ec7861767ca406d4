// Package config loads job configuration with Viper.
//
// A job config embeds ServiceConfig and implements ApplyDefaults and
// Validate. Load reads the first config file found (cmd/<job>/config.yml,
// config/<job>.yml, ./<job>.yml, ./config.yml), loads a .env file with
// godotenv, then applies ROWFLOW_* environment variables:
//
//	cfg, err := config.Load[JobConfig]("orders")
//
// ROWFLOW_ENGINE_WORKER_COUNT=8 overrides engine.worker_count.
package config
