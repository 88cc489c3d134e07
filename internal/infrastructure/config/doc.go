// Package config loads SiteReport Core settings.
//
// Load reads a YAML file over built-in defaults, applies SITEREPORT_*
// environment overrides, then runs Validate, which reports every problem
// at once rather than stopping at the first.
//
// The JWT signing secret has no default. Supply it with
// SITEREPORT_JWT_SECRET rather than committing it to the file, and do the
// same for the Redis, MQTT and InfluxDB credentials.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	ttl := cfg.Security.JWT.RefreshTTL()
package config
