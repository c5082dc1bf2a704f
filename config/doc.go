// Package config defines configuration for the dlsim CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (DLSIM_ prefix)
//   - YAML configuration file
//
// Sizes accept a unit suffix ("512KB", "1.5GB"); a bare number is read as
// megabytes. The bandwidth limit is read as bytes per second unless suffixed,
// and 0 means unlimited.
//
// # Structure
//
//	type Config struct {
//	    MaxConcurrent    int
//	    BandwidthLimit   int64
//	    DefaultSize      int64
//	    DefaultSpeedKBps int
//	    Addr             string
//	    LogLevel         string
//	    Downloads        []Seed
//	}
//
//	type Seed struct {
//	    Name      string
//	    Size      string
//	    SpeedKBps int
//	}
package config
