/*
Package config provides comprehensive configuration management for ObjectFS with multi-source support.

This package implements a hierarchical configuration system that supports YAML files and
OBJECTFS_* environment variables on top of compiled-in defaults; callers override individual
fields by setting them on the Configuration. It provides validation, and YAMLConfigSource
reloads a YAML file by polling it.

# Configuration Architecture

Multi-source configuration hierarchy with precedence:

	┌─────────────────────────────────────────────┐
	│          Runtime Overrides                 │ ← Highest Priority
	│        (CLI args, API calls)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (OBJECTFS_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration Files                 │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│        (Compiled-in defaults)              │
	└─────────────────────────────────────────────┘

# Configuration Structure

Comprehensive configuration sections:

Global Settings:
- Logging configuration (level, file, format)
- Service ports (metrics, health, profiling)

Performance Settings:
- Cache sizes and policies
- Concurrency limits
- Buffer configurations
- Compression settings

Network Configuration:
- Timeout settings
- Retry policies
- Circuit breaker parameters
- Connection pool settings

Security Configuration:
- TLS settings
- Encryption parameters

Monitoring Configuration:
- Metrics collection settings
- Health check parameters
- Logging configuration

Feature Flags:
- Prefetching and batch operations
- Small file optimization and metadata caching
- Offline mode

# Usage Examples

Loading configuration:

	// Create with defaults
	config := config.NewDefault()

	// Load from file
	if err := config.LoadFromFile("/etc/objectfs/config.yaml"); err != nil {
		log.Fatal(err)
	}

	// Load environment variables
	if err := config.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}

	// Apply command-line overrides
	config.Performance.CacheSize = "4GB"
	config.Global.LogLevel = "DEBUG"

	// Validate final configuration
	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	# ObjectFS Configuration
	global:
	  log_level: INFO
	  log_file: "/var/log/objectfs.log"
	  metrics_port: 8080
	  health_port: 8081
	  profile_port: 6060

	performance:
	  cache_size: "2GB"
	  write_buffer_size: "16MB"
	  max_concurrency: 150
	  read_ahead_size: "64MB"
	  compression_enabled: true
	  connection_pool_size: 8

	cache:
	  ttl: 5m
	  max_entries: 100000
	  eviction_policy: "weighted_lru"
	  persistent_cache:
	    enabled: false
	    directory: "/var/cache/objectfs"
	    max_size: "10GB"

Environment variable mapping:

	# Global settings
	OBJECTFS_LOG_LEVEL="DEBUG"
	OBJECTFS_LOG_FILE="/var/log/objectfs.log"
	OBJECTFS_METRICS_PORT="9090"

	# Performance settings
	OBJECTFS_CACHE_SIZE="4GB"
	OBJECTFS_MAX_CONCURRENCY="200"
	OBJECTFS_COMPRESSION_ENABLED="true"

	# Feature flags
	OBJECTFS_PREFETCHING="true"
	OBJECTFS_BATCH_OPERATIONS="true"
	OBJECTFS_OFFLINE_MODE="false"

# Validation System

Configuration.Validate returns the first of these checks that fails:

- max_concurrency must be greater than 0
- connection_pool_size must be greater than 0
- metrics_port and health_port must differ
- log_level must be one of DEBUG, INFO, WARN, ERROR
- heapcache_target_size must parse as a positive size
- filesystem_cache_directory_depth and filesystem_cache_directory_name_length
  must be non-negative

No other field is checked; in particular no upper bounds are enforced.

# Hot Reloading

YAMLConfigSource re-reads its file when the file changes, polling at the
given interval (an interval <= 0 disables polling):

	src, err := config.NewYAMLConfigSource("/etc/objectfs/config.yaml", 5*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	src.Watch("variant_cache", func() {
		// Re-read the values this component depends on.
	})

A reload replaces the whole Configuration at once. A reloaded file that
fails Validate is ignored and the previous Configuration stays in effect.
Since one file backs every key, each registered watcher is called on every
successful reload, whatever key it was registered for.

# Default Configuration

NewDefault returns, among others:

	Global: {
		LogLevel:    "INFO",
		MetricsPort: 8080,
		HealthPort:  8081,
		ProfilePort: 6060,
	},
	Performance: {
		CacheSize:         "2GB",
		MaxConcurrency:    150,
		CompressionEnabled: true,
		ConnectionPoolSize: 8,
	},
	Cache: {
		TTL:            5 * time.Minute,
		EvictionPolicy: "weighted_lru",
	}

There is a single set of defaults; no per-environment variants exist.

# Security Considerations

SaveToFile writes the configuration file with mode 0600 and creates its
directory with mode 0750. The package does not check the permissions of
files it loads, mask credentials, validate paths, or log configuration
changes.

# Performance Tuning Profiles

Example performance settings for common workloads:

Low Latency Profile:

	performance:
	  cache_size: "1GB"
	  max_concurrency: 100
	  read_ahead_size: "32MB"
	  connection_pool_size: 4

High Throughput Profile:

	performance:
	  cache_size: "8GB"
	  max_concurrency: 300
	  read_ahead_size: "256MB"
	  connection_pool_size: 16

High Latency/Satellite Profile:

	performance:
	  cache_size: "16GB"
	  max_concurrency: 25
	  read_ahead_size: "1GB"
	  connection_pool_size: 2
	write_buffer:
	  flush_interval: 300s
	  max_memory: "1GB"

# Configuration Best Practices

Recommended configuration practices:

File Organization:
- Use versioned configuration files
- Separate environment-specific configs
- Document all custom settings
- Use configuration validation in CI/CD

Environment Variables:
- Prefer environment variables for secrets
- Use consistent naming conventions
- Document all supported variables
- Validate environment variable formats

Performance Tuning:
- Start with default settings
- Monitor resource usage
- Adjust based on workload characteristics
- Test configuration changes in staging

Security:
- Use restrictive file permissions (0600)
- Rotate credentials regularly
- Audit configuration changes
- Use encrypted storage for sensitive configs

This package provides the foundation for flexible, secure, and maintainable
configuration management across all ObjectFS deployments.
*/
package config
