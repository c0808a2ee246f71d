// Package config handles configuration loading for warden-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WARDEN_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	drift:
//	  interval: "5m"
//	security:
//	  network:
//	    auto_block_duration: "15m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  mcp_path: "/mcp"
//
// Session store:
//
//	database:
//	  backend: "sqlite"   # memory or sqlite
//	  path: "/var/lib/warden/sessions.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${WARDEN_JWT_SECRET}"
//	  issuer: "warden-gateway"
//	  audience: "mcp"
//	  admin_users: ["admin@example.com"]
//
// Security enforcement chain:
//
//	security:
//	  network:
//	    enabled: true
//	    deny_list: ["203.0.113.0/24"]
//	  ratelimit:
//	    enabled: true
//	    anonymous_rate: 2
//	  events:
//	    enabled: true
//	    block_threshold: 10
//	  enforce:
//	    enabled: true
//
// Schema drift monitoring:
//
//	drift:
//	  enabled: true
//	  interval: "5m"
//	  sensitivity: "moderate"   # strict, moderate, loose
//	  auto_disable: true
//	  approvals_path: "/etc/warden/approvals.toml"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/warden/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
