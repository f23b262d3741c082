// Package config handles configuration loading for ward-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML, when the file name ends
// in .toml) with environment variable expansion, environment overrides,
// duration parsing, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WARD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/ward/gateway.yaml
//  3. ~/.config/ward/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  introspection:
//	    client_secret: "${WARD_CLIENT_SECRET}"
//
// A fixed set of WARD_* variables (WARD_HTTP_ADDR, WARD_DB_PATH,
// WARD_JWT_SECRET, WARD_CLIENT_ID, ...) override file values when set.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  idle_ttl: "30m"
//	  call_timeout: "30s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//	  public_url: "https://ward.example.com"
//
//	database:
//	  driver: "sqlite"        # or "sqlite3"
//	  path: "~/.local/share/ward/gateway.db"
//
//	auth:
//	  issuer: "https://accounts.google.com"
//	  signed:
//	    jwks_url: "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
//	    issuer: "https://securetoken.google.com/my-project"
//	    audience: "my-project"
//	  introspection:
//	    url: "https://oauth2.googleapis.com/tokeninfo"
//	    style: "tokeninfo"
//	    client_id: "1234.apps.googleusercontent.com"
//
//	tailscale:
//	  enabled: false
//	  hostname: "ward"
package config
