package ratelimit

import (
	"path"
	"strings"
)

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Returns the matching EndpointConfig or nil if no match is found.
//
// Exact paths win over patterns ("/sessions/*/process"), which win over
// prefixes ("/sessions/" matches "/sessions/{id}/rows/{key}").
func MatchEndpoint(reqPath string, method string, configs []EndpointConfig) *EndpointConfig {
	// Special case: health check endpoint is unlimited
	if reqPath == "/health" && method == "GET" {
		return &EndpointConfig{Path: "/health", Method: method}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method == method && config.Path == reqPath {
			return config
		}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method != method || !strings.Contains(config.Path, "*") {
			continue
		}
		if ok, _ := path.Match(config.Path, reqPath); ok {
			return config
		}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method == method && strings.HasSuffix(config.Path, "/") && strings.HasPrefix(reqPath, config.Path) {
			return config
		}
	}

	return nil
}
