// Package api provides a REST API server mirroring the MCP tool surface
// over HTTP using the Gin framework, with CORS, API key auth, and rate
// limiting middleware.
package api
