package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the collaboration service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>gogotex-collab Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the REST surface and the websocket entry point.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "gogotex-collab", "version": "v0.2.0" },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } } },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/ws": {
      "get": { "summary": "Upgrade to the collaboration websocket (credential via Authorization header or ?token=)", "responses": { "101": { "description": "switching protocols" }, "401": { "description": "missing or invalid credential" } } }
    },
    "/api/documents": {
      "get": { "summary": "List documents the caller owns or collaborates on", "responses": { "200": { "description": "documents" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "403": { "description": "access denied" }, "404": { "description": "not found" } } },
      "put": { "summary": "Save content as the next version and push it to live editors", "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["content"],"properties":{"content":{"type":"string"}}}}}}, "responses": { "200": { "description": "document and version" }, "400": { "description": "content missing" }, "403": { "description": "access denied" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a document (owner only)", "responses": { "204": { "description": "deleted" }, "403": { "description": "access denied" } } }
    },
    "/api/documents/{id}/collaborators": {
      "post": { "summary": "Add a collaborator (owner only)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"userId":{"type":"string"}}}}}}, "responses": { "200": { "description": "document" } } }
    },
    "/api/documents/{id}/versions": {
      "get": { "summary": "List version snapshots, newest first", "parameters": [ { "name": "limit", "in": "query", "schema": { "type": "integer", "maximum": 50 } } ], "responses": { "200": { "description": "versions" } } }
    },
    "/api/documents/{id}/versions/{version}": {
      "get": { "summary": "Get one version snapshot", "responses": { "200": { "description": "snapshot" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/versions/{version}/export": {
      "get": { "summary": "Presigned download URL for an archived snapshot", "responses": { "200": { "description": "url" }, "501": { "description": "archive not configured" } } }
    },
    "/api/documents/{id}/revert": {
      "post": { "summary": "Restore a snapshot as current content (no new version)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"version":{"type":"integer"}}}}}}, "responses": { "200": { "description": "document" }, "404": { "description": "version not found" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get user info", "responses": { "200": { "description": "user" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
