// Package docs holds the Swagger spec of the HTTP API, written by hand in
// the output shape of swaggo/swag's generator.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ping": {
            "get": {
                "description": "bare liveness probe, unauthenticated",
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Ping",
                "responses": {
                    "200": {
                        "description": "pong",
                        "schema": {"type": "string"}
                    }
                }
            }
        },
        "/v1/healthz": {
            "get": {
                "description": "liveness probe that also checks the KV Index is reachable, unauthenticated",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Healthz",
                "responses": {
                    "200": {"description": "ok"},
                    "503": {"description": "unavailable"}
                }
            }
        },
        "/v1/traffic": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "creates or extends the traffic identified by service.traffic, returning its current remote_addr map",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["traffic"],
                "summary": "Update traffic",
                "parameters": [
                    {
                        "description": "node name and service definition",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object"}
                    }
                ],
                "responses": {
                    "200": {"description": "remote_addr map"},
                    "400": {"description": "invalid request body"}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "tears down every proxy, port reservation, and KV record belonging to traffic_id",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["traffic"],
                "summary": "Delete traffic",
                "parameters": [
                    {
                        "description": "traffic id to delete",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object"}
                    }
                ],
                "responses": {
                    "200": {"description": "traffic_id and last-known remote_addr map"},
                    "400": {"description": "invalid request body"}
                }
            }
        },
        "/v1/traffic/{traffic_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "read-only inspection: the stored remote_addr map plus the current working proxy count",
                "produces": ["application/json"],
                "tags": ["traffic"],
                "summary": "Get traffic",
                "parameters": [
                    {
                        "type": "string",
                        "description": "traffic id",
                        "name": "traffic_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "traffic_id, remote_addr map, and working count"},
                    "400": {"description": "unknown traffic_id"}
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "",
	Schemes:          []string{},
	Title:            "tunnelctl API",
	Description:      "HTTP surface of the tunnel traffic controller: liveness probes and the bearer-guarded traffic lifecycle endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
