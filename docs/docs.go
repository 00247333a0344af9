// Package docs holds the OpenAPI description served under /swagger.
// Regenerate with: swag init -g cmd/main.go
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
        "/health": {"get": {"tags": ["system"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/auth/sign-up": {"post": {"tags": ["auth"], "summary": "Create an operator account", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/auth/sign-in": {"post": {"tags": ["auth"], "summary": "Obtain an API token", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/api/v1/load/state": {"get": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Current telemetry", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/load/series": {"get": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Recorded series", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/api/v1/load/connect": {"post": {"security": [{"BearerAuth": []}], "tags": ["device"], "summary": "Connect to the load", "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}, "503": {"description": "Service Unavailable"}}}},
        "/api/v1/load/disconnect": {"post": {"security": [{"BearerAuth": []}], "tags": ["device"], "summary": "Disconnect from the load", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/load/connection": {"get": {"security": [{"BearerAuth": []}], "tags": ["device"], "summary": "Connection status", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/load/start": {"post": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Start the load", "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}, "504": {"description": "Gateway Timeout"}}}},
        "/api/v1/load/stop": {"post": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Stop the load", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/load/clear": {"post": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Clear series and totals", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/load/setpoint": {"post": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Apply a static setpoint", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/api/v1/load/trigger": {"post": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Bus trigger", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/load/limits": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["limits"], "summary": "Device limits", "responses": {"200": {"description": "OK"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["limits"], "summary": "Set device limits", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/load/limits/reset": {"post": {"security": [{"BearerAuth": []}], "tags": ["limits"], "summary": "Reset device limits to factory values", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/profiles/{kind}/validate": {"post": {"security": [{"BearerAuth": []}], "tags": ["profiles"], "summary": "Validate a profile without sending it", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/api/v1/profiles/dynamic": {"put": {"security": [{"BearerAuth": []}], "tags": ["profiles"], "summary": "Apply a dynamic test", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/profiles/init": {"post": {"security": [{"BearerAuth": []}], "tags": ["profiles"], "summary": "Initialise every profile slot with defaults", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/device/settings": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["device"], "summary": "Device system settings", "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["device"], "summary": "Write device system settings", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/acquisition": {"get": {"security": [{"BearerAuth": []}], "tags": ["acquisition"], "summary": "Acquisition status", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/acquisition/halt": {"post": {"security": [{"BearerAuth": []}], "tags": ["acquisition"], "summary": "Halt polling", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/acquisition/resume": {"post": {"security": [{"BearerAuth": []}], "tags": ["acquisition"], "summary": "Resume polling", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/series/{kind}/export": {"get": {"security": [{"BearerAuth": []}], "tags": ["load"], "summary": "Export series as CSV", "produces": ["text/csv"], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/settings": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["settings"], "summary": "Current settings", "responses": {"200": {"description": "OK"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["settings"], "summary": "Update settings", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/api/v1/logs": {"get": {"security": [{"BearerAuth": []}], "tags": ["logs"], "summary": "List logs", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/ws": {"get": {"security": [{"BearerAuth": []}], "tags": ["stream"], "summary": "Telemetry stream", "responses": {"101": {"description": "Switching Protocols"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Electronic Load API",
	Description:      "Acquisition, integration and control of a programmable DC electronic load.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
