// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/emit-notification": {
            "post": {
                "description": "Emits \"notification:<userId>\" with data to every connection identified as userId.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Push a notification to one user",
                "parameters": [
                    {
                        "description": "Target user and payload",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.EmitNotificationRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.EmitNotificationResponse"}},
                    "400": {"description": "Malformed JSON or missing userId", "schema": {"type": "object"}},
                    "500": {"description": "Relay unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Relay liveness",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/socket": {
            "get": {
                "description": "Open a persistent relay connection. Frames are JSON envelopes {\"event\": string, \"data\": any}.",
                "tags": ["socket"],
                "summary": "WebSocket connection",
                "responses": {
                    "101": {"description": "Switching Protocols - WebSocket connection established"},
                    "403": {"description": "Origin not allowed"}
                }
            }
        },
        "/socket/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Relay liveness",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/socket/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Relay registry counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/websocket.Stats"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.EmitNotificationRequest": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "userId": {"type": "string", "example": "64f1c0ffee"}
            }
        },
        "handlers.EmitNotificationResponse": {
            "type": "object",
            "properties": {
                "connectedClients": {"type": "integer", "example": 3},
                "delivered": {"type": "integer", "example": 1},
                "message": {"type": "string", "example": "Notification sent"},
                "success": {"type": "boolean", "example": true}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "connectedClients": {"type": "integer", "example": 3},
                "status": {"type": "string", "example": "ok"},
                "uptime": {"type": "number", "example": 1234.5}
            }
        },
        "websocket.Stats": {
            "type": "object",
            "properties": {
                "connectedClients": {"type": "integer"},
                "identifiedUsers": {"type": "integer"},
                "rooms": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Penci Realtime Relay API",
	Description:      "Real-time design collaboration and notification relay for the Penci admin platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
