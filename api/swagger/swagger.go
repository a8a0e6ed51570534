package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Circle Calendar API",
        "description": "Composed calendar timelines with live updates, session rooms and calendar feeds",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Timeline", "description": "Composed timelines, celestial markers and exports"},
        {"name": "Events", "description": "Drag and resize of owned events"},
        {"name": "Rooms", "description": "Session presence and chat"},
        {"name": "Feeds", "description": "Signed ICS subscriptions"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Observability"],
                "summary": "Readiness check of database and cache",
                "responses": {"200": {"description": "Ready"}, "503": {"description": "A dependency is unavailable"}}
            }
        },
        "/api/v1/markers": {
            "get": {
                "tags": ["Timeline"],
                "summary": "Celestial markers of a window",
                "parameters": [
                    {"name": "start", "in": "query", "type": "string", "format": "date"},
                    {"name": "end", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/timeline": {
            "get": {
                "tags": ["Timeline"],
                "summary": "Composed timeline for the current actor",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "start", "in": "query", "type": "string", "format": "date"},
                    {"name": "end", "in": "query", "type": "string", "format": "date"},
                    {"name": "show_markers", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "304": {"description": "Unchanged since If-None-Match"}
                }
            }
        },
        "/api/v1/timeline/export": {
            "get": {
                "tags": ["Timeline"],
                "summary": "Download the composed timeline as CSV, PDF or ICS",
                "security": [{"Bearer": []}],
                "produces": ["text/csv", "application/pdf", "text/calendar"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "ics"]},
                    {"name": "start", "in": "query", "type": "string", "format": "date"},
                    {"name": "end", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/api/v1/timeline/live": {
            "get": {
                "tags": ["Timeline"],
                "summary": "Live timeline websocket",
                "description": "Server frames: snapshot, gesture, reschedule, notice, error. Client frames: window, drag_start, drag_cancel, drop, h.",
                "parameters": [
                    {"name": "access_token", "in": "query", "type": "string"},
                    {"name": "start", "in": "query", "type": "string", "format": "date"},
                    {"name": "end", "in": "query", "type": "string", "format": "date"},
                    {"name": "show_markers", "in": "query", "type": "boolean"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/api/v1/events/{source}/{id}/schedule": {
            "patch": {
                "tags": ["Events"],
                "summary": "Move or resize an owned event",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "source", "in": "path", "required": true, "type": "string", "enum": ["personal", "organizational"]},
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/rooms/{sessionId}/live": {
            "get": {
                "tags": ["Rooms"],
                "summary": "Session room websocket",
                "description": "Server frames: presence_sync, chat, history, notice, error. Client frames: send, mute, unmute, h.",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "access_token", "in": "query", "type": "string"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        },
        "/api/v1/feeds/link": {
            "post": {
                "tags": ["Feeds"],
                "summary": "Create a signed ICS feed link",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/FeedLinkRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/feeds/calendar.ics": {
            "get": {
                "tags": ["Feeds"],
                "summary": "ICS calendar feed",
                "produces": ["text/calendar"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "Calendar"}, "401": {"description": "Invalid or expired link"}}
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Aggregated service metrics",
                "security": [{"Bearer": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "RescheduleRequest": {
            "type": "object",
            "properties": {
                "start": {"type": "string", "format": "date-time"},
                "end": {"type": "string", "format": "date-time"}
            },
            "required": ["start", "end"]
        },
        "FeedLinkRequest": {
            "type": "object",
            "properties": {
                "display_name": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
