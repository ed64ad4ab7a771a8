package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Pulse API",
        "description": "Survey collection, anonymity and aggregation service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Surveys", "description": "Authoring and lifecycle"},
        {"name": "Responses", "description": "Submission and moderation"},
        {"name": "Invites", "description": "Single-use access tokens"},
        {"name": "Reports", "description": "Aggregation, snapshots and exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/surveys": {
            "get": {
                "tags": ["Surveys"],
                "summary": "List surveys",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Surveys"],
                "summary": "Create a survey from an authoring document",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/surveys/generate": {
            "post": {
                "tags": ["Surveys"],
                "summary": "Generate a survey document from a brief",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/surveys/{id}": {
            "get": {
                "tags": ["Surveys"],
                "summary": "Fetch a survey with its full schema",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/surveys/{id}/transition": {
            "post": {
                "tags": ["Surveys"],
                "summary": "Apply a lifecycle transition",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/surveys/{id}/responses": {
            "post": {
                "tags": ["Responses"],
                "summary": "Submit a survey response",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "invite", "in": "query", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Accepted"},
                    "403": {"description": "Survey not active or invite invalid"},
                    "409": {"description": "Duplicate submission or invite already used"}
                }
            }
        },
        "/surveys/{id}/invites": {
            "get": {
                "tags": ["Invites"],
                "summary": "List a survey's invites",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Invites"],
                "summary": "Issue invite tokens",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/invites/{token}": {
            "get": {
                "tags": ["Invites"],
                "summary": "Check whether an invite token is still redeemable",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Unknown token"}
                }
            }
        },
        "/surveys/{id}/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "List prior report snapshots",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Reports"],
                "summary": "Compute a fresh report snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/surveys/{id}/reports/latest": {
            "get": {
                "tags": ["Reports"],
                "summary": "Fetch the latest report snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "No snapshot yet"}
                }
            }
        },
        "/surveys/{id}/reports/export": {
            "post": {
                "tags": ["Reports"],
                "summary": "Render the latest snapshot to CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/exports/{exportId}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Poll an export's progress",
                "parameters": [
                    {"name": "exportId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a rendered export via its signed token",
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
