package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "TransferScope Portal API",
        "description": "Admin portal backend for college transfer friendliness reports",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Signup, login, verification and sessions"},
        {"name": "MFA", "description": "Phone factor enrollment and step-up challenges"},
        {"name": "Admin", "description": "Admin claim management"},
        {"name": "Institutions", "description": "Institution catalog search"},
        {"name": "Comparisons", "description": "Transfer friendliness reports"},
        {"name": "Prompts", "description": "Configurable prompt slots"},
        {"name": "Presentations", "description": "Generated slide decks"}
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a new account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "description": "Accounts with an enrolled phone factor receive a STEP_UP_REQUIRED challenge instead of tokens.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials or step-up required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/verification/send": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Send verification email",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Already verified", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/verification/confirm": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Confirm email verification",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmVerificationRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "410": {"description": "Token expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/mfa/captcha": {
            "post": {
                "tags": ["MFA"],
                "summary": "Verify captcha widget token",
                "responses": {
                    "200": {"description": "Single-use proof", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/mfa/enroll/start": {
            "post": {
                "tags": ["MFA"],
                "summary": "Start phone factor enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollStartRequest"}}
                ],
                "responses": {
                    "200": {"description": "Verification handle", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Email not verified", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/mfa/enroll/confirm": {
            "post": {
                "tags": ["MFA"],
                "summary": "Confirm phone factor enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollConfirmRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Wrong code", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/mfa/resolve": {
            "post": {
                "tags": ["MFA"],
                "summary": "Resolve a step-up challenge",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too many attempts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/check": {
            "get": {
                "tags": ["Admin"],
                "summary": "Check authorization tier",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "isAdmin / isPending flags", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/grant": {
            "post": {
                "tags": ["Admin"],
                "summary": "Grant the admin claim",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/revoke": {
            "post": {
                "tags": ["Admin"],
                "summary": "Revoke the admin claim",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Cannot revoke yourself", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/users": {
            "get": {
                "tags": ["Admin"],
                "summary": "List accounts with claims",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/search": {
            "post": {
                "tags": ["Institutions"],
                "summary": "Search institutions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SearchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/compare": {
            "post": {
                "tags": ["Comparisons"],
                "summary": "Stream a school comparison",
                "description": "Newline-delimited data: frames: schools_data, ai_chunk, complete.",
                "security": [{"BearerAuth": []}],
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompareRequest"}}
                ],
                "responses": {
                    "200": {"description": "Stream"}
                }
            }
        },
        "/transfer-assessment": {
            "post": {
                "tags": ["Comparisons"],
                "summary": "Transfer assessment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssessmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/comparisons": {
            "get": {
                "tags": ["Comparisons"],
                "summary": "List stored comparisons",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/prompt/all": {
            "get": {
                "tags": ["Prompts"],
                "summary": "List active prompts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/prompt/{type}": {
            "get": {
                "tags": ["Prompts"],
                "summary": "Get the active prompt for a slot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Prompts"],
                "summary": "Save prompt content",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "type", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdatePromptRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/presentations": {
            "get": {
                "tags": ["Presentations"],
                "summary": "List presentations",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Presentations"],
                "summary": "Request a slide deck",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePresentationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SignupRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "ConfirmVerificationRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string"}
            },
            "required": ["token"]
        },
        "EnrollStartRequest": {
            "type": "object",
            "properties": {
                "phone_number": {"type": "string"},
                "captcha_token": {"type": "string"}
            },
            "required": ["phone_number"]
        },
        "EnrollConfirmRequest": {
            "type": "object",
            "properties": {
                "verification_id": {"type": "string"},
                "code": {"type": "string"}
            },
            "required": ["verification_id", "code"]
        },
        "ResolveRequest": {
            "type": "object",
            "properties": {
                "challenge_id": {"type": "string"},
                "code": {"type": "string"},
                "captcha_token": {"type": "string"}
            },
            "required": ["challenge_id", "code"]
        },
        "SearchRequest": {
            "type": "object",
            "properties": {
                "query": {"type": "string"}
            },
            "required": ["query"]
        },
        "CompareRequest": {
            "type": "object",
            "properties": {
                "schools": {"type": "array", "items": {"type": "string"}},
                "weights": {"type": "object"}
            },
            "required": ["schools", "weights"]
        },
        "AssessmentRequest": {
            "type": "object",
            "properties": {
                "primary_college": {"type": "string"},
                "competitor_colleges": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["primary_college", "competitor_colleges"]
        },
        "UpdatePromptRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string"}
            },
            "required": ["content"]
        },
        "CreatePresentationRequest": {
            "type": "object",
            "properties": {
                "prompt": {"type": "string"},
                "n_slides": {"type": "integer"},
                "language": {"type": "string"},
                "theme": {"type": "string"},
                "export_as": {"type": "string"}
            },
            "required": ["prompt", "n_slides"]
        },
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
