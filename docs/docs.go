// Package docs is generated by swaggo/swag from the handler annotations.
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
        "/parkings/nearby": {
            "get": {
                "summary": "Parkings near a point",
                "parameters": [
                    {"type": "number", "description": "Latitude", "name": "latitude", "in": "query", "required": true},
                    {"type": "number", "description": "Longitude", "name": "longitude", "in": "query", "required": true},
                    {"type": "number", "description": "Radius in km (default 5)", "name": "radius", "in": "query"},
                    {"type": "integer", "description": "Max results (default 20)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.LocationListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/parkings/search": {
            "get": {
                "summary": "Search parkings",
                "parameters": [
                    {"type": "string", "description": "Name, address or description", "name": "q", "in": "query"},
                    {"type": "string", "description": "public, private or residential", "name": "type", "in": "query"},
                    {"type": "number", "description": "Minimum hourly rate", "name": "minPrice", "in": "query"},
                    {"type": "number", "description": "Maximum hourly rate", "name": "maxPrice", "in": "query"},
                    {"type": "string", "description": "Comma separated amenities, all required", "name": "amenities", "in": "query"},
                    {"type": "number", "description": "Latitude", "name": "latitude", "in": "query"},
                    {"type": "number", "description": "Longitude", "name": "longitude", "in": "query"},
                    {"type": "number", "description": "Radius in km", "name": "radius", "in": "query"},
                    {"type": "string", "description": "distance, price or rating", "name": "sort", "in": "query"},
                    {"type": "integer", "description": "Page, from 1", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.LocationListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/parkings/{id}": {
            "get": {
                "summary": "Get parking",
                "parameters": [{"type": "integer", "description": "Parking ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Location"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/parkings/{id}/availability": {
            "get": {
                "description": "Advisory; the booking call is authoritative.",
                "summary": "Get availability counters",
                "parameters": [{"type": "integer", "description": "Parking ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Availability"}},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/parkings/{id}/availability/stream": {
            "get": {
                "produces": ["text/event-stream"],
                "summary": "Stream availability changes (SSE)",
                "parameters": [{"type": "integer", "description": "Parking ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Availability"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/parkings/{id}/reviews": {
            "get": {
                "summary": "Reviews of a parking",
                "parameters": [
                    {"type": "integer", "description": "Parking ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Page, from 1", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (default 10, max 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.ReviewListResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "One review per user and parking. Updates the parking's rating.",
                "summary": "Review a parking",
                "parameters": [
                    {"type": "integer", "description": "Parking ID", "name": "id", "in": "path", "required": true},
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.ReviewRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Review"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "already reviewed", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/payments": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "List my payments",
                "parameters": [
                    {"type": "integer", "description": "page size (default 20)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.PaymentListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/payments/status/{intentId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Status of one of my payment intents as last reported by the provider.",
                "summary": "Payment status",
                "parameters": [{"type": "string", "description": "Payment intent id", "name": "intentId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/payment.IntentView"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/reservations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "List my reservations",
                "parameters": [
                    {"type": "integer", "description": "page size (default 20)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.ReservationListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Takes a spot and opens a payment intent. The reservation stays\npending until the payment succeeds.",
                "summary": "Book a spot",
                "parameters": [
                    {"type": "string", "description": "Replays the first response for the same key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.BookRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpgin.BookingResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "no spots / key in progress", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "422": {"description": "key reused with another payload", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "502": {"description": "payment provider unavailable", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/reservations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "summary": "Get reservation",
                "parameters": [{"type": "string", "description": "Reservation ID (uuid)", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Reservation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/reservations/{id}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Cancelling an already cancelled reservation returns it unchanged.",
                "summary": "Cancel reservation",
                "parameters": [
                    {"type": "string", "description": "Reservation ID (uuid)", "name": "id", "in": "path", "required": true},
                    {"description": "payload", "name": "req", "in": "body", "schema": {"$ref": "#/definitions/httpgin.CancelRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Reservation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/reservations/{id}/extend": {
            "post": {
                "security": [{"BearerAuth": []}],
                "summary": "Extend reservation",
                "parameters": [
                    {"type": "string", "description": "Reservation ID (uuid)", "name": "id", "in": "path", "required": true},
                    {"description": "payload", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpgin.ExtendRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Reservation"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        },
        "/webhooks/stripe": {
            "post": {
                "description": "Verifies the Stripe-Signature header and applies the event.\nRedeliveries are acknowledged without effect.",
                "summary": "Stripe webhook",
                "parameters": [{"type": "string", "description": "Stripe signature", "name": "Stripe-Signature", "in": "header", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpgin.WebhookResponse"}},
                    "400": {"description": "bad signature or payload", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/httpgin.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Availability": {
            "type": "object",
            "properties": {
                "available": {"type": "integer"},
                "location_id": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "domain.Location": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "amenities": {"type": "array", "items": {"type": "string"}},
                "available_spots": {"type": "integer"},
                "created_at": {"type": "string"},
                "currency": {"type": "string"},
                "daily_rate_cents": {"type": "integer"},
                "description": {"type": "string"},
                "hourly_rate_cents": {"type": "integer"},
                "id": {"type": "integer"},
                "is_active": {"type": "boolean"},
                "is_open": {"type": "boolean"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "name": {"type": "string"},
                "owner_id": {"type": "integer"},
                "parking_type": {"type": "string"},
                "rating": {"type": "number"},
                "total_ratings": {"type": "integer"},
                "total_spots": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.LocationHit": {
            "allOf": [
                {"$ref": "#/definitions/domain.Location"},
                {"type": "object", "properties": {"distance_km": {"type": "number"}}}
            ]
        },
        "domain.Payment": {
            "type": "object",
            "properties": {
                "amount_cents": {"type": "integer"},
                "created_at": {"type": "string"},
                "currency": {"type": "string"},
                "id": {"type": "string"},
                "payment_intent_id": {"type": "string"},
                "payment_method": {"type": "string"},
                "reservation_id": {"type": "string"},
                "status": {"type": "string", "enum": ["succeeded", "refunded"]},
                "updated_at": {"type": "string"}
            }
        },
        "domain.Reservation": {
            "type": "object",
            "properties": {
                "cancel_reason": {"type": "string"},
                "created_at": {"type": "string"},
                "currency": {"type": "string"},
                "end_time": {"type": "string"},
                "hold_id": {"type": "string"},
                "id": {"type": "string"},
                "parking_id": {"type": "integer"},
                "payment_intent_id": {"type": "string"},
                "payment_method": {"type": "string"},
                "payment_status": {"type": "string", "enum": ["pending", "paid", "failed", "refunded"]},
                "start_time": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "confirmed", "active", "completed", "cancelled", "expired"]},
                "total_amount_cents": {"type": "integer"},
                "updated_at": {"type": "string"},
                "user_id": {"type": "integer"}
            }
        },
        "domain.Review": {
            "type": "object",
            "properties": {
                "comment": {"type": "string"},
                "created_at": {"type": "string"},
                "id": {"type": "integer"},
                "parking_id": {"type": "integer"},
                "rating": {"type": "integer", "minimum": 1, "maximum": 5},
                "user_id": {"type": "integer"},
                "user_name": {"type": "string"}
            }
        },
        "httpgin.BookRequest": {
            "type": "object",
            "required": ["end_time", "parking_id", "start_time"],
            "properties": {
                "end_time": {"type": "string"},
                "parking_id": {"type": "integer"},
                "payment_method": {"type": "string"},
                "start_time": {"type": "string"},
                "total_amount_cents": {"type": "integer", "minimum": 0}
            }
        },
        "httpgin.BookingResponse": {
            "type": "object",
            "properties": {
                "client_secret": {"type": "string"},
                "reservation": {"$ref": "#/definitions/domain.Reservation"}
            }
        },
        "httpgin.CancelRequest": {
            "type": "object",
            "properties": {"reason": {"type": "string", "maxLength": 200}}
        },
        "httpgin.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "httpgin.ExtendRequest": {
            "type": "object",
            "required": ["new_end_time"],
            "properties": {"new_end_time": {"type": "string"}}
        },
        "httpgin.LocationListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "parkings": {"type": "array", "items": {"$ref": "#/definitions/domain.LocationHit"}}
            }
        },
        "httpgin.Pagination": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "page": {"type": "integer"},
                "pages": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "httpgin.PaymentListResponse": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "payments": {"type": "array", "items": {"$ref": "#/definitions/domain.Payment"}}
            }
        },
        "httpgin.ReservationListResponse": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "reservations": {"type": "array", "items": {"$ref": "#/definitions/domain.Reservation"}}
            }
        },
        "httpgin.ReviewListResponse": {
            "type": "object",
            "properties": {
                "pagination": {"$ref": "#/definitions/httpgin.Pagination"},
                "reviews": {"type": "array", "items": {"$ref": "#/definitions/domain.Review"}}
            }
        },
        "httpgin.ReviewRequest": {
            "type": "object",
            "required": ["rating"],
            "properties": {
                "comment": {"type": "string", "maxLength": 500},
                "rating": {"type": "integer", "minimum": 1, "maximum": 5}
            }
        },
        "httpgin.WebhookResponse": {
            "type": "object",
            "properties": {
                "outcome": {"type": "string"},
                "received": {"type": "boolean"}
            }
        },
        "payment.IntentView": {
            "type": "object",
            "properties": {
                "amount_cents": {"type": "integer"},
                "currency": {"type": "string"},
                "payment_intent_id": {"type": "string"},
                "payment_status": {"type": "string"},
                "reservation_id": {"type": "string"},
                "reservation_status": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "succeeded", "failed", "cancelled", "refunded"]}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ParkGo API",
	Description:      "Parking search, reservations and payments.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
