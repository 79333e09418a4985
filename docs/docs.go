// Package docs holds the OpenAPI description served at /swagger. Regenerate
// with `swag init -g cmd/api/main.go` after changing handler annotations.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/healthz": {"get": {"tags": ["System"], "summary": "Health check", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "503": {"description": "Registry state unavailable"}}}},
        "/api/v1/tiers": {"get": {"tags": ["Membership"], "summary": "List Tiers", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/checkout": {"post": {"tags": ["Payment"], "summary": "Record Checkout", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/reconcile.CheckoutRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/checkout/{session_id}": {"get": {"tags": ["Payment"], "summary": "Get Checkout", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "session_id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/webhook/stripe": {"post": {"tags": ["Webhook"], "summary": "Stripe Webhook", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "header", "name": "Stripe-Signature", "type": "string", "required": true}, {"in": "body", "name": "payload", "required": true, "schema": {"type": "object"}}],
            "responses": {"200": {"description": "Handled, replayed or ignored"}, "400": {"description": "Bad signature or payload"}, "500": {"description": "Mint failed; redeliver"}}}},
        "/api/v1/members/{token_id}": {"get": {"tags": ["Membership"], "summary": "Get Member", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "token_id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/members/{token_id}/owner": {"get": {"tags": ["Membership"], "summary": "Get Token Owner", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "token_id", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/members/{token_id}/royalty": {"get": {"tags": ["Membership"], "summary": "Royalty Info", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "token_id", "type": "integer", "required": true}, {"in": "query", "name": "sale_price", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/members/{token_id}/transfer": {"post": {"security": [{"BearerAuth": []}], "tags": ["Membership"], "summary": "Transfer Membership", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "token_id", "type": "integer", "required": true}, {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handlers.TransferRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/members/by_wallet/{address}": {"get": {"tags": ["Membership"], "summary": "Member By Wallet", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "address", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/registry/total_supply": {"get": {"tags": ["Registry"], "summary": "Total Supply", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/registry/settings": {"get": {"tags": ["Registry"], "summary": "Registry Settings", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/cards/{card_id}/verify": {"get": {"tags": ["Verification"], "summary": "Verify Card", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "card_id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/terminal/verify": {"post": {"tags": ["Verification"], "summary": "Terminal Verify", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "header", "name": "X-Terminal-ID", "type": "string", "required": true}, {"in": "header", "name": "X-Terminal-Key", "type": "string", "required": true},
                {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handlers.TerminalVerifyRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}, "401": {"description": "Unknown terminal"}, "429": {"description": "Rate limited"}}}},
        "/api/v1/admin/mint": {"post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Mint Membership (Admin)", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"type": "object"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/admin/sessions/list": {"post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "List Payment Sessions (Admin)", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"type": "object"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/admin/statistics": {"post": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Get Statistics (Admin)", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"type": "object"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}},
        "/api/v1/admin/ledger/{height}": {"get": {"security": [{"BearerAuth": []}], "tags": ["Admin"], "summary": "Journal Entry (Admin)", "produces": ["application/json"],
            "parameters": [{"in": "path", "name": "height", "type": "integer", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.RespOK"}}}}}
    },
    "definitions": {
        "handlers.RespOK": {"type": "object", "properties": {"code": {"type": "integer"}, "message": {"type": "string"}, "data": {}}},
        "handlers.TransferRequest": {"type": "object", "required": ["from", "to"], "properties": {"from": {"type": "string"}, "to": {"type": "string"}}},
        "handlers.TerminalVerifyRequest": {"type": "object", "required": ["card_id"], "properties": {"card_id": {"type": "string"}}},
        "reconcile.CheckoutRequest": {"type": "object", "required": ["session_id", "wallet_address"], "properties": {
            "session_id": {"type": "string"}, "email": {"type": "string"}, "wallet_address": {"type": "string"}, "tier": {"type": "string", "enum": ["standard", "premium", "elite", "lifetime"]}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8888",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Yacht Club Membership API",
	Description:      "Membership token registry, NFC card verification and payment reconciliation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
