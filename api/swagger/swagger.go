package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LMS Billing API",
        "description": "Installment billing and course access engine",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Courses", "description": "Catalog and gated content"},
        {"name": "Payments", "description": "Course purchases and the payment ledger"},
        {"name": "EMI", "description": "Installment plans, dues and settlements"},
        {"name": "Admin", "description": "Operational plan maintenance"}
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
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "Course catalog",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{courseId}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Course detail with the caller's access decision",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/courses/{courseId}/content": {
            "get": {
                "tags": ["Courses"],
                "summary": "Course chapters, gated by payment state",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments": {
            "get": {
                "tags": ["Payments"],
                "summary": "List the caller's payments",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/purchase": {
            "post": {
                "tags": ["Payments"],
                "summary": "Open a checkout for a course purchase",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PurchaseRequest"}}
                ],
                "responses": {
                    "200": {"description": "Pending order reused", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already purchased"}
                }
            }
        },
        "/payments/verify": {
            "post": {
                "tags": ["Payments"],
                "summary": "Confirm a purchase order at the gateway",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Payment not settled"}
                }
            }
        },
        "/payments/{paymentId}/receipt": {
            "get": {
                "tags": ["Payments"],
                "summary": "Download a PDF receipt for a completed payment",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "paymentId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "PDF receipt"},
                    "412": {"description": "Payment not completed"}
                }
            }
        },
        "/emi/status/{courseId}": {
            "get": {
                "tags": ["EMI"],
                "summary": "Installment plan status for a course",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No plan"}
                }
            }
        },
        "/emi/due/{courseId}": {
            "get": {
                "tags": ["EMI"],
                "summary": "Outstanding installments for a course",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/emi/summary": {
            "get": {
                "tags": ["EMI"],
                "summary": "Cross-course installment overview",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/emi/pay-overdue": {
            "post": {
                "tags": ["EMI"],
                "summary": "Open a checkout for overdue installments",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InstallmentOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Amount does not settle whole installments"}
                }
            }
        },
        "/emi/pay-monthly": {
            "post": {
                "tags": ["EMI"],
                "summary": "Open a checkout across everything unpaid",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InstallmentOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Amount does not settle whole installments"}
                }
            }
        },
        "/emi/verify-payment": {
            "post": {
                "tags": ["EMI"],
                "summary": "Confirm a gateway order and settle installments",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifyPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Payment not settled"}
                }
            }
        },
        "/admin/emi/fix/{userId}/{courseId}": {
            "post": {
                "tags": ["Admin"],
                "summary": "Repair one user's plan status for a course",
                "parameters": [
                    {"name": "userId", "in": "path", "type": "string", "required": true},
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/emi/fix-all": {
            "post": {
                "tags": ["Admin"],
                "summary": "Repair plan statuses across every live plan",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/emi/sweep": {
            "post": {
                "tags": ["Admin"],
                "summary": "Reconcile every live plan against the clock",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/emi/reminders": {
            "post": {
                "tags": ["Admin"],
                "summary": "Dispatch due-date reminders",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PurchaseRequest": {
            "type": "object",
            "required": ["course_id", "payment_type"],
            "properties": {
                "course_id": {"type": "string"},
                "payment_type": {"type": "string", "enum": ["full", "emi"]},
                "due_day": {"type": "integer"}
            }
        },
        "InstallmentOrderRequest": {
            "type": "object",
            "required": ["course_id", "amount"],
            "properties": {
                "course_id": {"type": "string"},
                "amount": {"type": "number"}
            }
        },
        "VerifyPaymentRequest": {
            "type": "object",
            "required": ["order_id"],
            "properties": {
                "order_id": {"type": "string"}
            }
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
