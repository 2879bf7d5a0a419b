// Package docs registers the sercha-rag swagger document with swag.
// Regenerate with `swag init -g cmd/sercha-rag/main.go` after changing
// handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Sercha OSS",
            "url": "https://github.com/custodia-labs/sercha-rag/issues"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/search": {
            "get": {
                "description": "Embeds the query, retrieves candidates from the session, re-ranks them and projects hits to 3-D",
                "produces": ["application/json"],
                "tags": ["Search"],
                "summary": "Semantic search",
                "parameters": [
                    {"type": "string", "description": "Query text", "name": "q", "in": "query", "required": true},
                    {"type": "string", "description": "Session; empty or default searches every session", "name": "session_id", "in": "query"},
                    {"type": "integer", "default": 5, "description": "Results to return", "name": "top_k", "in": "query"},
                    {"type": "integer", "default": 15, "description": "Stage-1 pool size", "name": "candidate_k", "in": "query"},
                    {"type": "boolean", "description": "Override the configured rerank default", "name": "rerank", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.SearchResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "502": {"description": "Embedding failed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Index unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/galaxy": {
            "get": {
                "description": "Projects every record of the session together with the query and past queries, scaled to radius 15",
                "produces": ["application/json"],
                "tags": ["Search"],
                "summary": "Galaxy view",
                "parameters": [
                    {"type": "string", "description": "Session", "name": "session_id", "in": "query"},
                    {"type": "string", "description": "Query to place among the documents", "name": "query", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.GalaxyView"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/chat": {
            "post": {
                "description": "Searches the session and summarizes the top passages. No text is generated.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Search"],
                "summary": "Extractive answer",
                "parameters": [
                    {"description": "Question", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.ChatRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Answer"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/sessions/{session}/reindex": {
            "post": {
                "description": "Full rebuild or incremental catch-up. With async=true the run is queued and a task is returned.",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Reindex a session",
                "parameters": [
                    {"type": "string", "description": "Session", "name": "session", "in": "path", "required": true},
                    {"type": "string", "default": "full", "description": "full or incremental", "name": "mode", "in": "query"},
                    {"type": "boolean", "description": "Queue the run", "name": "async", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.IndexResult"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/domain.Task"}},
                    "409": {"description": "Session is already being indexed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/sessions/{session}/files": {
            "post": {
                "description": "Stores multipart file parts under the session and schedules incremental indexing",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Upload files",
                "parameters": [
                    {"type": "string", "description": "Session", "name": "session", "in": "path", "required": true},
                    {"type": "file", "description": "File to upload (repeatable)", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.UploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/sessions/{session}": {
            "delete": {
                "description": "Removes every record whose session_id matches, plus bookkeeping, search log and files",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Delete a session",
                "parameters": [
                    {"type": "string", "description": "Session", "name": "session", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DeleteResult"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "description": "Counts distinct documents, chunks and documents per extension",
                "produces": ["application/json"],
                "tags": ["Index"],
                "summary": "Index statistics",
                "parameters": [
                    {"type": "string", "description": "Session; empty or default is global", "name": "session_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Stats"}}
                }
            }
        },
        "/documents": {
            "get": {
                "description": "Newest first",
                "produces": ["application/json"],
                "tags": ["Index"],
                "summary": "List indexed documents",
                "parameters": [
                    {"type": "string", "description": "Session", "name": "session_id", "in": "query"},
                    {"type": "integer", "default": 100, "description": "Maximum rows", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.IndexedDocument"}}}
                }
            }
        },
        "/tasks/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Index"],
                "summary": "Task status",
                "parameters": [
                    {"type": "string", "description": "Task ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Task"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "invalid request body"}}
        },
        "http.ChatRequest": {
            "type": "object",
            "properties": {
                "query": {"type": "string"},
                "session_id": {"type": "string"},
                "top_k": {"type": "integer"}
            }
        },
        "http.UploadResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "files": {"type": "array", "items": {"type": "object"}}
            }
        },
        "domain.SearchHit": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "filename": {"type": "string"},
                "ext": {"type": "string"},
                "page": {"type": "integer"},
                "score": {"type": "number"},
                "rerank_score": {"type": "number"},
                "vector_3d": {"type": "array", "items": {"type": "number"}},
                "preview": {"type": "string"},
                "url": {"type": "string"},
                "session_id": {"type": "string"}
            }
        },
        "domain.SearchResult": {
            "type": "object",
            "properties": {
                "query": {"type": "string"},
                "query_vector_3d": {"type": "array", "items": {"type": "number"}},
                "results": {"type": "array", "items": {"$ref": "#/definitions/domain.SearchHit"}},
                "reranked": {"type": "boolean"},
                "took": {"type": "integer", "example": 1500000}
            }
        },
        "domain.GalaxyView": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "query": {"type": "string"},
                "points": {"type": "array", "items": {"type": "object"}},
                "history_included": {"type": "boolean"}
            }
        },
        "domain.Answer": {
            "type": "object",
            "properties": {
                "query": {"type": "string"},
                "answer": {"type": "string"},
                "sources": {"type": "array", "items": {"$ref": "#/definitions/domain.SearchHit"}}
            }
        },
        "domain.IndexResult": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "mode": {"type": "string"},
                "status": {"type": "string"},
                "indexed_count": {"type": "integer"},
                "chunk_count": {"type": "integer"},
                "skipped_count": {"type": "integer"},
                "removed_count": {"type": "integer"},
                "duration_seconds": {"type": "number"}
            }
        },
        "domain.Task": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "session_id": {"type": "string"},
                "status": {"type": "string"},
                "attempts": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "domain.DeleteResult": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "status": {"type": "string"},
                "deleted_records": {"type": "integer"},
                "deleted_files": {"type": "integer"}
            }
        },
        "domain.Stats": {
            "type": "object",
            "properties": {
                "total_docs": {"type": "integer"},
                "total_chunks": {"type": "integer"},
                "by_extension": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "domain.IndexedDocument": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "path": {"type": "string"},
                "title": {"type": "string"},
                "ext": {"type": "string"},
                "chunk_count": {"type": "integer"},
                "indexed_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Sercha RAG API",
	Description:      "Session-scoped document retrieval. Upload files into a session, then search them semantically.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
