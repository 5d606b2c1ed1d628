// Package models defines the wire types exchanged with the monitoring backend
// and the validated record types the rest of the codebase operates on.
package models

import "encoding/json"

// QueryRequest is the body for POST /api/query against the backend.
type QueryRequest struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// PaginationMetadata carries cursor information for paged query results.
type PaginationMetadata struct {
	NextCursor string `json:"next_cursor,omitempty"`
	PrevCursor string `json:"prev_cursor,omitempty"`
	Limit      int    `json:"limit"`
}

// QueryResponse is the backend's answer to a query. Results are kept raw at
// this layer; DecodeRecords validates them into typed records.
type QueryResponse struct {
	Results    []json.RawMessage  `json:"results"`
	Pagination PaginationMetadata `json:"pagination"`
	Error      string             `json:"error,omitempty"`
}

