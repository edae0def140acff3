package api

import "time"

// ApiResponseMeta contains metadata about the API response
type ApiResponseMeta struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Count     int        `json:"count,omitempty"`
}

// ApiError represents an error in the API response
type ApiError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

// ApiResponse is the standard API response structure
type ApiResponse struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   *ApiError        `json:"error,omitempty"`
	Meta    *ApiResponseMeta `json:"meta,omitempty"`
}
