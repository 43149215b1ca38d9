// Package models defines API payload and response types for FormFlow.
package models

import "errors"

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Recorded creates a recorded API response.
func Recorded() APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		Build()
}

// RecordedWithMessage creates a recorded API response with a message.
func RecordedWithMessage(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithMessage(message).
		Build()
}

// Request payload validation errors.
var (
	ErrMissingAppID     = errors.New("app_id is required")
	ErrMissingFieldName = errors.New("name is required")
)

// CreateSessionRequest represents the payload for starting a new session.
type CreateSessionRequest struct {
	AppID  string `json:"app_id"`
	UserID string `json:"user_id,omitempty"`
}

// Validate validates a CreateSessionRequest.
func (r *CreateSessionRequest) Validate() error {
	if r.AppID == "" {
		return ErrMissingAppID
	}
	return nil
}

// AnswerUpdateRequest represents the payload for recording a field answer.
type AnswerUpdateRequest struct {
	Name  string      `json:"name"`
	Value AnswerValue `json:"value"`
	Other string      `json:"otherValue,omitempty"`
}

// Validate validates an AnswerUpdateRequest.
func (r *AnswerUpdateRequest) Validate() error {
	if r.Name == "" {
		return ErrMissingFieldName
	}
	return nil
}

// ResetRequest represents the payload for resetting a session. A soft reset
// keeps the app binding and re-enters the first phase with cleared progress.
type ResetRequest struct {
	Soft bool `json:"soft,omitempty"`
}

// SatisfactionRequest represents the payload for recording run feedback.
type SatisfactionRequest struct {
	Satisfaction int `json:"satisfaction"`
}

// Validate validates a SatisfactionRequest.
func (r *SatisfactionRequest) Validate() error {
	return ValidateSatisfaction(r.Satisfaction)
}
