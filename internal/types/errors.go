package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidSchedule  ErrorCode = "validation_invalid_schedule"
	ErrCodeValidationInvalidTimeOfDay ErrorCode = "validation_invalid_time_of_day"
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail     ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidJSON      ErrorCode = "validation_invalid_json"
	ErrCodeValidationNameLength       ErrorCode = "validation_name_too_long"

	// Webhook auth (401)
	ErrCodeWebhookSignatureMissing ErrorCode = "webhook_signature_missing"
	ErrCodeWebhookSignatureInvalid ErrorCode = "webhook_signature_invalid"

	// Operator auth (401)
	ErrCodeAuthInvalidToken ErrorCode = "auth_invalid_token"

	// Quota (403). One code per counted resource kind so UI actions can
	// explain exactly which ceiling was hit.
	ErrCodeLimitSites       ErrorCode = "limit_sites_exceeded"
	ErrCodeLimitAssets      ErrorCode = "limit_assets_exceeded"
	ErrCodeLimitDepartments ErrorCode = "limit_departments_exceeded"
	ErrCodeLimitUsers       ErrorCode = "limit_users_exceeded"
	ErrCodeLimitPreventives ErrorCode = "limit_preventives_exceeded"

	// Entitlement preconditions (403)
	ErrCodeEntitlementInactive ErrorCode = "entitlement_inactive"
	ErrCodeFeatureNotInPlan    ErrorCode = "entitlement_feature_not_in_plan"

	// Not Found (404)
	ErrCodeNotFoundOrg        ErrorCode = "not_found_organization"
	ErrCodeNotFoundTemplate   ErrorCode = "not_found_template"
	ErrCodeNotFoundSite       ErrorCode = "not_found_site"
	ErrCodeNotFoundDepartment ErrorCode = "not_found_department"
	ErrCodeNotFoundAsset      ErrorCode = "not_found_asset"
	ErrCodeNotFoundTicket     ErrorCode = "not_found_ticket"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"
	ErrCodeConflictDuplicate  ErrorCode = "conflict_duplicate"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamQueue      ErrorCode = "upstream_queue_unavailable"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "webhook_"), strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "limit_"), strings.HasPrefix(s, "entitlement_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the engine.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// quotaCodes maps each counted resource kind to its quota error code.
var quotaCodes = map[ResourceKind]ErrorCode{
	ResourceSites:       ErrCodeLimitSites,
	ResourceAssets:      ErrCodeLimitAssets,
	ResourceDepartments: ErrCodeLimitDepartments,
	ResourceUsers:       ErrCodeLimitUsers,
	ResourcePreventives: ErrCodeLimitPreventives,
}

// quotaMessages carries the kind-specific, human-readable denial reasons.
// These gate UI actions, so a generic "quota exceeded" is never acceptable.
var quotaMessages = map[ResourceKind]string{
	ResourceSites:       "your plan's site limit has been reached; upgrade to add more sites",
	ResourceAssets:      "your plan's asset limit has been reached; upgrade to add more assets",
	ResourceDepartments: "your plan's department limit has been reached; upgrade to add more departments",
	ResourceUsers:       "your plan's user limit has been reached; upgrade to invite more users",
	ResourcePreventives: "your plan's active preventive maintenance limit has been reached; upgrade to add more",
}

// NewQuotaExceeded builds the typed quota failure for a resource kind,
// carrying the limit and current usage in the error details.
func NewQuotaExceeded(kind ResourceKind, used, limit int) *AppError {
	code, ok := quotaCodes[kind]
	if !ok {
		code = ErrCodeInternalUnexpected
	}
	msg, ok := quotaMessages[kind]
	if !ok {
		msg = fmt.Sprintf("limit reached for %s", kind)
	}
	return &AppError{
		Code:    code,
		Message: msg,
		Details: map[string]any{
			"kind":  string(kind),
			"used":  used,
			"limit": limit,
		},
	}
}

// IsQuotaExceeded reports whether the error chain contains a quota denial
// for the given kind.
func IsQuotaExceeded(err error, kind ResourceKind) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == quotaCodes[kind]
}
