// Package errors provides structured error handling for the session and
// impersonation core.
//
// Every expected failure in the core is a *Error carrying a stable
// machine-readable ErrorCode plus a human message. The HTTP layer maps
// codes to status codes with MapErrorCodeToHTTPStatus; service code
// inspects failures with IsCode/GetCode instead of string matching.
//
// Creating errors:
//
//	err := errors.New(errors.ErrCodeAdminRequired, "admin privileges required")
//	err := errors.NotFound("session", sessionID)
//	err := errors.InternalWrap(dbErr, "failed to load session")
//
// Checking errors:
//
//	if errors.IsCode(err, errors.ErrCodeSessionRevoked) {
//		// session was revoked before token expiry
//	}
//
// Standard errors.Is / errors.As keep working through Unwrap.
package errors
