package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the stage and reason an authorization attempt was rejected.
type Kind int

const (
	// Unknown is returned by KindOf for errors that are not authorization
	// failures.
	Unknown Kind = iota

	MissingHeader
	MalformedScheme
	MissingToken
	MalformedHeader

	KeySourceUnavailable
	KeyNotFound

	Expired
	ClaimsMismatch
	MalformedToken

	PermissionsClaimMissing
	AccessDenied
)

type definition struct {
	name    string
	status  int
	message string
}

var definitions = map[Kind]definition{
	MissingHeader:   {"missing_header", http.StatusUnauthorized, "Authorization header is expected"},
	MalformedScheme: {"malformed_scheme", http.StatusUnauthorized, "Authorization header must start with 'Bearer'"},
	MissingToken:    {"missing_token", http.StatusUnauthorized, "Token not found"},
	MalformedHeader: {"malformed_header", http.StatusUnauthorized, "Authorization header must be Bearer token"},

	// An unreachable key source is a fault on our side of the connection, not
	// the client's: report it as such so callers know a retry may succeed.
	KeySourceUnavailable: {"key_source_unavailable", http.StatusServiceUnavailable, "Unable to retrieve signing keys."},
	KeyNotFound:          {"key_not_found", http.StatusBadRequest, "Unable to find the appropriate key."},

	Expired:        {"expired", http.StatusUnauthorized, "Token expired."},
	ClaimsMismatch: {"claims_mismatch", http.StatusUnauthorized, "Incorrect claims. Please, check the audience and issuer."},
	MalformedToken: {"malformed_token", http.StatusBadRequest, "Unable to parse authentication token."},

	PermissionsClaimMissing: {"permissions_claim_missing", http.StatusBadRequest, "No permissions found"},
	AccessDenied:            {"access_denied", http.StatusForbidden, "Access denied"},
}

func (k Kind) String() string {
	if d, ok := definitions[k]; ok {
		return d.name
	}
	return "unknown"
}

// Status is the HTTP status code reported to the client for this kind.
func (k Kind) Status() int {
	if d, ok := definitions[k]; ok {
		return d.status
	}
	return http.StatusInternalServerError
}

// Failure is the result of a rejected authorization. It is constructed at the
// point of rejection and passed unchanged to the HTTP boundary, which renders
// the Status and Message verbatim.
type Failure struct {
	Kind    Kind
	Message string
	Status  int

	// cause is kept for logging only, it is never shown to the client.
	cause error
}

// New creates a Failure of the given kind with its standard message and status.
func New(kind Kind) Failure {
	d, ok := definitions[kind]
	if !ok {
		return Failure{Kind: kind, Message: http.StatusText(http.StatusInternalServerError), Status: http.StatusInternalServerError}
	}

	return Failure{Kind: kind, Message: d.message, Status: d.status}
}

// Wrap creates a Failure of the given kind that retains cause for diagnostics.
func Wrap(kind Kind, cause error) Failure {
	f := New(kind)
	f.cause = cause
	return f
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(kind Kind, format string, args ...any) Failure {
	return Wrap(kind, fmt.Errorf(format, args...))
}

func (f Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f Failure) Unwrap() error {
	return f.cause
}

// Is reports a match against another Failure of the same kind, allowing
// errors.Is(err, failure.New(failure.Expired)).
func (f Failure) Is(target error) bool {
	t, ok := target.(Failure)
	return ok && t.Kind == f.Kind
}

// As extracts the Failure from err, if there is one in the chain.
func As(err error) (Failure, bool) {
	var f Failure
	if errors.As(err, &f) {
		return f, true
	}
	return Failure{}, false
}

// KindOf returns the kind of the first Failure in the chain of err, or Unknown.
func KindOf(err error) Kind {
	if f, ok := As(err); ok {
		return f.Kind
	}
	return Unknown
}
