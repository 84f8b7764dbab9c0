package asaas

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var (
	// ErrDuplicateTaxID tags a customer create rejected because the CPF/CNPJ
	// is already registered on the account.
	ErrDuplicateTaxID = errors.New("asaas: duplicate tax id")
	// ErrNotFound tags 404 responses.
	ErrNotFound = errors.New("asaas: resource not found")
	// ErrInvalidCustomer tags a charge rejected because its customer was
	// removed or never existed on the account.
	ErrInvalidCustomer = errors.New("asaas: invalid customer")
)

var invalidCustomerCodes = map[string]struct{}{
	"invalid_customer":   {},
	"customer_not_found": {},
	"customer_deleted":   {},
}

var duplicateTaxIDCodes = map[string]struct{}{
	"duplicated_cpfcnpj":         {},
	"cpfcnpj_already_in_use":     {},
	"customer_already_exists":    {},
	"invalid_cpfcnpj_duplicated": {},
}

// ErrorItem is one machine readable entry of an Asaas error response.
type ErrorItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// APIError is returned for every non-2xx provider response.
type APIError struct {
	StatusCode int
	Operation  string
	Errors     []ErrorItem
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Errors) == 0 {
		return fmt.Sprintf("asaas %s: status %d", e.Operation, e.StatusCode)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", item.Code, item.Description))
	}
	return fmt.Sprintf("asaas %s: status %d: %s", e.Operation, e.StatusCode, strings.Join(parts, "; "))
}

// Is lets callers match tags with errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrDuplicateTaxID:
		return e.StatusCode == http.StatusConflict || e.hasCode(duplicateTaxIDCodes)
	case ErrInvalidCustomer:
		return e.hasCode(invalidCustomerCodes)
	}
	return false
}

func (e *APIError) hasCode(codes map[string]struct{}) bool {
	for _, item := range e.Errors {
		if _, ok := codes[strings.ToLower(item.Code)]; ok {
			return true
		}
	}
	return false
}

// IsStaleCustomer reports whether the provider no longer accepts the customer
// a request referenced.
func IsStaleCustomer(err error) bool {
	return errors.Is(err, ErrInvalidCustomer) || errors.Is(err, ErrNotFound)
}

// Codes returns the machine readable codes carried by the response.
func (e *APIError) Codes() []string {
	if e == nil {
		return nil
	}
	codes := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		codes = append(codes, item.Code)
	}
	return codes
}

// ToDomainError maps a provider failure into the service error taxonomy,
// keeping provider detail for the client. Transport failures already carry
// DEPENDENCY_ERROR and pass through.
func ToDomainError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code := pkgerrors.CodePaymentProvider
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests {
			code = pkgerrors.CodeDependency
		}
		return pkgerrors.Wrap(code, err, message).WithDetails(map[string]any{
			"provider_status": apiErr.StatusCode,
			"provider_errors": apiErr.Errors,
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
