// Package v1 implements the versioned HTTP handlers.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/severstroy/matcat/domain/fault"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON parses and validates a request body. Validation failures
// come back as field-level faults so the error boundary can surface
// them.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fault.New(fault.Validation, "request body is required")
		}
		return fault.Wrap(fault.Validation, "malformed JSON body", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fieldPath(fe)] = ruleMessage(fe)
			}
			return fault.NewValidation("validation failed", fields)
		}
		return fault.Wrap(fault.Validation, "validation failed", err)
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	// Trim the root struct name: "SearchRequest.Filters.Units" ->
	// "filters.units".
	path := fe.Namespace()
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		path = path[idx+1:]
	}
	return strings.ToLower(path)
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min", "gte":
		return "below minimum " + fe.Param()
	case "max", "lte":
		return "above maximum " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "invalid (" + fe.Tag() + ")"
	}
}
