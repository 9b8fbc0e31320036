package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeRequest decodes a JSON body into dst and validates it. It writes the
// error response itself and reports whether the handler should continue.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			field, message := validationMessage(verrs)
			s.errorHandler.HandleValidationError(w, r, field, message)
			return false
		}
		s.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// validationMessage joins the failures into one message and returns the first
// failing field.
func validationMessage(errs validator.ValidationErrors) (string, string) {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		field := fieldPath(err)
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", field, err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", field, err.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of [%s]", field, err.Param()))
		case "gtefield":
			msgs = append(msgs, fmt.Sprintf("field %s must not be less than %s", field, err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", field))
		}
	}
	return fieldPath(errs[0]), strings.Join(msgs, ", ")
}

// fieldPath drops the top-level struct name: "ScanRequest.seeds.server"
// becomes "seeds.server".
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
