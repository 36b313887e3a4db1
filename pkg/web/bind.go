package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// BindErrorMsg turns a gin binding error into a message for the client.
func BindErrorMsg(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		field := ve[0]
		return field.Field() + GetErrorMsg(field)
	}

	return "malformed request body"
}
