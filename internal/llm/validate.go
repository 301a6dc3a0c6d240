package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so details read like the payload the caller sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// parseObject checks that body is a JSON object and that every key in
// required is present. Key matching is case-sensitive.
func parseObject(body []byte, required ...string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, invalidRequest("request body is empty", nil)
	}

	obj := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !obj.IsObject() {
		return gjson.Result{}, invalidRequest("body is not a valid chat request JSON object", nil)
	}

	for _, key := range required {
		if !obj.Get(key).Exists() {
			return gjson.Result{}, invalidRequest(key+" is required", nil)
		}
	}
	return obj, nil
}

// decodeRequest parses body into a ChatRequest with string contents and at
// least one message carrying a role.
func decodeRequest(body []byte) (*ChatRequest, error) {
	if _, err := parseObject(body, "messages"); err != nil {
		return nil, err
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalidRequest("body is not a valid chat request JSON object", err)
	}

	if err := validate.Struct(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, invalidRequest(describeFieldError(fieldErrs[0]), err)
		}
		return nil, invalidRequest(err.Error(), err)
	}

	return &req, nil
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "ChatRequest.messages[0].role"; drop the type name.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must not be empty"
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
