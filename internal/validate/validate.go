package validate

import "github.com/go-playground/validator/v10"

var v = validator.New()

// Struct validates a tagged struct and returns field -> reason codes, or nil
// when everything passes.
func Struct(i any) map[string]string {
	if err := v.Struct(i); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			out := make(map[string]string, len(errs))
			for _, e := range errs {
				out[e.Field()] = mapTagToCode(e.Tag())
			}
			return out
		}
		return map[string]string{"_error": "validation_failed"}
	}
	return nil
}

func mapTagToCode(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "min":
		return "too_short"
	case "max":
		return "too_long"
	default:
		return tag
	}
}
