package whodoc

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/twahidin/project-lumos/core"
)

var (
	statusTag  = "docstatus"
	statusText = "{0} must be one of pending, in_progress or completed"
)

// InitValidators registers the custom validators of the whodoc package.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}
