package user

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/twahidin/project-lumos/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	loginKeyTag  = "loginkey"
	loginKeyText = "one of email or userid is required"
)

// InitValidators registers the custom validators of the user package.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	core.RegisterCustomTranslation(validate, translator, loginKeyTag, loginKeyText)
}

// roleValidation checks that the field is one of AllRoles.
func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

// newUserStructValidation checks that one of Email or UserID is provided.
func newUserStructValidation(sl validator.StructLevel) {
	if nu, ok := sl.Current().Interface().(NewUser); ok {
		if nu.Email == "" && nu.UserID == "" {
			sl.ReportError(nu.Email, "email", "Email", loginKeyTag, "")
			sl.ReportError(nu.UserID, "userid", "UserID", loginKeyTag, "")
		}
	}
}
