package core

import (
	"reflect"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^\w+$`)

	e164Tag   = "e164"
	e164Text  = "must be a valid phone number in E.164 format"
	e164Regex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

	hhmmTag   = "hhmm"
	hhmmText  = "must be a time in HH:MM format"
	hhmmRegex = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

	timezoneTag  = "timezone"
	timezoneText = "must be a valid IANA timezone"

	senderIDTag   = "senderid"
	senderIDText  = "must be alphanumeric and not exceed 11 characters"
	senderIDRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,11}$`)

	varKeyTag   = "varkey"
	varKeyText  = "must start with a letter and contain only letters, digits and underscores"
	varKeyRegex = regexp.MustCompile(`^[A-Za-z]\w*$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewValidator returns a validator with the core validators registered, along with its English translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	for tag, v := range map[string]struct {
		fn   validator.Func
		text string
	}{
		alphaNumUnderTag: {alphaNumUnderValidation, alphaNumUnderText},
		e164Tag:          {regexValidation(e164Regex), e164Text},
		hhmmTag:          {regexValidation(hhmmRegex), hhmmText},
		timezoneTag:      {timezoneValidation, timezoneText},
		senderIDTag:      {regexValidation(senderIDRegex), senderIDText},
		varKeyTag:        {regexValidation(varKeyRegex), varKeyText},
	} {
		_ = validate.RegisterValidation(tag, v.fn)
		RegisterCustomTranslation(validate, translator, tag, v.text, true)
	}

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func timezoneValidation(fl validator.FieldLevel) bool {
	return IsValidTimezone(fl.Field().String())
}

// IsValidTimezone reports whether tz is a loadable IANA timezone name.
func IsValidTimezone(tz string) bool {
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// IsValidPhoneNumber reports whether phone is in E.164 format.
func IsValidPhoneNumber(phone string) bool {
	return e164Regex.MatchString(phone)
}

// IsValidHHMM reports whether s is a 24h "HH:MM" time.
func IsValidHHMM(s string) bool {
	return hhmmRegex.MatchString(s)
}
