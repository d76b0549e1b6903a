package application

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/example/eventflow/internal/access"
)

// custom validation tags
const (
	notBlankTag    = "notblank"
	roleTag        = "role"
	permissionTag  = "permission"
	venueTag       = "venue_or_link"
	endsAfterTag   = "ends_after_start"
	paymentTag     = "payment_status"
	fieldChoiceTag = "field_options"
)

type inputValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var inputs = newInputValidator()

func newInputValidator() *inputValidator {
	v := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	// Field errors are keyed by JSON names so clients can map them back to inputs.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, notBlankValidation)
	_ = v.RegisterValidation(roleTag, roleValidation)
	_ = v.RegisterValidation(permissionTag, permissionValidation)
	_ = v.RegisterValidation(paymentTag, paymentStatusValidation)
	v.RegisterStructValidation(eventInputStructValidation, EventInput{})
	v.RegisterStructValidation(customFieldStructValidation, CustomFieldInput{})

	iv := &inputValidator{validate: v, translator: translator}
	iv.registerCustomTranslations(notBlankTag, roleTag, permissionTag, venueTag, endsAfterTag, paymentTag, fieldChoiceTag)
	return iv
}

// registerCustomTranslations registers messages for the custom tags. The
// register func is a noop because the default English translations are
// already installed.
func (iv *inputValidator) registerCustomTranslations(tags ...string) {
	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range tags {
		_ = iv.validate.RegisterTranslation(tag, iv.translator, registerFn, translateCustomValidationErrs)
	}
}

func translateCustomValidationErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "this field cannot be blank"
	case roleTag:
		return "must be one of admin, manager, usher or attendee"
	case permissionTag:
		return "unknown permission"
	case venueTag:
		if fe.Field() == "meeting_link" {
			return "a meeting link is required for online events"
		}
		return "a venue is required for in-person events"
	case endsAfterTag:
		return "must be after the start time"
	case paymentTag:
		return "must be one of paid, pending, failed or refunded"
	case fieldChoiceTag:
		return "select fields need at least one option"
	default:
		return ""
	}
}

// Struct validates s and returns a *ValidationError keyed by JSON field path,
// or nil when s is valid.
func (iv *inputValidator) Struct(s any) *ValidationError {
	err := iv.validate.Struct(s)
	if err == nil {
		return nil
	}

	vErr := &ValidationError{}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("_", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe), fe.Translate(iv.translator))
	}
	return vErr
}

// fieldPath drops the root struct name from the namespace, so
// "EventInput.custom_fields[0].label" becomes "custom_fields[0].label".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

// Custom Validators

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func roleValidation(fl validator.FieldLevel) bool {
	str, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := access.ParseRole(str)
	return err == nil
}

func permissionValidation(fl validator.FieldLevel) bool {
	str, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, known := access.ParsePermission(str)
	return known
}

func paymentStatusValidation(fl validator.FieldLevel) bool {
	str, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := ParsePaymentStatus(str)
	return err == nil
}

// eventInputStructValidation checks the rules that span several fields.
func eventInputStructValidation(sl validator.StructLevel) {
	in, ok := sl.Current().Interface().(EventInput)
	if !ok {
		return
	}
	if in.IsOnline {
		if strings.TrimSpace(in.MeetingLink) == "" {
			sl.ReportError(in.MeetingLink, "meeting_link", "MeetingLink", venueTag, "")
		}
	} else if strings.TrimSpace(in.Venue) == "" {
		sl.ReportError(in.Venue, "venue", "Venue", venueTag, "")
	}
	if !in.StartAt.IsZero() && !in.EndAt.IsZero() && !in.EndAt.After(in.StartAt) {
		sl.ReportError(in.EndAt, "end_at", "EndAt", endsAfterTag, "")
	}
}

func customFieldStructValidation(sl validator.StructLevel) {
	f, ok := sl.Current().Interface().(CustomFieldInput)
	if !ok {
		return
	}
	if f.Type == FieldTypeSelect && len(f.Options) == 0 {
		sl.ReportError(f.Options, "options", "Options", fieldChoiceTag, "")
	}
}

// validateExpiry rejects expiry times that are not in the future.
func validateExpiry(vErr *ValidationError, expiresAt *time.Time, now time.Time) {
	if expiresAt != nil && !expiresAt.After(now) {
		vErr.add("expires_at", "must be in the future")
	}
}
