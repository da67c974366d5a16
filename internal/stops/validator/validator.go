package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"checkpost/pkg/logger"
	"checkpost/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details flattens the errors into a field -> message map for API responses.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

var (
	plateRegex      = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} \-]*$`)
	reportNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
)

type StopValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewStopValidator(log *logger.Logger) *StopValidator {
	v := validator.New()

	if err := v.RegisterValidation("plate", validatePlate); err != nil {
		log.Fatal("Failed to register 'plate' validator", "error", err)
	}
	if err := v.RegisterValidation("report_name", validateReportName); err != nil {
		log.Fatal("Failed to register 'report_name' validator", "error", err)
	}

	log.Debug("Stop validator initialized")

	return &StopValidator{
		validate: v,
		logger:   log,
	}
}

func validatePlate(fl validator.FieldLevel) bool {
	plate := strings.TrimSpace(fl.Field().String())
	return plate == "" || plateRegex.MatchString(plate)
}

func validateReportName(fl validator.FieldLevel) bool {
	return reportNameRegex.MatchString(fl.Field().String())
}

func (v *StopValidator) ValidateFilter(f *model.StopFilter) error {
	return v.check(f)
}

type reportRequest struct {
	Name  string `validate:"required,max=64,report_name"`
	Limit int    `validate:"min=0,max=10000"`
}

func (v *StopValidator) ValidateReportRequest(name string, limit int) error {
	return v.check(&reportRequest{Name: name, Limit: limit})
}

func (v *StopValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *StopValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		field := toSnake(err.Field())
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		case "gtefield":
			message = fmt.Sprintf("%s must not be before %s", field, toSnake(err.Param()))
		case "plate":
			message = fmt.Sprintf("%s must contain only letters, digits, spaces and hyphens", field)
		case "report_name":
			message = fmt.Sprintf("%s must contain only lower-case letters, digits and underscores", field)
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return validationErrors
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
