package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
)

// Validator holds the singleton instance of the validator.
var defaultValidator *validator.Validate

func init() {
	defaultValidator = validator.New()
	RegisterDomainValidations(defaultValidator)
}

// RegisterDomainValidations adds the covenant-specific tags to v.
func RegisterDomainValidations(v *validator.Validate) {
	_ = v.RegisterValidation("uuid", validateUUID)
	_ = v.RegisterValidation("covenant_operator", func(fl validator.FieldLevel) bool {
		return constants.Operator(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("covenant_type", func(fl validator.FieldLevel) bool {
		switch constants.CovenantType(fl.Field().String()) {
		case constants.CovenantTypeFinancial, constants.CovenantTypeOperational, constants.CovenantTypeReporting,
			constants.CovenantTypeNegative, constants.CovenantTypeAffirmative:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("esg_category", func(fl validator.FieldLevel) bool {
		switch constants.ESGCategory(fl.Field().String()) {
		case constants.ESGCategoryEnvironmental, constants.ESGCategorySocial, constants.ESGCategoryGovernance:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("loan_status", func(fl validator.FieldLevel) bool {
		return constants.LoanStatus(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("esg_status", func(fl validator.FieldLevel) bool {
		return constants.ESGStatus(fl.Field().String()).IsValid()
	})
}

// ValidateStruct validates a struct using the default validator.
// It returns an invalid_request AppError listing every failing field.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ErrInvalidRequest(err.Error())
	}

	msgs := make([]string, 0, len(validationErrors))
	details := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		field := toSnakeCase(fe.Field())
		details[field] = formatValidationError(fe)
		msgs = append(msgs, field+" "+details[field])
	}
	return errors.ErrInvalidRequest("request validation failed: "+strings.Join(msgs, "; ")).
		WithMetadata("fields", details)
}

// validateUUID is a custom validation function for UUIDs.
func validateUUID(fl validator.FieldLevel) bool {
	_, err := uuid.Parse(fl.Field().String())
	return err == nil
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "covenant_operator":
		return "must be one of: > < >= <= =="
	case "covenant_type":
		return "must be one of: financial operational reporting negative affirmative"
	case "esg_category":
		return "must be one of: environmental social governance"
	case "loan_status":
		return "must be one of: active closed defaulted"
	case "esg_status":
		return "must be one of: compliant at_risk non_compliant pending_review"
	case "gtfield":
		return fmt.Sprintf("must be after %s", toSnakeCase(fe.Param()))
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// toSnakeCase converts a string from CamelCase to snake_case.
// This is used to format field names in the validation error response.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
