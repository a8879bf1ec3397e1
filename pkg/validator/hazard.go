package validator

import (
	"github.com/go-playground/validator/v10"

	"github.com/kirsrus/safetywatch/model"
)

// Accepts the hazard types a worker can report
func validatorHazard(fl validator.FieldLevel) bool {
	hazard, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return model.HazardType(hazard).IsValid()
}
