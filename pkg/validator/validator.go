package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/leebenson/conform"
)

var (
	valid Validator
	once  sync.Once
)

// Validator struct validator. Built with NewValidator
type Validator struct {
	validator *validator.Validate
}

// NewValidator constructor of Validator
func NewValidator() *Validator {
	v := Validator{
		validator: validator.New(),
	}

	// Custom validators
	if err := v.validator.RegisterValidation("websocket", validatorWebsocket); err != nil {
		panic(err)
	}
	if err := v.validator.RegisterValidation("hazard", validatorHazard); err != nil {
		panic(err)
	}

	return &v
}

// Validate trims strings and validates the struct. Failures are NotValid errors
func (m *Validator) Validate(i interface{}) error {
	if err := conform.Strings(i); err != nil {
		return errors.Trace(err)
	}
	if err := m.validator.Struct(i); err != nil {
		return errors.NewNotValid(err, "")
	}
	return nil
}

// Get builds the validator once and returns it
func Get() *Validator {
	once.Do(func() {
		valid = *NewValidator()
	})
	return &valid
}
