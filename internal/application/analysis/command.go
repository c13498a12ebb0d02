package analysis

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/presets"
)

const (
	MinArchitectureLen = 50
	MaxArchitectureLen = 5000
)

// Command untuk start analysis
type StartRunCommand struct {
	TenantID     string `validate:"required,max=64"`
	Architecture string `validate:"required,archlen"`
	Preset       string
	WithDiagram  bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("archlen", func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(fl.Field().String())
		return n >= MinArchitectureLen && n <= MaxArchitectureLen
	})
	return v
}

// Normalize fills the architecture from the preset when empty and
// validates the command. Errors are classified.
func (c *StartRunCommand) Normalize() error {
	c.Architecture = strings.TrimSpace(c.Architecture)
	if c.Preset != "" && c.Architecture == "" {
		p, ok := presets.Find(c.Preset)
		if !ok {
			return failure.Validation("unknown preset: " + c.Preset)
		}
		c.Architecture = p.Description
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return failure.InvalidInput("request", err)
	}
	return nil
}

func describe(fe validator.FieldError) *failure.Error {
	switch fe.Field() {
	case "Architecture":
		n := utf8.RuneCountInString(fe.Value().(string))
		if fe.Tag() == "required" || n < MinArchitectureLen {
			return failure.InvalidInput("architecture description",
				errors.New("Architecture description must be at least 50 characters."))
		}
		return failure.InvalidInput("architecture description",
			errors.New("Description must not be longer than 5000 characters."))
	case "TenantID":
		return failure.Validation("invalid tenant ID")
	}
	return failure.InvalidInput(fe.Field(), fe)
}
