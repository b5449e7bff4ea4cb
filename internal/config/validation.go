package config

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("octalmode", validateOctalMode)
	_ = validate.RegisterValidation("mountoption", validateMountOption)
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}
	return nil
}

// validateCustomRules performs checks that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if path.Clean(cfg.SharesRoot) == "/" {
		return fmt.Errorf("shares_root: must not be the filesystem root")
	}
	if cfg.SSH.User != "" && strings.ContainsAny(cfg.SSH.User, "@: ") {
		return fmt.Errorf("ssh.user: %q is not a valid user name", cfg.SSH.User)
	}
	for i, opt := range append(append([]string{}, cfg.CIFS.Options...), cfg.SSH.Options...) {
		if key, _, _ := strings.Cut(opt, "="); key == "password" {
			return fmt.Errorf("options[%d]: inline passwords are not allowed, use cifs.credentials_file", i)
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}

// validateOctalMode accepts permission modes such as 0644 or 755.
func validateOctalMode(fl validator.FieldLevel) bool {
	v, err := strconv.ParseUint(fl.Field().String(), 8, 32)
	return err == nil && v <= 0o7777
}

// validateMountOption rejects values that would break the options field.
func validateMountOption(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && !strings.ContainsAny(s, ", \t\n")
}
