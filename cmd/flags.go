package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/websites-starter/wsbuild/internal/validation"
)

// addFlagValidation makes flagName reject values that fail validator at
// parse time, before any command runs.
func addFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// validatePort accepts 1-65535.
func validatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}

// validateSyncTarget accepts an http(s) URL with a host.
func validateSyncTarget(target string) error {
	if err := validation.ValidateURL(target); err != nil {
		return fmt.Errorf("invalid --sync target: %w", err)
	}
	return nil
}
