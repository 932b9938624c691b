// Package validation checks the commands, arguments and paths handed to
// external compilers before anything is executed.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateArgument validates a command line argument to prevent injection attacks
func ValidateArgument(arg string) error {
	dangerous := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
	for _, char := range dangerous {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	if filepath.IsAbs(arg) {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}

	return nil
}

// ValidateOperand checks an argument handed to exec without a shell, where
// quotes, parentheses and spaces are ordinary characters. Only control
// characters and paths leaving the project root are refused.
func ValidateOperand(arg string) error {
	if strings.ContainsAny(arg, "\x00\n\r") {
		return fmt.Errorf("contains control character: %q", arg)
	}

	if filepath.IsAbs(arg) {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}

	clean := filepath.ToSlash(filepath.Clean(arg))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	return nil
}

// ValidateCommand validates a command name against an allowlist
func ValidateCommand(command string, allowedCommands map[string]bool) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	if !allowedCommands[command] {
		return fmt.Errorf("command '%s' is not allowed", command)
	}

	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command '%s': %w", command, err)
	}

	return nil
}

// ValidatePath validates a project-relative path. Paths must stay inside the
// project root: no absolute paths, no parent traversal.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative to the project root: %s", path)
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
