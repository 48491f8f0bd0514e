package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowgraph/graphengine/structure"
	"github.com/flowgraph/graphengine/validate"
)

// Exit codes for offline graph checking.
const (
	exitSuccess      = 0
	exitValidation   = 1
	exitFileNotFound = 3
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph.json>",
		Short: "Validate a graph file's schema, cycle, and connectivity without executing it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	out := cmd.OutOrStdout()

	g, err := loadGraphFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return exitError(exitValidation, "%v", err)
	}

	if err := validate.ValidateGraph(g); err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return exitError(exitValidation, "validation failed")
	}

	if structure.HasCycle(g) {
		fmt.Fprintln(out, "INVALID: graph contains a cycle")
		return exitError(exitValidation, "validation failed")
	}

	if !structure.IsConnected(g) {
		fmt.Fprintln(out, "INVALID: graph is not weakly connected")
		return exitError(exitValidation, "validation failed")
	}

	fmt.Fprintln(out, "Valid!")
	return nil
}
