package main

import (
	"bytes"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/fitlink/internal/testutils"
)

// CommandTestSuite provides command execution helpers.
// All cmd/fitlink test suites should embed this.
type CommandTestSuite struct {
	testutils.LoggerSuite
}

// SetupTest restores every flag to its default so commands do not leak
// state between tests.
func (s *CommandTestSuite) SetupTest() {
	s.LoggerSuite.SetupTest()
	resetFlags(rootCmd)
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// AssertText compares output against golden text with a unified diff.
func (s *CommandTestSuite) AssertText(actual, expected string) {
	testutils.NewTextAsserter(s.T()).Assert(actual, expected)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
