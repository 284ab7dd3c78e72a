package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"codeblocks/pkg/client"
	"codeblocks/pkg/verify"
)

var errIncorrect = errors.New("solution does not match")

func newCheckCmd(flags *clientFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "check <exercise-id>",
		Short: "Compare a local file with an exercise's solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			store := client.NewExerciseStore(client.NewAPI(flags.server, "", nil))
			def, err := store.FetchDefinition(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if verify.VerdictOf(verify.Verify(string(content), def.Solution)) == verify.Correct {
				pterm.Success.Printfln("%s: correct", def.Title)
				return nil
			}
			pterm.Error.Printfln("%s: incorrect", def.Title)
			return errIncorrect
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the attempt")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
