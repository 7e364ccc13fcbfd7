// Command gqlws serves GraphQL over HTTP and graphql-ws WebSockets.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gqlws",
		Short:         "GraphQL over HTTP and graphql-ws",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSDLCommand())
	return cmd
}

func newSDLCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "sdl",
		Short: "Print the demo schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return writeSDL(cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := writeSDL(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the schema to a file instead of stdout")
	return cmd
}

func writeSDL(w io.Writer) error {
	_, err := fmt.Fprint(w, demoSDL)
	return err
}
