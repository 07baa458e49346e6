package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cobra"

	"github.com/ngajidev/keygate/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		serverURL  string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi [auth|data]",
		Short: "Generate OpenAPI specification",
		Long:  "Print the OpenAPI 3.1 document of the auth service (default) or the data service.",
		Example: `  keygate openapi
  keygate openapi data --server-url https://data.example.com
  keygate openapi auth -o auth.json`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"auth", "data"},
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "auth"
			if len(args) > 0 {
				which = args[0]
			}

			var doc *openapi3.T
			switch which {
			case "auth":
				doc = openapi.GenerateAuthSpec(serverURL)
			case "data":
				doc = openapi.GenerateDataSpec(serverURL)
			default:
				return fmt.Errorf("unknown service %q (want auth or data)", which)
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encode openapi document: %w", err)
			}
			data = append(data, '\n')

			if outputFile == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outputFile, data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8080", "Server URL recorded in the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the document to a file instead of stdout")

	return cmd
}
