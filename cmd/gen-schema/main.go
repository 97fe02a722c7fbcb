// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the chat client frame JSON Schema and, with
// --check, fails when the committed copy has drifted from the Go types.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/todochat/internal/protocol"
)

const defaultOutPath = "schemas/client-frame.schema.json"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		outPath string
		check   bool
	)
	cmd := &cobra.Command{
		Use:           "gen-schema",
		Short:         "Generate the chat client frame JSON Schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := renderSchema()
			if err != nil {
				return err
			}
			if check {
				if err := checkSchema(outPath, schema); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date\n", outPath)
				return nil
			}
			if err := writeSchema(outPath, schema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", defaultOutPath, "schema output path")
	cmd.Flags().BoolVar(&check, "check", false, "verify the file matches instead of writing it")
	return cmd
}

// renderSchema returns the schema exactly as `todochat schema` prints it.
func renderSchema() ([]byte, error) {
	schema, err := protocol.GenerateSchema()
	if err != nil {
		return nil, err
	}
	return append(schema, '\n'), nil
}

func writeSchema(outPath string, schema []byte) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrapf(err, "create directory")
	}
	if err := os.WriteFile(outPath, schema, 0o600); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrapf(err, "write schema")
	}
	return nil
}

func checkSchema(outPath string, schema []byte) error {
	existing, err := os.ReadFile(outPath) //nolint:gosec // path comes from the operator's flag
	if errors.Is(err, fs.ErrNotExist) {
		return oops.Code("SCHEMA_STALE").With("path", outPath).Errorf("schema file is missing; run gen-schema")
	}
	if err != nil {
		return oops.Code("SCHEMA_READ_FAILED").With("path", outPath).Wrap(err)
	}
	if !bytes.Equal(existing, schema) {
		return oops.Code("SCHEMA_STALE").With("path", outPath).Errorf("schema file is out of date; run gen-schema")
	}
	return nil
}
