package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vitaliisemenov/gwcore/internal/gwerrors"
	"github.com/vitaliisemenov/gwcore/internal/routestore"
	"github.com/vitaliisemenov/gwcore/internal/trie"
)

func routesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Inspect and validate route files",
	}
	cmd.AddCommand(routesValidateCmd())
	return cmd
}

// routesValidateCmd loads a route file through the same
// go-playground/validator/v10 rules the file watcher applies at reload
// time, then builds a trie from it so a route whose predicates or
// filter_fun fail to compile is also reported — without starting any
// listener, grounded on the teacher's standalone
// cmd/template-validator precedent.
func routesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a routes.yaml file without starting a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateRoutesFile(args[0])
		},
	}
}

type routeFile struct {
	Routes []*routestore.Route `yaml:"routes"`
}

func validateRoutesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var rf routeFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return &gwerrors.ConfigError{Op: "routes validate", Msg: err.Error()}
	}

	if err := routestore.Validate(rf.Routes); err != nil {
		return err
	}

	result := trie.Build(&routestore.Snapshot{ConfVersion: 1, Routes: rf.Routes})
	for _, skip := range result.Skipped {
		fmt.Fprintf(os.Stdout, "warning: %s\n", skip.Error())
	}

	fmt.Printf("%d route(s) loaded, %d skipped, trie stats: %+v\n", len(rf.Routes), len(result.Skipped), result.Router.Stats())
	return nil
}
