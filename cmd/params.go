// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsctl/pkg/bmsclient"
	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

var noPreserve bool

var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "Read and write named parameters",
	Long: `Access parameters by key using the address map given with --params.

Keys may be spelled CELL_OVP, cell_ovp or cellOvp.`,
}

var paramGetCmd = &cobra.Command{
	Use:   "get <key>...",
	Short: "Read one or more parameters",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runParamGet,
}

var paramSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a parameter",
	Long: `Write a parameter in engineering units. Single byte parameters keep the
other byte of their register unless --no-preserve is given.

Example:
  bmsctl param set CELL_OVP 3.65`,
	Args: cobra.ExactArgs(2),
	RunE: runParamSet,
}

var paramListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the parameters of the address map",
	Args:  cobra.NoArgs,
	RunE:  runParamList,
}

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Read and write parameter categories",
}

var categoryGetCmd = &cobra.Command{
	Use:   "get <category>",
	Short: "Read every parameter of a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryGet,
}

var categorySetCmd = &cobra.Command{
	Use:   "set <category> <key=value>...",
	Short: "Write several parameters of a category",
	Long: `Write several parameters of one category in as few requests as possible.
Every value is validated before anything is sent.

Example:
  bmsctl category set voltage CELL_OVP=3.65 CELL_UVP=2.8`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCategorySet,
}

func init() {
	rootCmd.AddCommand(paramCmd)
	paramCmd.AddCommand(paramGetCmd, paramSetCmd, paramListCmd)
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryGetCmd, categorySetCmd)

	paramSetCmd.Flags().BoolVar(&noPreserve, "no-preserve", false, "Zero the other byte of single byte parameters")
	categorySetCmd.Flags().BoolVar(&noPreserve, "no-preserve", false, "Zero the other byte of single byte parameters")
}

func printValues(vs bmsclient.Values) error {
	return output(vs.Map(), func(w io.Writer) error {
		for _, v := range vs {
			printf(w, "%-24s %s\n", v.Def.Key, v)
		}
		return nil
	})
}

func runParamGet(cmd *cobra.Command, args []string) error {
	s, err := OpenSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	vs := make(bmsclient.Values, 0, len(args))
	for _, key := range args {
		v, err := s.client.ReadParam(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		vs = append(vs, v)
	}
	return printValues(vs)
}

func runParamSet(cmd *cobra.Command, args []string) error {
	s, err := OpenSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := bmsclient.WriteOptions{NoPreserve: noPreserve}
	if err := s.client.WriteParam(cmd.Context(), args[0], args[1], opts); err != nil {
		return err
	}
	fmt.Printf("%s set to %s\n", strings.ToUpper(args[0]), args[1])
	return nil
}

func runParamList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if reg == nil {
		return bmserr.Configuration("this command needs a parameter map (--params)")
	}
	defs := reg.All()
	return output(defs, func(w io.Writer) error {
		for _, cat := range reg.Categories() {
			printf(w, "%s:\n", cat)
			for _, d := range reg.ByCategory(cat) {
				printf(w, "  %s\n", d)
			}
		}
		return nil
	})
}

func runCategoryGet(cmd *cobra.Command, args []string) error {
	s, err := OpenSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	vs, err := s.client.GetCategory(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printValues(vs)
}

// parseAssignments splits key=value arguments
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, bmserr.Value("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}

func runCategorySet(cmd *cobra.Command, args []string) error {
	values, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	s, err := OpenSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := bmsclient.WriteOptions{NoPreserve: noPreserve}
	if err := s.client.SetCategory(cmd.Context(), args[0], values, opts); err != nil {
		return err
	}
	fmt.Printf("Wrote %d parameter(s) in %s\n", len(values), args[0])
	return nil
}
