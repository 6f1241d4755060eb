package main

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/wintools/pkg/wintools/output"
)

// outputFlags selects how a command prints session records.
type outputFlags struct {
	name     string
	template string
	json     bool
}

// register adds the flags to cmd. def may name a command-specific view
// that is not in the output registry, such as the history table.
func (f *outputFlags) register(cmd *cobra.Command, def string) {
	names := output.Available()
	if !slices.Contains(names, def) {
		names = append([]string{def}, names...)
	}
	cmd.Flags().StringVarP(&f.name, "output", "o", def,
		"output format: "+strings.Join(names, ", "))
	cmd.Flags().StringVar(&f.template, "template", "", "Go template for -o template")
	cmd.Flags().BoolVarP(&f.json, "json", "j", false, "shorthand for -o json")
}

func (f *outputFlags) format() string {
	if f.json {
		return "json"
	}
	return f.name
}

func (f *outputFlags) formatter() (output.Formatter, error) {
	name := f.format()
	if name == "template" && f.template != "" {
		return output.NewTemplateFormatter(f.template), nil
	}
	return output.Get(name)
}

func (f *outputFlags) write(w io.Writer, r *output.Result) error {
	formatter, err := f.formatter()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}
