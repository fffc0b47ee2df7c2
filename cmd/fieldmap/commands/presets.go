package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/benvon/workitem-fieldmap/internal/mapping"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// newPresetsCmd creates the presets command with list, export, import and delete subcommands
func newPresetsCmd(open func() (*Runtime, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage field-mapping presets",
		Long:  "List, export, import or delete the field-mapping presets stored in the preset backend.",
	}
	cmd.AddCommand(newPresetsListCmd(open))
	cmd.AddCommand(newPresetsExportCmd(open))
	cmd.AddCommand(newPresetsImportCmd(open))
	cmd.AddCommand(newPresetsDeleteCmd(open))
	return cmd
}

// withEngine opens the runtime, loads the stored presets into an engine and runs fn
func withEngine(open func() (*Runtime, error), fn func(*Runtime, *mapping.Engine) error) error {
	rt, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
	}()

	engine := mapping.NewEngine(rt.Presets, nil, mapping.WithLogger(rt.Logger))
	return fn(rt, engine)
}

func newPresetsListCmd(open func() (*Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(open, func(rt *Runtime, engine *mapping.Engine) error {
				if err := engine.LoadPresets(cmd.Context()); err != nil {
					return fmt.Errorf("load presets: %w", err)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tMAPPED FIELDS")
				for _, p := range engine.Presets() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, describeFields(p.Fields))
				}
				return tw.Flush()
			})
		},
	}
}

func newPresetsExportCmd(open func() (*Runtime, error)) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export presets as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("--format must be %q or %q", formatJSON, formatYAML)
			}

			return withEngine(open, func(rt *Runtime, engine *mapping.Engine) error {
				if err := engine.LoadPresets(cmd.Context()); err != nil {
					return fmt.Errorf("load presets: %w", err)
				}

				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer func() {
						_ = f.Close()
					}()
					w = f
				}
				return encodePresets(w, format, engine.Presets())
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newPresetsImportCmd(open func() (*Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import presets from a JSON or YAML file",
		Long:  "Merge presets from FILE into the stored collection. Presets whose id already exists are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			incoming, err := decodePresets(data, formatForPath(args[0]))
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			return withEngine(open, func(rt *Runtime, engine *mapping.Engine) error {
				if err := engine.LoadPresets(cmd.Context()); err != nil {
					return fmt.Errorf("load presets: %w", err)
				}
				added, err := engine.ImportPresets(cmd.Context(), incoming)
				if err != nil {
					return fmt.Errorf("import presets: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d presets.\n", added, len(incoming))
				return nil
			})
		},
	}
}

func newPresetsDeleteCmd(open func() (*Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(open, func(rt *Runtime, engine *mapping.Engine) error {
				if err := engine.LoadPresets(cmd.Context()); err != nil {
					return fmt.Errorf("load presets: %w", err)
				}
				if !engine.SelectPreset(id) {
					return fmt.Errorf("preset %q not found", id)
				}
				if _, err := engine.DeleteSelectedPreset(cmd.Context()); err != nil {
					return fmt.Errorf("delete preset: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Deleted preset %s.\n", id)
				if id == models.DefaultPresetID {
					fmt.Fprintln(out, "Note: the built-in default preset is restored the next time the server starts.")
				}
				return nil
			})
		},
	}
}

// describeFields renders a mapping as "title=System.Title, ..." in canonical order
func describeFields(fields models.FieldMapping) string {
	parts := make([]string, 0, len(fields))
	for _, f := range models.AllTaskFields() {
		if ref, ok := fields[f]; ok {
			parts = append(parts, fmt.Sprintf("%s=%s", f, ref.ReferenceName))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func encodePresets(w io.Writer, format string, list []models.Preset) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func decodePresets(data []byte, format string) ([]models.Preset, error) {
	var list []models.Preset
	if format == formatYAML {
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
