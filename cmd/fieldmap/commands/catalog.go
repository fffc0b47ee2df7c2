package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/benvon/workitem-fieldmap/internal/catalog"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/validation"
	"github.com/spf13/cobra"
)

// newCatalogCmd creates the catalog command
func newCatalogCmd(open func() (*Runtime, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the Azure DevOps field catalog",
	}
	cmd.AddCommand(newCatalogListCmd(open))
	return cmd
}

func newCatalogListCmd(open func() (*Runtime, error)) *cobra.Command {
	var direction, project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the fields offered for mapping",
		Long:  "Fetch the project's work-item fields and list those offered for the given direction. Export hides read-only fields.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateDirection(direction); err != nil {
				return err
			}

			rt, err := open()
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			if rt.Catalog == nil {
				return fmt.Errorf("catalog not configured: set AZDO_ORGANIZATION, AZDO_PROJECT and AZDO_PAT or AZDO_BEARER_TOKEN")
			}
			if project == "" {
				project = rt.Project
			}

			cache := catalog.NewCache(rt.Catalog, project, rt.Logger)
			if err := cache.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("fetch catalog: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REFERENCE NAME\tDISPLAY NAME")
			for _, f := range cache.Suggest(models.Direction(direction)) {
				fmt.Fprintf(tw, "%s\t%s\n", f.ReferenceName, f.DisplayName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(models.DirectionImport), "Mapping direction: import or export")
	cmd.Flags().StringVar(&project, "project", "", "Project to list (defaults to AZDO_PROJECT)")
	return cmd
}
