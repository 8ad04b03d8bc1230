package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/models"
	"github.com/benvon/smart-meds/internal/services/catalog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// catalogFile is the import format:
//
//	medications:
//	  - name: Ibuprofen
//	    active_ingredient: ibuprofen
//	    strength: 400 mg
//	    form: tablet
type catalogFile struct {
	Medications []catalogEntry `yaml:"medications"`
}

type catalogEntry struct {
	Name             string `yaml:"name"`
	ActiveIngredient string `yaml:"active_ingredient"`
	Strength         string `yaml:"strength"`
	Form             string `yaml:"form"`
}

// parseCatalog decodes an import file, rejecting unknown keys
func parseCatalog(r io.Reader) ([]*models.Medication, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("catalog file is empty")
		}
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	meds := make([]*models.Medication, 0, len(f.Medications))
	for _, e := range f.Medications {
		meds = append(meds, &models.Medication{
			Name:             e.Name,
			ActiveIngredient: e.ActiveIngredient,
			Strength:         e.Strength,
			Form:             e.Form,
		})
	}
	return meds, nil
}

// NewCatalogCmd creates the catalog command with import and search subcommands
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the medication catalog",
	}
	cmd.AddCommand(newCatalogImportCmd())
	cmd.AddCommand(newCatalogSearchCmd())
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert catalog entries from a YAML file",
		Long:  "Entries are matched on (name, strength, form); their search keys are recomputed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open catalog file: %w", err)
			}
			defer func() { _ = f.Close() }()
			meds, err := parseCatalog(f)
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, e *env) error {
				svc := catalog.NewService(database.NewMedicationRepository(e.db), e.cfg.CatalogSearchLimit)
				n, err := svc.Import(ctx, meds)
				if err != nil {
					return fmt.Errorf("imported %d of %d entries: %w", n, len(meds), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d catalog entries.\n", n)
				return nil
			})
		},
	}
}

func newCatalogSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Search the catalog the way the assistant does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, e *env) error {
				svc := catalog.NewService(database.NewMedicationRepository(e.db), e.cfg.CatalogSearchLimit)
				meds, err := svc.Search(ctx, args[0])
				if err != nil {
					return err
				}
				return printMedications(cmd.OutOrStdout(), meds)
			})
		},
	}
}

func printMedications(w io.Writer, meds []*models.Medication) error {
	if len(meds) == 0 {
		_, err := fmt.Fprintln(w, "No matching medications.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tINGREDIENT\tSTRENGTH\tFORM")
	for _, m := range meds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.ActiveIngredient, m.Strength, m.Form)
	}
	return tw.Flush()
}
