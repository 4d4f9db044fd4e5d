package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Manage the enrolled population",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Long: `List enrolled identities in enrollment order.

Use --name to show only identities whose name matches, ignoring case and
diacritics ("jiri" matches "Jiří").`,
	Args: cobra.NoArgs,
	RunE: runIdentitiesList,
}

var identitiesRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove enrolled identities by id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIdentitiesRemove,
}

var identitiesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every enrolled identity",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesReset,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd, identitiesRemoveCmd, identitiesResetCmd)

	identitiesListCmd.Flags().String("name", "", "Only list identities with this name")
	identitiesListCmd.Flags().Bool("json", false, "Output as JSON")
	identitiesResetCmd.Flags().Bool("yes", false, "Confirm removing every identity")
}

// IdentityListOutput is the JSON output of identities list.
type IdentityListOutput struct {
	Count      int                `json:"count"`
	Identities []identity.Summary `json:"identities"`
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	name := mustGetString(cmd, "name")
	jsonOutput := mustGetBool(cmd, "json")

	eng, err := openEngine(context.Background())
	if err != nil {
		return err
	}
	defer eng.Close()

	items := eng.dir.List()
	if name != "" {
		items = items[:0]
		for _, m := range eng.dir.Store().FindByName(name) {
			items = append(items, m.Summary())
		}
	}

	if jsonOutput {
		return outputJSON(IdentityListOutput{Count: len(items), Identities: items})
	}

	if len(items) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}
	fmt.Printf("%-40s %s\n", "ID", "NAME")
	for _, item := range items {
		fmt.Printf("%-40s %s\n", item.ID, item.Name)
	}
	fmt.Printf("\n%d identities\n", len(items))
	return nil
}

func runIdentitiesRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	var missing []string
	for _, id := range args {
		removed, err := eng.dir.Remove(ctx, id)
		if err != nil {
			return fmt.Errorf("removing %s: %w", id, err)
		}
		if !removed {
			missing = append(missing, id)
			continue
		}
		fmt.Printf("Removed %s\n", id)
	}

	if len(missing) > 0 {
		return fmt.Errorf("identities not found: %v", missing)
	}
	return nil
}

func runIdentitiesReset(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") {
		return errors.New("refusing to remove every identity without --yes")
	}

	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	n := eng.dir.Store().Len()
	if err := eng.dir.Reset(ctx); err != nil {
		return fmt.Errorf("resetting identities: %w", err)
	}
	fmt.Printf("Removed %d identities\n", n)
	return nil
}
