package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/internal/daemon"
)

// ─── Catalog and Profile CLI ────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(constellationCmd, profileCmd)
	constellationCmd.AddCommand(constellationListCmd, constellationAddCmd, constellationRemoveCmd,
		constellationGuideCmd, constellationPerksCmd, constellationStatsCmd, constellationSyncCmd)
	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileDuplicateCmd, profileSwitchCmd)

	constellationAddCmd.Flags().String("category", "", "Category (default custom)")
	profileCreateCmd.Flags().Bool("copy", false, "Seed the profile with the current state")
}

var constellationCmd = &cobra.Command{
	Use:     "constellation",
	Aliases: []string{"catalog"},
	Short:   "Manage constellations and the perk catalog",
}

var constellationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List constellations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			for _, c := range d.Session.Constellations() {
				kind := "custom"
				if c.BuiltIn {
					kind = "built-in"
				}
				fmt.Fprintf(os.Stdout, "  %-24s %-28s %s\n", c.Key, c.Label, kind)
			}
			return nil
		})
	},
}

var constellationAddCmd = &cobra.Command{
	Use:   "add LABEL",
	Short: "Create a custom constellation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := strings.Join(args, " ")
		category, _ := cmd.Flags().GetString("category")
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			key, err := d.Session.AddConstellation(label, category)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "✅ Constellation %q created as %s\n", label, key)
			return nil
		})
	},
}

var constellationRemoveCmd = &cobra.Command{
	Use:   "remove KEY",
	Short: "Remove a custom constellation (its perks stay catalogued)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			if err := d.Session.RemoveConstellation(args[0]); err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "Removed %s.\n", args[0])
			return nil
		})
	},
}

var constellationGuideCmd = &cobra.Command{
	Use:   "guide KEY TEXT",
	Short: "Set a constellation's domain guide",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return explain(d.Session.SetGuide(args[0], strings.Join(args[1:], " ")))
		})
	},
}

var constellationPerksCmd = &cobra.Command{
	Use:   "perks KEY",
	Short: "List catalogued perks in a constellation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			entries := d.Session.CatalogEntries(args[0])
			if len(entries) == 0 {
				fmt.Fprintln(os.Stdout, "No perks catalogued.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(os.Stdout, "  • %s (%d CP, tier %d) rolled %d×\n", e.Name, e.Cost, e.Tier, e.TimesRolled)
			}
			return nil
		})
	},
}

var constellationStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count catalogued perks per constellation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return printJSON(d.Session.CatalogStats())
		})
	},
}

var constellationSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the shared perk catalog from remote storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			ok, err := d.Session.SyncCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(os.Stdout, "No remote catalog found.")
				return nil
			}
			fmt.Fprintln(os.Stdout, "Remote catalog adopted.")
			return nil
		})
	},
}

// ─── profiles ───────────────────────────────────────────────────────────────

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named character profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			names, err := d.Session.Profiles()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(os.Stdout, "No profiles. State is kept per conversation.")
				return nil
			}
			active := d.Session.Status().Profile
			for _, n := range names {
				mark := " "
				if n == active {
					mark = "*"
				}
				fmt.Fprintf(os.Stdout, "  %s %s\n", mark, n)
			}
			return nil
		})
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		copyCurrent, _ := cmd.Flags().GetBool("copy")
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Session.CreateProfile(args[0], copyCurrent)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "✅ Profile %s created.\n", p)
			return nil
		})
	},
}

var profileDuplicateCmd = &cobra.Command{
	Use:   "duplicate SRC DST",
	Short: "Copy a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Session.DuplicateProfile(args[0], args[1])
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "✅ Profile %s created from %s.\n", p, args[0])
			return nil
		})
	},
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch [NAME]",
	Short: "Select a profile (no name returns to per-conversation state)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Session.SwitchProfile(cmd.Context(), name)
			if err != nil {
				return explain(err)
			}
			if p == "" {
				fmt.Fprintln(os.Stdout, "Using per-conversation state.")
				return nil
			}
			fmt.Fprintf(os.Stdout, "Switched to profile %s.\n", p)
			return nil
		})
	},
}
