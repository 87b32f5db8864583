package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/internal/daemon"
	"github.com/forgeworks/forge/internal/domain"
)

// ─── Perk CLI ───────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(perkCmd, bankCmd, modifierCmd)
	perkCmd.AddCommand(perkListCmd, perkShowCmd, perkAddCmd, perkEditCmd, perkRemoveCmd,
		perkToggleCmd, perkScalingCmd, perkUncappedCmd, perkXPCmd, perkLevelCmd)
	bankCmd.AddCommand(bankListCmd, bankAddCmd, bankAcquireCmd, bankDiscardCmd, bankAffordableCmd)
	modifierCmd.AddCommand(modifierGamerCmd, modifierUncappedCmd)

	for _, c := range []*cobra.Command{perkAddCmd, bankAddCmd} {
		c.Flags().StringSlice("flags", nil, "Comma-separated flags (e.g. SCALING,TOGGLEABLE)")
		c.Flags().StringP("description", "d", "", "Perk description")
	}
	bankAddCmd.Flags().String("constellation", "", "Constellation key the perk came from")

	perkEditCmd.Flags().String("name", "", "Rename the perk")
	perkEditCmd.Flags().Int("cost", -1, "Change the cost")
	perkEditCmd.Flags().StringSlice("flags", nil, "Replace the flag set")
	perkEditCmd.Flags().StringP("description", "d", "", "Replace the description")
	perkEditCmd.Flags().Int("level", 0, "Override the scaling level")
	perkEditCmd.Flags().Int("xp", -1, "Override the scaling XP")
	perkLevelCmd.Flags().Int("xp", 0, "XP within the level")
}

var perkCmd = &cobra.Command{
	Use:   "perk",
	Short: "Manage acquired perks",
}

// ─── perk list / show ───────────────────────────────────────────────────────

var perkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List acquired perks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			perks := d.Session.Snapshot().AcquiredPerks
			if len(perks) == 0 {
				fmt.Fprintln(os.Stdout, "No perks acquired.")
				return nil
			}
			fmt.Fprintf(os.Stdout, "Perks (%d):\n", len(perks))
			for _, p := range perks {
				fmt.Fprintf(os.Stdout, "  • %s\n", perkLine(p))
			}
			return nil
		})
	},
}

func perkLine(p domain.Perk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d CP)", p.Name, p.Cost)
	if len(p.Flags) > 0 {
		fmt.Fprintf(&b, " [%s]", p.Flags)
	}
	if p.Scaling.Active {
		if p.Scaling.Uncapped {
			fmt.Fprintf(&b, " Lv.%d/∞ %d/%d XP", p.Scaling.Level, p.Scaling.XP, p.Scaling.XPNeeded)
		} else {
			fmt.Fprintf(&b, " Lv.%d/%d %d/%d XP", p.Scaling.Level, p.Scaling.MaxLevel, p.Scaling.XP, p.Scaling.XPNeeded)
		}
	}
	if p.Toggleable && !p.Active {
		b.WriteString(" (off)")
	}
	return b.String()
}

var perkShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show one perk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Session.Perk(args[0])
			if err != nil {
				return explain(err)
			}
			return printJSON(p)
		})
	},
}

// ─── perk add / edit / remove ───────────────────────────────────────────────

func draftFromArgs(cmd *cobra.Command, args []string) (domain.PerkDraft, error) {
	cost, err := strconv.Atoi(args[1])
	if err != nil {
		return domain.PerkDraft{}, fmt.Errorf("invalid cost %q", args[1])
	}
	flags, _ := cmd.Flags().GetStringSlice("flags")
	desc, _ := cmd.Flags().GetString("description")
	return domain.PerkDraft{
		Name:        args[0],
		Cost:        cost,
		Flags:       domain.ParseFlags(flags),
		Description: desc,
	}, nil
}

var perkAddCmd = &cobra.Command{
	Use:   "add NAME COST",
	Short: "Acquire a perk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		draft, err := draftFromArgs(cmd, args)
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Session.AddPerk(draft)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "✅ Acquired %s\n", perkLine(p))
			return nil
		})
	},
}

var perkEditCmd = &cobra.Command{
	Use:   "edit NAME",
	Short: "Edit a perk in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u domain.PerkUpdate
		f := cmd.Flags()
		if f.Changed("name") {
			v, _ := f.GetString("name")
			u.Name = &v
		}
		if f.Changed("cost") {
			v, _ := f.GetInt("cost")
			u.Cost = &v
		}
		if f.Changed("flags") {
			v, _ := f.GetStringSlice("flags")
			u.Flags = domain.ParseFlags(v)
			if u.Flags == nil {
				u.Flags = domain.Flags{}
			}
		}
		if f.Changed("description") {
			v, _ := f.GetString("description")
			u.Description = &v
		}
		if f.Changed("level") {
			v, _ := f.GetInt("level")
			u.Level = &v
		}
		if f.Changed("xp") {
			v, _ := f.GetInt("xp")
			u.XP = &v
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			if err := d.Session.EditPerk(args[0], u); err != nil {
				return explain(err)
			}
			name := args[0]
			if u.Name != nil {
				name = *u.Name
			}
			p, err := d.Session.Perk(name)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "Updated %s\n", perkLine(p))
			return nil
		})
	},
}

var perkRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a perk and refund its cost",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			affordable, err := d.Session.RemovePerk(args[0])
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "Removed %s.\n", args[0])
			return reportPoints(d, affordable)
		})
	},
}

// ─── perk toggle / scaling / uncapped / xp / level ─────────────────────────

var perkToggleCmd = &cobra.Command{
	Use:   "toggle NAME",
	Short: "Switch a toggleable perk on or off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			active, err := d.Session.TogglePerk(args[0])
			if err != nil {
				return explain(err)
			}
			state := "off"
			if active {
				state = "on"
			}
			fmt.Fprintf(os.Stdout, "%s is now %s.\n", args[0], state)
			return nil
		})
	},
}

var perkScalingCmd = &cobra.Command{
	Use:   "scaling NAME",
	Short: "Give a perk a leveling track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return explain(d.Session.EnablePerkScaling(args[0]))
		})
	},
}

var perkUncappedCmd = &cobra.Command{
	Use:   "uncapped NAME",
	Short: "Lift a perk's level cap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return explain(d.Session.EnablePerkUncapped(args[0]))
		})
	},
}

var perkXPCmd = &cobra.Command{
	Use:   "xp NAME AMOUNT",
	Short: "Grant XP to a scaling perk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid XP %q", args[1])
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			sc, ok := d.Session.AddXP(args[0], amount)
			if !ok {
				return fmt.Errorf("%s has no active leveling track", args[0])
			}
			fmt.Fprintf(os.Stdout, "%s: Lv.%d, %d/%d XP\n", args[0], sc.Level, sc.XP, sc.XPNeeded)
			return nil
		})
	},
}

var perkLevelCmd = &cobra.Command{
	Use:   "level NAME LEVEL",
	Short: "Set a scaling perk's level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid level %q", args[1])
		}
		xp, _ := cmd.Flags().GetInt("xp")
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			sc, ok := d.Session.SetLevel(args[0], level, xp)
			if !ok {
				return fmt.Errorf("%s has no active leveling track", args[0])
			}
			fmt.Fprintf(os.Stdout, "%s: Lv.%d, %d/%d XP\n", args[0], sc.Level, sc.XP, sc.XPNeeded)
			return nil
		})
	},
}

// ─── modifiers ──────────────────────────────────────────────────────────────

var modifierCmd = &cobra.Command{
	Use:   "modifier",
	Short: "Apply global modifiers",
}

var modifierGamerCmd = &cobra.Command{
	Use:   "gamer",
	Short: "Activate every scaling scaffold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			fmt.Fprintf(os.Stdout, "Gamer applied (changed: %v)\n", d.Session.ApplyGamer())
			return nil
		})
	},
}

var modifierUncappedCmd = &cobra.Command{
	Use:   "uncapped",
	Short: "Lift every level cap",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			fmt.Fprintf(os.Stdout, "Uncapped applied (changed: %v)\n", d.Session.ApplyUncapped())
			return nil
		})
	},
}

// ─── bank ───────────────────────────────────────────────────────────────────

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Manage banked perks",
}

var bankListCmd = &cobra.Command{
	Use:   "list",
	Short: "List banked perks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			banked := d.Session.Banked()
			if len(banked) == 0 {
				fmt.Fprintln(os.Stdout, "Bank is empty.")
				return nil
			}
			available := d.Session.Snapshot().AvailablePoints
			fmt.Fprintf(os.Stdout, "Banked (%d):\n", len(banked))
			for _, b := range banked {
				mark := " "
				if b.Cost <= available {
					mark = "✓"
				}
				fmt.Fprintf(os.Stdout, "  %s %s (%d CP) %s\n", mark, b.Name, b.Cost, b.ConstellationKey)
			}
			return nil
		})
	},
}

var bankAddCmd = &cobra.Command{
	Use:   "add NAME COST",
	Short: "Hold a perk for later",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		draft, err := draftFromArgs(cmd, args)
		if err != nil {
			return err
		}
		key, _ := cmd.Flags().GetString("constellation")
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			if err := d.Session.BankPerk(draft, key); err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "Banked %s (%d CP).\n", draft.Name, draft.Cost)
			return nil
		})
	},
}

var bankAcquireCmd = &cobra.Command{
	Use:   "acquire NAME",
	Short: "Buy a banked perk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Session.AcquireBanked(args[0])
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "✅ Acquired %s\n", perkLine(p))
			return nil
		})
	},
}

var bankDiscardCmd = &cobra.Command{
	Use:   "discard NAME",
	Short: "Drop a banked perk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			if err := d.Session.DiscardBanked(args[0]); err != nil {
				return explain(err)
			}
			fmt.Fprintf(os.Stdout, "Discarded %s.\n", args[0])
			return nil
		})
	},
}

var bankAffordableCmd = &cobra.Command{
	Use:   "affordable",
	Short: "List banked perks you can buy now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return printJSON(d.Session.CheckAffordability())
		})
	},
}
