package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forge/internal/app/roll"
	"github.com/forgeworks/forge/internal/daemon"
)

// ─── Roll CLI ───────────────────────────────────────────────────────────────
// A roll is decided in three steps: trigger, (for creation rolls) feed the
// AI reply through 'forge message', then acquire, bank or discard.

func init() {
	rootCmd.AddCommand(rollCmd)
	rollCmd.AddCommand(rollShowCmd, rollForgeCmd, rollCreateCmd, rollAcquireCmd, rollBankCmd, rollDiscardCmd)
	rollCreateCmd.Flags().Int("tier", 0, "Cost tier 1-6 (0 picks one at random)")
}

var rollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Draw or create a perk",
}

func printSlot(s roll.Slot) error {
	fmt.Fprintf(os.Stdout, "Phase: %s\n", s.Phase)
	if s.ConstellationLabel != "" {
		fmt.Fprintf(os.Stdout, "Constellation: %s\n", s.ConstellationLabel)
	}
	if s.Proposal != nil {
		fmt.Fprintf(os.Stdout, "Proposal: %s (%d CP) [%s]\n", s.Proposal.Name, s.Proposal.Cost, s.Proposal.Flags)
		if s.Proposal.Description != "" {
			fmt.Fprintf(os.Stdout, "  %s\n", s.Proposal.Description)
		}
	}
	if s.Prompt != "" {
		fmt.Fprintln(os.Stdout, "\nSend this to the AI, then pass its reply to 'forge message':")
		fmt.Fprintln(os.Stdout, s.Prompt)
	}
	return nil
}

func printResolution(r roll.Resolution) error {
	fmt.Fprintf(os.Stdout, "%s: %s\n", r.Outcome, r.Perk)
	if r.Pending != nil {
		fmt.Fprintf(os.Stdout, "Banked until %d more CP are earned.\n", r.Pending.Needed)
	}
	return nil
}

var rollShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current roll",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			return printSlot(d.Session.RollSlot())
		})
	},
}

var rollForgeCmd = &cobra.Command{
	Use:   "forge [CONSTELLATION]",
	Short: "Draw a catalogued perk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			s, err := d.Session.TriggerForgeRoll(key)
			if err != nil {
				return explain(err)
			}
			if s.Phase == roll.PhaseEmpty {
				fmt.Fprintln(os.Stdout, "The constellation has nothing catalogued yet. Try 'forge roll create'.")
				return nil
			}
			return printSlot(s)
		})
	},
}

var rollCreateCmd = &cobra.Command{
	Use:   "create [CONSTELLATION]",
	Short: "Ask the AI to invent a perk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		tier, _ := cmd.Flags().GetInt("tier")
		if tier < 0 || tier > 6 {
			return fmt.Errorf("tier must be between 0 and 6")
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			s, err := d.Session.TriggerCreationRoll(key, tier)
			if err != nil {
				return explain(err)
			}
			return printSlot(s)
		})
	},
}

var rollAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Accept the proposal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			r, err := d.Session.AcquireRoll()
			if err != nil {
				return explain(err)
			}
			return printResolution(r)
		})
	},
}

var rollBankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Bank the proposal for later",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			r, err := d.Session.BankRoll()
			if err != nil {
				return explain(err)
			}
			return printResolution(r)
		})
	},
}

var rollDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Reject the proposal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			r, err := d.Session.DiscardRoll()
			if err != nil {
				return explain(err)
			}
			return printResolution(r)
		})
	},
}
