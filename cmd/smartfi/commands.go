package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the session id and persisted mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pm := instance.Sessions.PersistedMode(cmd.Context())
		return render(cmd.OutOrStdout(), map[string]interface{}{
			"sessionId":           instance.SessionID,
			"mode":                pm.Mode,
			"phoneNumber":         pm.PhoneNumber,
			"persistenceDegraded": instance.Sessions.Degraded(),
		})
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the demo profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PHONE\tDESCRIPTION")
		for _, p := range domain.DemoProfiles() {
			fmt.Fprintf(w, "%s\t%s\n", p.PhoneNumber, p.Description)
		}
		return w.Flush()
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo <phone>",
	Short: "Enter demo mode for a demo profile and fetch all sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := instance.Modes.EnterDemo(cmd.Context(), args[0]); err != nil {
			return err
		}
		return renderSnapshot(cmd, instance.Orchestrator.Snapshot())
	},
}

var delegatedCmd = &cobra.Command{
	Use:   "delegated",
	Short: "Enter delegated mode and clear demo data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		instance.Modes.EnterDelegated(cmd.Context())
		return render(cmd.OutOrStdout(), instance.Modes.Current())
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [source]",
	Short: "Fetch one source, or all of them",
	Long: `Fetch financial data for the current session. Sources are net-worth,
credit-report, epf-details, mutual-funds and bank-transactions. A source
that needs login reports the URL to open in its state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			instance.Orchestrator.FetchAll(cmd.Context())
			return renderSnapshot(cmd, instance.Orchestrator.Snapshot())
		}

		key, err := domain.ParseSourceKey(args[0])
		if err != nil {
			return err
		}
		instance.Orchestrator.FetchOne(cmd.Context(), key)
		st := instance.Orchestrator.State(key)
		reportLogin(cmd, key, st)
		return render(cmd.OutOrStdout(), map[string]interface{}{
			"source": key,
			"state":  st,
			"data":   instance.Orchestrator.Record().Raw(key),
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [question]",
	Short: "Fetch all sources and analyze them",
	RunE: func(cmd *cobra.Command, args []string) error {
		instance.Orchestrator.FetchAll(cmd.Context())
		res := instance.Engine.AnalyzeDetailed(cmd.Context(), strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		fmt.Fprintf(cmd.ErrOrStderr(), "\n(%s analysis)\n", res.Path)
		return nil
	},
}

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the analysis history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if historyClear {
			n, err := instance.Engine.ClearHistory(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d messages\n", n)
			return nil
		}

		msgs, err := instance.Engine.History(cmd.Context())
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No analysis history")
			return nil
		}
		return render(cmd.OutOrStdout(), msgs)
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete the history")
}

func renderSnapshot(cmd *cobra.Command, snap domain.Snapshot) error {
	for _, key := range domain.AllSources {
		reportLogin(cmd, key, snap.States[key])
	}
	return render(cmd.OutOrStdout(), snap)
}

func reportLogin(cmd *cobra.Command, key domain.SourceKey, st domain.FetchState) {
	if st.LoginURL != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s requires login: open %s and retry\n", key, st.LoginURL)
	}
}
