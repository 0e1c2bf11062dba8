// triage is an evidence-driven incident investigation agent. It runs a
// multi-turn diagnostic conversation: consultant Q&A until the user hands
// over the lead, then a phased OODA investigation until root cause.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/evidence"
	"triage/internal/llm"
	"triage/internal/logging"
	"triage/internal/memory"
	"triage/internal/ooda"
	"triage/internal/recovery"
	"triage/internal/store"
	"triage/internal/types"
)

var (
	configPath string
	caseID     string
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Evidence-driven incident investigation agent",
	Long: `triage runs structured incident investigations as a conversation.

It starts as a consultant answering questions, and with your consent takes
the lead: scoping blast radius, building the timeline, forming and testing
hypotheses against the evidence you provide, and driving to a validated
root cause. Run without arguments to start an interactive session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		return logging.Initialize(cfg.Logging)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context())
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start or resume an interactive investigation session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context())
	},
}

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List stored investigation cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ids, err := st.ListCaseIDs(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no cases yet")
			return nil
		}
		for _, id := range ids {
			cs, err := st.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %-12s %-12s turn %d  %s\n",
				id, cs.Status, cs.Phase, cs.TurnNumber, cs.ProblemStatement)
		}
		return nil
	},
}

func openStore() (store.Store, error) {
	if cfg.Store.Backend == "memory" {
		return store.NewMemStore(), nil
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

func buildController(ctx context.Context, st store.Store) (*ooda.Controller, error) {
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	mem := memory.NewManager(client, cfg.Memory)
	return ooda.NewController(
		cfg.OODA,
		client,
		evidence.NewLedger(evidence.NewSafetyFilter(cfg.Safety)),
		evidence.NewClassifier(client, cfg.OODA.HistoryWindow),
		mem,
		recovery.NewDetector(cfg.Recovery),
		recovery.NewManager(cfg.Recovery, mem),
		st,
	), nil
}

func runSession(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctrl, err := buildController(ctx, st)
	if err != nil {
		return err
	}

	id := caseID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := st.Load(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := ctrl.OpenCase(ctx, id); err != nil {
			return err
		}
		fmt.Printf("opened case %s\n", id)
	} else {
		fmt.Printf("resumed case %s\n", id)
	}
	fmt.Println("describe the problem, or ask a question. Ctrl-D to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		action, err := ctrl.ProcessTurn(ctx, id, input, nil)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printAction(action)

		if action.Kind == types.ActionEscalate {
			fmt.Println("(case flagged for escalation)")
		}
	}
	fmt.Println("\nsession ended; the case is saved and can be resumed.")
	return scanner.Err()
}

func printAction(action *types.AgentAction) {
	fmt.Println(action.Message)

	for _, r := range action.Requests {
		fmt.Printf("\n  [%s] %s\n", r.Category, r.Label)
		if r.Description != "" {
			fmt.Printf("      %s\n", r.Description)
		}
		for _, c := range r.Guidance.Commands {
			fmt.Printf("      $ %s\n", c)
		}
		for _, f := range r.Guidance.FileLocations {
			fmt.Printf("      file: %s\n", f)
		}
		for _, u := range r.Guidance.UILocations {
			fmt.Printf("      ui: %s\n", u)
		}
	}
	if len(action.SuggestedReplies) > 0 {
		fmt.Println()
		for _, s := range action.SuggestedReplies {
			fmt.Printf("  - %s\n", s)
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "triage.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&caseID, "case", "", "case ID to resume (default: new case)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(sessionCmd, casesCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
