package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/ai"
	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/filtering"
	"github.com/spigell/career-minimax/internal/market"
	"github.com/spigell/career-minimax/internal/payoff"
	"github.com/spigell/career-minimax/internal/provider"
	"github.com/spigell/career-minimax/internal/store"
)

const (
	PromptDone                = "Done"
	PromptShowExplanation     = "Show explanation"
	PromptShowMatrix          = "Show payoff matrix"
	PromptOutcomeToFile       = "Dump outcome to file"
	PromptAppendToExcludeFile = "Append chosen option to exclude file"
)

var errExit = errors.New("exit requested")

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Recommend the career option with the best guaranteed payoff",
	Long: `decide reads a request document (options, scenarios, weights and market
signals) or asks the configured AI provider to build one from a question,
screens it, solves the Individual-vs-Market game and prints the narrated
recommendation. The outcome is saved to the configured store.`,
	Run: func(cmd *cobra.Command, _ []string) {
		decide(cmd)
	},
}

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringP("input", "i", "", "request document (yaml or json). Default is the input key of the config")
	decideCmd.Flags().StringP("question", "q", "", "ask the AI provider to build the career matrix from a free-form question")
	decideCmd.Flags().Bool("criteria-as-scenarios", false, "with --question, treat every criterion as a market scenario")
	decideCmd.Flags().Bool("fetch", false, "refresh signals through the configured providers")
	decideCmd.Flags().StringP("session", "s", "", "session id. Default is the one in the document or a new uuid")
	decideCmd.Flags().BoolP("yes", "y", false, "do not show the follow-up menu")
	decideCmd.Flags().Bool("dump", false, "dump the outcome to a temporary file")
	decideCmd.Flags().Bool("narrate", false, "narrate the recommendation with the AI provider")
	decideCmd.Flags().StringP("exclude-file", "e", "", "file with options to exclude. Default is unset.")

	viper.BindPFlag("input", decideCmd.Flags().Lookup("input"))
	viper.BindPFlag("ai.narrate", decideCmd.Flags().Lookup("narrate"))
	viper.BindPFlag("filtering.exclude-file", decideCmd.Flags().Lookup("exclude-file"))
}

func decide(cmd *cobra.Command) {
	ctx := context.Background()

	logger, config := setup()
	logger.Info("starting the career-minimax", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config.Engine, "", "  ")
	logger.Debug(fmt.Sprintf("starting with engine config: \n %s", pretty))

	session, err := decision.New(config.Engine, logger)
	if err != nil {
		logger.Fatal("building the decision session", zap.Error(err))
	}

	gen, providerName, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the ai generator", zap.Error(err))
	}

	st, err := newStore(config.Store, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	sessionID, _ := cmd.Flags().GetString("session")
	question, _ := cmd.Flags().GetString("question")
	byCriteria, _ := cmd.Flags().GetBool("criteria-as-scenarios")
	fetch, _ := cmd.Flags().GetBool("fetch")

	var (
		req decision.Request
		out *decision.Outcome
	)

	if question != "" {
		if gen == nil {
			logger.Fatal("--question needs an ai provider", zap.String("hint", "set ai.provider to gemini or openai"))
		}
		matrix, err := ai.NewExtractor(gen, providerName, logger, config.AI.MaxLogLength).Extract(ctx, question)
		if err != nil {
			logger.Fatal("extracting the career matrix", zap.Error(err))
		}
		req = matrix.Request(sessionOrNew(sessionID, ""), 0)

		if byCriteria {
			m, err := matrix.Matrix()
			if err != nil {
				logger.Fatal("building the criteria matrix", zap.Error(err))
			}
			logger.Info("solving criteria as scenarios, filters are not applied")
			out, err = session.DecideMatrix(ctx, req.SessionID, m)
			if err != nil {
				logger.Fatal("deciding", zap.Error(err))
			}
		}
	} else {
		input := viper.GetString("input")
		if input == "" {
			logger.Fatal("a request document is required", zap.String("hint", "pass --input or set the input key"))
		}
		doc, err := provider.LoadDocument(input)
		if err != nil {
			logger.Fatal("loading the request document", zap.Error(err))
		}
		req, err = doc.Request()
		if err != nil {
			logger.Fatal("decoding the request document", zap.Error(err))
		}
		req.SessionID = sessionOrNew(sessionID, req.SessionID)

		if fetch {
			chain, err := newProvider(config, doc, logger)
			if err != nil {
				logger.Fatal("building providers", zap.Error(err))
			}
			req.Signals, err = refreshSignals(ctx, chain, req, logger)
			if err != nil {
				logger.Fatal("fetching market signals", zap.Error(err))
			}
		}
	}

	if out == nil {
		screened, err := newScreener(config, logger)(ctx, req)
		if err != nil {
			logger.Fatal("screening the request", zap.Error(err))
		}
		req = *screened

		out, err = session.Decide(ctx, req)
		if err != nil {
			logger.Fatal("deciding", zap.Error(err))
		}
	}

	if warn := out.Result.Warning(); warn != nil {
		logger.Warn("approximate result", zap.Error(warn))
	}

	record, err := st.Save(ctx, req, out)
	if err != nil {
		logger.Fatal("saving the outcome", zap.Error(err))
	}
	if record != nil {
		logger.Info("outcome saved", zap.String("record_id", record.ID), zap.String("session_id", record.SessionID))
	}

	var narrator ai.Narrator = ai.TemplateNarrator{}
	if config.AI.Narrate {
		narrator = newNarrator(gen, providerName, config.AI, logger)
	}
	text, err := narrator.Narrate(ctx, out.Explanation)
	if err != nil {
		logger.Fatal("narrating the outcome", zap.Error(err))
	}
	fmt.Println(text)

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		if err := handleAction(PromptOutcomeToFile, logger, config, out); err != nil {
			logger.Fatal("dumping the outcome", zap.Error(err))
		}
	}

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return
	}

	items := []string{PromptDone, PromptShowExplanation, PromptShowMatrix, PromptOutcomeToFile}
	if config.Filtering.ExcludeFile != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	prompt := promptui.Select{
		Label: "What next?",
		Items: items,
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, config, out); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func sessionOrNew(flag, fromDoc string) string {
	if s := strings.TrimSpace(flag); s != "" {
		return s
	}
	if s := strings.TrimSpace(fromDoc); s != "" {
		return s
	}
	return uuid.New().String()
}

// refreshSignals lays freshly fetched signals over the request's own. When
// no provider has anything the request signals are used as they are.
func refreshSignals(ctx context.Context, p provider.Provider, req decision.Request, logger *zap.Logger) ([]market.Signal, error) {
	fresh, err := p.Fetch(ctx, provider.Query{Options: req.Options, Scenarios: req.Scenarios})
	if errors.Is(err, provider.ErrNoData) {
		logger.Warn("no fresh signals, using the document ones", zap.Error(err))
		return req.Signals, nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info("fresh signals fetched", zap.Int("count", len(fresh)))
	return market.Merge(req.Signals, fresh), nil
}

func handleAction(action string, logger *zap.Logger, config *Config, out *decision.Outcome) error {
	switch action {
	case PromptDone:
		logger.Info("exiting", zap.String("reason", "done"))
		return errExit
	case PromptShowExplanation:
		record, err := out.Explanation.Record()
		if err != nil {
			return fmt.Errorf("render explanation: %w", err)
		}
		pretty, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(pretty))
		return nil
	case PromptShowMatrix:
		fmt.Print(formatMatrix(out.Matrix))
		return nil
	case PromptOutcomeToFile:
		filename, err := dumpToTmpFile(out)
		if err != nil {
			return fmt.Errorf("dump outcome to file: %w", err)
		}
		logger.Info("dumping outcome to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		return excludeChosen(logger, config.Filtering.ExcludeFile, out)
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func dumpToTmpFile(out *decision.Outcome) (string, error) {
	f, err := os.CreateTemp("", app+"-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func excludeChosen(logger *zap.Logger, path string, out *decision.Outcome) error {
	if path == "" {
		return errors.New("exclude file is not set")
	}

	excluded, err := filtering.ReadExcludeFile(path)
	if err != nil {
		return err
	}

	exp := out.Explanation
	excluded.Add(&filtering.ExcludedOption{
		ID:         exp.ChosenOption,
		Label:      exp.ChosenLabel,
		Reason:     "excluded after review",
		ExcludedAt: time.Now().UTC(),
	})
	if err := excluded.ToFile(path); err != nil {
		return err
	}

	logger.Info("appended to exclude file", zap.String("filename", path), zap.String("option", exp.ChosenOption))
	return nil
}

// formatMatrix renders the Individual payoffs, and the Market ones in a
// general-sum game, as aligned text.
func formatMatrix(s payoff.Snapshot) string {
	var b strings.Builder
	writeGrid(&b, "individual", s, s.Individual)
	if s.Mode == payoff.GeneralSum {
		b.WriteString("\n")
		writeGrid(&b, "market", s, s.Market)
	}
	return b.String()
}

func writeGrid(b *strings.Builder, title string, s payoff.Snapshot, grid [][]float64) {
	w := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%s\t", title)
	for _, sc := range s.Scenarios {
		fmt.Fprintf(w, "%s\t", sc.ID)
	}
	fmt.Fprintln(w)

	for i, o := range s.Options {
		fmt.Fprintf(w, "%s\t", o.ID)
		if i < len(grid) {
			for _, v := range grid[i] {
				fmt.Fprintf(w, "%.3f\t", v)
			}
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

// recordLine is the one-line history form of a stored record.
func recordLine(r store.Record) string {
	value := 0.0
	if r.Outcome != nil && r.Outcome.Result != nil {
		value = r.Outcome.Result.Value
	}
	return fmt.Sprintf("%s  %s  %-24s %-10s value=%.3f",
		r.CreatedAt.Format(time.RFC3339), r.ID, r.ChosenOption, r.Mode, value)
}
