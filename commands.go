package main

import (
	"fmt"

	"github.com/kasuganosora/farmquest/game/quiz"
	"github.com/kasuganosora/farmquest/resource"
	"github.com/spf13/cobra"
)

var exportLeaderboardCmd = &cobra.Command{
	Use:   "export-leaderboard [out.xlsx]",
	Short: "Write the farmer and panchayat leaderboards to an Excel workbook",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExportLeaderboard,
}

var importQuizOut string

var importQuizCmd = &cobra.Command{
	Use:   "import-quiz <workbook.xlsx>",
	Short: "Validate a quiz workbook and write the merged quiz bank as YAML",
	Long: `Reads one quiz per sheet (id, question, option1..4, correct option 1-4,
explanation), merges it into the configured quiz bank and writes the result
to quizzes.yaml so it can be dropped into data.dir.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportQuiz,
}

func init() {
	importQuizCmd.Flags().StringVarP(&importQuizOut, "out", "o", resource.QuizzesFile, "output YAML file")
}

func runExportLeaderboard(cmd *cobra.Command, args []string) error {
	out := "leaderboard.xlsx"
	if len(args) == 1 {
		out = args[0]
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	farmers, err := a.ranks.Farmers(cmd.Context(), 0)
	if err != nil {
		return err
	}
	if err := resource.ExportLeaderboardFile(out, farmers, a.ranks.Panchayats()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d farmers to %s\n", len(farmers), out)
	return nil
}

func runImportQuiz(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	imported, err := resource.ImportQuizXLSX(args[0])
	if err != nil {
		return err
	}
	data, err := resource.NewLoader(cfg.Data.Dir, "").Load()
	if err != nil {
		return err
	}
	bank, err := quiz.NewBank(data.Quizzes, quiz.BankDefaults{TimeLimit: cfg.Game.QuestQuizTimeLimit})
	if err != nil {
		return err
	}
	if err := bank.Merge(imported); err != nil {
		return err
	}
	merged := bank.List()
	if err := resource.WriteYAML(importQuizOut, merged); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, q := range imported {
		fmt.Fprintf(w, "%s: %d questions\n", q.ID, len(q.Questions))
	}
	fmt.Fprintf(w, "wrote %d quizzes to %s\n", len(merged), importQuizOut)
	return nil
}
