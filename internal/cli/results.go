package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
)

func newResultsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Show your past results",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, session, err := opts.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			if err := eng.Load(cmd.Context(), session); err != nil {
				fmt.Fprintln(opts.out, color.RedString(response.GetMessage(response.ErrLoadFailed)))
				return err
			}

			results := eng.Results()
			if len(results) == 0 {
				fmt.Fprintln(opts.out, "Aucun résultat.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintln(opts.out, formatResult(service.NewResultView(r, opts.passMark)))
			}
			return nil
		},
	}
}

func formatResult(v service.ResultView) string {
	date := v.CompletedAt
	if date.IsZero() {
		date = v.SubmittedAt
	}
	day := "-"
	if !date.IsZero() {
		day = date.Time.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%-12s %3d%%  %d/%d  %s  %s",
		v.ExamID, v.Score, v.CorrectAnswers, v.TotalQuestions, passLabel(v.Passed), day)
}

func passLabel(passed bool) string {
	if passed {
		return color.GreenString("Réussi")
	}
	return color.RedString("Échoué")
}

// resultLine is the summary shown when a session ends.
func resultLine(r model.Result, passMark int) string {
	v := service.NewResultView(r, passMark)
	return fmt.Sprintf("Score : %d%% (%d/%d) %s", v.Score, v.CorrectAnswers, v.TotalQuestions, passLabel(v.Passed))
}
