package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
)

var statusLabels = map[model.ExamStatus]string{
	model.ExamStatusUpcoming:  "À venir",
	model.ExamStatusActive:    "En cours",
	model.ExamStatusCompleted: "Terminé",
}

func newLobbyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lobby",
		Short: "List the exams available to you",
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

			lobby := eng.Lobby()
			if len(lobby) == 0 {
				fmt.Fprintln(opts.out, "Aucun examen disponible.")
				return nil
			}
			for _, exam := range lobby {
				fmt.Fprintf(opts.out, "%-12s %-32s %-16s %3d min  %2d questions  %s\n",
					exam.ID, exam.Title, exam.Subject, exam.Duration, len(exam.Questions), statusLabel(exam.Status))
			}
			return nil
		},
	}
}

func statusLabel(s model.ExamStatus) string {
	label := statusLabels[s]
	switch s {
	case model.ExamStatusActive:
		return color.GreenString(label)
	case model.ExamStatusUpcoming:
		return color.YellowString(label)
	default:
		return color.New(color.Faint).Sprint(label)
	}
}
