package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
	"golang.org/x/term"
)

// warnBelow turns the countdown red.
const warnBelow = 300

const keyInterrupt = 3 // Ctrl-C in raw mode

func newTakeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "take <exam-id>",
		Short: "Start an exam and answer it until you submit or time runs out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			events := make(chan engine.Event, 64)
			eng, session, err := opts.connect(ctx, forwardEvents(events))
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			if err := eng.Load(ctx, session); err != nil {
				fmt.Fprintln(opts.out, color.RedString(response.GetMessage(response.ErrLoadFailed)))
				return err
			}
			exam, err := eng.FindExam(args[0])
			if err != nil {
				return err
			}

			if f, ok := opts.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				prev, err := term.MakeRaw(int(f.Fd()))
				if err != nil {
					return fmt.Errorf("raw terminal: %w", err)
				}
				defer term.Restore(int(f.Fd()), prev)
			}

			screen := &screen{out: opts.out, passMark: opts.passMark}
			return runTake(ctx, eng, exam, readKeys(opts.in), events, screen)
		},
	}
}

// forwardEvents never drops a session-ending event; ticks are dropped
// when the screen falls behind.
func forwardEvents(events chan<- engine.Event) func(engine.Event) {
	return func(ev engine.Event) {
		if ev.Type == engine.EventTick {
			select {
			case events <- ev:
			default:
			}
			return
		}
		events <- ev
	}
}

func readKeys(in io.Reader) <-chan byte {
	keys := make(chan byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()
	return keys
}

// runTake drives one session from keys until it is submitted or left.
func runTake(ctx context.Context, eng *engine.Engine, exam model.Exam, keys <-chan byte, events <-chan engine.Event, sc *screen) error {
	if err := eng.StartExam(exam); err != nil {
		var rej *engine.RejectionError
		if errors.As(err, &rej) {
			sc.line(color.RedString(rejectionMessage(rej)))
		}
		return err
	}
	sc.render(eng.State())

	for {
		select {
		case <-ctx.Done():
			eng.Leave()
			return ctx.Err()

		case ev := <-events:
			switch ev.Type {
			case engine.EventTick:
				sc.render(eng.State())
			case engine.EventSubmitted:
				sc.finished(ev)
				return nil
			case engine.EventSubmitFailed:
				sc.finished(ev)
				return ev.Err
			case engine.EventLeft:
				sc.line("Examen abandonné.")
				return nil
			}

		case k, ok := <-keys:
			if !ok {
				keys = nil
				eng.Leave()
				continue
			}
			state := eng.State()
			switch {
			case k >= '1' && k <= '9':
				if state.Exam == nil || state.CurrentQuestion >= len(state.Exam.Questions) {
					continue
				}
				q := state.Exam.Questions[state.CurrentQuestion]
				if _, err := eng.SelectAnswer(q.ID, int(k-'1')); err != nil {
					continue
				}
			case k == 'n':
				eng.Navigate(model.DirectionNext)
			case k == 'p':
				eng.Navigate(model.DirectionPrev)
			case k == 's':
				sc.line("Envoi en cours...")
				// The outcome arrives as an event.
				_, _ = eng.Submit(ctx, model.SubmitTriggerManual)
				continue
			case k == 'q' || k == keyInterrupt:
				eng.Leave()
				continue
			default:
				continue
			}
			sc.render(eng.State())
		}
	}
}

func rejectionMessage(rej *engine.RejectionError) string {
	switch rej.Reason {
	case engine.RejectSessionActive:
		return response.GetMessage(response.ErrSessionActive)
	case engine.RejectNotYetOpen:
		return response.GetMessage(response.ErrExamNotOpen) + " (" + rej.OpensAt.Local().Format("2006-01-02 15:04") + ")"
	case engine.RejectExpired:
		return response.GetMessage(response.ErrExamExpired)
	default:
		return response.GetMessage(response.ErrNoQuestions)
	}
}

// screen renders the session. Lines end in CRLF for raw terminals.
type screen struct {
	out      io.Writer
	passMark int
}

func (s *screen) line(text string) {
	fmt.Fprint(s.out, text+"\r\n")
}

func (s *screen) render(state model.SessionState) {
	if !state.Started || state.Exam == nil || len(state.Exam.Questions) == 0 {
		return
	}
	exam := state.Exam
	q := exam.Questions[state.CurrentQuestion]

	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	fmt.Fprintf(&b, "%s  |  %s\r\n", color.New(color.Bold).Sprint(exam.Title), timerLabel(state.RemainingSeconds))
	fmt.Fprintf(&b, "Question %d/%d  (%d répondue(s))\r\n\r\n", state.CurrentQuestion+1, len(exam.Questions), len(state.Answers))
	b.WriteString(q.Question + "\r\n\r\n")
	chosen, answered := state.Answers[q.ID]
	for i, opt := range q.Options {
		mark := "[ ]"
		if answered && chosen == i {
			mark = color.CyanString("[x]")
		}
		fmt.Fprintf(&b, "  %s %d. %s\r\n", mark, i+1, opt)
	}
	b.WriteString("\r\n1-9 répondre  n suivante  p précédente  s soumettre  q quitter\r\n")
	fmt.Fprint(s.out, b.String())
}

func (s *screen) finished(ev engine.Event) {
	if ev.Trigger == model.SubmitTriggerTimer {
		s.line(color.YellowString("Temps écoulé, examen soumis automatiquement."))
	}
	if ev.Type == engine.EventSubmitFailed {
		msg := backend.Message(ev.Err)
		if msg == "" {
			msg = response.GetMessage(response.ErrSubmitFailed)
		}
		s.line(color.RedString(msg))
	} else {
		s.line(color.GreenString("Résultats enregistrés."))
	}
	if ev.Result != nil {
		s.line(resultLine(*ev.Result, s.passMark))
	}
}

func timerLabel(remaining int) string {
	label := fmt.Sprintf("%02d:%02d", remaining/60, remaining%60)
	if remaining < warnBelow {
		return color.RedString(label)
	}
	return label
}
