package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"codeblocks/pkg/client"
	"codeblocks/pkg/types"
)

const joinHelp = `Lines typed are collected into a draft. Commands:
  :send      publish the draft as the new buffer (students only)
  :clear     discard the draft
  :show      print the current view
  :check     compare the buffer with the solution
  :role      switch between mentor and student
  :solution  reveal the solution (students only)
  :quit      leave the exercise`

type joinFlags struct {
	role       string
	useKeyring bool
}

func newJoinCmd(flags *clientFlags) *cobra.Command {
	jf := &joinFlags{}

	cmd := &cobra.Command{
		Use:   "join <exercise-id>",
		Short: "Join an exercise and follow its buffer live",
		Long:  "Join an exercise and follow its buffer live.\n\n" + joinHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participantID := flags.participant
			if participantID == "" {
				participantID = os.Getenv("CODEBLOCKS_PARTICIPANT")
			}
			if !types.IsValidParticipantID(participantID) {
				return fmt.Errorf("a valid --participant or $CODEBLOCKS_PARTICIPANT is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runJoin(ctx, cmd.InOrStdin(), flags.server, participantID, args[0], jf)
		},
	}

	cmd.Flags().StringVar(&jf.role, "role", "", "request this role after joining (mentor or student)")
	cmd.Flags().BoolVar(&jf.useKeyring, "keyring", false, "cache roles in the OS keyring for the current login session")
	return cmd
}

func roleStore(participantID string, useKeyring bool) client.RoleStore {
	if useKeyring {
		store, err := client.OpenKeyringRoleStore(participantID)
		if err == nil {
			return store
		}
		pterm.Warning.Printfln("keyring unavailable, roles cached for this run only: %v", err)
	}
	return client.NewMemoryRoleStore()
}

func runJoin(ctx context.Context, in io.Reader, server, participantID, exerciseID string, jf *joinFlags) error {
	api := client.NewAPI(server, participantID, nil)

	spinner, _ := pterm.DefaultSpinner.Start("Joining " + exerciseID)
	ch, err := client.Dial(ctx, server, participantID)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	defer ch.Close()

	session, err := client.Open(ctx, exerciseID, client.SessionOptions{
		Exercises: client.NewExerciseStore(api),
		Roles:     client.NewRoles(api, roleStore(participantID, jf.useKeyring)),
		Channel:   ch,
		OnUpdate: func(v client.View) {
			pterm.Info.Println("buffer updated")
			printBuffer(v)
		},
		OnRefresh: func(v client.View) {
			pterm.Success.Printfln("role is now %s", v.Role)
			printView(v)
		},
	})
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	defer session.Close()
	spinner.Success("Joined " + exerciseID)

	if jf.role != "" {
		role, err := types.ParseRole(jf.role)
		if err != nil {
			return err
		}
		if _, err := session.RequestRoleChange(ctx, role); err != nil {
			pterm.Error.Printfln("role change failed: %v", err)
		}
	}

	printView(session.View())
	pterm.Println(joinHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), types.MaxContentBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var draft []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			pterm.Warning.Println("connection lost; updates missed from now on are not replayed, join again to resume")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, session, line, &draft)
			if err != nil {
				pterm.Error.Println(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

// handleLine applies one input line; it reports true when the user quits
func handleLine(ctx context.Context, session *client.Session, line string, draft *[]string) (bool, error) {
	switch strings.TrimSpace(line) {
	case ":quit":
		return true, nil
	case ":clear":
		*draft = nil
	case ":show":
		printView(session.View())
	case ":send":
		content := strings.Join(*draft, "\n")
		if err := session.Edit(ctx, content); err != nil {
			if errors.Is(err, client.ErrReadOnly) {
				return false, fmt.Errorf("mentors are read-only; use :role to become a student")
			}
			return false, err
		}
		*draft = nil
		pterm.Success.Println("buffer published")
	case ":check":
		pterm.Info.Printfln("verdict: %s", session.Check())
	case ":role":
		if _, err := session.ToggleRole(ctx); err != nil {
			return false, fmt.Errorf("role change failed: %w", err)
		}
	case ":solution":
		solution, err := session.Solution()
		if err != nil {
			return false, err
		}
		pterm.DefaultBox.WithTitle("Solution").Println(solution)
	default:
		*draft = append(*draft, line)
	}
	return false, nil
}

func printView(v client.View) {
	pterm.DefaultSection.Println(v.Definition.Title)
	if v.Definition.Instructions != "" {
		pterm.Println(v.Definition.Instructions)
	}
	mode := "read-only"
	if v.CanEdit {
		mode = "editing"
	}
	pterm.Info.Printfln("role: %s (%s)", v.Role, mode)
	printBuffer(v)
}

func printBuffer(v client.View) {
	content := v.Content
	if content == "" {
		content = " "
	}
	pterm.DefaultBox.WithTitle(v.Definition.ID).Println(content)
}
