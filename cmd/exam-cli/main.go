package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stemsi/exstem-portal/internal/examclient"
	"github.com/stemsi/exstem-portal/internal/logger"
	"golang.org/x/term"
)

func main() {
	flagSet := flag.NewFlagSet("exam-cli", flag.ContinueOnError)
	var (
		server   string
		dbPath   string
		phone    string
		roll     string
		formID   string
		logLevel string
	)
	flagSet.StringVarP(&server, "server", "s", "http://localhost:8080", "Portal base URL")
	flagSet.StringVar(&dbPath, "db", defaultDBPath(), "Local state file (SQLite)")
	flagSet.StringVar(&phone, "phone", "", "10-digit phone number")
	flagSet.StringVar(&roll, "roll", "", "Roll number")
	flagSet.StringVar(&formID, "form", "", "Form id (defaults to the course's form)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "Log level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New(os.Stderr, logLevel, "pretty")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Local State ───────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("Failed to create state directory")
	}
	store, err := examclient.OpenSQLiteStorage(ctx, dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("Failed to open local state")
	}
	defer store.Close()

	deviceID, err := examclient.DeviceID(ctx, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load device id")
	}

	api, err := examclient.NewAPIClient(examclient.APIConfig{BaseURL: server, DeviceID: deviceID})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server URL")
	}

	reader := bufio.NewReader(os.Stdin)
	flow := examclient.NewAuthFlow(api, store, 10*time.Minute)

	// ─── Sign In ───────────────────────────────────────────────────────
	sess, err := flow.Resume(ctx)
	if err != nil {
		if !errors.Is(err, examclient.ErrNoSession) {
			fmt.Println("Could not check the saved session:", err)
		}
		sess, err = signIn(ctx, flow, reader, phone, roll)
		if err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("\nWelcome, %s (%s)\n", sess.Student.Name, sess.Student.RollNumber)
	fmt.Printf("Session expires at %s\n\n", sess.ExpiresAt.Local().Format(time.Kitchen))

	// ─── Exam ──────────────────────────────────────────────────────────
	cfg := examclient.DefaultSessionConfig(examclient.KeyExamState(sess.Student.RollNumber))
	cfg.FormID = formID
	cfg.ExpiresAt = sess.ExpiresAt
	exam := examclient.NewSession(api, store, cfg, log)
	if err := exam.Start(ctx); err != nil {
		fmt.Println("Error loading questions:", err)
		os.Exit(1)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go exam.Run(runCtx)

	fmt.Println(helpText)
	render(exam.Snapshot())

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			exam.Close(context.Background())
			fmt.Println("\nProgress saved.")
			return
		case <-exam.Done():
			finish(exam)
			return
		case line, ok := <-lines:
			if !ok {
				exam.Close(context.Background())
				return
			}
			// Catches a laptop that slept through the deadline.
			if exam.CheckStale(ctx, time.Now()) {
				fmt.Println("Time is up, submitting...")
				continue
			}
			if quit := handle(ctx, exam, flow, line); quit {
				return
			}
		}
	}
}

func signIn(ctx context.Context, flow *examclient.AuthFlow, reader *bufio.Reader, phone, roll string) (*examclient.StudentSession, error) {
	if _, err := flow.PendingVerification(ctx); err != nil {
		if phone == "" {
			phone = prompt(reader, "Enter phone number: ")
		}
		msg, err := flow.RequestCode(ctx, phone, "")
		if err != nil {
			return nil, err
		}
		fmt.Println(msg)

		fmt.Print("Enter verification code: ")
		code, err := readSecret(reader)
		if err != nil {
			return nil, err
		}
		if err := flow.VerifyCode(ctx, phone, code); err != nil {
			return nil, err
		}
	}

	if roll == "" {
		roll = prompt(reader, "Enter roll number: ")
	}
	return flow.ClaimSession(ctx, roll)
}

func handle(ctx context.Context, exam *examclient.Session, flow *examclient.AuthFlow, line string) (quit bool) {
	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Println(err)
		return false
	}

	switch cmd.kind {
	case cmdSelect:
		err = exam.Select(cmd.arg)
	case cmdNext:
		err = exam.Next()
	case cmdPrev:
		err = exam.Prev()
	case cmdJump:
		err = exam.Jump(cmd.arg - 1)
	case cmdHelp:
		fmt.Println(helpText)
		return false
	case cmdSubmit:
		snap := exam.Snapshot()
		fmt.Printf("Submitting %d of %d answers...\n", snap.Answered, snap.Total)
		if _, err := exam.Submit(ctx); err != nil {
			fmt.Println("Submission failed:", err)
			if errors.Is(err, examclient.ErrSubmitInProgress) {
				return false
			}
		}
		if s := exam.Snapshot().State; s == examclient.StateCompleted || s == examclient.StateError {
			finish(exam)
			return true
		}
		fmt.Println("You can try submitting again.")
		return false
	case cmdLogout:
		exam.Close(ctx)
		if err := flow.Logout(ctx); err != nil {
			fmt.Println("Logged out locally; the portal could not be reached:", err)
		}
		return true
	case cmdQuit:
		exam.Close(ctx)
		fmt.Println("Progress saved. Run again to resume.")
		return true
	}

	if err != nil {
		fmt.Println(err)
	}
	render(exam.Snapshot())
	return false
}

func render(snap examclient.Snapshot) {
	if snap.Question == nil {
		fmt.Println("No questions.")
		return
	}
	fmt.Printf("\n[%d/%d]  answered %d  time left %s\n", snap.Current+1, snap.Total, snap.Answered,
		snap.Remaining.Truncate(time.Second))
	fmt.Println(snap.Question.Question)
	for i, opt := range snap.Question.Options {
		marker := " "
		if snap.Selected == i+1 {
			marker = "*"
		}
		fmt.Printf(" %s %d) %s\n", marker, i+1, opt)
	}
	fmt.Print("> ")
}

func finish(exam *examclient.Session) {
	snap := exam.Snapshot()
	switch snap.State {
	case examclient.StateCompleted:
		total := snap.Total
		if res := exam.Result(); res != nil {
			total = res.TotalQuestions
		}
		fmt.Printf("\nExam submitted. %d questions recorded.\n", total)
	case examclient.StateError:
		if examclient.IsUnauthorized(snap.Err) {
			fmt.Println("\nYour session ended before the portal accepted the answers.")
			fmt.Println("They are saved on this device. Sign in again to submit them.")
			return
		}
		fmt.Println("\nThis exam can no longer be submitted:", snap.Err)
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := reader.ReadString('\n')
	return strings.TrimSpace(s)
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		s, err := reader.ReadString('\n')
		return strings.TrimSpace(s), err
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "exam-cli.db"
	}
	return filepath.Join(dir, "exstem-portal", "exam-cli.db")
}
