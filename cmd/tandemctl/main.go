// tandemctl is a small terminal client used for exercising the core against
// a running backend: it logs in, lists data, and tails realtime
// notifications.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tandem "github.com/talent-tandem/tandem-go"
	"github.com/talent-tandem/tandem-go/api"
	"github.com/talent-tandem/tandem-go/config"
	"github.com/talent-tandem/tandem-go/notify"
)

func main() {
	configureLogging()
	logBuildInfo()

	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("tandemctl failed")
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tandemctl <login|skills|sessions|listen|logout> [flags]")
	}

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	core, err := tandem.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("client core construction failed: %w", err)
	}
	defer core.Close()

	switch args[0] {
	case "login":
		return runLogin(ctx, core, args[1:])
	case "skills":
		return runSkills(ctx, core)
	case "sessions":
		return runSessions(ctx, core)
	case "listen":
		return runListen(ctx, core)
	case "logout":
		return core.API.Logout(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runLogin(ctx context.Context, core *tandem.Core, args []string) error {
	flags := flag.NewFlagSet("login", flag.ContinueOnError)
	username := flags.String("username", "", "account username")
	password := flags.String("password", "", "account password")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("login requires -username and -password")
	}

	resp, err := core.API.Login(ctx, api.LoginRequest{Username: *username, Password: *password})
	if err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("login rejected: %s", resp.Message)
	}

	log.Info().Int64("id", resp.ID).Str("username", resp.Username).Msg("logged in")
	return nil
}

func runSkills(ctx context.Context, core *tandem.Core) error {
	skills, err := core.API.AllSkills(ctx)
	if err != nil {
		return err
	}

	for _, skill := range skills {
		fmt.Printf("%d\t%s\n", skill.ID, skill.Name)
	}
	return nil
}

func runSessions(ctx context.Context, core *tandem.Core) error {
	identity, ok := core.Credentials.Identity()
	if !ok {
		return fmt.Errorf("not logged in")
	}

	sessions, err := core.API.UserSessions(ctx, identity.ID)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		fmt.Printf("%d\t%s\t%s\t%s\n", s.SessionID, s.SkillName, s.Status, s.ScheduledTime)
	}
	return nil
}

func runListen(ctx context.Context, core *tandem.Core) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// keep the access token fresh for the duration of the tail
	go core.API.AutoRenew(ctx, 2*time.Minute)

	kinds := []notify.Kind{
		notify.KindSessionRequested, notify.KindSessionAccepted,
		notify.KindSessionStarted, notify.KindSessionCompleted,
		notify.KindSessionCancelled, notify.KindMatchFound,
		notify.KindChatMessage, notify.KindUpdate,
	}
	for _, kind := range kinds {
		core.Router.On(kind, printEvent)
	}

	if err := core.ConnectRealtime(ctx); err != nil {
		return err
	}

	log.Info().Msg("listening for notifications, ctrl-c to stop")
	<-ctx.Done()
	return nil
}

func printEvent(event notify.Event) {
	fmt.Printf("%s\t%s\t%s\n", event.Kind, event.Topic, string(event.Raw))
}

func configureLogging() {
	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Debug()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}
