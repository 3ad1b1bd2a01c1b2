package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"carelink/internal/apperr"
	"carelink/internal/browser"
	"carelink/internal/caldav"
	"carelink/internal/clock"
	"carelink/internal/credentials"
	"carelink/internal/meeting"
	"carelink/internal/models"
	"carelink/internal/publisher"
	"carelink/internal/scheduler"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "carelink",
		Usage: "Schedule consultations and join their video meetings within the booked time.",
		Commands: []*cli.Command{
			signinCommand(),
			authCommand(),
			captureCommand(),
			sessionCommand(),
			scheduleCommand(),
			joinCommand(),
			publishCommand(),
			logoutCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

var openFlag = &cli.BoolFlag{Name: "open", Value: true, Usage: "Open links in the system browser as well as printing them."}

func signinCommand() *cli.Command {
	return &cli.Command{
		Name:  "signin",
		Usage: "Print the Google sign-in link that starts the authorization round trip.",
		Flags: []cli.Flag{openFlag},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			coordinator, err := e.authCoordinator()
			if err != nil {
				return err
			}
			return e.opener(c.Bool("open")).Navigate(c.Context, coordinator.SignInURL("carelink"))
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in with Google and capture the tokens on a local callback server.",
		Flags: []cli.Flag{
			openFlag,
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "Give up waiting for the sign-in after this long."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			coordinator, err := e.authCoordinator()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			e.logger.Info("Starting Google authentication flow")
			if err := coordinator.Login(ctx, e.cfg.CallbackAddr, e.opener(c.Bool("open")).Open); err != nil {
				return fmt.Errorf("sign-in did not complete: %w", err)
			}
			fmt.Println("Signed in. You can now schedule meetings.")
			return nil
		},
	}
}

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Store the tokens carried by a sign-in redirect URL.",
		ArgsUsage: "URL",
		Action: func(c *cli.Context) error {
			raw := c.Args().First()
			if raw == "" {
				return cli.Exit("capture needs the URL the sign-in redirected to", 2)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			coordinator, err := e.authCoordinator()
			if err != nil {
				return err
			}
			location, err := parseURL(raw)
			if err != nil {
				return err
			}
			stripped, captured, err := coordinator.Capture(c.Context, location)
			if err != nil {
				return cli.Exit(apperr.UserMessage(err, "Authentication failed"), 1)
			}
			if !captured {
				fmt.Println("No credentials in that URL; keeping the current sign-in.")
				return nil
			}
			fmt.Printf("Signed in. Continue at %s\n", stripped)
			return nil
		},
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "Store the care platform session token used for meeting calls.",
		ArgsUsage: "TOKEN",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			if token := c.Args().First(); token != "" {
				if err := e.store.Set(c.Context, credentials.KeyAuthToken, token); err != nil {
					return fmt.Errorf("failed to save session token: %w", err)
				}
			}
			token, identity, err := credentials.Session(c.Context, e.store)
			if err != nil {
				return err
			}
			if token == "" {
				fmt.Println("No session token stored.")
				return nil
			}
			fmt.Printf("Session for %s (%s)\n", identity.DisplayName(), identity.Role)
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Create a calendar event with a Google Meet link.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "summary", Usage: "Event title."},
			&cli.StringFlag{Name: "description", Usage: "Event description."},
			&cli.StringFlag{Name: "start", Usage: "Start time, RFC 3339 or \"2006-01-02 15:04\" in PRIMARY_TIMEZONE."},
			&cli.StringFlag{Name: "end", Usage: "End time, same formats as --start."},
			&cli.StringSliceFlag{Name: "attendee", Usage: "Attendee email, repeatable."},
			&cli.StringFlag{Name: "ics", Usage: "Also write the created event as an iCalendar invite to this file."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			form := &scheduler.Form{
				Summary:     c.String("summary"),
				Description: c.String("description"),
				Attendees:   c.StringSlice("attendee"),
			}
			if form.Start, err = parseTime(c.String("start"), e.cfg.Location); err != nil {
				return cli.Exit(fmt.Sprintf("--start: %v", err), 2)
			}
			if form.End, err = parseTime(c.String("end"), e.cfg.Location); err != nil {
				return cli.Exit(fmt.Sprintf("--end: %v", err), 2)
			}

			creator, err := e.eventCreator()
			if err != nil {
				return err
			}
			res, err := scheduler.NewCoordinator(creator, e.store, e.logger).Submit(c.Context, form)
			if err != nil {
				return cli.Exit(apperr.UserMessage(err, scheduler.FailureMessage), 1)
			}

			fmt.Printf("Meeting created: %s\n", res.Link)
			if name := c.String("ics"); name != "" {
				if res.Event.UID == "" {
					res.Event.UID = caldav.GenerateUID()
				}
				if err := caldav.WriteInviteFile(name, res.Event); err != nil {
					return err
				}
				e.logger.Info("Wrote invite", "file", name, "uid", res.Event.UID)
			}
			return nil
		},
	}
}

func joinCommand() *cli.Command {
	return &cli.Command{
		Name:      "join",
		Usage:     "Join the meeting of an appointment while its time slot is open.",
		ArgsUsage: "APPOINTMENT_ID",
		Flags:     []cli.Flag{openFlag},
		Action: func(c *cli.Context) error {
			appointmentID := c.Args().First()
			if appointmentID == "" {
				return cli.Exit("join needs an appointment id", 2)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := e.apiClient()
			controller := meeting.NewController(
				meeting.Config{
					AppointmentID:   appointmentID,
					Location:        e.cfg.Location,
					HistoryURL:      e.cfg.HistoryURL(),
					AppointmentsURL: e.cfg.AppointmentsURL(),
					CallTimeout:     e.cfg.RequestTimeout,
					LeaveTimeout:    e.cfg.LeaveTimeout,
				},
				client,
				meeting.NewResolver(client, e.logger),
				e.opener(c.Bool("open")),
				browser.NewConsole(os.Stdout),
				e.store,
				clock.Real{},
				e.logger,
			)
			defer func() {
				controller.Close()
				controller.Wait()
			}()
			// An interrupt is teardown: it abandons whatever step is running.
			stopOnSignal := context.AfterFunc(ctx, controller.Close)
			defer stopOnSignal()

			if err := controller.Start(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return cli.Exit("", 1)
			}

			select {
			case <-ctx.Done():
			case <-controller.Done():
			}
			return nil
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish iCalendar invites to the CalDAV calendar, each event once.",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be published without making changes."},
		},
		Action: func(c *cli.Context) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return cli.Exit("publish needs at least one .ics file", 2)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			if c.Bool("dry-run") {
				e.logger.Info("Performing a dry run. No changes will be made")
			}

			var events []models.Event
			for _, name := range files {
				evs, err := caldav.ReadInviteFile(name, e.cfg.Location)
				if err != nil {
					return err
				}
				events = append(events, evs...)
			}

			var uploader publisher.Uploader = dryRunUploader{}
			if !c.Bool("dry-run") {
				if e.cfg.CalDAVUsername == "" || e.cfg.CalDAVPassword == "" || e.cfg.CalDAVCalendar == "" {
					return cli.Exit("ICLOUD_USERNAME, ICLOUD_APP_SPECIFIC_PASSWORD and ICLOUD_CALENDAR_NAME must be set", 2)
				}
				client, err := caldav.NewClient(c.Context, e.logger, e.cfg.CalDAVEndpoint, e.cfg.CalDAVUsername, e.cfg.CalDAVPassword, e.cfg.CalDAVCalendar)
				if err != nil {
					return fmt.Errorf("failed to create caldav client: %w", err)
				}
				uploader = client
			}

			p, err := publisher.New(e.logger, uploader, e.cfg.PublishState, c.Bool("dry-run"), e.cfg.Location)
			if err != nil {
				return err
			}
			report, err := p.Publish(c.Context, events)
			if err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			fmt.Printf("Published %d, already published %d, failed %d\n", report.Published, report.Skipped, report.Failed)
			if report.Failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored Google tokens.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Forget the platform session token too."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			coordinator, err := e.authCoordinator()
			if err != nil {
				return err
			}
			if err := coordinator.Logout(c.Context); err != nil {
				return err
			}
			if c.Bool("all") {
				if err := e.store.Delete(c.Context, credentials.KeyAuthToken); err != nil {
					return fmt.Errorf("failed to delete session token: %w", err)
				}
			}
			e.logger.Info("Signed out")
			return nil
		},
	}
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}
