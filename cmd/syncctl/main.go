// Command syncctl is the device-side tool: it keeps the local state file,
// syncs it with the account record and can run the fallback report poller.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"attendpro/internal/app"
	"attendpro/internal/domain/account"
	"attendpro/internal/domain/training"
	"attendpro/internal/infra/config"
	idb "attendpro/internal/infra/database"
	"attendpro/internal/infra/localstore"
	"attendpro/internal/infra/logger"
	"attendpro/internal/infra/relay"
	"attendpro/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

const usage = `usage: syncctl <command> [flags]

commands:
  register      create the account record
  bootstrap     reconcile local state with the account record
  push          upload local changes
  pull          download remote changes (-prefer-remote to resolve conflicts)
  status        show sync state
  card-add      create a card (-kind -names -days -hour -count)
  mark          set a session status (-card -session -status)
  close-month   freeze the payroll of -month YYYY-MM
  reopen-month  unfreeze -month YYYY-MM
  payroll       print the payroll of -month YYYY-MM
  report        print the daily summary of -date (-send relays it)
  watch         keep syncing and run the client report poller until interrupted
`

type runtime struct {
	cfg      *config.AppConfig
	ws       *app.Workspace
	store    *localstore.FileStore
	accounts *app.AccountService
	engine   *app.ScheduleEngine
	sync     *app.SyncCoordinator
	log      *logrus.Entry
	close    func()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg, "syncctl", os.Stderr)

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(cfg, cmd, args); err != nil {
		logger.Component("syncctl").WithError(err).WithField("command", cmd).Error("Command failed")
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	email := fs.String("email", os.Getenv("ATTENDPRO_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("ATTENDPRO_PASSWORD"), "account password")
	name := fs.String("name", "", "display name (register)")
	preferRemote := fs.Bool("prefer-remote", false, "adopt the remote record on conflict (pull)")
	kind := fs.String("kind", string(training.KindPersonal), "card kind: personal, split, mini_group")
	names := fs.String("names", "", "comma separated participant names")
	days := fs.String("days", "", "comma separated weekdays 1-7, Monday first")
	hour := fs.Int("hour", 18, "session hour 0-23")
	count := fs.Int("count", 8, "package size")
	cardID := fs.String("card", "", "card id")
	sessionID := fs.String("session", "", "session id")
	status := fs.String("status", "", "planned, attended or missed")
	monthArg := fs.String("month", "", "month YYYY-MM")
	dateArg := fs.String("date", "", "date YYYY-MM-DD, default today")
	send := fs.Bool("send", false, "relay the report (report)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := open(cfg)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.RemoteTimeout)
	defer cancel()

	var sess account.Session
	if cmd == "register" {
		sess, err = rt.accounts.Register(ctx, *email, *password, *name)
	} else {
		sess, err = rt.accounts.Login(ctx, *email, *password)
	}
	if err != nil {
		return err
	}
	rt.sync.SignIn(sess)
	owner := sess.ID

	switch cmd {
	case "register", "bootstrap":
		if err := rt.sync.Bootstrap(ctx); err != nil {
			return err
		}
		cards := app.NewCardService(rt.ws, rt.engine, cfg.ReportTimezone, logger.Component("cards"))
		if err := cards.RefreshSchedules(owner); err != nil {
			return err
		}
		return printJSON(rt.sync.Status())
	case "push":
		if err := rt.sync.Push(ctx); err != nil {
			return err
		}
		return printJSON(rt.sync.Status())
	case "pull":
		outcome, err := rt.sync.Pull(ctx, *preferRemote)
		if err != nil {
			return err
		}
		fmt.Println(outcome)
		return nil
	case "status":
		return printJSON(struct {
			Push app.SyncStatus    `json:"push"`
			Sync account.SyncState `json:"sync"`
		}{rt.sync.Status(), rt.ws.SyncState(owner)})
	case "card-add":
		weekdays, err := parseWeekdays(*days)
		if err != nil {
			return err
		}
		cards := app.NewCardService(rt.ws, rt.engine, cfg.ReportTimezone, logger.Component("cards"))
		card, err := cards.CreateCard(owner, app.CardInput{
			Kind:         training.Kind(*kind),
			Participants: strings.Split(*names, ","),
			Days:         weekdays,
			Hour:         *hour,
			PackageCount: *count,
		})
		if err != nil {
			return err
		}
		if err := printJSON(card); err != nil {
			return err
		}
		return rt.sync.Push(ctx)
	case "mark":
		ledger := app.NewAttendanceLedger(rt.ws, rt.engine, cfg.ReportTimezone, logger.Component("ledger"))
		if err := ledger.MarkPersonal(owner, *cardID, *sessionID, training.Status(*status)); err != nil {
			return err
		}
		return rt.sync.Push(ctx)
	case "close-month", "reopen-month", "payroll":
		month, err := training.ParseMonth(*monthArg)
		if err != nil {
			return fmt.Errorf("invalid -month: %w", err)
		}
		closures := app.NewSalaryClosureStore(rt.ws, logger.Component("payroll"))
		switch cmd {
		case "close-month":
			report, err := closures.CloseMonth(owner, month)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
		case "reopen-month":
			if err := closures.ReopenMonth(owner, month); err != nil {
				return err
			}
		default:
			return printJSON(closures.GetReport(owner, month))
		}
		return rt.sync.Push(ctx)
	case "report":
		now := time.Now().In(cfg.ReportTimezone)
		date := training.DateOf(now)
		if *dateArg != "" {
			if date, err = training.ParseDate(*dateArg); err != nil {
				return fmt.Errorf("invalid -date: %w", err)
			}
		}
		title := sess.DisplayName
		if title == "" {
			title = sess.Email
		}
		var doc account.StateDocument
		var settings account.Settings
		rt.ws.View(func(s *app.State) {
			doc = s.Document(owner)
			settings = s.SettingsOf(owner)
		})
		text := app.BuildDailySummary(title, doc, date)
		fmt.Println(text)
		if !*send {
			return nil
		}
		if cfg.RelayBaseURL == "" {
			return fmt.Errorf("RELAY_BASE_URL is not set")
		}
		req := app.ManualDispatchRequest(settings.AutoReport, now, sess.Email, date, text)
		res, err := relay.NewClient(cfg.RelayBaseURL, cfg.RemoteTimeout, logger.Component("relay")).Dispatch(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "watch":
		cancel()
		return watch(rt, cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func open(cfg *config.AppConfig) (*runtime, error) {
	log := logger.Component("syncctl")
	store := localstore.NewFileStore(cfg.LocalStatePath, logger.Component("localstore"))
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	ws := app.NewWorkspace(st, app.SystemClock())
	store.Attach(ws)

	db, err := idb.NewPostgresConnection(context.Background(), cfg.DatabaseURL, idb.DevicePool)
	if err != nil {
		return nil, err
	}
	repo := idb.NewPostgresAccountRepository(db)
	engine := app.NewScheduleEngine()
	coordinator := app.NewSyncCoordinator(ws, repo, engine, app.SyncOptions{
		Timeout:  cfg.RemoteTimeout,
		Location: cfg.ReportTimezone,
	}, logger.Component("sync"))

	return &runtime{
		cfg:      cfg,
		ws:       ws,
		store:    store,
		accounts: app.NewAccountService(repo, cfg.AdminTelegramID, cfg.RemoteTimeout, logger.Component("accounts")),
		engine:   engine,
		sync:     coordinator,
		log:      log,
		close: func() {
			coordinator.Stop()
			db.Close()
		},
	}, nil
}

func watch(rt *runtime, cfg *config.AppConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.RemoteTimeout)
	err := rt.sync.Bootstrap(ctx)
	cancel()
	if err != nil {
		rt.log.WithError(err).Warn("Initial sync failed, continuing with local state")
	}
	rt.sync.Start()

	sched := scheduler.NewReportScheduler(cfg.ReportTimezone, logger.Component("scheduler"))
	if cfg.SchedulerEnabled && cfg.SchedulerMode == config.ModeClient {
		if cfg.RelayBaseURL == "" {
			return fmt.Errorf("SCHEDULER_MODE=client requires RELAY_BASE_URL")
		}
		status := app.NewSchedulerStatus(true, config.ModeClient, cfg.ClientPollSpec)
		status.SetIntegration("relay", true)
		reporter := app.NewClientAutoReporter(rt.ws, rt.sync,
			relay.NewClient(cfg.RelayBaseURL, cfg.RemoteTimeout, logger.Component("relay")),
			cfg.ReportTimezone, status, nil, logger.Component("client_report"))
		if err := sched.AddClientPoll(cfg.ClientPollSpec, reporter); err != nil {
			return err
		}
	}
	sched.Start()
	rt.log.WithField("state_file", rt.store.Path()).Info("Watching for changes")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sched.Stop()
	rt.sync.Stop()
	ctx, cancel = context.WithTimeout(context.Background(), cfg.RemoteTimeout)
	defer cancel()
	if err := rt.sync.Push(ctx); err != nil {
		rt.log.WithError(err).Warn("Final push failed; changes stay pending")
	}
	return nil
}

// parseWeekdays reads "1,3,5" with 1 for Monday and 7 for Sunday.
func parseWeekdays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 7 {
			return nil, fmt.Errorf("invalid weekday %q", part)
		}
		out = append(out, time.Weekday(n%7))
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
