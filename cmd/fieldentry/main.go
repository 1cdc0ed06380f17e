package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xavim/fieldentry/internal/cache"
	"github.com/xavim/fieldentry/internal/config"
	"github.com/xavim/fieldentry/internal/login"
	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/remote"
	"github.com/xavim/fieldentry/internal/services"
	"github.com/xavim/fieldentry/internal/session"
	"github.com/xavim/fieldentry/internal/store"
	pkglogger "github.com/xavim/fieldentry/pkg/logger"
)

const usage = `Usage: fieldentry <command> [flags]

Commands:
  login       Authenticate against the server and store credentials
  logout      End the session and clear stored credentials
  status      Show the current session descriptor
  datasets    List available datasets
  orgunits    List organisation units for a dataset
  form        Show the entry form for a dataset
  instances   List dataset instances
  values      Show data values for an instance
  save        Save a single data value
  complete    Mark an instance complete
  reopen      Reopen a completed instance
  sync        Push locally saved values for an instance
`

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.SecureStore
	cache     *cache.Cache
	remote    *remote.Client
	sessions  *session.State
	auth      *services.AuthService
	datasets  *services.DatasetService
	dataEntry *services.DataEntryService
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldentry: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Client.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	a, err := build(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.RequestTimeout+5*time.Second)
	defer cancel()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "fieldentry: %v\n", err)
		os.Exit(1)
	}
}

func build(cfg *config.Config, logger *slog.Logger) (*app, error) {
	secureStore, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	metaCache, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open metadata cache: %w", err)
	}

	client := remote.NewClient(cfg.Client.RequestTimeout, logger)
	sessions := session.NewState(models.Session{})
	auditLogger := pkglogger.NewAuditLogger(logger)

	auth := services.NewAuthService(
		client,
		secureStore,
		sessions,
		cfg.Client.MaxFailedAttempts,
		cfg.Client.SessionTimeout,
		logger,
		auditLogger,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     secureStore,
		cache:     metaCache,
		remote:    client,
		sessions:  sessions,
		auth:      auth,
		datasets:  services.NewDatasetService(client, metaCache, sessions, logger),
		dataEntry: services.NewDataEntryService(client, metaCache, sessions, logger),
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "datasets", "orgunits", "form", "instances", "values", "save", "complete", "reopen", "sync":
		// Data commands need a live wire session; restore it from the
		// stored credentials before dispatching.
		if err := a.ensureSession(ctx); err != nil {
			return err
		}
	}

	switch command {
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout(ctx)
	case "status":
		return a.cmdStatus(ctx)
	case "datasets":
		return a.cmdDatasets(ctx)
	case "orgunits":
		return a.cmdOrgUnits(ctx, args)
	case "form":
		return a.cmdForm(ctx, args)
	case "instances":
		return a.cmdInstances(ctx, args)
	case "values":
		return a.cmdValues(ctx, args)
	case "save":
		return a.cmdSave(ctx, args)
	case "complete":
		return a.cmdComplete(ctx, args)
	case "reopen":
		return a.cmdReopen(ctx, args)
	case "sync":
		return a.cmdSync(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// ensureSession silently re-establishes the wire session from stored
// credentials. The remote client keeps its token in memory only, so
// every new process starts logged out even when credentials are stored.
func (a *app) ensureSession(ctx context.Context) error {
	if a.remote.IsLoggedIn() {
		return nil
	}
	if !a.auth.GetStoredCredentials().Complete() {
		return fmt.Errorf("not logged in, run \"fieldentry login\" first")
	}
	if !a.auth.VerifyStoredCredentials(ctx) {
		return fmt.Errorf("stored credentials no longer work, run \"fieldentry login\" again")
	}
	return nil
}

// cmdLogin drives the login controller the way an interactive screen
// would: fill the form fields, submit, then report the resulting state.
func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	serverURL := fs.String("server", a.cfg.Client.ServerURL, "server base URL")
	username := fs.String("user", "", "username")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctrl := login.NewController(a.auth, a.sessions, a.logger)
	ctrl.Start(ctx)
	defer ctrl.Stop()

	if *serverURL != "" {
		ctrl.SetServerURL(*serverURL)
	}
	if *username != "" {
		ctrl.SetUsername(*username)
	}
	if *password != "" {
		ctrl.SetPassword(*password)
	}

	if state := ctrl.State(); state.Kind == login.StateSuccess {
		fmt.Println("already logged in")
		return nil
	}

	if !ctrl.FormValid() {
		return fmt.Errorf("server, user and password are required (server must be a valid URL)")
	}

	ctrl.Login(ctx)

	state := ctrl.State()
	switch state.Kind {
	case login.StateSuccess:
		fmt.Println("login successful")
		return nil
	case login.StateError:
		return fmt.Errorf("%s", state.Message)
	default:
		return fmt.Errorf("login did not complete")
	}
}

func (a *app) cmdLogout(ctx context.Context) error {
	a.auth.Logout(ctx)
	fmt.Println("logged out")
	return nil
}

func (a *app) cmdStatus(ctx context.Context) error {
	// Best effort: a restarted process can still report a valid session
	// when the stored credentials verify against the server.
	if !a.remote.IsLoggedIn() && a.auth.GetStoredCredentials().Complete() {
		a.auth.VerifyStoredCredentials(ctx)
	}

	valid := a.auth.ValidateSession(ctx)
	sess := a.sessions.Current()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "logged in\t%t\n", sess.LoggedIn)
	fmt.Fprintf(w, "session valid\t%t\n", valid)
	if sess.Username != "" {
		fmt.Fprintf(w, "username\t%s\n", sess.Username)
	}
	if sess.ServerURL != "" {
		fmt.Fprintf(w, "server\t%s\n", sess.ServerURL)
	}
	if !sess.LastLoginTime.IsZero() {
		fmt.Fprintf(w, "last login\t%s\n", sess.LastLoginTime.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) cmdDatasets(ctx context.Context) error {
	datasets, err := a.datasets.Datasets(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tPERIOD TYPE")
	for _, d := range datasets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.UID, d.Name, d.PeriodType)
	}
	return w.Flush()
}

func (a *app) cmdOrgUnits(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orgunits", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset UID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataset == "" {
		return fmt.Errorf("-dataset is required")
	}

	units, err := a.datasets.OrgUnits(ctx, *dataset)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tLEVEL")
	for _, u := range units {
		fmt.Fprintf(w, "%s\t%s\t%d\n", u.UID, u.Name, u.Level)
	}
	return w.Flush()
}

func (a *app) cmdForm(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("form", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset UID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataset == "" {
		return fmt.Errorf("-dataset is required")
	}

	sections, err := a.dataEntry.Form(ctx, *dataset)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sections)
}

func (a *app) cmdInstances(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("instances", flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset UID filter")
	orgUnit := fs.String("orgunit", "", "organisation unit UID filter")
	period := fs.String("period", "", "period filter")
	state := fs.String("state", "", "state filter (OPEN, COMPLETED, APPROVED, LOCKED)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := models.InstanceFilter{
		DatasetUID: *dataset,
		OrgUnitUID: *orgUnit,
		PeriodID:   *period,
		State:      models.InstanceState(strings.ToUpper(*state)),
	}

	instances, err := a.datasets.Instances(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tPERIOD\tORG UNIT\tSTATE\tSYNC\tVALUES")
	for _, in := range instances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			in.Key.DatasetUID, in.Key.PeriodID, in.Key.OrgUnitUID, in.State, in.SyncState, in.ValueCount)
	}
	return w.Flush()
}

func (a *app) cmdValues(ctx context.Context, args []string) error {
	key, _, err := keyFlags("values", args, nil)
	if err != nil {
		return err
	}

	values, err := a.dataEntry.ExistingValues(ctx, key)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATA ELEMENT\tVALUE\tSTORED BY\tUPDATED")
	for _, v := range values {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			v.DataElementUID, v.Value, v.StoredBy, v.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func (a *app) cmdSave(ctx context.Context, args []string) error {
	var element, value string
	key, _, err := keyFlags("save", args, func(fs *flag.FlagSet) {
		fs.StringVar(&element, "element", "", "data element UID")
		fs.StringVar(&value, "value", "", "value to save")
	})
	if err != nil {
		return err
	}
	if element == "" {
		return fmt.Errorf("-element is required")
	}

	def, err := a.findElement(ctx, key.DatasetUID, element)
	if err != nil {
		return err
	}

	if err := a.dataEntry.SaveValue(ctx, key, def, value); err != nil {
		return err
	}
	fmt.Println("value saved")
	return nil
}

func (a *app) cmdComplete(ctx context.Context, args []string) error {
	key, _, err := keyFlags("complete", args, nil)
	if err != nil {
		return err
	}

	current, err := a.instanceState(ctx, key)
	if err != nil {
		return err
	}

	if err := a.datasets.CompleteInstance(ctx, key, current); err != nil {
		return err
	}
	fmt.Println("instance completed")
	return nil
}

func (a *app) cmdReopen(ctx context.Context, args []string) error {
	key, _, err := keyFlags("reopen", args, nil)
	if err != nil {
		return err
	}

	current, err := a.instanceState(ctx, key)
	if err != nil {
		return err
	}

	if err := a.datasets.ReopenInstance(ctx, key, current); err != nil {
		return err
	}
	fmt.Println("instance reopened")
	return nil
}

func (a *app) cmdSync(ctx context.Context, args []string) error {
	key, _, err := keyFlags("sync", args, nil)
	if err != nil {
		return err
	}

	if err := a.datasets.SyncInstance(ctx, key); err != nil {
		return err
	}
	fmt.Println("instance synced")
	return nil
}

// keyFlags parses the four flags that identify a dataset instance, plus
// any extra flags the caller registers.
func keyFlags(name string, args []string, extra func(*flag.FlagSet)) (models.InstanceKey, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dataset := fs.String("dataset", "", "dataset UID")
	period := fs.String("period", "", "period identifier")
	orgUnit := fs.String("orgunit", "", "organisation unit UID")
	combo := fs.String("combo", "HllvX50cXC0", "attribute option combo UID")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return models.InstanceKey{}, fs, err
	}
	if *dataset == "" || *period == "" || *orgUnit == "" {
		return models.InstanceKey{}, fs, fmt.Errorf("-dataset, -period and -orgunit are required")
	}
	return models.InstanceKey{
		DatasetUID:     *dataset,
		PeriodID:       *period,
		OrgUnitUID:     *orgUnit,
		AttributeCombo: *combo,
	}, fs, nil
}

func (a *app) findElement(ctx context.Context, datasetUID, elementUID string) (models.DataElement, error) {
	sections, err := a.dataEntry.Form(ctx, datasetUID)
	if err != nil {
		return models.DataElement{}, err
	}
	for _, sec := range sections {
		for _, el := range sec.Elements {
			if el.UID == elementUID {
				return el, nil
			}
		}
	}
	return models.DataElement{}, fmt.Errorf("data element %q not found in dataset %q", elementUID, datasetUID)
}

func (a *app) instanceState(ctx context.Context, key models.InstanceKey) (models.InstanceState, error) {
	instances, err := a.datasets.Instances(ctx, models.InstanceFilter{
		DatasetUID: key.DatasetUID,
		OrgUnitUID: key.OrgUnitUID,
		PeriodID:   key.PeriodID,
	})
	if err != nil {
		return models.InstanceOpen, err
	}
	for _, in := range instances {
		if in.Key == key {
			return in.State, nil
		}
	}
	return models.InstanceOpen, nil
}
