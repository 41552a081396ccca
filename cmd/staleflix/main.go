package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BattermanZ/StaleFlix/internal/backend"
	"github.com/BattermanZ/StaleFlix/internal/config"
	"github.com/BattermanZ/StaleFlix/internal/content"
	"github.com/BattermanZ/StaleFlix/internal/database"
	"github.com/BattermanZ/StaleFlix/internal/delivery"
	"github.com/BattermanZ/StaleFlix/internal/pipeline"
	"github.com/BattermanZ/StaleFlix/internal/server"
	"github.com/BattermanZ/StaleFlix/internal/session"
	"github.com/BattermanZ/StaleFlix/internal/sorting"
	"github.com/BattermanZ/StaleFlix/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "staleflix",
	Short:   "Pick stale media and tell your users about it",
	Long:    "StaleFlix lists stale movies and shows from the media backend, lets you pick what goes, and composes the monthly newsletter.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(log.LstdFlags)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if verbose || strings.EqualFold(cfg.Logging.Level, "debug") {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return setupLogging(cfg.Logging)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging tees the log to a rotating file when one is configured.
func setupLogging(l config.Logging) error {
	if l.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.File), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	fileWriter := &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAgeDays,
		Compress:   l.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	logCloser = fileWriter
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("staleflix", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/staleflix/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at your backend and choose delivery targets.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Month: %s\n\n", database.FormatMonthDisplay(database.CurrentMonthKey()))
		fmt.Println("Backend:")
		fmt.Printf("  URL: %s\n", cfg.Backend.BaseURL)
		fmt.Printf("  API key set: %t\n", cfg.Backend.APIKey != "")
		fmt.Println("\nNewsletter:")
		fmt.Printf("  Message format: %s\n", cfg.Newsletter.MessageFormat)
		fmt.Printf("  Delivery targets: %s\n", strings.Join(cfg.Newsletter.Deliver, ", "))
		fmt.Println("\nArchive:")
		fmt.Printf("  Database: %s\n", db.Path())
		fmt.Printf("  Issues: %d\n", stats.Issues)
		if stats.LastIssueMonth != "" {
			fmt.Printf("  Last issue: %s\n", database.FormatMonthDisplay(stats.LastIssueMonth))
		}
		fmt.Printf("  Deliveries: %d (%d failed)\n", stats.Deliveries, stats.FailedDeliveries)
		fmt.Printf("  Submissions: %d (%d failed)\n", stats.Submissions, stats.FailedSubmissions)

		recent, err := db.GetRecentSubmissions(5)
		if err != nil {
			return err
		}
		for _, s := range recent {
			status := "ok"
			if !s.OK {
				status = "failed"
			}
			when := ""
			if s.CreatedAt != nil {
				when = *s.CreatedAt
			}
			fmt.Printf("    %s  %-17s %-6s %d items\n", when, s.Kind, status, len(s.ItemIDs))
		}
		return nil
	},
}

// --- fetch command ---

var (
	forceRefresh bool
	sortKey      string
	sortDesc     bool
	asJSON       bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and list stale content from the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := newSession()
		snap, err := sess.Refresh(cmd.Context(), forceRefresh)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		rows := snap.Content
		if sortKey != "" {
			key, ok := sorting.ParseKey(sortKey)
			if !ok {
				return fmt.Errorf("unknown sort key %q", sortKey)
			}
			sc := &sorting.Config{Key: key}
			if sortDesc {
				sc.Direction = sorting.Descending
			}
			rows = sorting.Sort(rows, sc)
		}

		fmt.Printf("Last updated: %s\n\n", snap.Timestamp)
		printRecords(rows)

		var total float64
		for _, r := range rows {
			if gib, ok := r.Size(); ok {
				total += gib
			}
		}
		fmt.Printf("\n%d items, %s GiB\n", len(rows), humanize.FormatFloat("#,###.##", total))
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&forceRefresh, "force", false, "Ask the backend to recompute instead of serving its cache")
	fetchCmd.Flags().StringVar(&sortKey, "sort", "", "Sort by key: "+sortKeys())
	fetchCmd.Flags().BoolVar(&sortDesc, "desc", false, "Sort descending")
	fetchCmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw snapshot as JSON")
}

func sortKeys() string {
	keys := make([]string, len(sorting.Keys))
	for i, k := range sorting.Keys {
		keys[i] = string(k)
	}
	return strings.Join(keys, ", ")
}

func printRecords(rows []content.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tREQUESTER\tSIZE\tADDED\tWATCHED")
	for _, r := range rows {
		size := content.Unknown
		if gib, ok := r.Size(); ok {
			size = humanize.FormatFloat("#,###.##", gib) + " GiB"
		}
		watched := ""
		if r.RequesterWatched {
			watched = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Category, r.DisplayTitle(), r.Requester, size, r.AddedAt, watched)
	}
	w.Flush()
}

// --- submit and push commands ---

var (
	selectIDs []string
	selectAll bool
)

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&selectIDs, "ids", nil, "Comma-separated record ids to select")
	cmd.Flags().BoolVar(&selectAll, "all", false, "Select every stale record")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a selection of stale records to the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := selectRecords(cmd.Context())
		if err != nil {
			return err
		}
		ids := sess.SelectedIDs()
		msg, err := newBackend().SubmitSelection(cmd.Context(), ids)
		logSubmission(database.KindSelection, ids, msg, err)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the selected records to the delivery queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := selectRecords(cmd.Context())
		if err != nil {
			return err
		}
		records := sess.SelectedRecords()
		msg, err := newBackend().PushToDeliveryQueue(cmd.Context(), records)
		logSubmission(database.KindDeliveryQueue, content.IDs(records), msg, err)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	addSelectionFlags(submitCmd)
	addSelectionFlags(pushCmd)
}

func logSubmission(kind string, ids []string, msg string, err error) {
	db, dbErr := openDB()
	if dbErr != nil {
		log.Printf("Warning: could not open archive: %v", dbErr)
		return
	}
	defer db.Close()
	note := msg
	if err != nil {
		note = err.Error()
	}
	if _, dbErr := db.LogSubmission(kind, ids, err == nil, note); dbErr != nil {
		log.Printf("Warning: could not log submission: %v", dbErr)
	}
}

// selectRecords fetches the current snapshot and selects the records named
// by --ids or --all.
func selectRecords(ctx context.Context) (*session.Session, error) {
	if !selectAll && len(selectIDs) == 0 {
		return nil, fmt.Errorf("nothing selected; pass --ids or --all")
	}
	sess := newSession()
	snap, err := sess.Refresh(ctx, false)
	if err != nil {
		return nil, err
	}
	if selectAll {
		sess.SelectAll(true)
		return sess, nil
	}

	known := make(map[string]bool, len(snap.Content))
	for _, r := range snap.Content {
		known[r.ID] = true
	}
	for _, id := range selectIDs {
		if !known[id] {
			return nil, fmt.Errorf("record %q is not in the current stale list", id)
		}
		if !contains(sess.SelectedIDs(), id) {
			sess.Toggle(id)
		}
	}
	return sess, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// --- compose command ---

var (
	message     string
	messageFile string
	outPath     string
	send        bool
	dryRun      bool
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose the newsletter for the selected records",
	Long:  "Compose renders the newsletter with inlined styles, archives it and writes it to a file. With --send it is also handed to the configured delivery targets.",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := message
		if messageFile != "" {
			data, err := os.ReadFile(messageFile)
			if err != nil {
				return fmt.Errorf("reading message: %w", err)
			}
			msg = string(data)
		}

		var records []content.Record
		if selectAll || len(selectIDs) > 0 {
			sess, err := selectRecords(cmd.Context())
			if err != nil {
				return err
			}
			records = sess.Draft(msg).Records
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		senders, err := delivery.NewSenders(cfg.Newsletter.Deliver, newBackend(), cfg.Mail)
		if err != nil {
			return err
		}
		pipe := pipeline.New(cfg, db, senders)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(msg, records)
		} else {
			result = pipe.Run(cmd.Context(), msg, records, send)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if dryRun || result.HTML == "" {
			return result.Err()
		}

		target := outPath
		if target == "" {
			target = result.Document.Filename(cfg.Newsletter.FilenamePrefix)
		}
		if err := os.WriteFile(target, []byte(result.HTML), 0o644); err != nil {
			return fmt.Errorf("writing newsletter: %w", err)
		}
		fmt.Printf("\nNewsletter written to %s\n", target)
		return result.Err()
	},
}

func init() {
	composeCmd.Flags().StringVarP(&message, "message", "m", "", "Personal message (HTML, or Markdown with message_format: markdown)")
	composeCmd.Flags().StringVar(&messageFile, "message-file", "", "Read the personal message from a file")
	composeCmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: staleflix-newsletter-YYYY-MM.html)")
	composeCmd.Flags().BoolVar(&send, "send", false, "Deliver to the configured targets")
	composeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would happen without archiving or sending")
	addSelectionFlags(composeCmd)
}

// --- issues command ---

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List archived newsletter issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		issues, err := db.GetAllIssues()
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Println("No issues yet. Run 'staleflix compose' to create one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMONTH\tMOVIES\tSHOWS\tSIZE\tGENERATED")
		for _, is := range issues {
			generated := ""
			if is.GeneratedAt != nil {
				generated = *is.GeneratedAt
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", is.PublicID, database.FormatMonthDisplay(is.MonthKey),
				is.MovieCount, is.ShowCount, humanize.Bytes(uint64(len(is.HTML))), generated)
		}
		return w.Flush()
	},
}

var showHTML bool

var issuesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an archived issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		issue, err := db.GetIssue(args[0])
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", args[0])
		}

		if showHTML {
			fmt.Print(issue.HTML)
			return nil
		}

		fmt.Printf("Issue %s\n", issue.PublicID)
		fmt.Printf("  Month: %s\n", database.FormatMonthDisplay(issue.MonthKey))
		fmt.Printf("  Movies: %d, TV shows: %d\n", issue.MovieCount, issue.ShowCount)
		if issue.Message != "" {
			fmt.Printf("  Message: %s\n", issue.Message)
		}

		deliveries, err := db.GetDeliveries(issue.ID)
		if err != nil {
			return err
		}
		for _, d := range deliveries {
			status := "ok"
			if !d.OK {
				status = "failed"
			}
			note := ""
			if d.Message != nil {
				note = *d.Message
			}
			fmt.Printf("  Delivery %s: %s %s\n", d.Target, status, note)
		}
		return nil
	},
}

func init() {
	issuesShowCmd.Flags().BoolVar(&showHTML, "html", false, "Print the newsletter HTML")
	issuesCmd.AddCommand(issuesShowCmd)
}

// --- serve command ---

var (
	servePort int
	serveHost string
	noFetch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		be := newBackend()
		senders, err := delivery.NewSenders(cfg.Newsletter.Deliver, be, cfg.Mail)
		if err != nil {
			return err
		}

		sess := session.New(store.New(be))
		if !noFetch {
			if _, err := sess.Refresh(cmd.Context(), true); err != nil {
				log.Printf("Initial fetch failed, the table stays empty until a refresh works: %v", err)
			}
		}

		srv, err := server.New(server.Deps{
			Session:        sess,
			Backend:        be,
			Pipeline:       pipeline.New(cfg, db, senders),
			DB:             db,
			FilenamePrefix: cfg.Newsletter.FilenamePrefix,
		})
		if err != nil {
			return err
		}

		host := cfg.Server.Host
		if serveHost != "" {
			host = serveHost
		}
		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx, fmt.Sprintf("%s:%d", host, port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host (default from config)")
	serveCmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Do not fetch stale content on startup")
}

func newBackend() *backend.Client {
	return backend.New(cfg.Backend)
}

func newSession() *session.Session {
	return session.New(store.New(newBackend()))
}

func openDB() (*database.DB, error) {
	return database.OpenInDir(cfg.GetDataDir())
}
