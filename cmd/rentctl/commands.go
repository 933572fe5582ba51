package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xelth-com/eckrentgo/internal/booking"
	"github.com/xelth-com/eckrentgo/internal/config"
	"github.com/xelth-com/eckrentgo/internal/database"
	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/rental"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"github.com/xelth-com/eckrentgo/internal/serial"
	"github.com/xelth-com/eckrentgo/internal/utils"
)

// env is what most commands need: config, database and the rental store
type env struct {
	cfg   *config.Config
	db    *database.DB
	store repository.Store
}

// openEnv connects to the configured backend. With the memory driver the
// rentals, reservations and serial counters come from DATA_FILE.
func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := &env{cfg: cfg, db: db}
	if cfg.Storage.Driver == config.StorageMemory {
		mem, err := repository.NewMemoryStore(cfg.Storage.DataFile)
		if err != nil {
			db.Close()
			return nil, err
		}
		e.store = mem
	} else {
		e.store = repository.NewGormStore(db.DB)
	}
	return e, nil
}

// the snapshot file has one writer, the API server
var errMemoryReadOnly = errors.New("memory storage is read-only from rentctl; use the API or STORAGE_DRIVER=sqlite|postgres")

func (e *env) writable() error {
	if e.cfg.Storage.Driver == config.StorageMemory {
		return errMemoryReadOnly
	}
	return nil
}

func (e *env) issuer() (*serial.Issuer, error) {
	policy, err := serial.ParseResetPolicy(e.cfg.Serial.ResetPolicy)
	if err != nil {
		return nil, err
	}
	var (
		counters serial.CounterStore = serial.NewGormCounterStore(e.db.DB)
		audit    serial.AuditSink    = serial.NewGormAuditSink(e.db.DB)
	)
	if mem, ok := e.store.(*repository.MemoryStore); ok {
		counters = serial.NewSnapshotCounterStore(mem)
		audit = serial.LogAuditSink{}
	}
	return serial.NewIssuer(counters, audit, serial.Options{
		Width:       e.cfg.Serial.Width,
		ResetPolicy: policy,
	}), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", e.cfg.Storage.Driver)
			return nil
		},
	}
}

func serialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "Issue or inspect document numbers",
	}

	var (
		year     int
		peekYear int
		width    int
		prefix   string
		actor    string
	)
	issue := &cobra.Command{
		Use:   "issue <entity>",
		Short: "Issue the next number for an entity kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := serial.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.db.Close()
			if err := e.writable(); err != nil {
				return err
			}
			iss, err := e.issuer()
			if err != nil {
				return err
			}
			s, err := iss.IssueNextSerial(cmd.Context(), kind, serial.Options{
				Year: year, Width: width, Prefix: prefix, ActorID: actor, UserAgent: "rentctl",
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Value)
			return nil
		},
	}
	issue.Flags().IntVar(&year, "year", 0, "Year to issue for (default: current)")
	issue.Flags().IntVar(&width, "width", 0, "Zero-padded counter width")
	issue.Flags().StringVar(&prefix, "prefix", "", "Override the kind prefix")
	issue.Flags().StringVar(&actor, "actor", "rentctl", "Actor recorded in the audit log")

	peek := &cobra.Command{
		Use:   "peek <entity>",
		Short: "Show the last issued number without consuming one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := serial.ParseEntityKind(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.db.Close()
			iss, err := e.issuer()
			if err != nil {
				return err
			}
			s, err := iss.Peek(cmd.Context(), kind, serial.Options{Year: peekYear})
			if err != nil {
				return err
			}
			if s.Counter == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing issued for %d\n", s.Kind, s.Year)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Value)
			return nil
		},
	}
	peek.Flags().IntVar(&peekYear, "year", 0, "Year to inspect (default: current)")

	kinds := &cobra.Command{
		Use:   "kinds",
		Short: "List entity kinds and their prefixes",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range serial.Kinds() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", k, k.Prefix())
			}
		},
	}

	cmd.AddCommand(issue, peek, kinds)
	return cmd
}

func conflictsCmd() *cobra.Command {
	var (
		q     booking.Query
		start string
	)
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check a period against existing reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if q.PropertyID == "" {
				return fmt.Errorf("--property is required")
			}
			var err error
			if q.Start, err = booking.ParseDate(start); err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.db.Close()

			conflict, list, err := booking.NewResolver(e.store).HasConflict(cmd.Context(), q)
			if err != nil {
				return err
			}
			if !conflict {
				fmt.Fprintf(cmd.OutOrStdout(), "free: %s to %s\n", q.Start.Format("2006-01-02"), q.End().Format("2006-01-02"))
				return nil
			}
			for _, r := range list {
				end := booking.EndDate(r.StartDate, r.Months, r.Days)
				fmt.Fprintf(cmd.OutOrStdout(), "conflict: %s %s to %s (%s)\n",
					r.ID, r.StartDate.Format("2006-01-02"), end.Format("2006-01-02"), r.Contact.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&q.PropertyID, "property", "", "Property id")
	cmd.Flags().StringVar(&q.UnitID, "unit", "", "Unit id")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&q.Months, "months", 0, "Length in months")
	cmd.Flags().IntVar(&q.Days, "days", 0, "Length in days")
	return cmd
}

func rentalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rental",
		Short: "Inspect and move rental records",
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a rental record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.db.Close()
			rec, err := e.store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}

	var actor, note string
	transition := &cobra.Command{
		Use:   "transition <id> <event>",
		Short: "Apply a lifecycle event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.db.Close()
			if err := e.writable(); err != nil {
				return err
			}
			iss, err := e.issuer()
			if err != nil {
				return err
			}
			rec, err := rental.NewMachine(e.store, iss).Transition(cmd.Context(), args[0], rental.Event(args[1]), actor, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (version %d)\n", rec.ID, rec.State, rec.Version)
			return nil
		},
	}
	transition.Flags().StringVar(&actor, "actor", "rentctl", "Actor recorded in history")
	transition.Flags().StringVar(&note, "note", "", "History note")

	events := &cobra.Command{
		Use:   "events",
		Short: "List lifecycle events and where they lead",
		Run: func(cmd *cobra.Command, args []string) {
			for _, ev := range rental.Events() {
				rule := rental.Transitions[ev]
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %v -> %s\n", ev, rule.From, rule.To)
			}
		},
	}

	cmd.AddCommand(show, transition, events)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Sign an API token with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireJWT(); err != nil {
				return err
			}
			token, err := utils.GenerateToken(args[0], role, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "agent", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
