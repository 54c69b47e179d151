package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/http"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/wfigs"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/config"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/observability"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/scheduler"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

type cli struct {
	app *app
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "perimeters",
		Short: "Download and consolidate fire perimeters for disaster maps",
		Long: `perimeters turns the raw fire perimeter files of a disaster into a
daily perimeter layer and a daily difference layer.

Settings come from the environment (DATA_DIR, DISASTERS_FILE, WFIGS_URL,
WFIGS_ACTIVE_URL, COPERNICUS_URL, KAFKA_BROKERS, ...) and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.app = newApp(cfg, observability.NewLogger(cfg))
			return nil
		},
	}
	root.AddCommand(
		c.listCmd(),
		c.initCmd(),
		c.downloadCmd(),
		c.processCmd(),
		c.runCmd(),
		c.watchCmd(),
		c.searchCmd(),
	)
	return root
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured disasters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.app.provider.List(cmd.Context())
			if err != nil {
				return err
			}
			return printDisasters(cmd.OutOrStdout(), list, domain.Today())
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Find active WFIGS perimeters whose incident name contains name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer c.app.close()
			found, err := wfigs.Search(cmd.Context(), c.app.active, c.app.cfg.WFIGSActiveURL, args[0])
			if err != nil {
				return err
			}
			return printActive(cmd.OutOrStdout(), args[0], found)
		},
	}
}

func (c *cli) initCmd() *cobra.Command {
	var nd workspace.NewDisaster
	cmd := &cobra.Command{
		Use:   "init <id>",
		Short: "Create the folder skeleton and draft config of a new disaster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nd.ID = args[0]
			path, err := c.app.layout.Init(nd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\nset the bounding box before processing\n", path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&nd.Type, "type", "fire", "disaster type (fire, hurricane, cyclone)")
	f.StringVar(&nd.Name, "name", "", "display name")
	f.StringVar(&nd.DateStart, "start", "", "first day, YYYY-MM-DD")
	f.StringVar(&nd.DateEnd, "end", "", "last day, YYYY-MM-DD")
	f.Float64Var(&nd.Lat, "lat", 0, "map center latitude")
	f.Float64Var(&nd.Lng, "lng", 0, "map center longitude")
	f.Float64Var(&nd.Zoom, "zoom", 9, "map zoom")
	f.IntVar(&nd.HourInterval, "interval", 8, "data reporting interval in hours")
	f.StringSliceVar(&nd.States, "states", nil, "affected US states")
	return cmd
}

func (c *cli) downloadCmd() *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "download <id> | --all",
		Short: "Stage raw perimeter files from WFIGS or Copernicus EMS",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer c.app.close()
			list, err := c.selectDisasters(cmd.Context(), args, sel)
			if err != nil {
				return err
			}
			var errs []error
			for _, d := range list {
				paths, err := c.app.refresher.Download(cmd.Context(), d)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files staged in %s\n", d.ID, len(paths), c.app.layout.PerimeterInputDir(d.ID))
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", d.ID, err))
				}
			}
			c.app.pushMetrics("download")
			return errors.Join(errs...)
		},
	}
	sel.bind(cmd)
	return cmd
}

func (c *cli) processCmd() *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "process <id> | --all",
		Short: "Build the perimeter and difference layers from staged files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.each(cmd, args, sel, "process", c.app.pipeline.Run)
		},
	}
	sel.bind(cmd)
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "run <id> | --all",
		Short: "Download and then process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.each(cmd, args, sel, "run", c.app.refresher.Refresh)
		},
	}
	sel.bind(cmd)
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh active disasters on an interval and serve health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.watch(cmd.Context())
		},
	}
}

// watch runs until ctx is cancelled by SIGINT or SIGTERM.
func (c *cli) watch(ctx context.Context) error {
	a := c.app
	defer a.close()

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.pipeline, a.pipeline, a.logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(a.provider, a.refresher, a.cfg.WatchInterval, a.logger)
	sched.WatchFile(a.cfg.DisastersFile)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

type runFunc func(ctx context.Context, d domain.Disaster) (perimeter.RunReport, error)

// each runs fn for every selected disaster, printing one line per run.
// A failing disaster does not stop the others.
func (c *cli) each(cmd *cobra.Command, args []string, sel selection, instance string, fn runFunc) error {
	defer c.app.close()

	list, err := c.selectDisasters(cmd.Context(), args, sel)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DISASTER\tSTATUS\tFILES\tFAILED FILES\tINCIDENTS\tFAILED INCIDENTS")
	var errs []error
	for _, d := range list {
		report, err := fn(cmd.Context(), d)
		printReport(tw, d.ID, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.ID, err))
		}
	}
	if err := tw.Flush(); err != nil {
		errs = append(errs, err)
	}
	c.app.pushMetrics(instance)
	return errors.Join(errs...)
}

// selection picks the disasters a batch command works on.
type selection struct {
	all    bool
	active bool
}

func (s *selection) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&s.all, "all", false, "every disaster in the disasters file")
	cmd.Flags().BoolVar(&s.active, "active", false, "with --all, only disasters that are ongoing or not yet ended")
}

func (c *cli) selectDisasters(ctx context.Context, args []string, sel selection) ([]domain.Disaster, error) {
	if err := sel.validate(args); err != nil {
		return nil, err
	}
	if !sel.all {
		d, err := c.app.provider.Get(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return []domain.Disaster{d}, nil
	}
	list, err := c.app.provider.List(ctx)
	if err != nil {
		return nil, err
	}
	if sel.active {
		list = activeOnly(list, domain.Today())
	}
	return list, nil
}

func (s selection) validate(args []string) error {
	switch {
	case s.all && len(args) > 0:
		return errors.New("pass a disaster id or --all, not both")
	case !s.all && len(args) != 1:
		return errors.New("a disaster id or --all is required")
	case s.active && !s.all:
		return errors.New("--active needs --all")
	}
	return nil
}

func activeOnly(list []domain.Disaster, today domain.Date) []domain.Disaster {
	var out []domain.Disaster
	for _, d := range list {
		if d.Active(today) {
			out = append(out, d)
		}
	}
	return out
}

func printReport(w io.Writer, id string, r perimeter.RunReport) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", id, r.Status, len(r.Files), r.FailedFiles(), len(r.Incidents), r.FailedIncidents())
}

func printActive(w io.Writer, query string, found []wfigs.ActivePerimeter) error {
	if len(found) == 0 {
		_, err := fmt.Fprintf(w, "no active perimeters matching %q\n", query)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGLOBAL ID\tFIRE ID\tACRES\tPOLYGON TIME")
	for _, p := range found {
		polyTime := "-"
		if !p.PolygonTime.IsZero() {
			polyTime = p.PolygonTime.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, dash(p.GlobalID), dash(p.FireID),
			strconv.FormatFloat(p.Acres, 'f', -1, 64), polyTime)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printDisasters(w io.Writer, list []domain.Disaster, today domain.Date) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tSTART\tEND\tONGOING\tACTIVE")
	for _, d := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\n", d.ID, d.Source(), d.DateStart, d.DateEnd, d.IsOngoing, d.Active(today))
	}
	return tw.Flush()
}
