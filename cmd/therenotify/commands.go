package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/docuflow/therenotify/internal/config"
	"github.com/docuflow/therenotify/internal/domain"
	"github.com/docuflow/therenotify/internal/mailer"
	"github.com/docuflow/therenotify/internal/report"
	"github.com/docuflow/therenotify/internal/runlog"
	"github.com/docuflow/therenotify/internal/schedule"
	"github.com/docuflow/therenotify/internal/store"
	"github.com/docuflow/therenotify/internal/therefore"
)

var logsLimit int

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the report scheduler",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	runCmd := &cobra.Command{
		Use:   "run REPORT_ID",
		Short: "Run a report now",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "List report definitions",
		RunE:  runReports,
	}
	rootCmd.AddCommand(reportsCmd)

	logsCmd := &cobra.Command{
		Use:   "logs [REPORT_ID]",
		Short: "Show recent run log entries",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLogs,
	}
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "number of entries to show")
	rootCmd.AddCommand(logsCmd)

	checkCmd := &cobra.Command{
		Use:   "check TENANT_ID",
		Short: "Test the connection to a tenant",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	rootCmd.AddCommand(checkCmd)

	processesCmd := &cobra.Command{
		Use:   "processes TENANT_ID",
		Short: "List a tenant's workflow processes",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcesses,
	}
	rootCmd.AddCommand(processesCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.General.DataDir)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureDefaultTemplates(mailer.DefaultTemplates()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newProcessor(cfg *config.Config, st *store.Store, runs *runlog.Store) *report.Processor {
	newSource := func(tenant domain.Tenant) report.InstanceSource {
		client := therefore.NewClient(tenant)
		client.SetHTTPTimeout(time.Duration(cfg.Therefore.HTTPTimeoutSeconds) * time.Second)
		client.SetDetailFanOut(cfg.Therefore.DetailFanOut)
		return client
	}
	newSender := func(smtpCfg domain.SMTPConfig) mailer.Sender {
		return mailer.NewSMTPSender(smtpCfg)
	}
	return report.NewProcessor(st, runs, newSource, newSender, report.Options{
		LockTTL: time.Duration(cfg.Scheduler.LockTTLMinutes) * time.Minute,
		MaxRows: cfg.Therefore.MaxRows,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if tz := cfg.General.Timezone; tz != "" && tz != "Local" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("loading timezone %q: %w", tz, err)
		}
		time.Local = loc
		log.Printf("[serve] processing timezone set to %s", tz)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := runlog.Open(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	proc := newProcessor(cfg, st, runs)
	sched := schedule.New(st, proc, schedule.Options{
		Interval: time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		CatchUp:  cfg.Scheduler.CatchUp,
		Grace:    time.Duration(cfg.Scheduler.ShutdownGraceSeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Start(ctx)
	<-ctx.Done()
	log.Printf("[serve] shutting down")
	sched.Stop()
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	reportID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid report id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := runlog.Open(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	proc := newProcessor(cfg, st, runs)
	res, err := proc.RunByID(context.Background(), reportID, domain.TriggerManual)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %s\n", res.RunID, res.Status)
	fmt.Printf("  %s\n", res.Summary())
	return nil
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reports, err := st.Reports()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No reports defined")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTENANT\tSCHEDULE\tENABLED\tLAST RUN")
	for _, r := range reports {
		lastRun := "never"
		if !r.LastRun.IsZero() {
			lastRun = humanize.Time(r.LastRun)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%v\t%s\n", r.ID, r.Name, r.TenantID, r.CronExpr, r.Enabled, lastRun)
	}
	return w.Flush()
}

func runLogs(cmd *cobra.Command, args []string) error {
	reportID := 0
	if len(args) > 0 {
		var err error
		reportID, err = strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid report id %q", args[0])
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runs, err := runlog.Open(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	entries, err := runs.ListByReport(reportID, logsLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No run log entries")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tREPORT\tTRIGGER\tSTATUS\tSENT\tFAILED\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\n",
			humanize.Time(e.FinishedAt), e.ReportID, e.Trigger, e.Status, e.EmailsSent, e.EmailsFailed, e.Message)
	}
	return w.Flush()
}

func loadTenant(arg string) (domain.Tenant, error) {
	tenantID, err := strconv.Atoi(arg)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("invalid tenant id %q", arg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return domain.Tenant{}, err
	}

	st, err := store.Open(cfg.General.DataDir)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer st.Close()

	return st.TenantByID(tenantID)
}

func runCheck(cmd *cobra.Command, args []string) error {
	tenant, err := loadTenant(args[0])
	if err != nil {
		return err
	}

	client := therefore.NewClient(tenant)
	customerID, err := client.TestConnection(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s (system customer %s)\n", tenant.Name, customerID)
	return nil
}

func runProcesses(cmd *cobra.Command, args []string) error {
	tenant, err := loadTenant(args[0])
	if err != nil {
		return err
	}

	client := therefore.NewClient(tenant)
	processes, err := client.WorkflowProcesses(context.Background())
	if err != nil {
		return err
	}
	if len(processes) == 0 {
		fmt.Println("No workflow processes found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NO\tNAME\tFOLDER")
	for _, p := range processes {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ProcessNo, p.ProcessName, p.FolderName)
	}
	return w.Flush()
}
