package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/repository"
	"github.com/noah-isme/agency-portal-api/internal/service"
	"github.com/noah-isme/agency-portal-api/pkg/config"
	"github.com/noah-isme/agency-portal-api/pkg/database"
	"github.com/noah-isme/agency-portal-api/pkg/logger"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a program's ledgers and print its status distribution",
		RunE:  runReconcile,
	}
	f := cmd.Flags()
	f.String("program", "", "Program identifier (required)")
	f.String("now", "", "Reference instant (RFC3339, defaults to current time)")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

type reconcileReport struct {
	ProgramID    string                      `json:"programId"`
	ProgramName  string                      `json:"programName"`
	Occurrences  int                         `json:"occurrences"`
	DueCount     int                         `json:"dueCount"`
	Unscheduled  int                         `json:"unscheduled"`
	Distribution models.StatusDistribution   `json:"distribution"`
	PerUser      []models.ParticipantSummary `json:"perUser"`
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	tz := v.GetString("tz")
	if tz == "" {
		tz = cfg.Portal.Timezone
	}
	loc, err := resolveLocation(tz)
	if err != nil {
		return err
	}
	now, err := resolveNow(v.GetString("now"))
	if err != nil {
		return err
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	ctx := cmd.Context()
	programID := v.GetString("program")
	program, err := repository.NewProgramRepository(db).FindByID(ctx, programID)
	if err != nil {
		return fmt.Errorf("load program %s: %w", programID, err)
	}
	ledgers, err := repository.NewLedgerRepository(db).ListByProgram(ctx, programID)
	if err != nil {
		return fmt.Errorf("load ledgers: %w", err)
	}
	occurrences, err := service.GenerateOccurrences(program, loc)
	if err != nil {
		return err
	}

	result := service.Reconcile(program, occurrences, ledgers, now)
	hasLedger := make(map[string]bool, len(ledgers))
	for _, ledger := range ledgers {
		hasLedger[ledger.ParticipantID] = true
	}
	report := reconcileReport{
		ProgramID:    program.ID,
		ProgramName:  program.Name,
		Occurrences:  len(occurrences),
		DueCount:     result.DueCount,
		Unscheduled:  result.Unscheduled,
		Distribution: service.Aggregate(result.Entries, len(program.Participants)),
		PerUser:      service.SummariseParticipants(program, result.Entries, hasLedger),
	}
	logr.Debug("program reconciled", zap.String("program_id", program.ID), zap.Int("entries", len(result.Entries)))

	return printReconcile(cmd, v.GetString("output"), report)
}

func printReconcile(cmd *cobra.Command, format string, report reconcileReport) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "%s (%s)\n", report.ProgramName, report.ProgramID)
	fmt.Fprintf(out, "occurrences: %d  due: %d  unscheduled records: %d\n\n", report.Occurrences, report.DueCount, report.Unscheduled)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "PARTICIPANT")
	for _, status := range models.StatusVocabulary {
		fmt.Fprintf(w, "\t%s", status)
	}
	fmt.Fprintln(w)
	writeRow := func(name string, dist models.StatusDistribution) {
		fmt.Fprint(w, name)
		for _, status := range models.StatusVocabulary {
			fmt.Fprintf(w, "\t%d", dist.AutoCount(status))
		}
		fmt.Fprintln(w)
	}
	for _, summary := range report.PerUser {
		writeRow(summary.ParticipantID, summary.Distribution)
	}
	writeRow("ALL", report.Distribution)
	return w.Flush()
}
