package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/internal/service"
)

func occurrencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "occurrences",
		Short: "Preview the due dates a recurrence rule produces",
		Example: `  portalctl occurrences --kind weekly --weekday Monday --from 2024-01-01 --to 2024-03-31
  portalctl occurrences --kind monthly --day-of-month 31 --from 2024-01-01 --to 2024-12-31 -o json`,
		RunE: runOccurrences,
	}
	f := cmd.Flags()
	f.String("kind", "", "Recurrence kind (daily, weekly, monthly, quarterly, yearly)")
	f.String("time", "", "Time of day for daily rules (HH:MM)")
	f.String("weekday", "", "Weekday for weekly rules")
	f.Int("day-of-month", 0, "Day of month for monthly, quarterly and yearly rules")
	f.Int("quarter", 0, "Month within the quarter (1-3) for quarterly rules")
	f.Int("month", 0, "Month (1-12) for yearly rules")
	f.String("from", "", "First day of the validity window (YYYY-MM-DD)")
	f.String("to", "", "Last day of the validity window (YYYY-MM-DD)")
	f.String("now", "", "Reference instant for due flags (RFC3339, defaults to current time)")

	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

type occurrenceRow struct {
	Key      string    `json:"key"`
	DueAt    time.Time `json:"dueAt"`
	Deadline time.Time `json:"deadline"`
	Due      bool      `json:"due"`
}

func runOccurrences(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	loc, err := resolveLocation(v.GetString("tz"))
	if err != nil {
		return err
	}
	from, err := models.ParseDate(v.GetString("from"))
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := models.ParseDate(v.GetString("to"))
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	now, err := resolveNow(v.GetString("now"))
	if err != nil {
		return err
	}

	rule := models.Recurrence{
		Kind:    models.RecurrenceKind(v.GetString("kind")),
		Time:    v.GetString("time"),
		Weekday: v.GetString("weekday"),
	}
	if cmd.Flags().Changed("day-of-month") {
		day := v.GetInt("day-of-month")
		rule.DayOfMonth = &day
	}
	if cmd.Flags().Changed("quarter") {
		quarter := v.GetInt("quarter")
		rule.Quarter = &quarter
	}
	if cmd.Flags().Changed("month") {
		month := v.GetInt("month")
		rule.Month = &month
	}

	occurrences, err := service.ExpandRecurrence(rule, from, to, loc)
	if err != nil {
		return err
	}

	rows := make([]occurrenceRow, 0, len(occurrences))
	for _, occ := range occurrences {
		rows = append(rows, occurrenceRow{
			Key:      occ.Key,
			DueAt:    occ.DueAt,
			Deadline: service.Deadline(occ),
			Due:      service.IsDue(occ, now),
		})
	}

	out := cmd.OutOrStdout()
	if v.GetString("output") == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OCCURRENCE\tDEADLINE\tDUE")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%t\n", row.Key, row.Deadline.Format(time.RFC3339), row.Due)
	}
	fmt.Fprintf(w, "\n%d occurrences\n", len(rows))
	return w.Flush()
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "Asia/Manila"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

func resolveNow(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	now, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now: %w", err)
	}
	return now, nil
}
