package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/slotwise/internal/booking"
	"github.com/kalambet/slotwise/internal/config"
	"github.com/kalambet/slotwise/internal/jobs"
	"github.com/kalambet/slotwise/internal/reminder"
)

// pairFlags registers --primary and --secondary on cmd.
func pairFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("primary", 0, "primary user id (slot owner)")
	cmd.Flags().Int64("secondary", 0, "secondary user id")
	cmd.MarkFlagRequired("primary")
	cmd.MarkFlagRequired("secondary")
}

func pairFromFlags(cmd *cobra.Command) booking.PairRequest {
	p, _ := cmd.Flags().GetInt64("primary")
	s, _ := cmd.Flags().GetInt64("secondary")
	return booking.PairRequest{PrimaryUserID: p, SecondaryUserID: s}
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend slots for a pair",
	Long: `Recommend slots for a pair.

Example:
  slotwise recommend --primary 1 --secondary 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		rec, err := recommendSlots(cmd.Context(), client, pairFromFlags(cmd))
		if err != nil {
			return err
		}
		for i, s := range rec.Slots {
			id := "-"
			if s.SlotID != nil {
				id = strconv.FormatInt(*s.SlotID, 10)
			}
			fmt.Fprintf(stdout, "  %d. %s  %s  slot=%s\n", i+1, colorize(colorBold, s.SlotTime), colorize(colorCyan, fmt.Sprintf("%.3f", s.Score)), id)
		}
		printStatus("Session", "%s", rec.SessionID)
		return nil
	},
}

func recommendSlots(ctx context.Context, c *apiClient, pair booking.PairRequest) (booking.Recommendation, error) {
	resp, err := c.post(ctx, "/recommend_slots", pair)
	if err != nil {
		return booking.Recommendation{}, err
	}
	var rec booking.Recommendation
	if err := decodeJSON(resp, &rec); err != nil {
		return booking.Recommendation{}, err
	}
	return rec, nil
}

// --- confirm ---

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm an appointment",
	Long: `Confirm an appointment on a recommended slot or at a manual time.

Examples:
  slotwise confirm --primary 1 --secondary 42 --slot 17 --time 2024-01-08T09:00:00Z --session <id>
  slotwise confirm --primary 1 --secondary 42 --time "2024-01-08 09:00" --duration 45`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pair := pairFromFlags(cmd)
		slot, _ := cmd.Flags().GetInt64("slot")
		when, _ := cmd.Flags().GetString("time")
		duration, _ := cmd.Flags().GetInt("duration")
		session, _ := cmd.Flags().GetString("session")

		req := booking.ConfirmRequest{
			PrimaryUserID:   pair.PrimaryUserID,
			SecondaryUserID: pair.SecondaryUserID,
			SlotTime:        when,
			DurationMinutes: duration,
			SessionID:       session,
		}
		if slot != 0 {
			req.SlotID = &slot
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := confirmAppointment(cmd.Context(), client, req)
		if err != nil {
			return err
		}
		printSuccess("Booked appointment %d", id)
		return nil
	},
}

func confirmAppointment(ctx context.Context, c *apiClient, req booking.ConfirmRequest) (int64, error) {
	resp, err := c.post(ctx, "/confirm_appointment", req)
	if err != nil {
		return 0, err
	}
	var result struct {
		Status    string `json:"status"`
		BookingID int64  `json:"booking_id"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return 0, err
	}
	return result.BookingID, nil
}

func init() {
	pairFlags(recommendCmd)

	pairFlags(confirmCmd)
	confirmCmd.Flags().Int64("slot", 0, "slot id from a recommendation; omit for a manual time")
	confirmCmd.Flags().String("time", "", "appointment start time")
	confirmCmd.Flags().Int("duration", 0, "duration in minutes (server default when omitted)")
	confirmCmd.Flags().String("session", "", "session id from the recommendation")
	confirmCmd.MarkFlagRequired("time")
}

// --- reminder ---

var reminderCmd = &cobra.Command{
	Use:   "reminder",
	Short: "Manage rebooking reminders",
}

var reminderSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a reminder for a pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair := pairFromFlags(cmd)
		days, _ := cmd.Flags().GetInt("every")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/set_reminder", booking.ReminderRequest{
			PrimaryUserID:   pair.PrimaryUserID,
			SecondaryUserID: pair.SecondaryUserID,
			IntervalDays:    days,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Reminder set every %d days", days)
		return nil
	},
}

var reminderDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn off a pair's reminder",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/disable_reminder", pairFromFlags(cmd))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Reminder disabled")
		return nil
	},
}

var reminderSlotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show the rebooking suggestion for a pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/reminder_slots", pairFromFlags(cmd))
		if err != nil {
			return err
		}
		var res booking.ReminderSlots
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if len(res.Slots) == 0 {
			printWarning("%s", res.Message)
			return nil
		}
		for _, s := range res.Slots {
			fmt.Fprintf(stdout, "  %s\n", colorize(colorBold, s.SlotTime))
		}
		return nil
	},
}

var reminderSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a reminder sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		report, err := runSweep(cmd.Context(), client)
		if err != nil {
			return err
		}
		printStatus("Checked", "%d", report.Checked)
		printStatus("Due", "%d", report.Due)
		printStatus("Notified", "%d", report.Notified)
		if report.Failed > 0 {
			printWarning("%d notifications failed", report.Failed)
		}
		return nil
	},
}

func runSweep(ctx context.Context, c *apiClient) (reminder.Report, error) {
	resp, err := c.post(ctx, "/reminders/sweep", nil)
	if err != nil {
		return reminder.Report{}, err
	}
	var report reminder.Report
	if err := decodeJSON(resp, &report); err != nil {
		return reminder.Report{}, err
	}
	return report, nil
}

func init() {
	pairFlags(reminderSetCmd)
	reminderSetCmd.Flags().Int("every", 0, "interval in days")
	reminderSetCmd.MarkFlagRequired("every")
	pairFlags(reminderDisableCmd)
	pairFlags(reminderSlotsCmd)

	reminderCmd.AddCommand(reminderSetCmd)
	reminderCmd.AddCommand(reminderDisableCmd)
	reminderCmd.AddCommand(reminderSlotsCmd)
	reminderCmd.AddCommand(reminderSweepCmd)
}

// --- availability ---

var availabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Manage a primary user's open slots",
}

var availabilityAddCmd = &cobra.Command{
	Use:   "add <time>...",
	Short: "Publish one or more slots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		primary, _ := cmd.Flags().GetInt64("primary")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/availability", booking.AvailabilityRequest{
			PrimaryUserID: primary,
			SlotTimes:     args,
		})
		if err != nil {
			return err
		}
		var result struct {
			Added int `json:"added"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Added %d of %d slots", result.Added, len(args))
		return nil
	},
}

type slotEntry struct {
	SlotID   int64  `json:"slot_id"`
	SlotTime string `json:"slot_time"`
	IsBooked bool   `json:"is_booked"`
}

var availabilityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upcoming slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		primary, _ := cmd.Flags().GetInt64("primary")
		days, _ := cmd.Flags().GetInt("days")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		q.Set("primary_user_id", strconv.FormatInt(primary, 10))
		if days > 0 {
			q.Set("days", strconv.Itoa(days))
		}
		resp, err := client.get(cmd.Context(), "/availability?"+q.Encode())
		if err != nil {
			return err
		}
		var result struct {
			Slots []slotEntry `json:"slots"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		for _, s := range result.Slots {
			state := colorize(colorGreen, "free")
			if s.IsBooked {
				state = colorize(colorYellow, "booked")
			}
			fmt.Fprintf(stdout, "  %6d  %s  %s\n", s.SlotID, s.SlotTime, state)
		}
		return nil
	},
}

func init() {
	availabilityAddCmd.Flags().Int64("primary", 0, "primary user id")
	availabilityAddCmd.MarkFlagRequired("primary")
	availabilityListCmd.Flags().Int64("primary", 0, "primary user id")
	availabilityListCmd.Flags().Int("days", 0, "look-ahead window in days (server default when omitted)")
	availabilityListCmd.MarkFlagRequired("primary")

	availabilityCmd.AddCommand(availabilityAddCmd)
	availabilityCmd.AddCommand(availabilityListCmd)
}

// --- bookings ---

var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "List or cancel bookings",
}

var bookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a pair's bookings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		pair := pairFromFlags(cmd)
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		q.Set("primary_user_id", strconv.FormatInt(pair.PrimaryUserID, 10))
		q.Set("secondary_user_id", strconv.FormatInt(pair.SecondaryUserID, 10))
		q.Set("limit", strconv.Itoa(limit))
		resp, err := client.get(cmd.Context(), "/bookings?"+q.Encode())
		if err != nil {
			return err
		}
		var result struct {
			Bookings []map[string]any `json:"bookings"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return printJSON(result.Bookings)
	},
}

var bookingsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a booking and free its slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid booking id %q", args[0])
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/bookings/%d/cancel", id), nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Cancelled booking %d", id)
		return nil
	},
}

func init() {
	pairFlags(bookingsListCmd)
	bookingsListCmd.Flags().Int("limit", 20, "maximum bookings to show")

	bookingsCmd.AddCommand(bookingsListCmd)
	bookingsCmd.AddCommand(bookingsCancelCmd)
}

// --- model ---

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect or retrain the ranking model",
}

type modelInfo struct {
	Trained   bool       `json:"trained"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
	Samples   int        `json:"samples,omitempty"`
	Positives int        `json:"positives,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
	Weights   []float64  `json:"weights,omitempty"`
	Intercept float64    `json:"intercept,omitempty"`
}

func fetchModelStatus(ctx context.Context, c *apiClient) (modelInfo, error) {
	resp, err := c.get(ctx, "/model")
	if err != nil {
		return modelInfo{}, err
	}
	var st modelInfo
	if err := decodeJSON(resp, &st); err != nil {
		return modelInfo{}, err
	}
	return st, nil
}

func describeModel(st modelInfo) string {
	if !st.Trained {
		return "not trained (rule-based scoring)"
	}
	when := "unknown time"
	if st.TrainedAt != nil {
		when = st.TrainedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("trained %s on %d rows (%d chosen)", when, st.Samples, st.Positives)
}

var modelShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the installed model",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := fetchModelStatus(cmd.Context(), client)
		if err != nil {
			return err
		}
		printStatus("Model", "%s", describeModel(st))
		for i, col := range st.Columns {
			if i < len(st.Weights) {
				fmt.Fprintf(stdout, "  %-16s %+.4f\n", col, st.Weights[i])
			}
		}
		if st.Trained {
			fmt.Fprintf(stdout, "  %-16s %+.4f\n", "intercept", st.Intercept)
		}
		return nil
	},
}

var modelRetrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the model from logged sessions now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Retraining from recent sessions")
		out, err := retrainModel(cmd.Context(), client)
		if err != nil {
			return err
		}
		if out.Status != "trained" {
			printWarning("Retrain skipped: %s", out.Reason)
			return nil
		}
		printSuccess("Trained on %d rows (%d chosen)", out.Samples, out.Positives)
		return nil
	},
}

func retrainModel(ctx context.Context, c *apiClient) (jobs.RetrainOutcome, error) {
	resp, err := c.post(ctx, "/model/retrain", nil)
	if err != nil {
		return jobs.RetrainOutcome{}, err
	}
	var out jobs.RetrainOutcome
	if err := decodeJSON(resp, &out); err != nil {
		return jobs.RetrainOutcome{}, err
	}
	return out, nil
}

func init() {
	modelCmd.AddCommand(modelShowCmd)
	modelCmd.AddCommand(modelRetrainCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		printStatus("File", "%s", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
