package api

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/slotwise/internal/booking"
	"github.com/kalambet/slotwise/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Booking BookingService
	Models  ModelSource // optional; backs the model://current resource
}

// NewMCPServer creates an MCP server with the booking tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"slotwise",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("slotwise recommends appointment slots for a pair of users and books them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("recommend_slots",
			mcp.WithDescription("Recommend appointment slots for a pair. The first entry is always the manual-input option."),
			mcp.WithNumber("primary_user_id", mcp.Description("User who owns the slots"), mcp.Required()),
			mcp.WithNumber("secondary_user_id", mcp.Description("User booking the appointment"), mcp.Required()),
		),
		mcpRecommendSlots(deps),
	)

	s.AddTool(
		mcp.NewTool("confirm_appointment",
			mcp.WithDescription("Book an appointment, either on a recommended slot or at a manual time."),
			mcp.WithNumber("primary_user_id", mcp.Description("User who owns the slot"), mcp.Required()),
			mcp.WithNumber("secondary_user_id", mcp.Description("User booking the appointment"), mcp.Required()),
			mcp.WithString("slot_time", mcp.Description("Start time, RFC 3339"), mcp.Required()),
			mcp.WithNumber("slot_id", mcp.Description("Slot id from recommend_slots; omit for manual times")),
			mcp.WithNumber("duration_minutes", mcp.Description("Appointment length (default 30)")),
			mcp.WithString("session_id", mcp.Description("session_id returned by recommend_slots")),
		),
		mcpConfirmAppointment(deps),
	)

	s.AddTool(
		mcp.NewTool("set_reminder",
			mcp.WithDescription("Create or update a recurring reminder for a pair."),
			mcp.WithNumber("primary_user_id", mcp.Required()),
			mcp.WithNumber("secondary_user_id", mcp.Required()),
			mcp.WithNumber("interval_days", mcp.Description("Days between appointments"), mcp.Required()),
		),
		mcpSetReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("reminder_slots",
			mcp.WithDescription("Return the time of the pair's last booking as a rebooking suggestion."),
			mcp.WithNumber("primary_user_id", mcp.Required()),
			mcp.WithNumber("secondary_user_id", mcp.Required()),
		),
		mcpReminderSlots(deps),
	)

	if deps.Models != nil {
		s.AddResource(
			mcp.NewResource(
				"model://current",
				"Ranking Model",
				mcp.WithResourceDescription("Currently installed ranking model as JSON"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceModel(deps),
		)
	}

	return s
}

func pairFromArgs(req mcp.CallToolRequest) booking.PairRequest {
	return booking.PairRequest{
		PrimaryUserID:   int64(req.GetInt("primary_user_id", 0)),
		SecondaryUserID: int64(req.GetInt("secondary_user_id", 0)),
	}
}

func mcpRecommendSlots(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec, err := deps.Booking.RecommendSlots(ctx, pairFromArgs(req))
		if err != nil {
			return mcpServiceError("recommendation failed", err), nil
		}
		return mcpJSON(rec)
	}
}

func mcpConfirmAppointment(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slotTime, err := req.RequireString("slot_time")
		if err != nil {
			return mcpError("slot_time is required"), nil
		}
		pair := pairFromArgs(req)
		creq := booking.ConfirmRequest{
			PrimaryUserID:   pair.PrimaryUserID,
			SecondaryUserID: pair.SecondaryUserID,
			SlotTime:        slotTime,
			DurationMinutes: req.GetInt("duration_minutes", 0),
			SessionID:       req.GetString("session_id", ""),
		}
		if id := int64(req.GetInt("slot_id", 0)); id != 0 {
			creq.SlotID = &id
		}

		b, err := deps.Booking.ConfirmAppointment(ctx, creq)
		if err != nil {
			return mcpServiceError("booking failed", err), nil
		}
		return mcpText(fmt.Sprintf("Booked appointment %d at %s", b.ID, booking.FormatTime(b.StartTime))), nil
	}
}

func mcpSetReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pair := pairFromArgs(req)
		rreq := booking.ReminderRequest{
			PrimaryUserID:   pair.PrimaryUserID,
			SecondaryUserID: pair.SecondaryUserID,
			IntervalDays:    req.GetInt("interval_days", 0),
		}
		if err := deps.Booking.SetReminder(ctx, rreq); err != nil {
			return mcpServiceError("failed to set reminder", err), nil
		}
		return mcpText(fmt.Sprintf("Reminder set every %d days", rreq.IntervalDays)), nil
	}
}

func mcpReminderSlots(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Booking.ReminderSlots(ctx, pairFromArgs(req))
		if err != nil {
			return mcpServiceError("failed to load reminder slots", err), nil
		}
		return mcpJSON(res)
	}
}

func mcpResourceModel(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		m, err := deps.Models.Current(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading model: %w", err)
		}
		text := "null"
		if m != nil {
			b, err := json.Marshal(m)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal model: %w", err)
			}
			text = string(b)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	}
}

func mcpServiceError(prefix string, err error) *mcp.CallToolResult {
	var ve *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		return mcpError("invalid request: " + ve.Error())
	case errors.Is(err, storage.ErrSlotTaken):
		return mcpError("slot is already booked")
	case errors.Is(err, storage.ErrNotFound):
		return mcpError("slot not found")
	}
	return mcpError(fmt.Sprintf("%s: %v", prefix, err))
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
