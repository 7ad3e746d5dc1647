package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *TenderaClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *TenderaClient) *Handlers {
	return &Handlers{client: client}
}

// HandleBrowseRequests lists open requests.
func (h *Handlers) HandleBrowseRequests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.BrowseRequests(ctx, category, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to browse requests: %v", err)), nil
	}

	text, err := formatRequestList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse requests: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetRequest returns a single request.
func (h *Handlers) HandleGetRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := req.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("request_id is required"), nil
	}

	raw, err := h.client.GetRequest(ctx, requestID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get request: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleListBids lists the bids on a request.
func (h *Handlers) HandleListBids(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := req.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("request_id is required"), nil
	}

	raw, err := h.client.ListBids(ctx, requestID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list bids: %v", err)), nil
	}

	text, err := formatBidList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse bids: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetEscrowStatus returns the escrow for a request.
func (h *Handlers) HandleGetEscrowStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := req.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("request_id is required"), nil
	}

	raw, err := h.client.GetEscrow(ctx, requestID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get escrow: %v", err)), nil
	}

	text, err := formatEscrow(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrow: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleMyRequests lists the caller's requests.
func (h *Handlers) HandleMyRequests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.MyRequests(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list your requests: %v", err)), nil
	}

	text, err := formatRequestList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse requests: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleMyBids lists the caller's bids.
func (h *Handlers) HandleMyBids(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.MyBids(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list your bids: %v", err)), nil
	}

	text, err := formatBidList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse bids: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatRequestList(raw json.RawMessage) (string, error) {
	var resp struct {
		Requests []map[string]any `json:"requests"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected requests response format")
	}
	if len(resp.Requests) == 0 {
		return "No requests found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d request(s):\n\n", len(resp.Requests))
	for i, r := range resp.Requests {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, getString(r, "title"), getString(r, "id"))
		fmt.Fprintf(&sb, "   Budget: $%s | Status: %s", getString(r, "budget"), getString(r, "status"))
		if cat := getString(r, "category"); cat != "" {
			fmt.Fprintf(&sb, " | Category: %s", cat)
		}
		sb.WriteString("\n")
		if deadline := getString(r, "deadline"); deadline != "" {
			fmt.Fprintf(&sb, "   Deadline: %s\n", deadline)
		}
		if i < len(resp.Requests)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatBidList(raw json.RawMessage) (string, error) {
	var resp struct {
		Bids []map[string]any `json:"bids"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected bids response format")
	}
	if len(resp.Bids) == 0 {
		return "No bids found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d bid(s):\n\n", len(resp.Bids))
	for i, b := range resp.Bids {
		fmt.Fprintf(&sb, "%d. %s on request %s\n", i+1, getString(b, "id"), getString(b, "request_id"))
		fmt.Fprintf(&sb, "   Amount: $%s | Status: %s\n", getString(b, "amount"), getString(b, "status"))
		if msg := getString(b, "message"); msg != "" {
			fmt.Fprintf(&sb, "   %s\n", msg)
		}
		if i < len(resp.Bids)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatEscrow(raw json.RawMessage) (string, error) {
	var resp struct {
		Escrow map[string]any `json:"escrow"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Escrow == nil {
		return "", fmt.Errorf("unexpected escrow response format")
	}
	e := resp.Escrow

	var sb strings.Builder
	sb.WriteString("Escrow:\n")
	fmt.Fprintf(&sb, "  ID: %s\n", getString(e, "id"))
	fmt.Fprintf(&sb, "  Status: %s\n", getString(e, "status"))
	fmt.Fprintf(&sb, "  Amount: $%s (fee $%s, total $%s)\n",
		getString(e, "amount"), getString(e, "fee"), getString(e, "total"))
	fmt.Fprintf(&sb, "  Payment method: %s\n", getString(e, "payment_method"))
	if reason := getString(e, "failure_reason"); reason != "" {
		fmt.Fprintf(&sb, "  Failure reason: %s\n", reason)
	}
	if notes := getString(e, "notes"); notes != "" {
		fmt.Fprintf(&sb, "  Notes: %s\n", notes)
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}
