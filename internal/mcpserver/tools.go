package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Tendera MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolBrowseRequests = mcp.NewTool("browse_requests",
	mcp.WithDescription(
		"Browse open buyer requests on the Tendera marketplace. "+
			"Returns requests with budget, category, and deadline. "+
			"Use this to find work to bid on."),
	mcp.WithString("category",
		mcp.Description("Filter by category (e.g. 'design', 'writing', 'development')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of requests to return (default 20)")),
)

var ToolGetRequest = mcp.NewTool("get_request",
	mcp.WithDescription(
		"Get the full details of a single request: title, description, budget, "+
			"status, and deadline."),
	mcp.WithString("request_id",
		mcp.Required(),
		mcp.Description("The request ID (e.g. 'req_...')")),
)

var ToolListBids = mcp.NewTool("list_bids",
	mcp.WithDescription(
		"List the bids placed on a request, with amounts and statuses. "+
			"Use this to see competing offers before bidding."),
	mcp.WithString("request_id",
		mcp.Required(),
		mcp.Description("The request ID (e.g. 'req_...')")),
)

var ToolGetEscrowStatus = mcp.NewTool("get_escrow_status",
	mcp.WithDescription(
		"Check the escrow for a request you are party to: amount held, fee, "+
			"payment status, and any failure reason. "+
			"Only the buyer or seller of the request can see this."),
	mcp.WithString("request_id",
		mcp.Required(),
		mcp.Description("The request ID (e.g. 'req_...')")),
)

var ToolMyRequests = mcp.NewTool("my_requests",
	mcp.WithDescription(
		"List the requests you posted as a buyer, including closed ones."),
)

var ToolMyBids = mcp.NewTool("my_bids",
	mcp.WithDescription(
		"List the bids you placed as a seller, across all requests."),
)
