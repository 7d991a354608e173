package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the ledgerlens MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeAccount = mcp.NewTool("analyze_account",
	mcp.WithDescription(
		"Map the transaction network around an XRP Ledger account and assess its risk. "+
			"Walks counterparties, trust lines and issued assets outward from the account, "+
			"then reports an overall network risk level plus findings such as known high-risk wallets, "+
			"token creators, suspicious transactions and high-risk early participants. "+
			"Takes from seconds to a few minutes depending on the size of the network."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Classic XRPL address (e.g. 'rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh'), optionally with ':tag' for a destination tag")),
	mcp.WithNumber("max_depth",
		mcp.Description("How many hops to expand from the account (default 3, max 6)")),
	mcp.WithNumber("max_nodes",
		mcp.Description("Maximum accounts and assets to discover (default 50, max 500)")),
)

var ToolScoreAccount = mcp.NewTool("score_account",
	mcp.WithDescription(
		"Quickly score a single XRP Ledger account without exploring its network. "+
			"Uses account age, activity pattern, issued assets and direct contact with known high-risk wallets. "+
			"Use this for a fast check; use analyze_account for a full picture."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Classic XRPL address (e.g. 'rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh')")),
)

var ToolServiceHealth = mcp.NewTool("service_health",
	mcp.WithDescription(
		"Check whether the ledgerlens service and its XRP Ledger connection are healthy."),
)
