package engage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the engagement tools on an MCP server:
// engage_submit, engage_probe, and engage_outcomes.
func RegisterMCP(srv *mcp.Server, engine *Engine, store OutcomeStore) {
	registerSubmit(srv, engine, store)
	registerProbe(srv, engine)
	registerOutcomes(srv, store)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func registerSubmit(srv *mcp.Server, engine *Engine, store OutcomeStore) {
	type req struct {
		URL     string `json:"url"`
		Site    bool   `json:"site"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Force   bool   `json:"force"`
	}

	tool := &mcp.Tool{
		Name:        "engage_submit",
		Description: "Submit an outreach message through the contact form at a URL",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page or site URL to engage"},
			"site":    map[string]any{"type": "boolean", "description": "Probe the site for a contact page first"},
			"subject": map[string]any{"type": "string", "description": "Message subject (optional)"},
			"body":    map[string]any{"type": "string", "description": "Message body"},
			"force":   map[string]any{"type": "boolean", "description": "Engage even if the domain was already attempted"},
		}, []string{"url", "body"}),
	}

	addTool(srv, tool, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p req
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		target, err := NewTarget(p.URL)
		if err != nil {
			return nil, err
		}

		if store != nil && !p.Force {
			attempted, err := store.Attempted(ctx, target.Domain)
			if err != nil {
				return nil, err
			}
			if attempted {
				return nil, fmt.Errorf("domain already attempted: %s", target.Domain)
			}
		}

		msg := Message{Subject: p.Subject, Body: p.Body}
		var out *Outcome
		if p.Site {
			out, err = engine.EngageSite(ctx, target, msg)
		} else {
			out, err = engine.Engage(ctx, target, msg)
		}
		if err != nil {
			return nil, err
		}
		if store != nil {
			if err := store.RecordOutcome(ctx, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

func registerProbe(srv *mcp.Server, engine *Engine) {
	type req struct {
		URL string `json:"url"`
	}

	tool := &mcp.Tool{
		Name:        "engage_probe",
		Description: "Probe a site for contact-page candidates without submitting anything",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Site URL to probe"},
		}, []string{"url"}),
	}

	addTool(srv, tool, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p req
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		target, err := NewTarget(p.URL)
		if err != nil {
			return nil, err
		}
		if err := engine.validate(target.URL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		if err := engine.limiter.WaitForDomain(ctx, target.Domain); err != nil {
			return nil, err
		}
		candidates, err := engine.fetcher.ProbeContactPages(ctx, target.URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": target.URL, "candidates": candidates}, nil
	})
}

func registerOutcomes(srv *mcp.Server, store OutcomeStore) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "engage_outcomes",
		Description: "List recent engagement outcomes, newest first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum records to return (default 50)"},
		}, nil),
	}

	addTool(srv, tool, func(ctx context.Context, raw json.RawMessage) (any, error) {
		if store == nil {
			return nil, errors.New("no ledger configured")
		}
		var p req
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return store.Outcomes(ctx, p.Limit)
	})
}

// addTool wires a JSON-in/JSON-out handler as an MCP tool. Handler
// errors become tool errors, not protocol errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, handler func(context.Context, json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}
