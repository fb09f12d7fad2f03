package agent

import (
	"context"
	"fmt"
	"strings"
)

type resourceAlias struct {
	name string
	uri  string
}

// resourceAliasList returns the fixed "@" shortcut table in display order.
func resourceAliasList() []resourceAlias {
	return []resourceAlias{
		{"meeting-emails", "gmail://meeting-emails"},
		{"processed-meetings", "gmail://processed-meetings"},
		{"meeting-emails/<id>", "gmail://meeting-emails/<id>"},
		{"project-info", "project://info"},
		{"feature-updates", "project://feature-updates"},
		{"project-status", "project://status"},
		{"company-info", "company://info"},
		{"solution-info", "company://solution-info"},
		{"company-all-info", "company://all-info"},
		{"company-docs", "company://docs"},
	}
}

// resolveResourceAlias maps an "@" shortcut to its resource URI, or "" when
// the alias is unknown.
func resolveResourceAlias(identifier string) string {
	switch identifier {
	case "meeting-emails":
		return "gmail://meeting-emails"
	case "processed-meetings":
		return "gmail://processed-meetings"
	case "project-info":
		return "project://info"
	case "feature-updates":
		return "project://feature-updates"
	case "project-status":
		return "project://status"
	case "company-info":
		return "company://info"
	case "solution-info":
		return "company://solution-info"
	case "company-all-info":
		return "company://all-info"
	case "company-docs":
		return "company://docs"
	}
	if id, ok := strings.CutPrefix(identifier, "meeting-emails/"); ok && id != "" {
		return "gmail://meeting-emails/" + id
	}
	return ""
}

// handleResource reads the resource behind an "@" shortcut and returns its
// content. Unknown aliases and read failures both come back as structured
// responses, never errors.
func (a *Agent) handleResource(ctx context.Context, query string) (*Result, error) {
	identifier := strings.TrimSpace(query[1:])

	uri := resolveResourceAlias(identifier)
	if uri == "" {
		return a.result(fmt.Sprintf("Unknown resource '@%s'. Type /resources for available resources.", identifier), CommandResource), nil
	}

	lines, err := a.router.ReadResource(ctx, uri)
	if err != nil {
		a.logger.Warn("resource read failed", "uri", uri, "error", err)
		return a.result(fmt.Sprintf("Error reading resource %s: %v", uri, err), CommandResource), nil
	}
	if len(lines) == 0 {
		return a.result(fmt.Sprintf("Resource %s is empty.", uri), CommandResource), nil
	}

	return a.result(strings.Join(lines, "\n"), CommandResource), nil
}
