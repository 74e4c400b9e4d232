package parser

import (
	"regexp"
	"strings"

	"ticketsmith/internal/logging"
	"ticketsmith/internal/types"
)

// Epic analysis is the one response family that is not JSON: the prompt
// asks for tag-delimited sections inside an <analysis> wrapper, with
// bullet lists for the multi-valued sections.

var tagPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{
		"analysis", "main_objective", "stakeholders", "core_requirements",
		"technical_domains", "dependencies", "challenges",
	} {
		tagPatterns[tag] = regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
	}
}

// ParseEpicAnalysis parses a tag-sectioned analysis response. Returns
// ok=false when the wrapper tag is absent or the analysis carries no
// useful content, in which case the caller retries through the fixer.
func ParseEpicAnalysis(text string) (types.EpicAnalysis, bool) {
	body := extractTag(text, "analysis")
	if body == "" {
		logging.ParserDebug("no <analysis> section in response")
		return types.EpicAnalysis{}, false
	}

	analysis := types.EpicAnalysis{
		MainObjective:    cleanText(extractTag(body, "main_objective")),
		Stakeholders:     extractListSection(body, "stakeholders"),
		CoreRequirements: extractListSection(body, "core_requirements"),
		TechnicalDomains: extractListSection(body, "technical_domains"),
		Dependencies:     extractListSection(body, "dependencies"),
		Challenges:       extractListSection(body, "challenges"),
	}
	return analysis, !analysis.Empty()
}

func extractTag(content, tag string) string {
	m := tagPatterns[tag].FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractListSection splits a tag body into items, stripping bullet and
// numbered-list markers.
func extractListSection(content, tag string) []string {
	section := extractTag(content, tag)
	if section == "" {
		return nil
	}
	var items []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "<") {
			continue
		}
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, marker) {
				line = strings.TrimSpace(line[len(marker):])
				break
			}
		}
		if i := strings.Index(line, ". "); i > 0 && isDigits(line[:i]) {
			line = strings.TrimSpace(line[i+2:])
		}
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
