package breakdown

import (
	"fmt"
	"strings"

	"ticketsmith/internal/types"
)

// Prompt builders for every generation stage. Each structured stage also
// exports the strict shape restated by the format fixer.

const analysisShape = `<analysis>
<main_objective>one sentence</main_objective>
<stakeholders>
- one per line
</stakeholders>
<core_requirements>
- one per line
</core_requirements>
<technical_domains>
- one per line
</technical_domains>
<dependencies>
- one per line
</dependencies>
<challenges>
- one per line
</challenges>
</analysis>`

func analysisPrompt(summary, description string) string {
	return fmt.Sprintf(`Analyze the following epic before it is broken down into work items.

Epic summary: %s

Epic description:
%s

Answer with exactly this structure and nothing else:

%s`, summary, description, analysisShape)
}

const storyShape = `A JSON array of objects. Each object:
{
  "title": "string, required",
  "description": "As a <role>, I want <goal>, so that <benefit>",
  "technical_domain": "string, required",
  "complexity": "Low | Medium | High",
  "business_value": "Low | Medium | High",
  "story_points": "one of 1, 2, 3, 5, 8, 13",
  "required_skills": ["string"],
  "dependencies": ["titles of other items, or empty"],
  "acceptance_criteria": ["string"],
  "suggested_assignee": "role name"
}`

func storiesPrompt(summary string, analysis types.EpicAnalysis) string {
	return fmt.Sprintf(`Break this epic into user stories covering every core requirement.

Epic summary: %s
Main objective: %s
Core requirements:
%s
Technical domains:
%s

Generate 3 to 8 user stories. Answer with only a JSON array in this shape:

%s`, summary, analysis.MainObjective,
		bulleted(analysis.CoreRequirements), bulleted(analysis.TechnicalDomains), storyShape)
}

const taskShape = `A JSON array of objects. Each object:
{
  "title": "string, required",
  "description": "what to build and why, required",
  "technical_domain": "string, required",
  "complexity": "Low | Medium | High",
  "business_value": "Low | Medium | High",
  "story_points": "one of 1, 2, 3, 5, 8, 13",
  "required_skills": ["string"],
  "dependencies": ["titles of user stories or other tasks, or empty"],
  "acceptance_criteria": ["string"],
  "implementation_approach": "short paragraph"
}`

func tasksPrompt(summary string, stories []types.WorkItem) string {
	var titles []string
	for _, s := range stories {
		titles = append(titles, s.Title)
	}
	return fmt.Sprintf(`Identify the technical tasks needed to support these user stories.

Epic summary: %s
User stories:
%s

Cover infrastructure, shared services and cross-cutting work the stories
depend on. Answer with only a JSON array in this shape:

%s`, summary, bulleted(titles), taskShape)
}

const subtaskShape = `A JSON array of objects. Each object:
{
  "title": "string, required",
  "description": "string, required",
  "story_points": "one of 1, 2, 3, 5, 8, 13",
  "required_skills": ["string"],
  "dependencies": ["titles of sibling subtasks, or empty"],
  "acceptance_criteria": ["string"],
  "suggested_assignee": "role name"
}`

func subtasksPrompt(parent types.WorkItem) string {
	return fmt.Sprintf(`Decompose this %s into concrete subtasks a developer can pick up.

Title: %s
Description: %s
Technical domain: %s
Acceptance criteria:
%s

Generate 2 to 6 subtasks, each completable in one or two days. Answer
with only a JSON array in this shape:

%s`, strings.ToLower(string(parent.Kind)), parent.Title, parent.Description,
		parent.TechnicalDomain, bulleted(parent.AcceptanceCriteria), subtaskShape)
}

func researchPrompt(item types.WorkItem) string {
	return fmt.Sprintf(`Research prior art for this work item.

Title: %s
Description: %s

Answer with only a JSON object:
{
  "pain_points": "common problems teams hit with this kind of work",
  "success_metrics": "how to tell the implementation works",
  "similar_implementations": "known products or projects doing this",
  "modern_practices": "current recommended approaches"
}`, item.Title, item.Description)
}

func codeExamplesPrompt(item types.WorkItem) string {
	return fmt.Sprintf(`Provide illustrative code examples for this work item.

Title: %s
Description: %s
Required skills: %s

Answer with only a JSON array:
[{"language": "string", "description": "what the example shows", "code": "string"}]`,
		item.Title, item.Description, strings.Join(item.RequiredSkills, ", "))
}

func testPlanPrompt(item types.WorkItem) string {
	return fmt.Sprintf(`Draft a test plan for this work item.

Title: %s
Description: %s
Acceptance criteria:
%s

Answer with only a JSON object:
{"unit_tests": ["string"], "integration_tests": ["string"], "edge_cases": ["string"]}`,
		item.Title, item.Description, bulleted(item.AcceptanceCriteria))
}

func scenariosPrompt(item types.WorkItem) string {
	return fmt.Sprintf(`Write behavior scenarios for this work item.

Title: %s
Description: %s

Answer with only a JSON array:
[{"name": "string", "steps": [{"keyword": "Given | When | Then | And", "text": "string"}]}]`,
		item.Title, item.Description)
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return "- (none listed)"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
