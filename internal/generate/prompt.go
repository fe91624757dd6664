package generate

import (
	"fmt"
	"strings"

	"github.com/kalambet/profilestack/internal/profile"
)

// Request carries the optional inputs of a platform generation.
type Request struct {
	JobTitle          string `json:"jobTitle,omitempty"`
	Company           string `json:"company,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// maxContextChars bounds the additional context (often an extracted resume)
// included in a prompt.
const maxContextChars = 8000

// Tones accepted by ImproveBio.
var Tones = []string{"professional", "casual", "creative"}

// BuildPrompt renders the generation prompt for one platform.
func BuildPrompt(p profile.Profile, platform Platform, req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI profile optimization expert. Based on the following user profile data, %s\n\n",
		platform.instruction(req.JobTitle, req.Company))
	b.WriteString(profile.Summary(p))
	b.WriteString("\n")
	if ctx := strings.TrimSpace(req.AdditionalContext); ctx != "" {
		if r := []rune(ctx); len(r) > maxContextChars {
			ctx = string(r[:maxContextChars])
		}
		fmt.Fprintf(&b, "\nAdditional Context: %s\n", ctx)
	}
	fmt.Fprintf(&b, "\nGenerate the %s optimized content:\n", platform)
	return b.String()
}

func bioPrompt(bio, tone string) string {
	if tone == "" {
		tone = "professional"
	}
	return fmt.Sprintf(`Improve the following bio to make it more %s and impactful.
Keep it concise but compelling. Fix any grammar issues. Reply with the improved bio only.

Original bio:
%q

Improved bio:
`, tone, bio)
}

func skillsPrompt(p profile.Profile) string {
	experience := make([]string, 0, len(p.Experience))
	for _, e := range p.Experience {
		experience = append(experience, fmt.Sprintf("%s at %s", e.Position, e.Company))
	}
	projects := make([]string, 0, len(p.Projects))
	for _, pr := range p.Projects {
		projects = append(projects, fmt.Sprintf("%s (%s)", pr.Title, strings.Join(pr.TechStack, ", ")))
	}
	return fmt.Sprintf(`Based on the following user experience and projects, suggest 5-10 relevant skills they might want to add to their profile.
Only suggest skills not already in their list.

Current Skills: %s
Experience: %s
Projects: %s

Return as a JSON array of skill names:
`, orNone(strings.Join(profile.SkillNames(p), ", ")), orNone(strings.Join(experience, ", ")), orNone(strings.Join(projects, ", ")))
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// CleanJSON strips a surrounding markdown code fence from model output.
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
