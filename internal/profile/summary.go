package profile

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSummaryChars caps the summary so it fits comfortably in a generation prompt.
const maxSummaryChars = 6000

// Summary renders p as plain text for injection into a generation prompt.
// Empty sections are omitted.
func Summary(p Profile) string {
	var b strings.Builder

	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	writeLine(&b, "Email", p.Email)
	writeLine(&b, "Phone", p.Phone)
	writeLine(&b, "Location", p.Location)
	writeLine(&b, "LinkedIn", p.LinkedIn)
	writeLine(&b, "GitHub", p.GitHub)
	writeLine(&b, "Portfolio", p.Portfolio)
	if bio := strings.TrimSpace(p.Bio); bio != "" {
		fmt.Fprintf(&b, "\nBio:\n%s\n", bio)
	}

	if len(p.Experience) > 0 {
		b.WriteString("\nExperience:\n")
		for _, e := range p.Experience {
			end := e.EndDate
			if e.Current {
				end = "Present"
			}
			fmt.Fprintf(&b, "- %s at %s%s%s\n", e.Position, e.Company, dateRange(e.StartDate, end), suffix(e.Description))
		}
	}

	if len(p.Education) > 0 {
		b.WriteString("\nEducation:\n")
		for _, e := range p.Education {
			degree := e.Degree
			if e.FieldOfStudy != "" {
				degree += " in " + e.FieldOfStudy
			}
			fmt.Fprintf(&b, "- %s, %s%s\n", degree, e.Institution, dateRange(e.StartDate, e.EndDate))
		}
	}

	if len(p.Skills) > 0 {
		skills := make([]string, 0, len(p.Skills))
		for _, s := range p.Skills {
			if s.Level != "" {
				skills = append(skills, fmt.Sprintf("%s (%s)", s.Name, strings.ToLower(string(s.Level))))
			} else {
				skills = append(skills, s.Name)
			}
		}
		fmt.Fprintf(&b, "\nSkills: %s\n", strings.Join(skills, ", "))
	}

	if len(p.Projects) > 0 {
		b.WriteString("\nProjects:\n")
		for _, pr := range p.Projects {
			var tech string
			if len(pr.TechStack) > 0 {
				tech = " [" + strings.Join(pr.TechStack, ", ") + "]"
			}
			fmt.Fprintf(&b, "- %s%s%s\n", pr.Title, tech, suffix(pr.Description))
		}
	}

	if len(p.Certifications) > 0 {
		b.WriteString("\nCertifications:\n")
		for _, c := range p.Certifications {
			fmt.Fprintf(&b, "- %s, %s\n", c.Name, c.IssuingOrg)
		}
	}

	summary := strings.TrimSpace(b.String())
	if summary == "" {
		return "Profile: not yet filled in."
	}
	return truncate(summary, maxSummaryChars)
}

// SkillNames returns the names of all skills in p.
func SkillNames(p Profile) []string {
	names := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		names = append(names, s.Name)
	}
	return names
}

func writeLine(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func dateRange(start, end string) string {
	switch {
	case start != "" && end != "":
		return fmt.Sprintf(" (%s - %s)", start, end)
	case start != "":
		return fmt.Sprintf(" (from %s)", start)
	case end != "":
		return fmt.Sprintf(" (until %s)", end)
	}
	return ""
}

func suffix(desc string) string {
	if desc = strings.TrimSpace(desc); desc != "" {
		return ": " + desc
	}
	return ""
}

// truncate cuts s at a word boundary so that it is at most max bytes, never
// splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	if idx := strings.LastIndexAny(s[:end], " \n"); idx > 0 {
		return s[:idx]
	}
	return s[:end]
}
