package generate

import "fmt"

// Platform is a target for generated profile content.
type Platform string

const (
	LinkedIn    Platform = "linkedin"
	GitHub      Platform = "github"
	Resume      Platform = "resume"
	Freelance   Platform = "freelance"
	JobPortal   Platform = "job_portal"
	CoverLetter Platform = "cover_letter"
)

// Platforms returns every platform in display order.
func Platforms() []Platform {
	return []Platform{LinkedIn, GitHub, Resume, Freelance, JobPortal, CoverLetter}
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case LinkedIn, GitHub, Resume, Freelance, JobPortal, CoverLetter:
		return true
	}
	return false
}

// ParsePlatform converts a name to a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

func (p Platform) instruction(jobTitle, company string) string {
	switch p {
	case LinkedIn:
		return "Generate a professional LinkedIn profile summary and headline. Focus on achievements, career goals, and professional brand."
	case GitHub:
		return "Generate a GitHub profile README. Focus on technical skills, projects, and open-source contributions. Use markdown format."
	case Resume:
		return "Generate a professional resume in structured format. Focus on relevant experience, skills, and achievements. Be concise and impactful."
	case Freelance:
		return "Generate a freelancer profile bio. Emphasize unique selling points, expertise areas, and client benefits. Make it engaging."
	case JobPortal:
		return "Generate a job portal profile optimized for ATS. Focus on keywords, quantifiable achievements, and relevant experience."
	case CoverLetter:
		if jobTitle == "" {
			jobTitle = "the position"
		}
		if company == "" {
			company = "the company"
		}
		return fmt.Sprintf("Generate a compelling cover letter for the role of %s at %s. Be professional yet personable.", jobTitle, company)
	}
	return ""
}
