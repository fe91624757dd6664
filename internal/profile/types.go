package profile

// Profile is the unit of synchronization: a user's flat personal fields plus
// five entry collections. Collection order is insertion order and is only
// used for display.
type Profile struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Fields

	Education      []Education     `json:"education"`
	Experience     []Experience    `json:"experience"`
	Skills         []Skill         `json:"skills"`
	Projects       []Project       `json:"projects"`
	Certifications []Certification `json:"certifications"`
}

// Fields holds the flat, optional personal fields of a profile.
type Fields struct {
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Location   string `json:"location,omitempty"`
	Bio        string `json:"bio,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
	LinkedIn   string `json:"linkedIn,omitempty"`
	GitHub     string `json:"github,omitempty"`
	Portfolio  string `json:"portfolio,omitempty"`
}

// Kind names one of the five entry collections. The values double as the
// collection path segment in the HTTP API.
type Kind string

const (
	KindEducation     Kind = "education"
	KindExperience    Kind = "experience"
	KindSkill         Kind = "skills"
	KindProject       Kind = "projects"
	KindCertification Kind = "certifications"
)

// Kinds returns all collection kinds in their canonical order.
func Kinds() []Kind {
	return []Kind{KindEducation, KindExperience, KindSkill, KindProject, KindCertification}
}

// Valid reports whether k names a known collection.
func (k Kind) Valid() bool {
	switch k {
	case KindEducation, KindExperience, KindSkill, KindProject, KindCertification:
		return true
	}
	return false
}

// Entry is implemented by every collection entry type.
type Entry interface {
	Kind() Kind
	EntryID() string
}

type Education struct {
	ID           string `json:"id"`
	Institution  string `json:"institution"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"fieldOfStudy,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	Grade        string `json:"grade,omitempty"`
	Description  string `json:"description,omitempty"`
}

type Experience struct {
	ID          string `json:"id"`
	Company     string `json:"company"`
	Position    string `json:"position"`
	Location    string `json:"location,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Current     bool   `json:"current"`
	Description string `json:"description,omitempty"`
}

// SkillLevel is the self-assessed proficiency of a skill.
type SkillLevel string

const (
	LevelBeginner     SkillLevel = "BEGINNER"
	LevelIntermediate SkillLevel = "INTERMEDIATE"
	LevelAdvanced     SkillLevel = "ADVANCED"
	LevelExpert       SkillLevel = "EXPERT"
)

func (l SkillLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert:
		return true
	}
	return false
}

type Skill struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Level    SkillLevel `json:"level"`
	Category string     `json:"category,omitempty"`
}

type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TechStack   []string `json:"techStack"`
	LiveURL     string   `json:"liveUrl,omitempty"`
	RepoURL     string   `json:"repoUrl,omitempty"`
	StartDate   string   `json:"startDate,omitempty"`
	EndDate     string   `json:"endDate,omitempty"`
}

type Certification struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IssuingOrg    string `json:"issuingOrg"`
	IssueDate     string `json:"issueDate,omitempty"`
	ExpiryDate    string `json:"expiryDate,omitempty"`
	CredentialID  string `json:"credentialId,omitempty"`
	CredentialURL string `json:"credentialUrl,omitempty"`
}

func (e Education) Kind() Kind          { return KindEducation }
func (e Education) EntryID() string     { return e.ID }
func (e Experience) Kind() Kind         { return KindExperience }
func (e Experience) EntryID() string    { return e.ID }
func (s Skill) Kind() Kind              { return KindSkill }
func (s Skill) EntryID() string         { return s.ID }
func (p Project) Kind() Kind            { return KindProject }
func (p Project) EntryID() string       { return p.ID }
func (c Certification) Kind() Kind      { return KindCertification }
func (c Certification) EntryID() string { return c.ID }

// Counts is the number of entries per collection, used when presenting a
// conflict to the user.
type Counts struct {
	Education      int `json:"education"`
	Experience     int `json:"experience"`
	Skills         int `json:"skills"`
	Projects       int `json:"projects"`
	Certifications int `json:"certifications"`
}
