package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers assigned on the device. They are ephemeral
// and never sent to the server as entry identifiers.
const LocalIDPrefix = "local-"

var (
	// ErrEntryNotFound is returned when an entry id does not exist in its collection.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrDuplicateEntry is returned when an entry id already exists in its collection.
	ErrDuplicateEntry = errors.New("duplicate entry id")
	// ErrUnknownKind is returned for a collection name outside the five known kinds.
	ErrUnknownKind = errors.New("unknown collection kind")
)

// NewLocalID returns a fresh device-local entry identifier.
func NewLocalID() string {
	return LocalIDPrefix + uuid.New().String()
}

// IsEmpty reports whether p carries no meaningful data: the bio is blank and
// all five collections are empty. A nil profile is empty. Other flat fields
// (names, contact info) do not count.
func IsEmpty(p *Profile) bool {
	if p == nil {
		return true
	}
	return strings.TrimSpace(p.Bio) == "" &&
		len(p.Education) == 0 &&
		len(p.Experience) == 0 &&
		len(p.Skills) == 0 &&
		len(p.Projects) == 0 &&
		len(p.Certifications) == 0
}

// SplitName splits a display name into a first name (the first token) and a
// last name (the remaining tokens joined by a single space).
func SplitName(name string) (first, last string) {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return "", ""
	}
	return tokens[0], strings.Join(tokens[1:], " ")
}

// OverlayFields returns base with every non-blank field of top written
// over it. Blank fields in top leave the base value in place.
func OverlayFields(base, top Fields) Fields {
	pick := func(b, t string) string {
		if strings.TrimSpace(t) == "" {
			return b
		}
		return t
	}
	return Fields{
		FirstName:  pick(base.FirstName, top.FirstName),
		LastName:   pick(base.LastName, top.LastName),
		Email:      pick(base.Email, top.Email),
		Phone:      pick(base.Phone, top.Phone),
		Location:   pick(base.Location, top.Location),
		Bio:        pick(base.Bio, top.Bio),
		ProfilePic: pick(base.ProfilePic, top.ProfilePic),
		LinkedIn:   pick(base.LinkedIn, top.LinkedIn),
		GitHub:     pick(base.GitHub, top.GitHub),
		Portfolio:  pick(base.Portfolio, top.Portfolio),
	}
}

// NewGuest creates a fresh, empty device-local profile for a guest with the
// given display name.
func NewGuest(name string, now time.Time) Profile {
	first, last := SplitName(name)
	return Profile{
		ID:     NewLocalID(),
		UserID: fmt.Sprintf("guest-%d", now.UnixMilli()),
		Fields: Fields{
			FirstName: first,
			LastName:  last,
		},
		Education:      []Education{},
		Experience:     []Experience{},
		Skills:         []Skill{},
		Projects:       []Project{},
		Certifications: []Certification{},
	}
}

// Clone returns a deep copy of p.
func Clone(p Profile) Profile {
	cp := p
	cp.Education = append([]Education(nil), p.Education...)
	cp.Experience = append([]Experience(nil), p.Experience...)
	cp.Skills = append([]Skill(nil), p.Skills...)
	cp.Certifications = append([]Certification(nil), p.Certifications...)
	if p.Projects != nil {
		cp.Projects = make([]Project, len(p.Projects))
		for i, pr := range p.Projects {
			pr.TechStack = append([]string(nil), pr.TechStack...)
			cp.Projects[i] = pr
		}
	}
	cp.normalize()
	return cp
}

// normalize replaces nil collections with empty ones so the JSON form always
// carries arrays.
func (p *Profile) normalize() {
	if p.Education == nil {
		p.Education = []Education{}
	}
	if p.Experience == nil {
		p.Experience = []Experience{}
	}
	if p.Skills == nil {
		p.Skills = []Skill{}
	}
	if p.Projects == nil {
		p.Projects = []Project{}
	}
	if p.Certifications == nil {
		p.Certifications = []Certification{}
	}
}

// Counts returns the number of entries in each collection.
func (p Profile) Counts() Counts {
	return Counts{
		Education:      len(p.Education),
		Experience:     len(p.Experience),
		Skills:         len(p.Skills),
		Projects:       len(p.Projects),
		Certifications: len(p.Certifications),
	}
}

// Entries returns the entries of one collection in insertion order.
func (p Profile) Entries(kind Kind) []Entry {
	var out []Entry
	switch kind {
	case KindEducation:
		for _, e := range p.Education {
			out = append(out, e)
		}
	case KindExperience:
		for _, e := range p.Experience {
			out = append(out, e)
		}
	case KindSkill:
		for _, e := range p.Skills {
			out = append(out, e)
		}
	case KindProject:
		for _, e := range p.Projects {
			out = append(out, e)
		}
	case KindCertification:
		for _, e := range p.Certifications {
			out = append(out, e)
		}
	}
	return out
}

// SetEntries replaces the collection of the given kind with entries. Every
// entry must be of that kind.
func (p *Profile) SetEntries(kind Kind, entries []Entry) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	for _, e := range entries {
		if e.Kind() != kind {
			return fmt.Errorf("entry %q is %s, not %s", e.EntryID(), e.Kind(), kind)
		}
	}
	switch kind {
	case KindEducation:
		p.Education = make([]Education, 0, len(entries))
		for _, e := range entries {
			p.Education = append(p.Education, e.(Education))
		}
	case KindExperience:
		p.Experience = make([]Experience, 0, len(entries))
		for _, e := range entries {
			p.Experience = append(p.Experience, e.(Experience))
		}
	case KindSkill:
		p.Skills = make([]Skill, 0, len(entries))
		for _, e := range entries {
			p.Skills = append(p.Skills, e.(Skill))
		}
	case KindProject:
		p.Projects = make([]Project, 0, len(entries))
		for _, e := range entries {
			p.Projects = append(p.Projects, e.(Project))
		}
	case KindCertification:
		p.Certifications = make([]Certification, 0, len(entries))
		for _, e := range entries {
			p.Certifications = append(p.Certifications, e.(Certification))
		}
	}
	return nil
}

// Add appends e to its collection. The id must be set and unique within the
// collection.
func (p *Profile) Add(e Entry) error {
	if e.EntryID() == "" {
		return fmt.Errorf("adding %s entry: id is required", e.Kind())
	}
	entries := p.Entries(e.Kind())
	for _, existing := range entries {
		if existing.EntryID() == e.EntryID() {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateEntry, e.Kind(), e.EntryID())
		}
	}
	return p.SetEntries(e.Kind(), append(entries, e))
}

// Update replaces the entry with the same id in its collection, keeping its
// position.
func (p *Profile) Update(e Entry) error {
	entries := p.Entries(e.Kind())
	for i, existing := range entries {
		if existing.EntryID() == e.EntryID() {
			entries[i] = e
			return p.SetEntries(e.Kind(), entries)
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrEntryNotFound, e.Kind(), e.EntryID())
}

// Remove deletes the entry with the given id from a collection.
func (p *Profile) Remove(kind Kind, id string) error {
	entries := p.Entries(kind)
	for i, existing := range entries {
		if existing.EntryID() == id {
			return p.SetEntries(kind, append(entries[:i], entries[i+1:]...))
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrEntryNotFound, kind, id)
}

// WithID returns a copy of e carrying the given id.
func WithID(e Entry, id string) Entry {
	switch v := e.(type) {
	case Education:
		v.ID = id
		return v
	case Experience:
		v.ID = id
		return v
	case Skill:
		v.ID = id
		return v
	case Project:
		v.ID = id
		return v
	case Certification:
		v.ID = id
		return v
	}
	return e
}

// Normalize fills defaults on an entry (currently the skill level) and
// returns it.
func Normalize(e Entry) Entry {
	if s, ok := e.(Skill); ok && s.Level == "" {
		s.Level = LevelBeginner
		return s
	}
	if pr, ok := e.(Project); ok && pr.TechStack == nil {
		pr.TechStack = []string{}
		return pr
	}
	return e
}

// ValidateEntry checks the required fields of a single entry.
func ValidateEntry(e Entry) error {
	var missing []string
	switch v := e.(type) {
	case Education:
		if strings.TrimSpace(v.Institution) == "" {
			missing = append(missing, "institution")
		}
		if strings.TrimSpace(v.Degree) == "" {
			missing = append(missing, "degree")
		}
	case Experience:
		if strings.TrimSpace(v.Company) == "" {
			missing = append(missing, "company")
		}
		if strings.TrimSpace(v.Position) == "" {
			missing = append(missing, "position")
		}
	case Skill:
		if strings.TrimSpace(v.Name) == "" {
			missing = append(missing, "name")
		}
		if v.Level != "" && !v.Level.Valid() {
			return fmt.Errorf("invalid skill level %q", v.Level)
		}
	case Project:
		if strings.TrimSpace(v.Title) == "" {
			missing = append(missing, "title")
		}
	case Certification:
		if strings.TrimSpace(v.Name) == "" {
			missing = append(missing, "name")
		}
		if strings.TrimSpace(v.IssuingOrg) == "" {
			missing = append(missing, "issuingOrg")
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, e)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s entry: missing %s", e.Kind(), strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks that every collection has at most one entry per id and that
// every entry carries its required fields.
func Validate(p Profile) error {
	var errs []error
	for _, kind := range Kinds() {
		seen := make(map[string]bool)
		for _, e := range p.Entries(kind) {
			if seen[e.EntryID()] {
				errs = append(errs, fmt.Errorf("%w: %s/%s", ErrDuplicateEntry, kind, e.EntryID()))
			}
			seen[e.EntryID()] = true
			if err := ValidateEntry(e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// DecodeEntry decodes a single JSON entry of the given kind.
func DecodeEntry(kind Kind, data []byte) (Entry, error) {
	var (
		e   Entry
		err error
	)
	switch kind {
	case KindEducation:
		var v Education
		err = json.Unmarshal(data, &v)
		e = v
	case KindExperience:
		var v Experience
		err = json.Unmarshal(data, &v)
		e = v
	case KindSkill:
		var v Skill
		err = json.Unmarshal(data, &v)
		e = v
	case KindProject:
		var v Project
		err = json.Unmarshal(data, &v)
		e = v
	case KindCertification:
		var v Certification
		err = json.Unmarshal(data, &v)
		e = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s entry: %w", kind, err)
	}
	return e, nil
}

// DecodeEntries decodes a JSON array of entries of the given kind.
func DecodeEntries(kind Kind, data []byte) ([]Entry, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding %s collection: %w", kind, err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		e, err := DecodeEntry(kind, r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
