package archivesspace

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bc2as/internal/derive"
	"github.com/starford/bc2as/internal/models"
)

// Record levels and enumerations used by the drafts.
const (
	LevelFile         = "file"
	DateTypeInclusive = "inclusive"
	DateLabelCreation = "creation"
	DateLabelModified = "modified"
	PortionWhole      = "whole"
	ExtentMegabytes   = "megabytes"
	NotePhysDesc      = "physdesc"
	NoteProcessInfo   = "processinfo"
	UnknownExtent     = "Unknown"
)

// Date is an ArchivesSpace date subrecord.
type Date struct {
	JSONModelType string `json:"jsonmodel_type"`
	DateType      string `json:"date_type"`
	Label         string `json:"label"`
	Begin         string `json:"begin"`
	End           string `json:"end,omitempty"`
	Expression    string `json:"expression,omitempty"`
}

// Validate checks the date subrecord.
func (d Date) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.DateType, validation.Required),
		validation.Field(&d.Label, validation.Required),
		validation.Field(&d.Begin, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&d.End, validation.Date(models.DateLayout)),
	)
	if err != nil {
		return err
	}
	if d.End != "" && d.End < d.Begin {
		return errors.New("end: must not be before begin")
	}
	return nil
}

// Extent is an ArchivesSpace extent subrecord.
type Extent struct {
	JSONModelType string `json:"jsonmodel_type"`
	Portion       string `json:"portion"`
	Number        string `json:"number"`
	ExtentType    string `json:"extent_type"`
}

// Validate checks the extent subrecord.
func (e Extent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Portion, validation.Required),
		validation.Field(&e.Number, validation.Required),
		validation.Field(&e.ExtentType, validation.Required),
	)
}

// Note is a single-part note.
type Note struct {
	JSONModelType string   `json:"jsonmodel_type"`
	Type          string   `json:"type"`
	Content       []string `json:"content"`
	Publish       bool     `json:"publish"`
}

// Validate checks the note.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Type, validation.Required),
		validation.Field(&n.Content, validation.NotNil),
	)
}

// LangMaterial declares the language of described materials.
type LangMaterial struct {
	JSONModelType     string            `json:"jsonmodel_type"`
	LanguageAndScript LanguageAndScript `json:"language_and_script"`
}

// LanguageAndScript is the nested language subrecord of LangMaterial.
type LanguageAndScript struct {
	JSONModelType string `json:"jsonmodel_type"`
	Language      string `json:"language"`
}

// RepositoryDraft creates a repository.
type RepositoryDraft struct {
	JSONModelType string `json:"jsonmodel_type"`
	RepoCode      string `json:"repo_code"`
	Name          string `json:"name"`
}

// NewRepositoryDraft names the repository after its code.
func NewRepositoryDraft(code string) RepositoryDraft {
	return RepositoryDraft{JSONModelType: "repository", RepoCode: code, Name: code}
}

// Validate checks the draft.
func (d RepositoryDraft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.RepoCode, validation.Required),
		validation.Field(&d.Name, validation.Required),
	)
}

// ResourceDraft creates the collection-level resource for a project.
type ResourceDraft struct {
	JSONModelType      string         `json:"jsonmodel_type"`
	Title              string         `json:"title"`
	ID0                string         `json:"id_0"`
	Level              string         `json:"level"`
	FindingAidLanguage string         `json:"finding_aid_language"`
	FindingAidScript   string         `json:"finding_aid_script"`
	LangMaterials      []LangMaterial `json:"lang_materials"`
	Dates              []Date         `json:"dates"`
	Extents            []Extent       `json:"extents"`
	Notes              []Note         `json:"notes"`
}

// NewResourceDraft returns a resource for a project created on day. The
// extent is unknown until datasets are described.
func NewResourceDraft(title, id string, day time.Time) ResourceDraft {
	today := day.Format(models.DateLayout)
	return ResourceDraft{
		JSONModelType:      "resource",
		Title:              title,
		ID0:                id,
		Level:              LevelFile,
		FindingAidLanguage: "eng",
		FindingAidScript:   "Latn",
		LangMaterials: []LangMaterial{{
			JSONModelType:     "lang_material",
			LanguageAndScript: LanguageAndScript{JSONModelType: "language_and_script", Language: "eng"},
		}},
		Dates: []Date{{
			JSONModelType: "date",
			DateType:      DateTypeInclusive,
			Label:         DateLabelCreation,
			Begin:         today,
			End:           today,
		}},
		Extents: []Extent{{
			JSONModelType: "extent",
			Portion:       PortionWhole,
			Number:        UnknownExtent,
			ExtentType:    ExtentMegabytes,
		}},
		Notes: []Note{},
	}
}

// Validate checks the draft.
func (d ResourceDraft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.ID0, validation.Required),
		validation.Field(&d.Level, validation.Required),
		validation.Field(&d.Dates, validation.Required),
		validation.Field(&d.Extents, validation.Required),
	)
}

// ParentObjectDraft creates the project-level archival object.
type ParentObjectDraft struct {
	JSONModelType string   `json:"jsonmodel_type"`
	Title         string   `json:"title"`
	Level         string   `json:"level"`
	RefID         string   `json:"ref_id"`
	Resource      Ref      `json:"resource"`
	Dates         []Date   `json:"dates"`
	Extents       []Extent `json:"extents"`
	Notes         []Note   `json:"notes"`
}

// NewParentObjectDraft returns the archival object for a project linked to
// resourceURI.
func NewParentObjectDraft(title, refID, resourceURI string) ParentObjectDraft {
	return ParentObjectDraft{
		JSONModelType: "archival_object",
		Title:         title,
		Level:         LevelFile,
		RefID:         refID,
		Resource:      Ref{Ref: resourceURI},
		Dates:         []Date{},
		Extents:       []Extent{},
		Notes:         []Note{},
	}
}

// Validate checks the draft.
func (d ParentObjectDraft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.Level, validation.Required),
		validation.Field(&d.RefID, validation.Required),
		validation.Field(&d.Resource),
	)
}

// ChildObjectDraft creates the dataset-level archival object.
type ChildObjectDraft struct {
	JSONModelType string   `json:"jsonmodel_type"`
	Title         string   `json:"title"`
	Level         string   `json:"level"`
	Resource      Ref      `json:"resource"`
	Dates         []Date   `json:"dates"`
	Extents       []Extent `json:"extents"`
	Notes         []Note   `json:"notes"`
}

// NewChildObjectDraft describes one dataset. When createdBy is set a
// processing note naming the operator and day is added.
func NewChildObjectDraft(facts *models.DatasetFacts, resourceURI, createdBy string, day time.Time) ChildObjectDraft {
	notes := []Note{{
		JSONModelType: "note_singlepart",
		Type:          NotePhysDesc,
		Content:       append([]string{}, facts.Notes...),
	}}
	if createdBy != "" {
		notes = append(notes, Note{
			JSONModelType: "note_singlepart",
			Type:          NoteProcessInfo,
			Content:       []string{"Metadata imported from Brunnhilde reports by " + createdBy + " on " + day.Format(models.DateLayout) + "."},
		})
	}
	return ChildObjectDraft{
		JSONModelType: "archival_object",
		Title:         facts.Identifier,
		Level:         LevelFile,
		Resource:      Ref{Ref: resourceURI},
		Dates: []Date{{
			JSONModelType: "date",
			DateType:      DateTypeInclusive,
			Label:         DateLabelModified,
			Begin:         facts.BeginDate(),
			End:           facts.EndDate(),
			Expression:    facts.DateExpression,
		}},
		Extents: []Extent{{
			JSONModelType: "extent",
			Portion:       PortionWhole,
			Number:        derive.Megabytes(facts.TotalSizeBytes),
			ExtentType:    ExtentMegabytes,
		}},
		Notes: notes,
	}
}

// Validate checks the draft.
func (d ChildObjectDraft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.Level, validation.Required),
		validation.Field(&d.Resource),
		validation.Field(&d.Dates, validation.Required, validation.Length(1, 1)),
		validation.Field(&d.Extents, validation.Required),
		validation.Field(&d.Notes),
	)
}

type childrenEnvelope struct {
	JSONModelType string             `json:"jsonmodel_type"`
	Children      []ChildObjectDraft `json:"children"`
}
