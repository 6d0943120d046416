package domain

import "encoding/json"

// ItemType is the closed set of content item kinds accepted by the import API.
type ItemType string

const (
	ItemTask      ItemType = "task"
	ItemSubmodule ItemType = "submodule"
)

const (
	DefaultCourseName = "Imported Course"
	DefaultModuleName = "Untitled Module"
	DefaultItemTitle  = "Untitled"
	DefaultDifficulty = "medium"
)

// Valid reports whether t is one of the known item kinds.
func (t ItemType) Valid() bool {
	return t == ItemTask || t == ItemSubmodule
}

// DefaultMaxScore is used when an item carries no usable max_score.
func (t ItemType) DefaultMaxScore() int {
	if t == ItemTask {
		return 100
	}
	return 0
}

// ContentItem is a single task or submodule inside a module.
// Optional strings stay nil when the source omits them and serialize as null.
type ContentItem struct {
	Type        ItemType `json:"type"`
	Title       string   `json:"title"`
	Difficulty  string   `json:"difficulty"`
	MaxScore    int      `json:"max_score"`
	Description string   `json:"description"`
	TimeLimit   *string  `json:"time_limit"`
	MemoryLimit *string  `json:"memory_limit"`
	ContentURL  *string  `json:"contentUrl"`
	TestsURL    *string  `json:"testsUrl"`
}

// Module is an ordered, named group of content items.
type Module struct {
	ModuleName string        `json:"module_name"`
	Content    []ContentItem `json:"submodules"`
}

func (m Module) MarshalJSON() ([]byte, error) {
	type plain Module
	p := plain(m)
	if p.Content == nil {
		p.Content = []ContentItem{}
	}
	return json.Marshal(p)
}

// Course is the canonical document sent to the import endpoint.
type Course struct {
	CourseName   string   `json:"course_name"`
	Description  *string  `json:"description"`
	AllowedUsers []string `json:"allowed_users"`
	AddressName  *string  `json:"address_name"`
	Modules      []Module `json:"modules"`
}

func (c Course) MarshalJSON() ([]byte, error) {
	type plain Course
	p := plain(c)
	if p.AllowedUsers == nil {
		p.AllowedUsers = []string{}
	}
	if p.Modules == nil {
		p.Modules = []Module{}
	}
	return json.Marshal(p)
}

// ItemCount returns the number of content items across all modules.
func (c Course) ItemCount() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Content)
	}
	return n
}

// Validate checks the invariants every canonical document must hold.
func (c Course) Validate() error {
	for i, m := range c.Modules {
		for j, it := range m.Content {
			if !it.Type.Valid() {
				return &StructureError{
					Path: itemPath(i, j) + ".type",
					Msg:  "unknown item type " + quote(string(it.Type)),
				}
			}
		}
	}
	return nil
}
