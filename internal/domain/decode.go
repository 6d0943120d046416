package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeCourse reads a canonical document previously produced by the parser
// (or by another tool speaking the same schema) and validates it.
func DecodeCourse(data []byte) (Course, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Course{}, &StructureError{Msg: "invalid document", Err: err}
	}
	return CourseFromMap(raw)
}

// CourseFromMap builds a Course from a loosely typed canonical document.
// Unlike the manifest parser it is strict: unknown item types and missing
// required fields are errors. Aliased keys are accepted on input.
func CourseFromMap(raw any) (Course, error) {
	f, err := NewFields("", raw)
	if err != nil {
		return Course{}, err
	}

	var c Course
	if c.CourseName, err = f.RequiredString("course_name"); err != nil {
		return Course{}, err
	}
	if c.Description, err = f.OptString("description"); err != nil {
		return Course{}, err
	}
	if c.AllowedUsers, err = f.Strings("allowed_users", "allowedUsers"); err != nil {
		return Course{}, err
	}
	if c.AddressName, err = f.OptString("address_name"); err != nil {
		return Course{}, err
	}

	mods, present, err := f.Objects("modules")
	if err != nil {
		return Course{}, err
	}
	if !present {
		return Course{}, &StructureError{Path: "modules", Msg: "required field missing"}
	}

	c.Modules = make([]Module, 0, len(mods))
	for _, mf := range mods {
		m, err := moduleFromFields(mf)
		if err != nil {
			return Course{}, err
		}
		c.Modules = append(c.Modules, m)
	}

	return c, c.Validate()
}

func moduleFromFields(f Fields) (Module, error) {
	var (
		m   Module
		err error
	)
	if m.ModuleName, err = f.RequiredString("module_name"); err != nil {
		return Module{}, err
	}

	items, present, err := f.Objects("submodules", "content")
	if err != nil {
		return Module{}, err
	}
	if !present {
		return Module{}, &StructureError{Path: f.Path() + ".submodules", Msg: "required field missing"}
	}

	m.Content = make([]ContentItem, 0, len(items))
	for _, itf := range items {
		it, err := itemFromFields(itf)
		if err != nil {
			return Module{}, err
		}
		m.Content = append(m.Content, it)
	}
	return m, nil
}

func itemFromFields(f Fields) (ContentItem, error) {
	var (
		it  ContentItem
		err error
	)

	typ, err := f.RequiredString("type")
	if err != nil {
		return ContentItem{}, err
	}
	it.Type = ItemType(typ)
	if !it.Type.Valid() {
		return ContentItem{}, &StructureError{Path: f.Path() + ".type", Msg: "unknown item type " + quote(typ)}
	}

	if it.Title, err = f.RequiredString("title"); err != nil {
		return ContentItem{}, err
	}
	if it.Difficulty, err = f.String(DefaultDifficulty, "difficulty"); err != nil {
		return ContentItem{}, err
	}
	if v := f.Value("max_score"); v != nil {
		n, ok := toInt(v, false)
		if !ok {
			return ContentItem{}, &StructureError{
				Path: f.Path() + ".max_score",
				Msg:  fmt.Sprintf("expected integer, got %v", v),
			}
		}
		it.MaxScore = n
	}
	if it.Description, err = f.String("", "description"); err != nil {
		return ContentItem{}, err
	}
	if it.TimeLimit, err = f.OptString("time_limit"); err != nil {
		return ContentItem{}, err
	}
	if it.MemoryLimit, err = f.OptString("memory_limit"); err != nil {
		return ContentItem{}, err
	}
	if it.ContentURL, err = f.OptString("contentUrl", "content_url"); err != nil {
		return ContentItem{}, err
	}
	if it.TestsURL, err = f.OptString("testsUrl", "tests_url"); err != nil {
		return ContentItem{}, err
	}
	return it, nil
}
