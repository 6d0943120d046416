// Package parser turns an unpacked course directory into the canonical
// course document.
//
// Manifest-level problems (no directory, no manifest, undecodable manifest,
// a field of the wrong shape) are fatal and reported as
// *domain.StructureError. Item-level problems are not: items of an unknown
// type are dropped, malformed scores fall back to the type default, and
// unreadable content files become a "Content missing at: <ref>" description.
package parser

import (
	"errors"

	"github.com/rs/zerolog"

	"course-import/internal/domain"
	"course-import/internal/metrics"
)

// Parser carries the observers of a parse. The zero value is usable.
type Parser struct {
	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// New returns a parser that logs to logger and records into m (may be nil).
func New(logger zerolog.Logger, m *metrics.Collector) *Parser {
	return &Parser{Logger: logger, Metrics: m}
}

// Parse reads the course in dir without logging or metrics.
func Parse(dir string) (domain.Course, error) {
	return New(zerolog.Nop(), nil).Parse(dir)
}

// Parse reads the course in dir.
func (p *Parser) Parse(dir string) (domain.Course, error) {
	root, manifest, err := resolveRoot(dir, p.Logger)
	if err != nil {
		return domain.Course{}, err
	}

	raw, err := decodeManifest(manifest)
	if err != nil {
		return domain.Course{}, &domain.StructureError{Path: manifest, Msg: "failed to parse course manifest", Err: err}
	}

	course, err := p.build(root, raw)
	if err != nil {
		return domain.Course{}, &domain.StructureError{Path: manifest, Msg: "failed to parse course manifest", Err: err}
	}

	p.Logger.Info().
		Str("course", course.CourseName).
		Int("modules", len(course.Modules)).
		Int("items", course.ItemCount()).
		Strs("allowed_users", course.AllowedUsers).
		Msg("course parsed")

	return course, nil
}

func (p *Parser) build(root string, raw any) (domain.Course, error) {
	f, err := domain.NewFields("", raw)
	if err != nil {
		return domain.Course{}, err
	}

	var c domain.Course
	if c.CourseName, err = f.String(domain.DefaultCourseName, "title"); err != nil {
		return domain.Course{}, err
	}
	if c.Description, err = f.OptString("description"); err != nil {
		return domain.Course{}, err
	}
	if c.AllowedUsers, err = f.Strings("allowed_users", "allowedUsers"); err != nil {
		return domain.Course{}, err
	}
	if c.AddressName, err = f.OptString("address_name"); err != nil {
		return domain.Course{}, err
	}

	mods, _, err := f.Objects("modules")
	if err != nil {
		return domain.Course{}, err
	}

	c.Modules = make([]domain.Module, 0, len(mods))
	for _, mf := range mods {
		m, err := p.module(root, mf)
		if err != nil {
			return domain.Course{}, err
		}
		c.Modules = append(c.Modules, m)
	}

	return c, c.Validate()
}

func (p *Parser) module(root string, f domain.Fields) (domain.Module, error) {
	name, err := f.String(domain.DefaultModuleName, "title")
	if err != nil {
		return domain.Module{}, err
	}

	items, _, err := f.Objects("content")
	if err != nil {
		return domain.Module{}, err
	}

	m := domain.Module{ModuleName: name, Content: make([]domain.ContentItem, 0, len(items))}
	for _, itf := range items {
		typ, _ := itf.Value("type").(string)
		if !domain.ItemType(typ).Valid() {
			p.Logger.Debug().Str("item", itf.Path()).Interface("type", itf.Value("type")).Msg("skipping item of unknown type")
			p.Metrics.ItemSkipped()
			continue
		}

		it, err := p.item(root, domain.ItemType(typ), itf)
		if err != nil {
			return domain.Module{}, err
		}
		p.Metrics.ItemParsed(typ)
		m.Content = append(m.Content, it)
	}
	return m, nil
}

func (p *Parser) item(root string, typ domain.ItemType, f domain.Fields) (domain.ContentItem, error) {
	var (
		it  = domain.ContentItem{Type: typ}
		err error
	)

	if it.Title, err = f.String(domain.DefaultItemTitle, "title"); err != nil {
		return domain.ContentItem{}, err
	}
	it.Difficulty = domain.NormalizeDifficulty(f.Value("difficulty"))
	it.MaxScore = domain.CoerceInt(f.Value("max_score"), typ.DefaultMaxScore())

	if it.TimeLimit, err = f.OptString("time_limit"); err != nil {
		return domain.ContentItem{}, err
	}
	if it.MemoryLimit, err = f.OptString("memory_limit"); err != nil {
		return domain.ContentItem{}, err
	}
	if it.TestsURL, err = f.OptString("testsUrl"); err != nil {
		return domain.ContentItem{}, err
	}
	if it.ContentURL, err = f.OptString("contentUrl"); err != nil {
		return domain.ContentItem{}, err
	}

	if it.ContentURL != nil && *it.ContentURL != "" {
		ref := *it.ContentURL
		body, err := readContent(root, ref)
		if err != nil {
			var missing *MissingFileError
			ev := p.Logger.Warn().Str("item", f.Path()).Str("ref", ref)
			if errors.As(err, &missing) {
				ev.Msg("content file missing")
			} else {
				ev.Err(err).Msg("content file unreadable")
			}
			p.Metrics.ContentMissing()
			body = MissingContentPlaceholder(ref)
		}
		it.Description = body
	}

	return it, nil
}
