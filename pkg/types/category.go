package types

import (
	"fmt"
	"strings"
)

// Category selects which kind of embedded resource a pipeline handles.
type Category int

const (
	Image Category = iota + 1
	Script
	Stylesheet
)

// AllCategories lists every supported category in processing order.
func AllCategories() []Category {
	return []Category{Image, Script, Stylesheet}
}

func (c Category) String() string {
	switch c {
	case Image:
		return "image"
	case Script:
		return "script"
	case Stylesheet:
		return "stylesheet"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	switch c {
	case Image, Script, Stylesheet:
		return true
	default:
		return false
	}
}

// Tag returns the element name carrying references of this category.
func (c Category) Tag() string {
	switch c {
	case Image:
		return "img"
	case Script:
		return "script"
	case Stylesheet:
		return "link"
	default:
		return ""
	}
}

// Attr returns the attribute holding the reference.
func (c Category) Attr() string {
	switch c {
	case Image, Script:
		return "src"
	case Stylesheet:
		return "href"
	default:
		return ""
	}
}

// ParseCategory maps a category name to its value. The plural aliases
// images, scripts and links are accepted too.
func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "image", "images", "img":
		return Image, nil
	case "script", "scripts":
		return Script, nil
	case "stylesheet", "stylesheets", "link", "links":
		return Stylesheet, nil
	default:
		return 0, UnsupportedCategoryError(name)
	}
}

// UnsupportedCategoryError builds the validation error returned for unknown categories.
func UnsupportedCategoryError(name string) *ValidationError {
	names := make([]string, 0, 3)
	for _, c := range AllCategories() {
		names = append(names, c.String())
	}
	return &ValidationError{
		Field:   "category",
		Message: fmt.Sprintf("unsupported resource category %q: supported categories are %s", name, strings.Join(names, ", ")),
	}
}
