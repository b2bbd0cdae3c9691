package products

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a canonical product identifier (UUID text form, lowercase).
type ID string

func (id ID) String() string { return string(id) }

type Kind string

const (
	KindCourse   Kind = "course"
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
)

// Product describes one sellable item of the catalog.
type Product struct {
	ID          ID     `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	// AddonFlag is the checkout metadata key that requests this product as an add-on.
	AddonFlag string `json:"-"`
}

const (
	BaseProductID          ID = "4a554622-d759-42b7-b830-79c9136d2f96"
	AdGeneratorProductID   ID = "4ba5c775-a8e4-449e-828f-19f938e3710b"
	BlueprintProductID     ID = "e5749058-500d-4333-8938-c8a19b16cd65"
	PricingTemplateProduct ID = "f2a8c6b1-9d3e-4c7f-b5a2-1e8d7f9b6c3a"
)

// ErrUnknownProduct is matched by every UnknownProductError via errors.Is.
var ErrUnknownProduct = errors.New("unknown product")

// UnknownProductError is returned when an identifier is neither a known slug
// nor a known canonical id.
type UnknownProductError struct {
	Input string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %q", e.Input)
}

func (e *UnknownProductError) Is(target error) bool {
	return target == ErrUnknownProduct
}

var catalog = []Product{
	{
		ID:          BaseProductID,
		Slug:        "pmu-profit-system",
		Name:        "PMU Profit System",
		Description: "Complete course for building a profitable PMU business",
		Kind:        KindCourse,
	},
	{
		ID:          AdGeneratorProductID,
		Slug:        "pmu-ad-generator",
		Name:        "PMU Ad Generator",
		Description: "AI-powered ad copy generator for PMU artists",
		Kind:        KindTool,
		AddonFlag:   "includeAdGenerator",
	},
	{
		ID:          BlueprintProductID,
		Slug:        "consultation-success-blueprint",
		Name:        "Consultation Success Blueprint",
		Description: "Scripts and frameworks for converting consultations",
		Kind:        KindResource,
		AddonFlag:   "includeBlueprint",
	},
	{
		ID:          PricingTemplateProduct,
		Slug:        "pricing-template",
		Name:        "Premium Pricing Template",
		Description: "Pricing calculator and template for PMU services",
		Kind:        KindResource,
		AddonFlag:   "includePricingTemplate",
	},
}

var (
	bySlug = make(map[string]Product, len(catalog))
	byID   = make(map[ID]Product, len(catalog))
)

func init() {
	for _, p := range catalog {
		if _, dup := bySlug[p.Slug]; dup {
			panic("products: duplicate slug " + p.Slug)
		}
		if _, dup := byID[p.ID]; dup {
			panic("products: duplicate id " + string(p.ID))
		}
		bySlug[p.Slug] = p
		byID[p.ID] = p
	}
}

// Normalize maps a legacy slug or a canonical id to the canonical id.
// Canonical input is returned unchanged; anything else is an UnknownProductError.
func Normalize(id string) (ID, error) {
	in := strings.TrimSpace(id)
	if p, ok := lookupCanonical(in); ok {
		return p.ID, nil
	}
	if p, ok := bySlug[strings.ToLower(in)]; ok {
		return p.ID, nil
	}
	return "", &UnknownProductError{Input: id}
}

// ToLegacy returns the legacy slug for a canonical id.
func ToLegacy(id ID) (string, bool) {
	p, ok := lookupCanonical(string(id))
	if !ok {
		return "", false
	}
	return p.Slug, true
}

func IsLegacy(id string) bool {
	_, ok := bySlug[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

func IsCanonical(id string) bool {
	_, ok := lookupCanonical(strings.TrimSpace(id))
	return ok
}

// Lookup returns catalog metadata for either identifier form.
func Lookup(id string) (Product, bool) {
	canonical, err := Normalize(id)
	if err != nil {
		return Product{}, false
	}
	return byID[canonical], true
}

// All returns a copy of the catalog in declaration order.
func All() []Product {
	out := make([]Product, len(catalog))
	copy(out, catalog)
	return out
}

// Addons returns the products that can be requested through checkout flags.
func Addons() []Product {
	out := make([]Product, 0, len(catalog))
	for _, p := range catalog {
		if p.AddonFlag != "" {
			out = append(out, p)
		}
	}
	return out
}

func lookupCanonical(s string) (Product, bool) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return Product{}, false
	}
	p, ok := byID[ID(parsed.String())]
	return p, ok
}
