// Package validation checks harvested spatial metadata and reports the outcome.
//
// A Validators value applies a configured list of profiles in order and stops
// at the first one that fails, the way the harvesters record validation
// errors against a harvest object. The report helpers read those recorded
// errors back from the CKAN database and print them as text or CSV.
package validation

import (
	"fmt"
	"strings"

	"github.com/ckan/ckanext-spatial/pkg/domain"
	"github.com/ckan/ckanext-spatial/pkg/iso"
)

// Validators applies a list of profiles to metadata documents.
type Validators struct {
	profiles []Profile
}

// Result is the outcome of validating one document.
type Result struct {
	Valid bool
	// Profile is the name of the first failing profile, empty when valid.
	Profile string
	Errors  []string
}

// New builds validators for the named profiles. Unknown names are an error.
func New(names []string) (*Validators, error) {
	v := &Validators{}
	for _, name := range names {
		p, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown validation profile %q (available: %s)",
				domain.ErrConfigInvalid, name, strings.Join(Available(), ", "))
		}
		v.profiles = append(v.profiles, p)
	}
	return v, nil
}

// Profiles returns the configured profile names in order.
func (v *Validators) Profiles() []string {
	names := make([]string, len(v.profiles))
	for i, p := range v.profiles {
		names[i] = p.Name()
	}
	return names
}

// Validate runs every profile until one reports errors.
func (v *Validators) Validate(doc *iso.Document) Result {
	for _, p := range v.profiles {
		errs := p.Check(doc)
		if len(errs) == 0 {
			continue
		}
		header := FailureMessage(p)
		return Result{
			Valid:   false,
			Profile: p.Name(),
			Errors:  append([]string{header}, errs...),
		}
	}
	return Result{Valid: true}
}

// FailureMessage is the first error recorded when a profile fails.
func FailureMessage(p Profile) string {
	return fmt.Sprintf("Validating against %q profile failed", p.Title())
}
