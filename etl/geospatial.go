package etl

import (
	"strings"
)

// ZipFinder resolves a postal code for a state and city. Backed by the
// geo reference store in production; injectable for tests.
type ZipFinder interface {
	FindZipByStateCity(state, city string) (string, error)
}

// NewGeospatialLibrary builds the location-lookup transform library.
func NewGeospatialLibrary(finder ZipFinder) Library {
	geo := &geospatialLibrary{finder: finder}

	lib := &methodLibrary{name: "geospatial"}
	lib.methods = map[string]methodFunc{
		"findZipByStateCity": geo.findZipByStateCity,
	}
	return lib
}

type geospatialLibrary struct {
	finder ZipFinder
}

// findZipByStateCity looks up the postal code for a state/city pair.
// Two-letter states match on state code, longer ones on state name; both
// are matched uppercase. Results are left-padded to five digits; a missing
// pair yields "".
func (g *geospatialLibrary) findZipByStateCity(args []interface{}) (interface{}, error) {
	state := strings.ToUpper(strings.TrimSpace(argString(arg(args, 0))))
	city := strings.ToUpper(strings.TrimSpace(argString(arg(args, 1))))

	if state == "" || city == "" || g.finder == nil {
		return "", nil
	}

	zip, err := g.finder.FindZipByStateCity(state, city)
	if err != nil {
		return nil, err
	}
	if zip == "" {
		return "", nil
	}

	for len(zip) < 5 {
		zip = "0" + zip
	}
	return zip, nil
}
