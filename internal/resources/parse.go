package resources

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

// ErrInvalidResource is returned by Parse for malformed input.
var ErrInvalidResource = errors.New("invalid resource")

// Parse reads the semicolon separated text form of a resource list:
//
//	cpus:2;mem:4GiB;ports:{8080,8443};cpus(web):1
//
// A role may follow the name in parentheses. Set values are written in
// braces. The "mem" and "disk" resources are measured in megabytes and also
// accept size suffixes such as 512MiB or 4GiB.
func Parse(text string) (Resources, error) {
	var out Resources
	for _, field := range strings.Split(text, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		r, err := parseResource(field)
		if err != nil {
			return Resources{}, err
		}
		out.addResource(r)
	}
	return out, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static tables.
func MustParse(text string) Resources {
	rs, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return rs
}

func parseResource(field string) (Resource, error) {
	key, value, ok := strings.Cut(field, ":")
	if !ok {
		return Resource{}, fmt.Errorf("%w %q: missing ':'", ErrInvalidResource, field)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	name, role := key, DefaultRole
	if open := strings.IndexByte(key, '('); open >= 0 {
		if !strings.HasSuffix(key, ")") {
			return Resource{}, fmt.Errorf("%w %q: unterminated role", ErrInvalidResource, field)
		}
		name, role = key[:open], key[open+1:len(key)-1]
		if role == "" {
			return Resource{}, fmt.Errorf("%w %q: empty role", ErrInvalidResource, field)
		}
	}
	if name == "" {
		return Resource{}, fmt.Errorf("%w %q: empty name", ErrInvalidResource, field)
	}

	if strings.HasPrefix(value, "{") {
		if !strings.HasSuffix(value, "}") {
			return Resource{}, fmt.Errorf("%w %q: unterminated set", ErrInvalidResource, field)
		}
		var items []string
		for _, item := range strings.Split(value[1:len(value)-1], ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return Resource{Name: name, Role: role, Type: Set, Items: items}, nil
	}

	amount, err := parseScalar(name, value)
	if err != nil {
		return Resource{}, fmt.Errorf("%w %q: %v", ErrInvalidResource, field, err)
	}
	return Resource{Name: name, Role: role, Type: Scalar, Scalar: amount}, nil
}

func parseScalar(name, value string) (float64, error) {
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		if name != "mem" && name != "disk" {
			return 0, err
		}
		bytes, sizeErr := units.RAMInBytes(value)
		if sizeErr != nil {
			return 0, sizeErr
		}
		amount = float64(bytes) / units.MiB
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, errors.New("amount must be finite")
	}
	if amount < 0 {
		return 0, errors.New("negative amount")
	}
	return amount, nil
}
