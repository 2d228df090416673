package schema

import "github.com/skiffdb/skiff/value"

// Union combines an ordered list of per-version validators into one
// validator accepting any historical shape. Every read passes through this
// single gate.
type Union struct {
	versions []Validator
}

// NewUnion builds a union over validators in version order (v1 first).
func NewUnion(versions ...Validator) *Union {
	vs := make([]Validator, len(versions))
	copy(vs, versions)
	return &Union{versions: vs}
}

// Len returns the number of registered versions.
func (u *Union) Len() int {
	return len(u.versions)
}

// Validate tries each version in order and returns the first successful
// parse. On failure it returns the issues of every version, each tagged
// with its 1-based version number.
func (u *Union) Validate(v value.Value) (value.Value, []Issue) {
	parsed, _, issues := u.Match(v)
	return parsed, issues
}

// Match is Validate plus the 1-based version number that accepted the
// value. Version is 0 when no version accepts it.
func (u *Union) Match(v value.Value) (value.Value, int, []Issue) {
	var all []Issue
	for i, version := range u.versions {
		parsed, issues := version.Validate(v)
		if len(issues) == 0 {
			return parsed, i + 1, nil
		}
		for _, issue := range issues {
			issue.Version = i + 1
			all = append(all, issue)
		}
	}
	if len(all) == 0 {
		all = []Issue{{Message: "no schema versions registered"}}
	}
	return nil, 0, all
}
