// version.go: Semantic versions and dependency version constraints
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version. Minor and patch may be omitted in the
// source string ("2" and "2.1" parse as 2.0.0 and 2.1.0).
type Version struct {
	Major      uint64 `json:"major"`
	Minor      uint64 `json:"minor"`
	Patch      uint64 `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
	Build      string `json:"build,omitempty"`
	Original   string `json:"original"`
}

// ParseVersion parses "major[.minor[.patch]][-prerelease][+build]", with an
// optional leading "v".
func ParseVersion(s string) (*Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, NewInvalidVersionError(s, nil)
	}
	core := strings.TrimPrefix(raw, "v")

	v := &Version{Original: s}
	core, v.Build, _ = strings.Cut(core, "+")
	core, v.Prerelease, _ = strings.Cut(core, "-")

	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		return nil, NewInvalidVersionError(s, fmt.Errorf("too many components"))
	}
	targets := []*uint64{&v.Major, &v.Minor, &v.Patch}
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, NewInvalidVersionError(s, err).
				WithContext("component", [...]string{"major", "minor", "patch"}[i])
		}
		*targets[i] = n
	}
	return v, nil
}

// String renders the normalized version.
func (v *Version) String() string {
	out := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		out += "-" + v.Prerelease
	}
	if v.Build != "" {
		out += "+" + v.Build
	}
	return out
}

// Compare returns -1, 0 or 1. Build metadata is ignored and a prerelease
// sorts before its release.
func (v *Version) Compare(other *Version) int {
	for _, pair := range [][2]uint64{
		{v.Major, other.Major},
		{v.Minor, other.Minor},
		{v.Patch, other.Patch},
	} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	}
	return strings.Compare(v.Prerelease, other.Prerelease)
}

// Satisfies reports whether v matches constraint. Supported forms are "*"
// (or empty), "^x.y.z", "~x.y.z", the comparisons ">=", ">", "<=", "<", "="
// and a bare version for an exact match.
func (v *Version) Satisfies(constraint string) (bool, error) {
	c := strings.TrimSpace(constraint)
	if c == "" || c == "*" {
		return true, nil
	}

	op, target := splitConstraint(c)
	want, err := ParseVersion(target)
	if err != nil {
		return false, err
	}
	cmp := v.Compare(want)

	switch op {
	case "^":
		return v.Major == want.Major && cmp >= 0, nil
	case "~":
		return v.Major == want.Major && v.Minor == want.Minor && cmp >= 0, nil
	case ">=":
		return cmp >= 0, nil
	case ">":
		return cmp > 0, nil
	case "<=":
		return cmp <= 0, nil
	case "<":
		return cmp < 0, nil
	default:
		return cmp == 0, nil
	}
}

func splitConstraint(c string) (string, string) {
	for _, op := range []string{">=", "<=", "^", "~", ">", "<", "="} {
		if strings.HasPrefix(c, op) {
			return op, strings.TrimSpace(c[len(op):])
		}
	}
	return "", c
}

// validConstraint checks that a constraint parses.
func validConstraint(constraint string) error {
	c := strings.TrimSpace(constraint)
	if c == "" || c == "*" {
		return nil
	}
	_, target := splitConstraint(c)
	_, err := ParseVersion(target)
	return err
}
