package contracts

import (
	"strconv"
	"strings"
)

// Params holds raw tool parameters as submitted by the caller.
type Params map[string]string

func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && strings.TrimSpace(v) != ""
}

func (p Params) String(key, def string) string {
	if !p.Has(key) {
		return def
	}
	return p[key]
}

func (p Params) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(p[key]))
	if err != nil {
		return def, Invalid(key, p[key], "not an integer")
	}
	return v, nil
}

func (p Params) Float(key string, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p[key]), 64)
	if err != nil {
		return def, Invalid(key, p[key], "not a number")
	}
	return v, nil
}

// Bool accepts the usual strconv spellings plus "on"/"off" and "yes"/"no".
func (p Params) Bool(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(p[key])) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(p[key]))
	if err != nil {
		return def, Invalid(key, p[key], "not a boolean")
	}
	return v, nil
}
