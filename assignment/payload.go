package assignment

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// Payload is the stage data an operator may attach to any transition.
// Fields that fail to parse are listed in Dropped and otherwise ignored;
// a bad field never blocks the state change it rode in on.
type Payload struct {
	Photos         []string
	BaleCount      *int64
	LoadWeight     *float64
	Moisture       *float64
	ActualQuantity *float64
	TimeRequired   string
	Signature      string
	Remarks        string
	Reason         string
	Dropped        []string
}

// ParsePayload decodes raw field by field. A nil or empty raw is an empty
// payload; a raw that is not a JSON object drops everything.
func ParsePayload(raw json.RawMessage) Payload {
	var p Payload
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		log.Printf("assignment: payload is not an object, ignoring: %v", err)
		p.Dropped = []string{"payload"}
		return p
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		ok := true
		switch k {
		case "photos":
			p.Photos, ok = parseStrings(v)
		case "bale_count":
			var n *int64
			n, ok = parseCount(v)
			p.BaleCount = n
		case "load_weight":
			p.LoadWeight, ok = parseQuantity(v)
		case "moisture":
			p.Moisture, ok = parseQuantity(v)
		case "actual_quantity":
			p.ActualQuantity, ok = parseQuantity(v)
		case "time_required":
			p.TimeRequired, ok = parseText(v)
		case "signature":
			p.Signature, ok = parseString(v)
		case "remarks":
			p.Remarks, ok = parseString(v)
		case "reason":
			p.Reason, ok = parseString(v)
		default:
			// unknown keys are ignored silently; devices send extra telemetry
			continue
		}
		if !ok {
			p.Dropped = append(p.Dropped, k)
		}
	}
	if len(p.Dropped) > 0 {
		log.Printf("assignment: dropped malformed payload fields: %s", strings.Join(p.Dropped, ", "))
	}
	return p
}

// Empty reports whether the payload carries nothing to merge.
func (p Payload) Empty() bool {
	return len(p.Photos) == 0 && p.BaleCount == nil && p.LoadWeight == nil &&
		p.Moisture == nil && p.ActualQuantity == nil && p.TimeRequired == "" &&
		p.Signature == "" && p.Remarks == ""
}

// MergeInto applies the payload to a. Photos and remarks accumulate; scalar
// fields overwrite. Returns true if anything changed.
func (p Payload) MergeInto(a *store.Assignment) bool {
	changed := false
	for _, ph := range p.Photos {
		if !containsString(a.Photos, ph) {
			a.Photos = append(a.Photos, ph)
			changed = true
		}
	}
	if p.BaleCount != nil && (a.BaleCount == nil || *a.BaleCount != *p.BaleCount) {
		a.BaleCount = p.BaleCount
		changed = true
	}
	if mergeFloat(&a.LoadWeight, p.LoadWeight) {
		changed = true
	}
	if mergeFloat(&a.Moisture, p.Moisture) {
		changed = true
	}
	if mergeFloat(&a.ActualQuantity, p.ActualQuantity) {
		changed = true
	}
	if p.TimeRequired != "" && a.TimeRequired != p.TimeRequired {
		a.TimeRequired = p.TimeRequired
		changed = true
	}
	if p.Signature != "" && a.Signature != p.Signature {
		a.Signature = p.Signature
		changed = true
	}
	if appendRemark(a, p.Remarks) {
		changed = true
	}
	return changed
}

// appendRemark adds r on a new line unless it repeats the last line, so a
// replayed call does not duplicate remarks.
func appendRemark(a *store.Assignment, r string) bool {
	r = strings.TrimSpace(r)
	if r == "" {
		return false
	}
	if a.Remarks == "" {
		a.Remarks = r
		return true
	}
	lines := strings.Split(a.Remarks, "\n")
	if lines[len(lines)-1] == r {
		return false
	}
	a.Remarks += "\n" + r
	return true
}

func mergeFloat(dst **float64, v *float64) bool {
	if v == nil {
		return false
	}
	if *dst != nil && **dst == *v {
		return false
	}
	*dst = v
	return true
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func parseString(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// parseStrings accepts a single string or an array of strings.
func parseStrings(v json.RawMessage) ([]string, bool) {
	var one string
	if err := json.Unmarshal(v, &one); err == nil {
		if one == "" {
			return nil, true
		}
		return []string{one}, true
	}
	var many []string
	if err := json.Unmarshal(v, &many); err != nil {
		return nil, false
	}
	out := many[:0]
	for _, s := range many {
		if s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

// parseNumber accepts a JSON number or a numeric string.
func parseNumber(v json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseQuantity(v json.RawMessage) (*float64, bool) {
	f, ok := parseNumber(v)
	if !ok || f < 0 {
		return nil, false
	}
	return &f, true
}

func parseCount(v json.RawMessage) (*int64, bool) {
	f, ok := parseNumber(v)
	if !ok || f < 0 || f != math.Trunc(f) {
		return nil, false
	}
	n := int64(f)
	return &n, true
}

// parseText accepts a string or a number rendered as its shortest form.
func parseText(v json.RawMessage) (string, bool) {
	if s, ok := parseString(v); ok {
		return s, true
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
