// Package negotiate implements HTTP content negotiation the way Express
// middleware expects it: quality-ordered Accept* matching and Content-Type
// checks against extension names or MIME patterns.
package negotiate

import (
	"sort"
	"strconv"
	"strings"
)

// HeaderGetter is the read side of a normalized header mapping.
type HeaderGetter interface {
	Lookup(name string) (string, bool)
}

// Negotiator orders server-side candidates by the client's Accept,
// Accept-Encoding, Accept-Charset and Accept-Language preferences.
type Negotiator struct {
	headers HeaderGetter
}

// New creates a negotiator reading its preferences from headers.
func New(headers HeaderGetter) *Negotiator {
	return &Negotiator{headers: headers}
}

// spec is one parsed entry of an Accept* header.
type spec struct {
	// value is the full entry as the client wrote it (type/subtype, encoding, language tag)
	value string
	// kind and sub hold type and subtype of a media type, or prefix and
	// suffix of a language tag
	kind, sub string
	params    map[string]string
	q         float64
	i         int
}

// priority is the best match of one candidate against the parsed header.
type priority struct {
	i int     // index of the candidate
	o int     // index of the header entry that matched
	q float64 // quality of that entry
	s int     // specificity of the match
}

func (p priority) better(o priority) bool {
	if p.s != o.s {
		return p.s > o.s
	}
	if p.q != o.q {
		return p.q > o.q
	}
	return p.o > o.o
}

func comparePriorities(a, b priority) bool {
	if a.q != b.q {
		return a.q > b.q
	}
	if a.s != b.s {
		return a.s > b.s
	}
	if a.o != b.o {
		return a.o < b.o
	}
	return a.i < b.i
}

// MediaTypes returns the acceptable media types among available, best first.
// With no candidates it returns the client's own preference order.
func (n *Negotiator) MediaTypes(available ...string) []string {
	header, ok := n.headers.Lookup("accept")
	if !ok {
		header = "*/*"
	}
	accepts := parseList(header, parseMediaType)
	return negotiate(accepts, available, specifyMediaType, func(s spec) string {
		return s.kind + "/" + s.sub
	})
}

// Encodings returns the acceptable content codings among available, best
// first. "identity" is acceptable unless the client says otherwise.
func (n *Negotiator) Encodings(available ...string) []string {
	header, _ := n.headers.Lookup("accept-encoding")
	accepts := parseList(header, parseToken)

	hasIdentity := false
	minQuality := 1.0
	for _, a := range accepts {
		if specifyToken("identity", a, 0) != nil {
			hasIdentity = true
		}
		q := a.q
		if q == 0 {
			q = 1
		}
		if q < minQuality {
			minQuality = q
		}
	}
	if !hasIdentity {
		accepts = append(accepts, spec{value: "identity", q: minQuality, i: len(splitList(header))})
	}

	return negotiate(accepts, available, specifyToken, func(s spec) string { return s.value })
}

// Charsets returns the acceptable charsets among available, best first.
func (n *Negotiator) Charsets(available ...string) []string {
	header, ok := n.headers.Lookup("accept-charset")
	if !ok {
		header = "*"
	}
	accepts := parseList(header, parseToken)
	return negotiate(accepts, available, specifyToken, func(s spec) string { return s.value })
}

// Languages returns the acceptable language tags among available, best first.
func (n *Negotiator) Languages(available ...string) []string {
	header, ok := n.headers.Lookup("accept-language")
	if !ok {
		header = "*"
	}
	accepts := parseList(header, parseLanguage)
	return negotiate(accepts, available, specifyLanguage, func(s spec) string { return s.value })
}

type specifier func(candidate string, s spec, index int) *priority

func negotiate(accepts []spec, available []string, specify specifier, full func(spec) string) []string {
	if len(available) == 0 {
		preferred := make([]spec, 0, len(accepts))
		for _, a := range accepts {
			if a.q > 0 {
				preferred = append(preferred, a)
			}
		}
		sort.SliceStable(preferred, func(x, y int) bool {
			if preferred[x].q != preferred[y].q {
				return preferred[x].q > preferred[y].q
			}
			return preferred[x].i < preferred[y].i
		})
		out := make([]string, len(preferred))
		for i, p := range preferred {
			out[i] = full(p)
		}
		return out
	}

	matched := make([]priority, 0, len(available))
	for i, candidate := range available {
		best := priority{i: i, o: -1}
		for _, a := range accepts {
			if p := specify(candidate, a, i); p != nil && p.better(best) {
				best = *p
			}
		}
		if best.q > 0 {
			matched = append(matched, best)
		}
	}
	sort.SliceStable(matched, func(x, y int) bool { return comparePriorities(matched[x], matched[y]) })

	out := make([]string, len(matched))
	for i, p := range matched {
		out[i] = available[p.i]
	}
	return out
}

func specifyMediaType(candidate string, s spec, index int) *priority {
	p, ok := parseMediaType(candidate, 0)
	if !ok {
		return nil
	}
	score := 0
	if strings.EqualFold(s.kind, p.kind) {
		score |= 4
	} else if s.kind != "*" {
		return nil
	}
	if strings.EqualFold(s.sub, p.sub) {
		score |= 2
	} else if s.sub != "*" {
		return nil
	}
	if len(s.params) > 0 {
		for k, v := range s.params {
			if v != "*" && !strings.EqualFold(v, p.params[k]) {
				return nil
			}
		}
		score |= 1
	}
	return &priority{i: index, o: s.i, q: s.q, s: score}
}

func specifyToken(candidate string, s spec, index int) *priority {
	score := 0
	if strings.EqualFold(s.value, candidate) {
		score |= 1
	} else if s.value != "*" {
		return nil
	}
	return &priority{i: index, o: s.i, q: s.q, s: score}
}

func specifyLanguage(candidate string, s spec, index int) *priority {
	p, ok := parseLanguage(candidate, 0)
	if !ok {
		return nil
	}
	score := 0
	switch {
	case strings.EqualFold(s.value, p.value):
		score |= 4
	case strings.EqualFold(s.kind, p.value):
		score |= 2
	case strings.EqualFold(s.value, p.kind):
		score |= 1
	case s.value != "*":
		return nil
	}
	return &priority{i: index, o: s.i, q: s.q, s: score}
}

func parseList(header string, parse func(string, int) (spec, bool)) []spec {
	var out []spec
	for i, part := range splitList(header) {
		if s, ok := parse(strings.TrimSpace(part), i); ok {
			out = append(out, s)
		}
	}
	return out
}

// splitList splits a header on commas that are not inside a quoted string.
func splitList(header string) []string {
	return splitQuoted(header, ',')
}

func splitQuoted(s string, sep byte) []string {
	var (
		parts  []string
		start  int
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func parseMediaType(entry string, i int) (spec, bool) {
	entry = strings.TrimSpace(entry)
	head, rest, _ := strings.Cut(entry, ";")
	head = strings.TrimSpace(head)
	kind, sub, ok := strings.Cut(head, "/")
	if !ok || kind == "" || sub == "" || strings.ContainsAny(kind, " \t") || strings.ContainsAny(sub, " \t/") {
		return spec{}, false
	}

	s := spec{value: head, kind: kind, sub: sub, params: map[string]string{}, q: 1, i: i}
	if rest == "" {
		return s, true
	}
	for _, kv := range splitQuoted(rest, ';') {
		key, value, _ := strings.Cut(strings.TrimSpace(kv), "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if key == "q" {
			s.q = parseQuality(value)
			break
		}
		if key != "" {
			s.params[key] = value
		}
	}
	return s, true
}

func parseToken(entry string, i int) (spec, bool) {
	head, rest, _ := strings.Cut(strings.TrimSpace(entry), ";")
	head = strings.TrimSpace(head)
	if head == "" || strings.ContainsAny(head, " \t") {
		return spec{}, false
	}
	return spec{value: head, q: qualityParam(rest), i: i}, true
}

func parseLanguage(entry string, i int) (spec, bool) {
	head, rest, _ := strings.Cut(strings.TrimSpace(entry), ";")
	head = strings.TrimSpace(head)
	if head == "" || strings.ContainsAny(head, " \t") {
		return spec{}, false
	}
	prefix, suffix, _ := strings.Cut(head, "-")
	if prefix == "" {
		return spec{}, false
	}
	return spec{value: head, kind: prefix, sub: suffix, q: qualityParam(rest), i: i}, true
}

func qualityParam(params string) float64 {
	for _, kv := range strings.Split(params, ";") {
		key, value, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if strings.TrimSpace(key) == "q" {
			return parseQuality(strings.TrimSpace(value))
		}
	}
	return 1
}

// parseQuality reads a qvalue; anything unparsable is treated as "not acceptable".
func parseQuality(v string) float64 {
	q, err := strconv.ParseFloat(v, 64)
	if err != nil || q < 0 {
		return 0
	}
	return q
}
