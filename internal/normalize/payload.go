package normalize

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/azar84/business-directory-cli/internal/model"
)

// ErrUnrecognizedShape is returned when a payload matches none of the known
// source shapes. Callers flag the job for manual review; payloads are never
// silently discarded.
var ErrUnrecognizedShape = eris.New("normalize: unrecognized payload shape")

// shape locates the envelope holding company/analysis/contact. The source
// has shipped several wrappings over time; detection is ordered and
// first-match-wins, so a new shape is added as a new entry with its own test.
type shape struct {
	name string
	path []string
}

var knownShapes = []shape{
	{name: "wrapped", path: []string{"data"}},
	{name: "root", path: nil},
	{name: "double_wrapped", path: []string{"data", "data"}},
	{name: "legacy_final_result", path: []string{"data", "finalResult"}},
}

// Record detects the payload shape and extracts the uniform enrichment
// record. The returned string names the matched shape for logging.
func Record(raw []byte) (*model.NormalizedEnrichmentRecord, string, error) {
	if len(raw) == 0 {
		return nil, "", ErrUnrecognizedShape
	}

	for _, sh := range knownShapes {
		node, ok := dig(raw, sh.path)
		if !ok || !isEnvelope(node) {
			continue
		}

		var rec model.NormalizedEnrichmentRecord
		if err := json.Unmarshal(node, &rec); err != nil {
			return nil, sh.name, eris.Wrapf(err, "normalize: decode %s payload", sh.name)
		}
		scrub(&rec)
		return &rec, sh.name, nil
	}

	return nil, "", ErrUnrecognizedShape
}

// dig walks the raw JSON down the given object path.
func dig(raw []byte, path []string) (json.RawMessage, bool) {
	node := json.RawMessage(raw)
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

// isEnvelope reports whether the node carries both company and contact keys.
func isEnvelope(node json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(node, &obj); err != nil {
		return false
	}
	_, hasCompany := obj["company"]
	_, hasContact := obj["contact"]
	return hasCompany && hasContact
}

// scrub trims whitespace from scalar fields and drops empty list entries.
func scrub(rec *model.NormalizedEnrichmentRecord) {
	rec.Company.Name = strings.TrimSpace(rec.Company.Name)
	rec.Company.Website = strings.TrimSpace(rec.Company.Website)
	rec.Company.Description = strings.TrimSpace(rec.Company.Description)
	rec.Analysis.Reasoning = strings.TrimSpace(rec.Analysis.Reasoning)

	rec.Contact.Emails = cleanList(rec.Contact.Emails)
	rec.Contact.Phones = cleanList(rec.Contact.Phones)
	rec.Company.Services = cleanList(rec.Company.Services)
	rec.Company.Technology = cleanList(rec.Company.Technology)
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
