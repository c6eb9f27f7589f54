package taxonomy

import "strings"

// Resolution is a successful taxonomy lookup. SubIndustry is set only when
// the supplied value is allow-listed under the resolved industry.
type Resolution struct {
	Industry    Industry
	SubIndustry string
}

// Resolve looks up a canonical industry from an optional code and/or title.
// An exact code match wins over a case-insensitive exact title match. There
// is no fuzzy or partial matching: when neither matches, the lookup rejects.
func Resolve(code, title string) (Resolution, bool) {
	if i, ok := byCode[strings.ToUpper(strings.TrimSpace(code))]; ok && strings.TrimSpace(code) != "" {
		return Resolution{Industry: industries[i]}, true
	}
	if i, ok := byTitle[foldTitle(title)]; ok && strings.TrimSpace(title) != "" {
		return Resolution{Industry: industries[i]}, true
	}
	return Resolution{}, false
}

// ResolveWithSub resolves the industry, then accepts the sub-industry only if
// it is a member of the parent's allow-list; the canonical spelling is
// returned. An unlisted sub-industry is dropped, not coerced.
func ResolveWithSub(code, title, subIndustry string) (Resolution, bool) {
	res, ok := Resolve(code, title)
	if !ok {
		return Resolution{}, false
	}

	want := foldTitle(subIndustry)
	if want == "" {
		return res, true
	}
	for _, sub := range res.Industry.SubIndustries {
		if foldTitle(sub) == want {
			res.SubIndustry = sub
			return res, true
		}
	}
	// Parent still resolves; only the sub-industry is discarded.
	return res, true
}

func foldTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
