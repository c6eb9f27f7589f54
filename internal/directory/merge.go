package directory

import "time"

// Merge folds an incoming candidate into an existing company in memory.
// Scalar policy: a non-empty incoming value fills an empty field, a
// populated field is never downgraded. Refreshable fields (IsActive,
// LastEnrichedAt) always take the latest value. Child collections gain only
// entries whose dedup key is new; appended children carry a zero ID so the
// store knows to insert them.
func Merge(dst *Company, src *Company, now time.Time) {
	fillString(&dst.Name, src.Name)
	fillString(&dst.Website, src.Website)
	fillString(&dst.Description, src.Description)

	// Refreshable: a company seen again is active again.
	dst.IsActive = true
	dst.LastEnrichedAt = &now

	dst.Addresses = append(dst.Addresses, newAddresses(dst.Addresses, src.Addresses)...)
	dst.Contacts = append(dst.Contacts, newContacts(dst.Contacts, src.Contacts)...)
	dst.Social = append(dst.Social, newSocial(dst.Social, src.Social)...)
	dst.Services = append(dst.Services, newServices(dst.Services, src.Services)...)
	dst.Staff = append(dst.Staff, newStaff(dst.Staff, src.Staff)...)
	dst.Technologies = append(dst.Technologies, newTechnologies(dst.Technologies, src.Technologies)...)
	dst.Industries = append(dst.Industries, newIndustries(dst.Industries, src.Industries)...)
}

func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

func newAddresses(existing, incoming []Address) []Address {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []Address
	for _, in := range incoming {
		if in.isEmpty() || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func newContacts(existing, incoming []Contact) []Contact {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []Contact
	for _, in := range incoming {
		if in.Value == "" || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func newSocial(existing, incoming []SocialProfile) []SocialProfile {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []SocialProfile
	for _, in := range incoming {
		if in.Platform == "" || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func newServices(existing, incoming []Service) []Service {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []Service
	for _, in := range incoming {
		if in.Name == "" || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func newStaff(existing, incoming []StaffMember) []StaffMember {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []StaffMember
	for _, in := range incoming {
		if in.Name == "" || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func newTechnologies(existing, incoming []Technology) []Technology {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []Technology
	for _, in := range incoming {
		if in.Name == "" || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func newIndustries(existing, incoming []IndustryAssociation) []IndustryAssociation {
	seen := keySet(len(existing))
	for _, e := range existing {
		seen[e.Key()] = true
	}
	var out []IndustryAssociation
	for _, in := range incoming {
		if in.IndustryCode == "" || seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		in.ID = 0
		out = append(out, in)
	}
	return out
}

func keySet(capacity int) map[string]bool {
	return make(map[string]bool, capacity)
}
