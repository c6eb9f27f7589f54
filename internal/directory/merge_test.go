package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mergeTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMerge_FillsEmptyScalars(t *testing.T) {
	dst := &Company{ID: 1, Identity: "acme.com", Name: "Acme"}
	src := &Company{Identity: "acme.com", Name: "Acme Plumbing", Description: "Plumbers in Calgary", Website: "https://acme.com"}

	Merge(dst, src, mergeTime)

	assert.Equal(t, "Acme", dst.Name, "populated name is never replaced")
	assert.Equal(t, "Plumbers in Calgary", dst.Description)
	assert.Equal(t, "https://acme.com", dst.Website)
}

func TestMerge_NeverDowngradesToEmpty(t *testing.T) {
	dst := &Company{ID: 1, Name: "Acme", Description: "Established 1990"}
	src := &Company{Name: "", Description: ""}

	Merge(dst, src, mergeTime)

	assert.Equal(t, "Acme", dst.Name)
	assert.Equal(t, "Established 1990", dst.Description)
}

func TestMerge_RefreshableFieldsTakeLatest(t *testing.T) {
	old := mergeTime.Add(-24 * time.Hour)
	dst := &Company{ID: 1, IsActive: false, LastEnrichedAt: &old}

	Merge(dst, &Company{}, mergeTime)

	assert.True(t, dst.IsActive)
	require.NotNil(t, dst.LastEnrichedAt)
	assert.Equal(t, mergeTime, *dst.LastEnrichedAt)
}

func TestMerge_PreservesExistingEmail(t *testing.T) {
	dst := &Company{ID: 1, Contacts: []Contact{{ID: 10, Type: ContactEmail, Value: "info@acme.com"}}}
	src := &Company{Contacts: []Contact{{Type: ContactPhone, Value: "+1-555-0100"}}}

	Merge(dst, src, mergeTime)

	require.Len(t, dst.Contacts, 2)
	assert.Equal(t, "info@acme.com", dst.Contacts[0].Value)
	assert.Equal(t, int64(10), dst.Contacts[0].ID, "existing child untouched")
	assert.Equal(t, "+1-555-0100", dst.Contacts[1].Value)
	assert.Zero(t, dst.Contacts[1].ID, "appended child awaits insert")
}

func TestMerge_ChildDedupKeys(t *testing.T) {
	dst := &Company{
		ID:        1,
		Addresses: []Address{{ID: 1, City: "Calgary", State: "Alberta", Country: "Canada"}},
		Social:    []SocialProfile{{ID: 2, Platform: "facebook", URL: "https://facebook.com/acme"}},
	}
	src := &Company{
		Addresses: []Address{
			{City: "CALGARY", State: "alberta", Country: "CANADA"}, // same key, different case
			{City: "Edmonton", State: "Alberta", Country: "Canada"},
		},
		Social: []SocialProfile{
			{Platform: "facebook", URL: "https://fb.com/acme-new"}, // same platform
			{Platform: "linkedin", URL: "https://linkedin.com/company/acme"},
		},
	}

	Merge(dst, src, mergeTime)

	require.Len(t, dst.Addresses, 2)
	assert.Equal(t, "Edmonton", dst.Addresses[1].City)
	require.Len(t, dst.Social, 2)
	assert.Equal(t, "https://facebook.com/acme", dst.Social[0].URL, "existing entry wins")
	assert.Equal(t, "linkedin", dst.Social[1].Platform)
}

func TestMerge_SkipsEmptyChildren(t *testing.T) {
	dst := &Company{ID: 1}
	src := &Company{
		Addresses: []Address{{}},
		Contacts:  []Contact{{Type: ContactEmail, Value: ""}},
		Services:  []Service{{Name: ""}},
	}

	Merge(dst, src, mergeTime)

	assert.Empty(t, dst.Addresses)
	assert.Empty(t, dst.Contacts)
	assert.Empty(t, dst.Services)
}

func TestMerge_IndustriesDedupByCodeAndSub(t *testing.T) {
	dst := &Company{ID: 1, Industries: []IndustryAssociation{
		{ID: 5, IndustryCode: "CONST", SubIndustry: "Plumbing", TaxonomyVersion: "2025-06"},
	}}
	src := &Company{Industries: []IndustryAssociation{
		{IndustryCode: "CONST", SubIndustry: "Plumbing", TaxonomyVersion: "2025-06"},
		{IndustryCode: "CONST", SubIndustry: "Roofing", TaxonomyVersion: "2025-06"},
	}}

	Merge(dst, src, mergeTime)

	require.Len(t, dst.Industries, 2)
	assert.Equal(t, "Roofing", dst.Industries[1].SubIndustry)
}
