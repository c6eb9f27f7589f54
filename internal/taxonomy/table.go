// Package taxonomy holds the canonical industry table and its resolver.
// The table is fixed, versioned, and read-only; lookups are safe for
// concurrent use.
package taxonomy

// Version identifies the revision of the canonical table.
const Version = "2025-06"

// Industry is one canonical entry: a stable code, a display title, and the
// allow-listed sub-industries that may be attached to it.
type Industry struct {
	Code          string
	Title         string
	SubIndustries []string
}

var industries = []Industry{
	{Code: "AGRI", Title: "Agriculture & Farming", SubIndustries: []string{"Crop Production", "Livestock", "Agricultural Services", "Forestry"}},
	{Code: "AUTO", Title: "Automotive", SubIndustries: []string{"Auto Repair", "Car Dealership", "Auto Parts", "Car Wash & Detailing", "Towing"}},
	{Code: "CONST", Title: "Construction & Building", SubIndustries: []string{"General Contracting", "Plumbing", "Electrical", "Roofing", "HVAC", "Landscaping", "Painting", "Flooring"}},
	{Code: "EDU", Title: "Education & Training", SubIndustries: []string{"Schools", "Tutoring", "Vocational Training", "Driving Schools"}},
	{Code: "ENER", Title: "Energy & Utilities", SubIndustries: []string{"Oil & Gas", "Renewable Energy", "Utilities", "Energy Services"}},
	{Code: "ENT", Title: "Entertainment & Recreation", SubIndustries: []string{"Event Venues", "Fitness & Gyms", "Sports Clubs", "Arts & Culture"}},
	{Code: "FIN", Title: "Financial Services", SubIndustries: []string{"Accounting", "Banking", "Insurance", "Investment Services", "Tax Preparation"}},
	{Code: "FOOD", Title: "Food & Beverage", SubIndustries: []string{"Restaurants", "Cafes & Coffee Shops", "Catering", "Bakeries", "Bars & Pubs", "Food Production"}},
	{Code: "GOVT", Title: "Government & Public Services", SubIndustries: []string{"Municipal Services", "Public Safety", "Community Services"}},
	{Code: "HLTH", Title: "Healthcare & Medical", SubIndustries: []string{"Clinics", "Dentistry", "Pharmacies", "Optometry", "Physiotherapy", "Mental Health", "Home Care"}},
	{Code: "HOSP", Title: "Hospitality & Travel", SubIndustries: []string{"Hotels & Lodging", "Travel Agencies", "Tour Operators"}},
	{Code: "IT", Title: "Information Technology", SubIndustries: []string{"Software Development", "IT Services", "Web Design", "Cybersecurity", "Telecommunications"}},
	{Code: "LEGAL", Title: "Legal Services", SubIndustries: []string{"Law Firms", "Notaries", "Paralegal Services"}},
	{Code: "LOGI", Title: "Logistics & Transportation", SubIndustries: []string{"Trucking", "Courier & Delivery", "Warehousing", "Moving Services"}},
	{Code: "MANU", Title: "Manufacturing", SubIndustries: []string{"Metal Fabrication", "Food Processing", "Machinery", "Plastics & Packaging", "Printing"}},
	{Code: "MEDIA", Title: "Media & Communications", SubIndustries: []string{"Publishing", "Broadcasting", "Advertising", "Photography", "Video Production"}},
	{Code: "MINE", Title: "Mining & Resources", SubIndustries: []string{"Mining Operations", "Quarrying", "Resource Exploration"}},
	{Code: "NONP", Title: "Non-Profit & Associations", SubIndustries: []string{"Charities", "Religious Organizations", "Industry Associations"}},
	{Code: "PERS", Title: "Personal Services", SubIndustries: []string{"Hair & Beauty", "Spas & Wellness", "Cleaning Services", "Pet Services", "Laundry & Dry Cleaning"}},
	{Code: "PROF", Title: "Professional Services", SubIndustries: []string{"Consulting", "Marketing Agencies", "Engineering", "Architecture", "Human Resources", "Staffing"}},
	{Code: "PROP", Title: "Real Estate & Property", SubIndustries: []string{"Real Estate Agencies", "Property Management", "Appraisal", "Home Inspection"}},
	{Code: "RETL", Title: "Retail & Shopping", SubIndustries: []string{"Clothing & Apparel", "Electronics", "Furniture", "Grocery", "Hardware", "Jewelry", "Sporting Goods"}},
	{Code: "SCI", Title: "Science & Research", SubIndustries: []string{"Laboratories", "R&D Services", "Environmental Services"}},
	{Code: "WHOL", Title: "Wholesale & Distribution", SubIndustries: []string{"Industrial Supply", "Food Distribution", "Consumer Goods Distribution"}},
	{Code: "OTHER", Title: "Other Services", SubIndustries: []string{"General Services"}},
}

var (
	byCode  = make(map[string]int, len(industries))
	byTitle = make(map[string]int, len(industries))
)

func init() {
	for i, ind := range industries {
		byCode[ind.Code] = i
		byTitle[foldTitle(ind.Title)] = i
	}
}

// All returns the canonical table in stable order.
func All() []Industry {
	out := make([]Industry, len(industries))
	copy(out, industries)
	return out
}
