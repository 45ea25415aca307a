package core

type CustomerType string

const (
	CustomerIndividual CustomerType = "individual"
	CustomerCorporate  CustomerType = "corporate"
)

// CustomerProfile is the profile-store view of a customer.
type CustomerProfile struct {
	CustomerID   string       `json:"customerId"`
	CustomerType CustomerType `json:"customerType"`
	FirstName    string       `json:"firstName"`
	LastName     string       `json:"lastName"`
	CompanyTitle string       `json:"companyTitle"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	CityRef      string       `json:"cityRef"`
	DistrictRef  string       `json:"districtRef"`
	BirthDate    string       `json:"birthDate,omitempty"`
	Job          string       `json:"job,omitempty"`
}

// ProfileGaps lists what the wizard still has to collect before the
// product-specific step.
type ProfileGaps struct {
	Name     bool
	City     bool
	District bool
}

func (g ProfileGaps) Any() bool { return g.Name || g.City || g.District }

// CheckProfile applies the completion gate: a profile is complete iff
// customer type, the type-appropriate name field, city reference and
// district reference are all present.
func CheckProfile(p CustomerProfile) ProfileGaps {
	g := ProfileGaps{
		City:     p.CityRef == "",
		District: p.DistrictRef == "",
	}
	switch p.CustomerType {
	case CustomerCorporate:
		g.Name = p.CompanyTitle == ""
	case CustomerIndividual:
		g.Name = p.FirstName == "" || p.LastName == ""
	default:
		// No customer type yet means everything name-ish is missing.
		g.Name = true
	}
	return g
}
