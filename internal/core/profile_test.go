package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckProfile(t *testing.T) {
	complete := CustomerProfile{
		CustomerType: CustomerIndividual,
		FirstName:    "Ayse",
		LastName:     "Demir",
		CityRef:      "34",
		DistrictRef:  "34-1",
	}

	t.Run("complete individual", func(t *testing.T) {
		assert.False(t, CheckProfile(complete).Any())
	})

	t.Run("missing district", func(t *testing.T) {
		p := complete
		p.DistrictRef = ""
		g := CheckProfile(p)
		assert.True(t, g.Any())
		assert.True(t, g.District)
		assert.False(t, g.City)
	})

	t.Run("individual missing last name", func(t *testing.T) {
		p := complete
		p.LastName = ""
		assert.True(t, CheckProfile(p).Name)
	})

	t.Run("corporate uses company title", func(t *testing.T) {
		p := CustomerProfile{
			CustomerType: CustomerCorporate,
			CompanyTitle: "Acme Lojistik A.S.",
			CityRef:      "06",
			DistrictRef:  "06-3",
		}
		assert.False(t, CheckProfile(p).Any())

		p.CompanyTitle = ""
		assert.True(t, CheckProfile(p).Name)
	})

	t.Run("unknown customer type means name missing", func(t *testing.T) {
		assert.True(t, CheckProfile(CustomerProfile{CityRef: "34", DistrictRef: "34-1"}).Name)
	})
}
