package market

import (
	"strings"

	"github.com/farmora/backend/internal/domain"
)

var cropSeasons = map[string]domain.SeasonInfo{
	"rice": {
		Crop:    "Rice",
		Season:  "Kharif",
		Sowing:  "June-July",
		Harvest: "September-December",
		Note:    "next harvest expected October-November",
	},
	"wheat": {
		Crop:    "Wheat",
		Season:  "Rabi",
		Sowing:  "October-December",
		Harvest: "February-May",
		Note:    "next harvest expected March-April",
	},
	"maize": {
		Crop:    "Maize",
		Season:  "Kharif and Rabi",
		Sowing:  "June-July (Kharif), October-November (Rabi)",
		Harvest: "September-October (Kharif), February-March (Rabi)",
	},
	"potato": {
		Crop:    "Potato",
		Season:  "Rabi",
		Sowing:  "October-November",
		Harvest: "January-March",
		Note:    "next harvest expected January-February",
	},
	"onion": {
		Crop:    "Onion",
		Season:  "Kharif, late Kharif and Rabi",
		Sowing:  "varies by region",
		Harvest: "year-round in different regions",
	},
	"tomato": {
		Crop:    "Tomato",
		Season:  "year-round",
		Sowing:  "varies by region",
		Harvest: "varies by region",
	},
	"apple": {
		Crop:    "Apple",
		Season:  "temperate",
		Sowing:  "flowering March-April",
		Harvest: "July-October",
		Note:    "next harvest expected August-September",
	},
	"strawberry": {
		Crop:    "Strawberry",
		Season:  "Rabi",
		Sowing:  "October-November",
		Harvest: "January-March",
	},
}

// SeasonFor returns the growing calendar for a crop, if known.
func SeasonFor(commodity string) (domain.SeasonInfo, bool) {
	s, ok := cropSeasons[strings.ToLower(strings.TrimSpace(commodity))]
	return s, ok
}
