package geo

var defaultStates = []State{
	{
		Name:      "Punjab",
		Aliases:   []string{"pb"},
		Lat:       30.90,
		Lon:       75.85,
		Neighbors: []string{"Haryana", "Himachal Pradesh"},
		MajorMarkets: []MarketRef{
			{District: "Ludhiana", Market: "Ludhiana"},
			{District: "Amritsar", Market: "Amritsar"},
			{District: "Patiala", Market: "Patiala"},
			{District: "Jalandhar", Market: "Jalandhar"},
			{District: "Bathinda", Market: "Bathinda"},
		},
	},
	{
		Name:      "Haryana",
		Aliases:   []string{"hr"},
		Lat:       29.06,
		Lon:       76.09,
		Neighbors: []string{"Punjab", "Himachal Pradesh", "Uttar Pradesh", "Delhi"},
		MajorMarkets: []MarketRef{
			{District: "Karnal", Market: "Karnal"},
			{District: "Ambala", Market: "Ambala"},
			{District: "Hisar", Market: "Hisar"},
			{District: "Gurugram", Market: "Gurugram"},
			{District: "Kurukshetra", Market: "Kurukshetra"},
		},
	},
	{
		Name:      "Himachal Pradesh",
		Aliases:   []string{"hp", "himachal"},
		Lat:       31.10,
		Lon:       77.17,
		Neighbors: []string{"Punjab", "Haryana"},
		MajorMarkets: []MarketRef{
			{District: "Shimla", Market: "Shimla"},
			{District: "Solan", Market: "Solan"},
			{District: "Kangra", Market: "Dharamshala"},
			{District: "Kullu", Market: "Kullu"},
			{District: "Mandi", Market: "Mandi"},
		},
	},
	{
		Name:      "Uttar Pradesh",
		Aliases:   []string{"up"},
		Lat:       26.85,
		Lon:       80.95,
		Neighbors: []string{"Haryana", "Delhi"},
		MajorMarkets: []MarketRef{
			{District: "Lucknow", Market: "Lucknow"},
			{District: "Kanpur", Market: "Kanpur"},
			{District: "Varanasi", Market: "Varanasi"},
			{District: "Agra", Market: "Agra"},
			{District: "Meerut", Market: "Meerut"},
		},
	},
	{
		Name:      "Delhi",
		Aliases:   []string{"new delhi", "nct of delhi"},
		Lat:       28.61,
		Lon:       77.21,
		Neighbors: []string{"Haryana", "Uttar Pradesh"},
		MajorMarkets: []MarketRef{
			{District: "New Delhi", Market: "Azadpur"},
		},
	},
	{
		Name:      "Tamil Nadu",
		Aliases:   []string{"tn", "tamilnadu"},
		Lat:       11.13,
		Lon:       78.66,
		Neighbors: []string{"Karnataka", "Kerala"},
		MajorMarkets: []MarketRef{
			{District: "Chennai", Market: "Koyambedu"},
			{District: "Coimbatore", Market: "Coimbatore"},
			{District: "Madurai", Market: "Madurai"},
			{District: "Thanjavur", Market: "Thanjavur"},
		},
	},
	{
		Name:      "Karnataka",
		Aliases:   []string{"ka"},
		Lat:       15.32,
		Lon:       75.71,
		Neighbors: []string{"Tamil Nadu", "Kerala"},
		MajorMarkets: []MarketRef{
			{District: "Bengaluru", Market: "Bengaluru"},
			{District: "Mysuru", Market: "Mysuru"},
		},
	},
	{
		Name:      "Kerala",
		Aliases:   []string{"kl"},
		Lat:       10.85,
		Lon:       76.27,
		Neighbors: []string{"Tamil Nadu", "Karnataka"},
		MajorMarkets: []MarketRef{
			{District: "Ernakulam", Market: "Ernakulam"},
		},
	},
}

var defaultDistricts = []District{
	{Name: "Ludhiana", State: "Punjab", Lat: 30.9010, Lon: 75.8573, Markets: []string{"Ludhiana", "Khanna", "Jagraon", "Samrala"}},
	{Name: "Amritsar", State: "Punjab", Lat: 31.6340, Lon: 74.8723, Markets: []string{"Amritsar"}},
	{Name: "Patiala", State: "Punjab", Lat: 30.3398, Lon: 76.3869, Markets: []string{"Patiala"}},
	{Name: "Jalandhar", State: "Punjab", Lat: 31.3260, Lon: 75.5762, Aliases: []string{"jullundur"}, Markets: []string{"Jalandhar"}},
	{Name: "Bathinda", State: "Punjab", Lat: 30.2110, Lon: 74.9455, Aliases: []string{"bhatinda"}, Markets: []string{"Bathinda"}},
	{Name: "Hoshiarpur", State: "Punjab", Lat: 31.5143, Lon: 75.9115},
	{Name: "Gurdaspur", State: "Punjab", Lat: 32.0419, Lon: 75.4053},
	{Name: "Moga", State: "Punjab", Lat: 30.8230, Lon: 75.1712},
	{Name: "Ferozepur", State: "Punjab", Lat: 30.9331, Lon: 74.6225, Aliases: []string{"firozpur"}},
	{Name: "Sangrur", State: "Punjab", Lat: 30.2457, Lon: 75.8454},

	{Name: "Karnal", State: "Haryana", Lat: 29.6857, Lon: 76.9905, Markets: []string{"Karnal"}},
	{Name: "Ambala", State: "Haryana", Lat: 30.3752, Lon: 76.7821, Markets: []string{"Ambala"}},
	{Name: "Hisar", State: "Haryana", Lat: 29.1492, Lon: 75.7217, Aliases: []string{"hissar"}, Markets: []string{"Hisar"}},
	{Name: "Gurugram", State: "Haryana", Lat: 28.4595, Lon: 77.0266, Aliases: []string{"gurgaon"}, Markets: []string{"Gurugram"}},
	{Name: "Kurukshetra", State: "Haryana", Lat: 29.9695, Lon: 76.8783, Markets: []string{"Kurukshetra"}},
	{Name: "Panipat", State: "Haryana", Lat: 29.3909, Lon: 76.9635},
	{Name: "Rohtak", State: "Haryana", Lat: 28.8955, Lon: 76.6066},
	{Name: "Sonipat", State: "Haryana", Lat: 28.9931, Lon: 77.0151, Aliases: []string{"sonepat"}},
	{Name: "Faridabad", State: "Haryana", Lat: 28.4089, Lon: 77.3178},
	{Name: "Bhiwani", State: "Haryana", Lat: 28.7929, Lon: 76.1397},

	{Name: "Shimla", State: "Himachal Pradesh", Lat: 31.1048, Lon: 77.1734, Aliases: []string{"simla"}, Markets: []string{"Shimla", "Theog", "Rohru"}},
	{Name: "Solan", State: "Himachal Pradesh", Lat: 30.9045, Lon: 77.0968, Markets: []string{"Solan", "Parwanoo", "Waknaghat", "Arki", "Dharampur"}},
	{Name: "Kangra", State: "Himachal Pradesh", Lat: 32.0999, Lon: 76.2691, Aliases: []string{"dharamshala", "dharamsala"}, Markets: []string{"Dharamshala", "Palampur"}},
	{Name: "Kullu", State: "Himachal Pradesh", Lat: 31.9592, Lon: 77.1089, Aliases: []string{"kulu"}, Markets: []string{"Kullu"}},
	{Name: "Mandi", State: "Himachal Pradesh", Lat: 31.5892, Lon: 76.9182, Markets: []string{"Mandi"}},
	{Name: "Hamirpur", State: "Himachal Pradesh", Lat: 31.6861, Lon: 76.5269},
	{Name: "Bilaspur", State: "Himachal Pradesh", Lat: 31.3348, Lon: 76.6870},
	{Name: "Sirmaur", State: "Himachal Pradesh", Lat: 30.5678, Lon: 77.2940},
	{Name: "Una", State: "Himachal Pradesh", Lat: 31.4685, Lon: 76.2708},
	{Name: "Chamba", State: "Himachal Pradesh", Lat: 32.5533, Lon: 76.1258},

	{Name: "Lucknow", State: "Uttar Pradesh", Lat: 26.8467, Lon: 80.9462, Markets: []string{"Lucknow"}},
	{Name: "Kanpur", State: "Uttar Pradesh", Lat: 26.4499, Lon: 80.3319, Aliases: []string{"cawnpore"}, Markets: []string{"Kanpur"}},
	{Name: "Varanasi", State: "Uttar Pradesh", Lat: 25.3176, Lon: 82.9739, Aliases: []string{"benares", "banaras", "kashi"}, Markets: []string{"Varanasi"}},
	{Name: "Agra", State: "Uttar Pradesh", Lat: 27.1767, Lon: 78.0081, Markets: []string{"Agra"}},
	{Name: "Meerut", State: "Uttar Pradesh", Lat: 28.9845, Lon: 77.7064, Markets: []string{"Meerut"}},
	{Name: "Ghaziabad", State: "Uttar Pradesh", Lat: 28.6692, Lon: 77.4538},
	{Name: "Bareilly", State: "Uttar Pradesh", Lat: 28.3670, Lon: 79.4304},
	{Name: "Aligarh", State: "Uttar Pradesh", Lat: 27.8974, Lon: 78.0880},
	{Name: "Moradabad", State: "Uttar Pradesh", Lat: 28.8386, Lon: 78.7733},
	{Name: "Gorakhpur", State: "Uttar Pradesh", Lat: 26.7606, Lon: 83.3732},

	{Name: "New Delhi", State: "Delhi", Lat: 28.6139, Lon: 77.2090, Markets: []string{"Azadpur"}},

	{Name: "Chennai", State: "Tamil Nadu", Lat: 13.0827, Lon: 80.2707, Aliases: []string{"madras"}, Markets: []string{"Koyambedu"}},
	{Name: "Coimbatore", State: "Tamil Nadu", Lat: 11.0168, Lon: 76.9558, Aliases: []string{"kovai"}, Markets: []string{"Coimbatore"}},
	{Name: "Madurai", State: "Tamil Nadu", Lat: 9.9252, Lon: 78.1198, Markets: []string{"Madurai"}},
	{Name: "Tiruchirappalli", State: "Tamil Nadu", Lat: 10.7905, Lon: 78.7047, Aliases: []string{"trichy", "tiruchi"}},
	{Name: "Thanjavur", State: "Tamil Nadu", Lat: 10.7870, Lon: 79.1378, Aliases: []string{"tanjore"}, Markets: []string{"Thanjavur"}},
	{Name: "Salem", State: "Tamil Nadu", Lat: 11.6643, Lon: 78.1460},

	{Name: "Bengaluru", State: "Karnataka", Lat: 12.9716, Lon: 77.5946, Aliases: []string{"bangalore"}, Markets: []string{"Bengaluru"}},
	{Name: "Mysuru", State: "Karnataka", Lat: 12.2958, Lon: 76.6394, Aliases: []string{"mysore"}, Markets: []string{"Mysuru"}},

	{Name: "Ernakulam", State: "Kerala", Lat: 9.9816, Lon: 76.2999, Aliases: []string{"kochi", "cochin"}, Markets: []string{"Ernakulam"}},
}
