package domain

// City is a supported listing location. ID is the Eventbrite path segment
// ("ny--new-york"); LumaSlug is the lu.ma city page.
type City struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	LumaSlug string `yaml:"luma_slug" json:"luma_slug,omitempty"`
}

// Catalog is the fixed set of cities and default tags a deployment accepts.
type Catalog struct {
	Cities       []City   `yaml:"cities"`
	Tags         []string `yaml:"tags"`
	LumaKeywords []string `yaml:"luma_keywords"`
}

// DefaultCatalog returns the built-in cities and web3 tags.
func DefaultCatalog() Catalog {
	return Catalog{
		Cities: []City{
			{ID: "ny--new-york", Label: "New York", LumaSlug: "nyc"},
			{ID: "ca--san-francisco", Label: "San Francisco", LumaSlug: "sf"},
			{ID: "gb--london", Label: "London", LumaSlug: "london"},
		},
		Tags: []string{
			"token", "blockchain", "crypto", "cryptocurrency", "nft",
			"dao", "defi", "dapp", "dex", "depin",
			"Ethereum", "Solana",
			"gaming",
			"GenAI",
		},
		LumaKeywords: []string{
			"web3", "crypto", "blockchain", "nft", "dao", "defi", "dapp",
			"depin", "ethereum", "solana", "bitcoin", "token", "onchain", "zk",
		},
	}
}

// City looks up a city by ID.
func (c Catalog) City(id string) (City, bool) {
	for _, city := range c.Cities {
		if city.ID == id {
			return city, true
		}
	}
	return City{}, false
}

// HasCity reports whether id is one of the enumerated cities.
func (c Catalog) HasCity(id string) bool {
	_, ok := c.City(id)
	return ok
}

// CityIDs returns the city IDs in catalog order.
func (c Catalog) CityIDs() []string {
	ids := make([]string, len(c.Cities))
	for i, city := range c.Cities {
		ids[i] = city.ID
	}
	return ids
}

// CityIDsFor returns the cities provider can scrape. Luma only covers cities
// with a LumaSlug.
func (c Catalog) CityIDsFor(provider Provider) []string {
	if provider != ProviderLuma {
		return c.CityIDs()
	}
	var ids []string
	for _, city := range c.Cities {
		if city.LumaSlug != "" {
			ids = append(ids, city.ID)
		}
	}
	return ids
}

// DefaultTags returns the tags a job for provider gets when the caller names
// none. Tags are Eventbrite search terms; Luma filters on LumaKeywords and
// gets no defaults.
func (c Catalog) DefaultTags(provider Provider) []string {
	if provider == ProviderLuma {
		return nil
	}
	return append([]string(nil), c.Tags...)
}
