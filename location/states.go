package location

// federalStates are the sixteen German Länder in canonical lowercase form.
var federalStates = []string{
	"baden-württemberg",
	"bayern",
	"berlin",
	"brandenburg",
	"bremen",
	"hamburg",
	"hessen",
	"mecklenburg-vorpommern",
	"niedersachsen",
	"nordrhein-westfalen",
	"rheinland-pfalz",
	"saarland",
	"sachsen",
	"sachsen-anhalt",
	"schleswig-holstein",
	"thüringen",
}

// stateAliases maps common spellings to the canonical state name.
var stateAliases = map[string]string{
	"baden-wuerttemberg":     "baden-württemberg",
	"baden württemberg":      "baden-württemberg",
	"bw":                     "baden-württemberg",
	"bavaria":                "bayern",
	"freistaat bayern":       "bayern",
	"hesse":                  "hessen",
	"lower saxony":           "niedersachsen",
	"mecklenburg vorpommern": "mecklenburg-vorpommern",
	"nrw":                    "nordrhein-westfalen",
	"nordrhein westfalen":    "nordrhein-westfalen",
	"north rhine-westphalia": "nordrhein-westfalen",
	"rheinland pfalz":        "rheinland-pfalz",
	"saxony":                 "sachsen",
	"sachsen anhalt":         "sachsen-anhalt",
	"schleswig holstein":     "schleswig-holstein",
	"thueringen":             "thüringen",
	"thuringia":              "thüringen",
}

// anywhereMarkers declare that a listing accepts any location.
var anywhereMarkers = map[string]struct{}{
	"deutschland":         {},
	"germany":             {},
	"bundesweit":          {},
	"deutschlandweit":     {},
	"ganz deutschland":    {},
	"überregional":        {},
	"egal":                {},
	"keine präferenz":     {},
	"keine einschränkung": {},
}

var knownStates = func() map[string]string {
	m := make(map[string]string, len(federalStates)+len(stateAliases))
	for _, s := range federalStates {
		m[s] = s
	}
	for alias, s := range stateAliases {
		m[alias] = s
	}
	return m
}()

// CanonicalState returns the canonical name of a German federal state, or
// false if name is not one.
func CanonicalState(name string) (string, bool) {
	s, ok := knownStates[name]
	return s, ok
}
