package matcher

import "strings"

// Exchange event titles use city or region short names while the odds venues
// use official franchise names. The alias tables below translate the short
// form to the full name; ambiguous cities shared between leagues are resolved
// by the instrument's series.

var teamAliases = map[string]string{
	// NBA
	"atlanta":       "Atlanta Hawks",
	"boston":        "Boston Celtics",
	"brooklyn":      "Brooklyn Nets",
	"charlotte":     "Charlotte Hornets",
	"cleveland":     "Cleveland Cavaliers",
	"denver":        "Denver Nuggets",
	"golden state":  "Golden State Warriors",
	"houston":       "Houston Rockets",
	"indiana":       "Indiana Pacers",
	"los angeles c": "Los Angeles Clippers",
	"los angeles l": "Los Angeles Lakers",
	"la clippers":   "Los Angeles Clippers",
	"la lakers":     "Los Angeles Lakers",
	"memphis":       "Memphis Grizzlies",
	"miami":         "Miami Heat",
	"milwaukee":     "Milwaukee Bucks",
	"new orleans":   "New Orleans Pelicans",
	"new york":      "New York Knicks",
	"oklahoma city": "Oklahoma City Thunder",
	"orlando":       "Orlando Magic",
	"phoenix":       "Phoenix Suns",
	"portland":      "Portland Trail Blazers",
	"sacramento":    "Sacramento Kings",
	"san antonio":   "San Antonio Spurs",
	"utah":          "Utah Jazz",

	// NHL
	"anaheim":      "Anaheim Ducks",
	"arizona":      "Arizona Coyotes",
	"calgary":      "Calgary Flames",
	"carolina":     "Carolina Hurricanes",
	"colorado":     "Colorado Avalanche",
	"columbus":     "Columbus Blue Jackets",
	"edmonton":     "Edmonton Oilers",
	"florida":      "Florida Panthers",
	"montreal":     "Montreal Canadiens",
	"nashville":    "Nashville Predators",
	"new jersey":   "New Jersey Devils",
	"ny islanders": "New York Islanders",
	"ny rangers":   "New York Rangers",
	"ottawa":       "Ottawa Senators",
	"pittsburgh":   "Pittsburgh Penguins",
	"san jose":     "San Jose Sharks",
	"seattle":      "Seattle Kraken",
	"st. louis":    "St. Louis Blues",
	"tampa bay":    "Tampa Bay Lightning",
	"utah mammoth": "Utah Mammoth",
	"vancouver":    "Vancouver Canucks",
	"vegas":        "Vegas Golden Knights",
	"winnipeg":     "Winnipeg Jets",
}

// Cities with a franchise in more than one league. Resolved by series; a
// lookup for one of these without a series override fails rather than
// guessing the wrong league.
var seriesOverrides = map[string]map[string]string{
	"KXNBAGAME": {
		"chicago":      "Chicago Bulls",
		"dallas":       "Dallas Mavericks",
		"detroit":      "Detroit Pistons",
		"minnesota":    "Minnesota Timberwolves",
		"philadelphia": "Philadelphia 76ers",
		"toronto":      "Toronto Raptors",
		"washington":   "Washington Wizards",
		"los angeles":  "Los Angeles Lakers",
	},
	"KXNHLGAME": {
		"chicago":      "Chicago Blackhawks",
		"dallas":       "Dallas Stars",
		"detroit":      "Detroit Red Wings",
		"minnesota":    "Minnesota Wild",
		"philadelphia": "Philadelphia Flyers",
		"toronto":      "Toronto Maple Leafs",
		"washington":   "Washington Capitals",
		"los angeles":  "Los Angeles Kings",
	},
}

// ResolveTeam maps an exchange short/city name to the full franchise name
// used by the odds venues. The series disambiguates cities shared between
// leagues. Returns false when no alias is known; callers fall back to fuzzy
// matching on the raw name.
func ResolveTeam(short, series string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(short))
	if key == "" {
		return "", false
	}
	if overrides, ok := seriesOverrides[series]; ok {
		if full, ok := overrides[key]; ok {
			return full, true
		}
	}
	if full, ok := teamAliases[key]; ok {
		return full, true
	}
	return "", false
}
