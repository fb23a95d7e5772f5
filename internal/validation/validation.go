// Package validation implements the pure domain checks the classifier and the
// vertical workflows expose to the model as tools: transportable goods,
// coverage cities, international eligibility, and excluded service types.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	MsgGoodsNotTransported = "We are sorry, but we do not transport %s. Our freight policy excludes this kind of cargo. Thank you for thinking of Andes Trans."
	MsgCityNotCovered      = "We are sorry, but %s is outside our coverage area, so we cannot serve that route. Thank you for contacting Andes Trans."
	MsgLastMileNotOffered  = "We are sorry, but Andes Trans does not offer last-mile distribution services."
	MsgMovingNotOffered    = "We are sorry, but Andes Trans does not offer household moving services."
	MsgParcelNotOffered    = "We are sorry, but Andes Trans does not handle small-parcel shipments under 1000 kg."
	MsgInternationalLimit  = "We are sorry, but our international land coverage is limited to Venezuela, Ecuador and Peru. We cannot serve destinations outside those countries and Colombia."
)

var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

var titleCaser = cases.Title(language.Spanish)

// Normalize lowercases, trims, and strips diacritics so user spellings match
// the keyword sets regardless of accents.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// TitleCity formats a city name for use inside a rejection message.
func TitleCity(city string) string {
	return titleCaser.String(strings.TrimSpace(city))
}

// Colombian municipalities without coverage. Normalized, accent-free.
var blacklistedCities = map[string]struct{}{}

func init() {
	for _, city := range []string{
		// Amazonas
		"leticia", "puerto narino", "la pedrera", "tarapaca", "la chorrera",
		// Arauca
		"arauca", "arauquita", "saravena", "tame", "fortul",
		// San Andres y Providencia
		"san andres", "providencia", "santa catalina",
		// Caqueta
		"cartagena del chaira", "san vicente del caguan", "solano", "curillo",
		// Cauca
		"guapi", "timbiqui", "lopez", "argelia", "piamonte",
		// Choco
		"bahia solano", "nuqui", "alto baudo", "condoto", "bagado",
		// Guainia
		"inirida", "barranco mina", "san felipe", "cacahual",
		// Guaviare
		"san jose del guaviare", "miraflores", "calamar", "el retorno",
		// Norte de Santander
		"tibu", "el tarra", "convencion", "hacari", "san calixto",
		// Putumayo
		"puerto asis", "puerto leguizamo", "valle del guamuez", "sibundoy",
		// Vaupes
		"mitu", "caruru", "taraira",
		// Vichada
		"puerto carreno", "cumaribo", "la primavera", "santa rosalia",
	} {
		blacklistedCities[city] = struct{}{}
	}
}

// Goods and service keywords outside the freight policy. Normalized.
var forbiddenGoodsKeywords = []string{
	"last mile", "last-mile", "ultima milla",
	"hazardous waste", "industrial waste", "toxic substances",
	"infectious substances", "radioactive",
	"explosives", "gunpowder", "fireworks", "matches",
	"flammable liquids", "fuel", "gasoline", "ethanol",
	"live animals", "livestock", "cattle", "pigs", "poultry",
	"meat", "animal products",
	"artwork", "antiques", "collectibles",
	"pearls", "precious stones", "precious metals", "gold", "silver", "diamonds",
	"fresh vegetables", "live plants",
	"fresh fish", "shellfish",
	"weapons", "ammunition",
	"crude oil", "bitumen", "asphalt", "tar", "paraffin",
	"electric power", "coal gas",
}

// ValidateGoods checks a goods or service description against the freight
// policy. It returns a rejection message and false for excluded cargo, or
// "" and true when the goods are transportable.
func ValidateGoods(goodsType string) (string, bool) {
	normalized := Normalize(goodsType)
	if strings.Contains(normalized, "last mile") || strings.Contains(normalized, "last-mile") || strings.Contains(normalized, "ultima milla") {
		return MsgLastMileNotOffered, false
	}
	for _, keyword := range forbiddenGoodsKeywords {
		if strings.Contains(normalized, keyword) {
			return fmt.Sprintf(MsgGoodsNotTransported, goodsType), false
		}
	}
	return "", true
}

// ValidateCity checks an origin or destination city against the coverage
// blacklist. It returns a rejection message and false for cities without
// service.
func ValidateCity(city string) (string, bool) {
	if _, blocked := blacklistedCities[Normalize(city)]; blocked {
		return fmt.Sprintf(MsgCityNotCovered, TitleCity(city)), false
	}
	return "", true
}
