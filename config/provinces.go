package config

import "propertylist/server/internal/models"

// provinces maps province codes and common spellings to the canonical name
// used for comparison. Keys are normalized with models.NormalizeKey.
var provinces = map[string]string{
	"ma":                     "Málaga",
	"malaga":                 "Málaga",
	"ca":                     "Cádiz",
	"cadiz":                  "Cádiz",
	"gr":                     "Granada",
	"granada":                "Granada",
	"al":                     "Almería",
	"almeria":                "Almería",
	"a":                      "Alicante",
	"alicante":               "Alicante",
	"alacant":                "Alicante",
	"mu":                     "Murcia",
	"murcia":                 "Murcia",
	"pm":                     "Baleares",
	"ib":                     "Baleares",
	"baleares":               "Baleares",
	"illes balears":          "Baleares",
	"islas baleares":         "Baleares",
	"b":                      "Barcelona",
	"barcelona":              "Barcelona",
	"m":                      "Madrid",
	"madrid":                 "Madrid",
	"v":                      "Valencia",
	"valencia":               "Valencia",
	"gi":                     "Girona",
	"girona":                 "Girona",
	"gerona":                 "Girona",
	"t":                      "Tarragona",
	"tarragona":              "Tarragona",
	"cs":                     "Castellón",
	"castellon":              "Castellón",
	"se":                     "Sevilla",
	"sevilla":                "Sevilla",
	"seville":                "Sevilla",
	"h":                      "Huelva",
	"huelva":                 "Huelva",
	"tf":                     "Santa Cruz de Tenerife",
	"tenerife":               "Santa Cruz de Tenerife",
	"santa cruz de tenerife": "Santa Cruz de Tenerife",
	"gc":                     "Las Palmas",
	"las palmas":             "Las Palmas",
	"co":                     "Córdoba",
	"cordoba":                "Córdoba",
	"j":                      "Jaén",
	"jaen":                   "Jaén",
}

// CanonicalProvince resolves a code or spelling to its canonical province
// name. Unknown values are returned unchanged.
func CanonicalProvince(s string) string {
	key := models.NormalizeKey(s)
	if name, ok := provinces[key]; ok {
		return name
	}
	return s
}

// SameProvince compares two provinces after canonicalisation
func SameProvince(a, b string) bool {
	return models.NormalizeKey(CanonicalProvince(a)) == models.NormalizeKey(CanonicalProvince(b))
}
