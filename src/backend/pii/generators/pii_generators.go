package pii

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Func produces one synthetic value from rng
type Func func(rng *rand.Rand) string

var firstNames = []string{
	"Olivia", "Liam", "Charlotte", "Noah", "Amelia", "Oliver", "Harper", "Elijah", "Evelyn", "Lucas",
	"Grace", "Henry", "Chloe", "Owen", "Nora", "Caleb", "Hazel", "Isaac", "Aurora", "Julian",
	"Aiko", "Haruto", "Soo", "Minh", "Lan", "Ravi", "Deepa", "Arun", "Mei", "Tao",
	"Adaeze", "Kwabena", "Folake", "Tendai", "Zawadi", "Chidi", "Ayo", "Naledi",
	"Karim", "Rania", "Samir", "Dalia", "Tariq", "Noor", "Hamza", "Salma",
	"Mateo", "Valeria", "Joaquin", "Ximena", "Rafael", "Paloma", "Emilio", "Renata",
	"Bogdan", "Milena", "Pavel", "Zofia", "Tomasz", "Darya", "Oleg", "Vesna",
}

var surnames = []string{
	"Whitaker", "Caldwell", "Hartley", "Brennan", "Lockwood", "Ashford", "Pemberton", "Fairchild",
	"Holloway", "Marlowe", "Prescott", "Sinclair", "Thornton", "Winslow", "Radcliffe", "Kensington",
	"Nakamura", "Hayashi", "Takahashi", "Huang", "Zhao", "Lim", "Pham", "Iyer", "Menon", "Reddy",
	"Adebayo", "Owusu", "Mwangi", "Banda", "Okafor", "Boateng", "Achebe", "Moyo",
	"Haddad", "Farouk", "Nasser", "Saleh", "Mansour", "Karimi", "Aziz", "Qureshi",
	"Castillo", "Navarro", "Delgado", "Mendoza", "Salazar", "Vargas", "Aguilar", "Fuentes",
	"Lindqvist", "Haugen", "Virtanen", "Jansen", "Dvorak", "Kovac", "Szabo", "Marinescu",
	"O'Donnell", "Gallagher", "Doyle", "McAllister", "Duffy", "Callahan",
}

var cities = []string{
	"Springfield", "Maple Grove", "Cedar Falls", "Brookhaven", "Lakewood", "Westfield", "Ridgecrest", "Fairhaven",
	"Oak Harbor", "Pine Bluff", "Silverton", "Elmwood", "Stonebridge", "Millbrook", "Clearwater", "Hollister",
	"Port Alder", "Northgate", "Bramblefield", "Harrowgate", "Kingsbury", "Wexford", "Ashbourne", "Glenrock",
	"Lindenhurst", "Marston", "Redcliffe", "Thornbury", "Willowdale", "Dunmore",
}

var companyStems = []string{
	"Bluefin", "Ironwood", "Brightpath", "Northwind", "Silverline", "Redstone", "Clearview", "Evergreen",
	"Highland", "Lakeshore", "Oakmont", "Riverbend", "Stonegate", "Sunridge", "Westbrook", "Copperleaf",
	"Granite", "Harborview", "Juniper", "Kestrel", "Larkspur", "Moonstone", "Pinecrest", "Quarry",
}

var companyTrades = []string{
	"", "", "Logistics", "Analytics", "Foods", "Freight", "Health", "Labs", "Media", "Energy", "Capital", "Software",
}

var companySuffixes = []string{
	"Inc", "LLC", "Corp", "Group", "Holdings", "Partners", "Co", "Ltd", "PLC", "GmbH", "AG", "SA", "BV", "Pty Ltd",
}

// RFC 2606 / RFC 6761 reserved domains only, so a generated address can never reach a real mailbox
var emailDomains = []string{
	"example.com", "example.org", "example.net", "mail.example", "corp.example", "test.example", "invalid.example",
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

// emailLocalPart lowercases a name and drops everything but letters
func emailLocalPart(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(name))
}

// FirstName returns a given name
func FirstName(rng *rand.Rand) string {
	return pick(rng, firstNames)
}

// Surname returns a family name
func Surname(rng *rand.Rand) string {
	return pick(rng, surnames)
}

// PersonName returns "First Last"
func PersonName(rng *rand.Rand) string {
	first := FirstName(rng)
	return first + " " + Surname(rng)
}

// Email returns first.last@<reserved domain>
func Email(rng *rand.Rand) string {
	first := emailLocalPart(FirstName(rng))
	last := emailLocalPart(Surname(rng))
	return fmt.Sprintf("%s.%s@%s", first, last, pick(rng, emailDomains))
}

func City(rng *rand.Rand) string {
	return pick(rng, cities)
}

// CompanyName returns "<Stem> [Trade] <Suffix>", e.g. "Kestrel Freight Ltd"
func CompanyName(rng *rand.Rand) string {
	parts := []string{pick(rng, companyStems)}
	if trade := pick(rng, companyTrades); trade != "" {
		parts = append(parts, trade)
	}
	parts = append(parts, pick(rng, companySuffixes))
	return strings.Join(parts, " ")
}

const dateLayout = "2006-01-02"

var dateRangeStart = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Date returns an ISO 8601 calendar date between 1970-01-01 and today
func Date(rng *rand.Rand) string {
	return dateBetween(rng, dateRangeStart, time.Now().UTC())
}

func dateBetween(rng *rand.Rand, start, end time.Time) string {
	days := int(end.Sub(start).Hours() / 24)
	if days <= 0 {
		return start.Format(dateLayout)
	}
	return start.AddDate(0, 0, rng.Intn(days+1)).Format(dateLayout)
}

// IPv4 returns a unicast dotted quad. The first octet is 1-223 without 127,
// the last octet never 0 or 255.
func IPv4(rng *rand.Rand) string {
	first := 1 + rng.Intn(222)
	if first >= 127 {
		first++
	}
	return fmt.Sprintf("%d.%d.%d.%d", first, rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
}
