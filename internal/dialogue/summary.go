package dialogue

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"nestzone-clara-backend/internal/nestzone"
)

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice renders a euro amount with thousands separators, "N/A" when
// the listing has no price.
func FormatPrice(v float64) string {
	if v <= 0 {
		return "N/A"
	}
	if v == math.Trunc(v) {
		return pricePrinter.Sprintf("€%d", int64(v))
	}
	return pricePrinter.Sprintf("€%.2f", v)
}

func countOrNA(n int) string {
	if n <= 0 {
		return "N/A"
	}
	return strconv.Itoa(n)
}

// SummarizeProperty is the one-line form used in recommendation prompts:
// "1) Apartment in Madrid, Madrid, Price: €250,000, Bedrooms: 3, Bathrooms: N/A".
func SummarizeProperty(i int, p nestzone.Property) string {
	var loc []string
	for _, s := range []string{p.CityName(), p.ProvinceName()} {
		if s != "" {
			loc = append(loc, s)
		}
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(i + 1))
	b.WriteString(") ")
	b.WriteString(p.TypeLabel())
	b.WriteString(" in ")
	b.WriteString(strings.Join(loc, ", "))
	b.WriteString(", Price: ")
	b.WriteString(FormatPrice(p.Price))
	b.WriteString(", Bedrooms: ")
	b.WriteString(countOrNA(p.Bedrooms))
	b.WriteString(", Bathrooms: ")
	b.WriteString(countOrNA(p.Bathrooms))
	return b.String()
}

// SummarizeProperties lists at most limit properties, one per line.
func SummarizeProperties(props []nestzone.Property, limit int) string {
	if limit > 0 && len(props) > limit {
		props = props[:limit]
	}
	lines := make([]string, 0, len(props))
	for i, p := range props {
		lines = append(lines, SummarizeProperty(i, p))
	}
	return strings.Join(lines, "\n")
}

// propertyLine is how a stored result is replayed to the text generator.
// The price is the raw listing value.
func propertyLine(p nestzone.Property) string {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = p.DisplayTitle()
	}
	return title + " - €" + strconv.FormatFloat(p.Price, 'f', -1, 64)
}
