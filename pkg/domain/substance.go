package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Substance classes used by the composition chart.
const (
	SubstanceFentanyl     = "Fentanyl"
	SubstanceHeroin       = "Heroin"
	SubstanceCocaine      = "Cocaine"
	SubstanceAlcohol      = "Alcohol"
	SubstanceOtherOpioids = "Other Opioids"
	SubstanceOther        = "Other/Unknown"
)

// CombinationSeparator joins labels in a combination signature.
const CombinationSeparator = " + "

var otherOpioidMarkers = []string{"MORPHINE", "OXYCODONE", "HYDROCODONE", "OPIOID", "OPIATE"}

// ClassifySubstance maps a raw toxicology entry onto a composition class.
// Blank entries report false.
func ClassifySubstance(raw string) (string, bool) {
	if class, ok := knownClass(raw); ok {
		return class, true
	}
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	return SubstanceOther, true
}

// CombinationLabel maps a raw toxicology entry onto the label used in
// combination signatures. Unclassified entries keep their title-cased name.
func CombinationLabel(raw string) (string, bool) {
	if class, ok := knownClass(raw); ok {
		return class, true
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	// Casers are stateful and must not be shared.
	return cases.Title(language.Und).String(strings.ToLower(s)), true
}

func knownClass(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "":
		return "", false
	case strings.Contains(s, "FENTANYL"):
		return SubstanceFentanyl, true
	case strings.Contains(s, "HEROIN"):
		return SubstanceHeroin, true
	case strings.Contains(s, "COCAINE"):
		return SubstanceCocaine, true
	case strings.Contains(s, "ALCOHOL"):
		return SubstanceAlcohol, true
	}
	for _, marker := range otherOpioidMarkers {
		if strings.Contains(s, marker) {
			return SubstanceOtherOpioids, true
		}
	}
	return "", false
}
