// Package filter hides listed project cards whose client rating falls below
// the user's threshold. Cards are never removed from the document, only a
// visibility marker is toggled, so every application is reversible and
// re-running with the same threshold is a no-op.
package filter

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RatingSelector marks elements carrying the host's numeric rating.
const RatingSelector = "[data-rating]"

// hiddenStyle is the inline marker used to hide a card.
const hiddenStyle = "display: none;"

// containerStrategies is the ordered list of ancestor lookups used to find
// the enclosing listing card. The host's markup offers no single reliable
// container class, so progressively more generic ancestors are tried.
var containerStrategies = []string{
	"a",
	".ProjectCard",
	"[class*='project']",
	"[class*='Project']",
}

// Apply hides every card whose rating is strictly below threshold and shows
// the rest. Elements with an unparseable rating count as rating 0.
func Apply(doc *goquery.Document, threshold float64) int {
	hidden := 0
	doc.Find(RatingSelector).Each(func(_ int, el *goquery.Selection) {
		card := findCard(el)
		if card == nil {
			return
		}
		if ratingOf(el) < threshold {
			hide(card)
			hidden++
		} else {
			clearHidden(card)
		}
	})
	return hidden
}

// RestoreAll unconditionally clears the hidden state from every card,
// regardless of how many times the filter ran before.
func RestoreAll(doc *goquery.Document) {
	doc.Find(RatingSelector).Each(func(_ int, el *goquery.Selection) {
		if card := findCard(el); card != nil {
			clearHidden(card)
		}
	})
}

// Hidden reports whether a card is currently hidden by the filter.
func Hidden(card *goquery.Selection) bool {
	style, _ := card.Attr("style")
	return strings.Contains(style, "display: none")
}

func findCard(el *goquery.Selection) *goquery.Selection {
	for _, strategy := range containerStrategies {
		if c := el.Closest(strategy); c.Length() > 0 && !c.HasClass("Container") {
			return c
		}
	}
	return nil
}

func ratingOf(el *goquery.Selection) float64 {
	raw, _ := el.Attr("data-rating")
	rating, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return rating
}

// hide appends the visibility marker without clobbering styles the host put
// on the card.
func hide(card *goquery.Selection) {
	if Hidden(card) {
		return
	}
	style, _ := card.Attr("style")
	card.SetAttr("style", strings.TrimSpace(style+" "+hiddenStyle))
}

func clearHidden(card *goquery.Selection) {
	style, ok := card.Attr("style")
	if !ok {
		return
	}
	cleaned := strings.ReplaceAll(style, hiddenStyle, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		card.RemoveAttr("style")
		return
	}
	card.SetAttr("style", cleaned)
}
