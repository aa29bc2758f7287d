package filter

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `
<html><body>
  <div class="search-results">
    <a href="/projects/1"><span data-rating="0"></span>Zero stars</a>
    <a href="/projects/2"><span data-rating="3.2"></span>Decent</a>
    <div class="ProjectCard"><span data-rating="4.9"></span>Great</div>
    <div class="project-item"><span data-rating="2.5"></span>So-so</div>
    <div class="ProjectCard"><span data-rating="junk"></span>Unrated</div>
  </div>
</body></html>`

func load(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	require.NoError(t, err)
	return doc
}

func visibleTitles(doc *goquery.Document) []string {
	var out []string
	doc.Find(RatingSelector).Each(func(_ int, el *goquery.Selection) {
		card := findCard(el)
		if card != nil && !Hidden(card) {
			out = append(out, strings.TrimSpace(card.Text()))
		}
	})
	return out
}

func TestApplyHidesBelowThreshold(t *testing.T) {
	doc := load(t)

	hidden := Apply(doc, 3.0)
	assert.Equal(t, 3, hidden, "0, 2.5 and the unparseable rating fall below 3.0")
	assert.ElementsMatch(t, []string{"Decent", "Great"}, visibleTitles(doc))
}

func TestApplyThresholdIsStrict(t *testing.T) {
	doc := load(t)

	Apply(doc, 3.2)
	assert.Contains(t, visibleTitles(doc), "Decent", "rating equal to threshold stays visible")
}

func TestApplyIdempotent(t *testing.T) {
	doc := load(t)

	first := Apply(doc, 3.0)
	second := Apply(doc, 3.0)
	assert.Equal(t, first, second)
	assert.ElementsMatch(t, []string{"Decent", "Great"}, visibleTitles(doc))
}

func TestThresholdLoweredRevealsCards(t *testing.T) {
	doc := load(t)

	Apply(doc, 5.0)
	assert.ElementsMatch(t, []string{}, visibleTitles(doc))

	Apply(doc, 1.0)
	assert.ElementsMatch(t, []string{"Decent", "Great", "So-so"}, visibleTitles(doc))
}

func TestRestoreAll(t *testing.T) {
	doc := load(t)

	Apply(doc, 5.0)
	Apply(doc, 4.0)
	RestoreAll(doc)

	assert.Len(t, visibleTitles(doc), 5, "every card visible again")
}

func TestNothingRemovedFromDocument(t *testing.T) {
	doc := load(t)

	before := doc.Find(RatingSelector).Length()
	Apply(doc, 5.0)
	assert.Equal(t, before, doc.Find(RatingSelector).Length())
}

func TestRestorePreservesForeignStyles(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><a style="color: red;"><span data-rating="1"></span>Styled</a></body></html>`))
	require.NoError(t, err)

	Apply(doc, 3.0)
	RestoreAll(doc)

	style, _ := doc.Find("a").Attr("style")
	assert.Contains(t, style, "color: red")
	assert.NotContains(t, style, "display: none")
}
