package dom

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailHTML = `
<html><body>
  <div class="ProjectDescription">Build a scraper in Go.</div>
  <app-bid-description-button><button class="AIButton">AI</button></app-bid-description-button>
</body></html>`

func TestNewAndFind(t *testing.T) {
	p, err := New("https://www.freelancer.com/projects/golang/scraper/details", detailHTML)
	require.NoError(t, err)

	assert.Equal(t, "/projects/golang/scraper/details", p.Path())
	assert.Equal(t, 1, p.Find(".ProjectDescription").Length())
	assert.Equal(t, "Build a scraper in Go.", p.Find(".ProjectDescription").Text())
}

func TestMutateNotifiesObservers(t *testing.T) {
	p, err := New("https://www.freelancer.com/search/projects", detailHTML)
	require.NoError(t, err)

	fired := 0
	disconnect := p.OnMutation(func() { fired++ })

	p.Mutate(func(doc *goquery.Document) {
		doc.Find("body").AppendHtml(`<div id="late"></div>`)
	})
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, p.Find("#late").Length())

	disconnect()
	p.Mutate(func(doc *goquery.Document) {})
	assert.Equal(t, 1, fired)
}

func TestHistoryPrimitives(t *testing.T) {
	p, err := New("https://www.freelancer.com/search/projects", detailHTML)
	require.NoError(t, err)

	var seen []string
	defer p.OnHistory(func(u string) { seen = append(seen, u) })()

	p.PushState("https://www.freelancer.com/projects/x/details")
	p.ReplaceState("https://www.freelancer.com/projects/y/details")
	assert.Equal(t, "https://www.freelancer.com/projects/y/details", p.URL())

	assert.True(t, p.Back())
	assert.Equal(t, "https://www.freelancer.com/search/projects", p.URL())
	assert.False(t, p.Back(), "nothing left to pop")

	assert.Len(t, seen, 3)
}

func TestSetHTMLReplacesDocument(t *testing.T) {
	p, err := New("https://www.freelancer.com/search/projects", detailHTML)
	require.NoError(t, err)

	fired := 0
	defer p.OnMutation(func() { fired++ })()

	require.NoError(t, p.SetHTML(`<html><body><p id="fresh"></p></body></html>`))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, p.Find(".ProjectDescription").Length())
	assert.Equal(t, 1, p.Find("#fresh").Length())
}
