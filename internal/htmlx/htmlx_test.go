package htmlx_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/ineyio/searchrouter/internal/htmlx"
)

const page = `<html><body>
<div class="result web-result"><a class="result__a" href="/a">First
  <b>hit</b></a></div>
<div class="result"><a class="other" href="/b">Second</a></div>
<div class="results_links">skip</div>
</body></html>`

func TestFindAllAndText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	results := htmlx.FindAll(doc, htmlx.Element("div", "result"))
	require.Len(t, results, 2)

	a := htmlx.Find(results[0], htmlx.Element("a", "result__a"))
	require.NotNil(t, a)
	assert.Equal(t, "First hit", htmlx.Text(a))
	assert.Equal(t, "/a", htmlx.Attr(a, "href"))

	assert.Nil(t, htmlx.Find(results[1], htmlx.Element("a", "result__a")))
	assert.NotNil(t, htmlx.Find(results[1], htmlx.Element("a", "")))
	assert.Equal(t, "", htmlx.Text(nil))
}

func TestHasClass(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p class=" x  result__snippet y"></p>`))
	require.NoError(t, err)
	p := htmlx.Find(doc, htmlx.Element("p", ""))
	require.NotNil(t, p)
	assert.True(t, htmlx.HasClass(p, "result__snippet"))
	assert.False(t, htmlx.HasClass(p, "result"))
}
