package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextJoinsTrimmedNodes(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<div id="d">
		<p>  first   line </p>
		<p><b>bold</b>tail</p>
		<script>var x = 1;</script>
		<!-- hidden -->
		<span>   </span>
	</div>`)
	require.NoError(t, err)

	assert.Equal(t, "first   line bold tail", Text(doc.Find("#d")))
}

func TestTextNilAndEmptySelection(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<p>x</p>`)
	require.NoError(t, err)
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "", Text(doc.Find("#missing")))
}

func TestFirstText(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<h1>One</h1><h1>Two</h1><h2></h2>`)
	require.NoError(t, err)

	text, ok := FirstText(doc.Selection, "h1")
	assert.True(t, ok)
	assert.Equal(t, "One", text)

	text, ok = FirstText(doc.Selection, "h2")
	assert.True(t, ok)
	assert.Equal(t, "", text)

	_, ok = FirstText(doc.Selection, "h3")
	assert.False(t, ok)
}

func TestFindText(t *testing.T) {
	t.Parallel()

	doc, err := Parse(`<div><span>budget</span><span>  7 أيام </span><span>3 أيام</span></div>`)
	require.NoError(t, err)

	text, ok := FindText(doc.Selection, func(s string) bool { return strings.Contains(s, "أيام") })
	assert.True(t, ok)
	assert.Equal(t, "7 أيام", text)

	_, ok = FindText(doc.Selection, func(s string) bool { return strings.Contains(s, "weeks") })
	assert.False(t, ok)
}
