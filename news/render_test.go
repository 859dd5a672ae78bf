package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderDescription(t *testing.T) {
	html := RenderDescription("resultado **acima** do esperado")
	assert.Contains(t, html, "<strong>acima</strong>")

	html = RenderDescription("- PETR3\n- VALE3\n")
	assert.Contains(t, html, "<li>PETR3</li>")
}

func TestRenderDescriptionStripsUnsafeHTML(t *testing.T) {
	html := RenderDescription(`texto <script>alert("x")</script> seguro`)
	assert.NotContains(t, html, "<script")
	assert.Contains(t, html, "texto")
	assert.Contains(t, html, "seguro")
}
