package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExternalLinkFilter(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []string
		expected []string
	}{
		{
			name: "plain text passes through",
			chunks: []string{
				"**alta**, ",
				"sem links aqui, ",
				"nem aqui",
				"",
			},
			expected: []string{
				"**alta**, ",
				"sem links aqui, ",
				"nem aqui",
				"",
			},
		},
		{
			name: "link inside one chunk",
			chunks: []string{
				"veja [a fonte](https://example.com) agora",
				"",
			},
			expected: []string{
				"veja  agora",
				"",
			},
		},
		{
			name: "link split across chunks",
			chunks: []string{
				"veja [Petro",
				"bras](https://x",
				".com) hoje",
				"",
			},
			expected: []string{
				"",
				"",
				"veja  hoje",
				"",
			},
		},
		{
			name: "never ending link flushed at stream end",
			chunks: []string{
				"**alta**, ",
				"sem links, [",
				"texto solto",
				"",
			},
			expected: []string{
				"**alta**, ",
				"",
				"",
				"sem links, [texto solto",
			},
		},
		{
			name: "just brackets, not a link",
			chunks: []string{
				"**alta**, ",
				"[sem links], ",
				"texto",
				"",
			},
			expected: []string{
				"**alta**, ",
				"",
				"",
				"[sem links], texto",
			},
		},
		{
			name: "closing bracket without parens",
			chunks: []string{
				"abre [",
				"fecha] aqui",
				"",
			},
			expected: []string{
				"",
				"abre [fecha] aqui",
				"",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ExternalLinkFilter{}
			for i, chunk := range tt.chunks {
				assert.Equal(t, tt.expected[i], f.ProcessChunk(context.Background(), chunk))
			}
		})
	}
}
