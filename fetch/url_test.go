package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     string
		template string
		vars     Vars
		want     string
	}{
		{
			name:     "relative path with target and frame",
			base:     "https://cdn.example.com/track",
			template: "geometry/[target]/[frame].drc",
			vars:     Vars{Target: "mesh", Frame: 42},
			want:     "https://cdn.example.com/track/geometry/mesh/42.drc",
		},
		{
			name:     "zero padded frame",
			base:     "https://cdn.example.com",
			template: "geometry/[frame].drc",
			vars:     Vars{Frame: 42, Padding: 5},
			want:     "https://cdn.example.com/geometry/00042.drc",
		},
		{
			name:     "segment and tag",
			base:     "https://cdn.example.com",
			template: "texture/baseColor/[tag]/[target]/[segment].ktx2",
			vars:     Vars{Target: "low", Tag: "default", Segment: 7},
			want:     "https://cdn.example.com/texture/baseColor/default/low/7.ktx2",
		},
		{
			name:     "absolute template ignores base",
			base:     "https://cdn.example.com",
			template: "https://other.example.com/[frame].drc",
			vars:     Vars{Frame: 1},
			want:     "https://other.example.com/1.drc",
		},
		{
			name:     "trailing and leading slashes collapse",
			base:     "https://cdn.example.com/",
			template: "/geometry/[frame].drc",
			vars:     Vars{Frame: 3},
			want:     "https://cdn.example.com/geometry/3.drc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(tt.base, tt.template, tt.vars))
		})
	}
}
