package blendshape

import (
	"go.uber.org/zap"

	"github.com/Faultbox/blendshare/pkg/encoding"
	"github.com/Faultbox/blendshare/pkg/scene"
)

// CompareChannels lists, for every source mesh that origin also has, the
// channels origin lacks. By name, a channel is new when origin has no
// channel of that name. By index, every source channel past origin's
// channel count is new. Meshes missing from origin are logged and skipped.
func CompareChannels(source, origin *scene.Scene, byName bool, log *zap.Logger) []MeshRequest {
	if log == nil {
		log = zap.NewNop()
	}

	var reqs []MeshRequest
	for i := range source.Meshes {
		src := &source.Meshes[i]
		org := origin.Mesh(src.Name)
		if org == nil {
			log.Error("mesh not found in origin",
				zap.String("mesh", src.Name),
				zap.String("origin", origin.Name))
			continue
		}

		req := MeshRequest{Mesh: src.Name}
		if byName {
			seen := make(map[string]bool)
			for _, ch := range src.Channels {
				key := encoding.NormalizeName(ch.Name)
				if seen[key] || org.FindChannel(ch.Name) >= 0 {
					continue
				}
				seen[key] = true
				req.Channels = append(req.Channels, ch.Name)
			}
		} else {
			for j := len(org.Channels); j < len(src.Channels); j++ {
				req.Channels = append(req.Channels, src.Channels[j].Name)
			}
		}
		reqs = append(reqs, req)
	}
	return reqs
}
