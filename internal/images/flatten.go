package images

import (
	"github.com/google/uuid"

	"github.com/nao1215/sitegraph/internal/model"
)

// Flatten collects every image of every page in g under a fresh id.
// The same image on two pages yields two entries.
func Flatten(g *model.LinkGraph) map[string]model.Image {
	images := make(map[string]model.Image, g.ImageCount())
	g.Each(func(link *model.Link) bool {
		for _, img := range link.Images {
			images[uuid.NewString()] = img
		}
		return true
	})
	return images
}
