package model

// Image is an image reference found on a page.
// Two images are the same image when their Link is equal.
type Image struct {
	// Link is the absolute URL of the image source.
	Link string `json:"link"`

	// Alt is the alt text of the <img> element, if any.
	Alt string `json:"alt,omitempty"`
}
