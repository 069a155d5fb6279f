package notify

import "strings"

// PlaceholderImageURL is sent when no public site domain is configured
const PlaceholderImageURL = "https://upload.wikimedia.org/wikipedia/en/a/a6/Pok%C3%A9mon_Pikachu_art.png"

// URLMapper turns stored relative image paths into public URLs
type URLMapper struct {
	SiteDomain string
}

// ImageURL returns the public URL of the annotated image
func (m URLMapper) ImageURL(drawnPath string) string {
	return m.join(drawnPath)
}

// RawImageURL returns the public URL of the raw image that the annotated
// image at drawnPath was drawn from.
func (m URLMapper) RawImageURL(drawnPath string) string {
	return m.join(strings.Replace(drawnPath, "detected_image/", "raw_image/", 1))
}

func (m URLMapper) join(path string) string {
	if m.SiteDomain == "" {
		return PlaceholderImageURL
	}
	if path == "" {
		return ""
	}
	return strings.TrimRight(m.SiteDomain, "/") + "/" + strings.TrimLeft(path, "/")
}
