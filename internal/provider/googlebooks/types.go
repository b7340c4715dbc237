package googlebooks

// volumesResponse mirrors the Google Books volume list envelope.
type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string               `json:"title"`
	Subtitle            string               `json:"subtitle"`
	Authors             []string             `json:"authors"`
	Publisher           string               `json:"publisher"`
	PublishedDate       string               `json:"publishedDate"`
	Description         string               `json:"description"`
	IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
	Categories          []string             `json:"categories"`
	AverageRating       float64              `json:"averageRating"`
	ImageLinks          imageLinks           `json:"imageLinks"`
	Language            string               `json:"language"`
	InfoLink            string               `json:"infoLink"`
	CanonicalVolumeLink string               `json:"canonicalVolumeLink"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type imageLinks struct {
	Thumbnail      string `json:"thumbnail"`
	SmallThumbnail string `json:"smallThumbnail"`
}

// cachedSearch is the cache envelope for volume searches.
type cachedSearch struct {
	Items    []volume `json:"items"`
	NotFound bool     `json:"not_found"`
}

// cachedVolume is the cache envelope for single volume lookups.
type cachedVolume struct {
	Volume   *volume `json:"volume"`
	NotFound bool    `json:"not_found"`
}
