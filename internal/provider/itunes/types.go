package itunes

// lookupResponse is the envelope both /search and /lookup return.
type lookupResponse struct {
	ResultCount int         `json:"resultCount"`
	Results     []audiobook `json:"results"`
}

type audiobook struct {
	WrapperType       string  `json:"wrapperType"`
	CollectionID      int64   `json:"collectionId"`
	CollectionName    string  `json:"collectionName"`
	ArtistName        string  `json:"artistName"`
	CollectionViewURL string  `json:"collectionViewUrl"`
	ArtworkURL100     string  `json:"artworkUrl100"`
	ReleaseDate       string  `json:"releaseDate"`
	PrimaryGenreName  string  `json:"primaryGenreName"`
	Description       string  `json:"description"`
	Copyright         string  `json:"copyright"`
	Country           string  `json:"country"`
	AverageUserRating float64 `json:"averageUserRating"`
}

// cachedSearch is the cache envelope for search responses.
type cachedSearch struct {
	Results  []audiobook `json:"results"`
	NotFound bool        `json:"not_found"`
}

// cachedLookup is the cache envelope for lookup responses.
type cachedLookup struct {
	Result   *audiobook `json:"result"`
	NotFound bool       `json:"not_found"`
}
