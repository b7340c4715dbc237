package openlibrary

import "encoding/json"

// searchResponse mirrors the fields of /search.json the aggregator uses.
type searchResponse struct {
	NumFound int         `json:"numFound"`
	Docs     []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	CoverID          int      `json:"cover_i"`
	FirstPublishYear int      `json:"first_publish_year"`
	RatingsAverage   float64  `json:"ratings_average"`
	Language         []string `json:"language"`
	ISBN             []string `json:"isbn"`
}

// workResponse mirrors the fields of /works/{id}.json the enricher uses.
// Description is decoded separately because the API returns either a
// plain string or a {"type","value"} object.
type workResponse struct {
	Title            string          `json:"title"`
	Description      descriptionText `json:"description"`
	Subjects         []string        `json:"subjects"`
	Covers           []int           `json:"covers"`
	FirstPublishDate string          `json:"first_publish_date"`
}

type descriptionText string

func (d *descriptionText) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = descriptionText(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*d = descriptionText(obj.Value)
	return nil
}

// cachedSearch is the cache envelope for search responses. NotFound
// records empty result sets so they get the shorter negative TTL.
type cachedSearch struct {
	Snippets []cachedSnippet `json:"snippets"`
	NotFound bool            `json:"not_found"`
}

type cachedSnippet struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors,omitempty"`
	URL     string   `json:"url,omitempty"`
	Cover   string   `json:"cover,omitempty"`
	Rating  float64  `json:"rating,omitempty"`
}

// cachedWork is the cache envelope for work detail responses.
type cachedWork struct {
	Work     *workResponse `json:"work"`
	NotFound bool          `json:"not_found"`
}
