package domain

// Source represents a feed endpoint listed in the catalog
type Source struct {
	Title    string
	URL      string
	Category string
}

// String returns a short human readable form used in logs
func (s Source) String() string {
	if s.Title == "" {
		return s.URL
	}
	return s.Title + " (" + s.URL + ")"
}
