package photoprism

// Album represents a PhotoPrism album
type Album struct {
	UID         string `json:"UID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	PhotoCount  int    `json:"PhotoCount"`
	Type        string `json:"Type"`
	CreatedAt   string `json:"CreatedAt"`
}

// Photo is one entry of the photo search result.
type Photo struct {
	ID      string  `json:"ID"` // composite "<photo id>-<file id>"
	UID     string  `json:"UID"`
	Type    string  `json:"Type"`
	Title   string  `json:"Title"`
	TakenAt string  `json:"TakenAt"`
	Lat     float64 `json:"Lat"`
	Lng     float64 `json:"Lng"`
	Hash    string  `json:"Hash"`
}

// PhotoDetails is the full photo record returned by photos/{uid}.
type PhotoDetails struct {
	ID      int64        `json:"ID"`
	UID     string       `json:"UID"`
	Type    string       `json:"Type"`
	TakenAt string       `json:"TakenAt"`
	Lat     float64      `json:"Lat"`
	Lng     float64      `json:"Lng"`
	Files   []File       `json:"Files"`
	Labels  []PhotoLabel `json:"Labels"`
}

// File is one file attached to a photo.
type File struct {
	UID     string `json:"UID"`
	Hash    string `json:"Hash"`
	Primary bool   `json:"Primary"`
	Mime    string `json:"Mime"`
}

// PhotoLabel links a label to a photo. Uncertainty is a percentage.
type PhotoLabel struct {
	LabelSrc    string `json:"LabelSrc"`
	Uncertainty int    `json:"Uncertainty"`
	Label       struct {
		Name string `json:"Name"`
	} `json:"Label"`
}

// PhotoQuery parameterizes a photo search.
type PhotoQuery struct {
	Count  int
	Offset int
	Query  string
	Order  string // "newest", "oldest", "added", ...
}

// primaryHash returns the hash of the primary file, falling back to the first file.
func (d *PhotoDetails) primaryHash() string {
	for _, f := range d.Files {
		if f.Primary {
			return f.Hash
		}
	}
	if len(d.Files) > 0 {
		return d.Files[0].Hash
	}
	return ""
}
