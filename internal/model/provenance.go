package model

// Provenance identifies the archive record a piece of data was derived from.
type Provenance struct {
	URL      string `json:"url"`
	RecordID string `json:"warc_rec_id"`
	Date     string `json:"warc_date"`
}
