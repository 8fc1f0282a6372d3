package model

// DecodedDocument is the text body of one HTML/XML response record.
// Content is always valid UTF-8; undecodable input is replaced, never rejected.
type DecodedDocument struct {
	Content    string
	Charset    string // resolved charset label, "utf-8" when defaulted
	Provenance Provenance
}

// LinkedDataBlock is the trimmed text of one <script type="application/ld+json"> element.
type LinkedDataBlock struct {
	Text       string
	Provenance Provenance
}
