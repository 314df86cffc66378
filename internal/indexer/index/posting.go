package index

// Document is one unit of the corpus. ID must be unique within a build.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Posting records how often a term occurs in one document. Doc is the
// document's ordinal, i.e. its position in the slice passed to Build.
type Posting struct {
	Doc       int
	Frequency int
}

// PostingList is ordered by ascending Doc.
type PostingList []Posting
