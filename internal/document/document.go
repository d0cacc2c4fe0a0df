package document

// Origin records where a document came from.
type Origin string

const (
	OriginLocalFile Origin = "local_file"
	OriginWebPage   Origin = "web_page"
)

// Document is extracted text plus its source. Produced by ingestion, never mutated.
type Document struct {
	Text   string // Extracted text content
	Source string // File path or URL
	Origin Origin
	Title  string // Page <title> or file name (informational)
}

// Chunk is a bounded text segment of a Document, the unit of indexing and retrieval.
type Chunk struct {
	Text   string
	Source string // Inherited from the parent Document
	Origin Origin
	Seq    int // Position within the parent Document, starting at 0
}

// Hit is a retrieved chunk with its similarity rank (1-based) and cosine score.
type Hit struct {
	Chunk Chunk
	Rank  int
	Score float32
}
