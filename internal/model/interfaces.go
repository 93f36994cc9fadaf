package model

// Extractor is responsible for parsing a file and finding SQL segments
type Extractor interface {
	// Extract parses the given file content and returns found SQL segments
	Extract(filePath string, content []byte) ([]SQLSegment, error)
}

// Reporter defines how to output results
type Reporter interface {
	Report(reports []SegmentReport) error
}
