package contracts

// InputGroup is a set of files that belong to one output, usually the image
// files of one directory.
type InputGroup struct {
	FilePaths []string
	Name      string
	Path      string
	TotalSize int64
}

type OutputFile struct {
	Path string
	Size int64
}
