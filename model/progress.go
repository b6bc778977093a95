package model

// Progress is emitted once per discovered file after it has been handled,
// whether extraction succeeded or not.
type Progress struct {
	Processed int
	Total     int
	Percent   int
	Path      string
	Err       error
}
