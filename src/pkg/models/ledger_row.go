package models

// LedgerRow is the persisted tuple for one completed TestCase
type LedgerRow struct {
	ImageRef       string `json:"image"`
	WorkflowName   string `json:"workflow"`
	DataSampleID   string `json:"dataSample"`
	StructureMatch bool   `json:"dirtreeMatch"`
	ContentMatch   bool   `json:"outputMatch"`
}

// Passed reports whether both match columns are true
func (r LedgerRow) Passed() bool {
	return r.StructureMatch && r.ContentMatch
}

// ImageVerdict is the aggregated release eligibility of one image
type ImageVerdict struct {
	ImageRef string      `json:"image"`
	Eligible bool        `json:"eligible"`
	Rows     []LedgerRow `json:"rows"`
}

// DirDiff is the one-level partition of two directories
type DirDiff struct {
	OnlyInA      []string
	OnlyInB      []string
	Uncomparable []string
	CommonFiles  []string
	CommonDirs   []string
}

// Equal reports whether no entry falsifies structural equivalence at this level
func (d DirDiff) Equal() bool {
	return len(d.OnlyInA) == 0 && len(d.OnlyInB) == 0 && len(d.Uncomparable) == 0
}
