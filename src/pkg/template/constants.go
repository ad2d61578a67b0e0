package template

// Gate summary templates. A custom templates directory may override the
// embedded default by providing a file with the same name.
const (
	ToolSignature        = `<!-- pipecheck: auto-generated gate summary, please do not edit -->`
	FileNameGateTemplate = "gate.md.tmpl"
	FileNameRunTemplate  = "run.md.tmpl"
)
