package runner

const (
	COMMAND_TEST = "test"
	COMMAND_GATE = "gate"

	FILE_NAME_REPORT_JSON   = "report.json"
	FILE_NAME_REPORT_MD     = "report.md"
	FILE_NAME_GATE_JSON     = "gate.json"
	DEFAULT_CONCURRENCY     = 4
	DEFAULT_OUTPUT_DIR      = "./output"
	DEFAULT_LEDGER_DIR      = "./logs"
)

type Options struct {
	Command string // "test" or "gate"
	Debug   bool   // Debug mode

	// Common options
	TemplatesPath                 string
	OutputDir                     string
	EnableExportReport            bool
	EnableExportPerformanceReport bool

	// Test options
	ConfigPath     string // harness YAML
	Outpath        string // folder receiving <config name>.csv
	RunnerMode     string // "exec" or "api"
	Concurrency    int    // 1 runs sequentially in submission order
	GPU            bool
	DryRun         bool
	Verbose        bool // stream container output
	Fresh          bool // remove an existing ledger of the same configuration first
	RecordFailures bool // write False,False rows for aborted cases
	NoProgress     bool
	FailOnFailure  bool // nonzero exit when any case failed or aborted

	// Gate options
	LedgerDir  string // folder with *.csv ledgers
	PolicyPath string // optional rego policy
	Registry   string // prefix of base images
	PlanFile   string // optional JSON plan output
	ReportFile string // optional markdown summary output
}
